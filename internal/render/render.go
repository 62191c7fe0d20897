package render

import (
	"github.com/ignite/nuntius/internal/domain"
)

// Input is everything the renderer needs for one SendRecord (spec.md §4.5).
type Input struct {
	Campaign   *domain.Campaign
	SendRecord *domain.SendRecord
	Attributes map[string]string
	UTMTerm    string // segment.utm_term, or "" if the campaign targets the full subscriber set
	PublicURL  string // PUBLIC_URL, possibly overridden by campaign.TrackingDomain
}

// CampaignTemplate holds the invariant part of a render (spec.md §4.5
// "may be precomputed per campaign for invariant portions"): the
// legacy-marker translation of each body, done once per campaign rather
// than once per recipient.
type CampaignTemplate struct {
	htmlBody string
	textBody string
	subject  string
}

// NewCampaignTemplate translates legacy [NAME] markers to {{ NAME }} once;
// RenderWithTemplate then only needs to substitute per-recipient variables.
func NewCampaignTemplate(c *domain.Campaign) *CampaignTemplate {
	return &CampaignTemplate{
		htmlBody: translateLegacyMarkers(c.HTMLBody),
		textBody: translateLegacyMarkers(c.TextBody),
		subject:  translateLegacyMarkers(c.Subject),
	}
}

// Render produces the fully-resolved EmailMessage for a SendRecord,
// performing substitution, tracking injection, link rewriting, and header
// construction (spec.md §4.5); the MIME shape is left to the transport.
// Render is pure: it
// mutates nothing and performs no I/O.
func Render(in Input) *domain.EmailMessage {
	return RenderWithTemplate(NewCampaignTemplate(in.Campaign), in)
}

// RenderWithTemplate is Render reusing a precomputed CampaignTemplate
// across every recipient of the same campaign.
func RenderWithTemplate(tmpl *CampaignTemplate, in Input) *domain.EmailMessage {
	publicURL := in.PublicURL
	if in.Campaign.TrackingDomain != "" {
		publicURL = in.Campaign.TrackingDomain
	}

	vars := buildVariableContext(in.Attributes, in.SendRecord.TrackingID)

	html := substituteIfSet(tmpl.htmlBody, vars)
	text := substituteIfSet(tmpl.textBody, vars)
	subject := substituteIfSet(tmpl.subject, vars)

	if html != "" {
		html = rewriteLinks(html, in.SendRecord.TrackingID, in.Campaign.SignatureKey, publicURL, in.UTMTerm)
		html = injectTrackingPixel(html, in.SendRecord.TrackingID, publicURL)
	}

	msg := &domain.EmailMessage{
		SendRecordID: in.SendRecord.ID,
		To:           in.SendRecord.Email,
		From:         in.Campaign.From(),
		ReplyTo:      in.Campaign.ReplyTo(),
		Subject:      subject,
		HTMLBody:     html,
		TextBody:     text,
		Headers:      map[string]string{},
	}
	return msg
}
