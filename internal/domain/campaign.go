package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign (spec.md §3).
type CampaignStatus string

const (
	CampaignWaiting CampaignStatus = "waiting"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignError   CampaignStatus = "error"
)

// Campaign is the declared unit of work: subject, templated body, sender,
// and recipient segment, plus the lifecycle/window fields that decide
// whether it belongs in the outbox (spec.md §3).
type Campaign struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	UTMName   string `json:"utm_name" db:"utm_name"`

	FromName     string `json:"from_name" db:"from_name"`
	FromEmail    string `json:"from_email" db:"from_email"`
	ReplyToName  string `json:"reply_to_name" db:"reply_to_name"`
	ReplyToEmail string `json:"reply_to_email" db:"reply_to_email"`

	Subject  string `json:"subject" db:"subject"`
	HTMLBody string `json:"html_body" db:"html_body"`
	TextBody string `json:"text_body" db:"text_body"`

	SegmentID *string `json:"segment_id" db:"segment_id"`

	Status CampaignStatus `json:"status" db:"status"`

	StartDate *time.Time `json:"start_date" db:"start_date"`
	EndDate   *time.Time `json:"end_date" db:"end_date"`
	FirstSent *time.Time `json:"first_sent" db:"first_sent"`

	// SignatureKey is a random 20-byte key generated at creation and used to
	// HMAC-sign every tracking link rewritten into this campaign's body
	// (spec.md §4.5 step 4). Never exposed outside the signing path.
	SignatureKey []byte `json:"-" db:"signature_key"`

	// TrackingDomain optionally overrides PUBLIC_URL for this campaign's
	// tracking pixel/link URLs (carried forward from the original's
	// per-organization tracking-domain support; see SPEC_FULL.md §4).
	TrackingDomain string `json:"tracking_domain" db:"tracking_domain"`

	Created time.Time `json:"created" db:"created"`
	Updated time.Time `json:"updated" db:"updated"`
}

// InOutbox reports whether this campaign currently belongs in the
// supervisor's watch set: status < Sent and within [start_date, end_date]
// (spec.md §3 "A campaign is in the outbox iff...").
func (c *Campaign) InOutbox(now time.Time) bool {
	if c.Status != CampaignWaiting && c.Status != CampaignSending {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

// ReplyTo formats the Reply-To header value, or "" if no reply-to email is
// set (spec.md §4.5 step 6).
func (c *Campaign) ReplyTo() string {
	if c.ReplyToEmail == "" {
		return ""
	}
	return formatAddress(c.ReplyToName, c.ReplyToEmail)
}

// From formats the From header value (spec.md §4.5 step 6).
func (c *Campaign) From() string {
	return formatAddress(c.FromName, c.FromEmail)
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return name + " <" + email + ">"
}
