package render

import (
	"net/url"
	"strings"
	"testing"

	"github.com/ignite/nuntius/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:           "camp-1",
		FromName:     "Nuntius",
		FromEmail:    "sender@example.org",
		ReplyToEmail: "reply@example.org",
		Subject:      "Hello {{ first_name }}",
		HTMLBody:     `<html><body>Hi [FIRST_NAME], <a href="http://example.com/a">click</a></body></html>`,
		TextBody:     "Hi {{ first_name }}",
		SignatureKey: []byte("test-signature-key"),
	}
}

func testSendRecord() *domain.SendRecord {
	return &domain.SendRecord{
		ID:         "rec-1",
		Email:      "subscriber@example.org",
		TrackingID: "tr123456789a",
	}
}

func TestRender_SubstitutesVariablesAndLegacyMarkers(t *testing.T) {
	msg := Render(Input{
		Campaign:   testCampaign(),
		SendRecord: testSendRecord(),
		Attributes: map[string]string{"first_name": "Ada"},
		PublicURL:  "https://track.example.org",
	})

	assert.Contains(t, msg.HTMLBody, "Hi Ada,")
	assert.Contains(t, msg.Subject, "Hello Ada")
	assert.Contains(t, msg.TextBody, "Hi Ada")
}

func TestRender_InjectsTrackingPixelBeforeBodyClose(t *testing.T) {
	msg := Render(Input{
		Campaign:   testCampaign(),
		SendRecord: testSendRecord(),
		Attributes: map[string]string{"first_name": "Ada"},
		PublicURL:  "https://track.example.org",
	})

	assert.Contains(t, msg.HTMLBody, `src="https://track.example.org/open/tr123456789a"`)
	assert.Less(t,
		strings.Index(msg.HTMLBody, "open/tr123456789a"),
		strings.Index(msg.HTMLBody, "</body>"))
}

func TestRender_RewritesLinksWithValidSignature(t *testing.T) {
	c := testCampaign()
	msg := Render(Input{
		Campaign:   c,
		SendRecord: testSendRecord(),
		Attributes: map[string]string{"first_name": "Ada"},
		PublicURL:  "https://track.example.org",
		UTMTerm:    "newsletter",
	})

	assert.NotContains(t, msg.HTMLBody, `href="http://example.com/a"`)
	assert.Contains(t, msg.HTMLBody, "https://track.example.org/link/tr123456789a/")

	sig, target := extractSignedLink(t, msg.HTMLBody)
	assert.True(t, VerifyLink(c.SignatureKey, target, sig))
	assert.Contains(t, target, "utm_content=link-0")
	assert.Contains(t, target, "utm_term=newsletter")
}

func TestRender_EmptyHTMLSkipsLinkAndPixelInjection(t *testing.T) {
	c := testCampaign()
	c.HTMLBody = ""
	msg := Render(Input{
		Campaign:   c,
		SendRecord: testSendRecord(),
		Attributes: map[string]string{"first_name": "Ada"},
		PublicURL:  "https://track.example.org",
	})
	assert.Equal(t, "", msg.HTMLBody)
}

func TestRender_HeadersFormatFromAndReplyTo(t *testing.T) {
	msg := Render(Input{
		Campaign:   testCampaign(),
		SendRecord: testSendRecord(),
		Attributes: map[string]string{},
		PublicURL:  "https://track.example.org",
	})
	assert.Equal(t, "Nuntius <sender@example.org>", msg.From)
	assert.Equal(t, "reply@example.org", msg.ReplyTo)
}

func TestRender_NoReplyToWhenUnset(t *testing.T) {
	c := testCampaign()
	c.ReplyToEmail = ""
	msg := Render(Input{
		Campaign:   c,
		SendRecord: testSendRecord(),
		Attributes: map[string]string{},
		PublicURL:  "https://track.example.org",
	})
	assert.Equal(t, "", msg.ReplyTo)
}

func TestCampaignTemplate_ReusedAcrossRecipients(t *testing.T) {
	c := testCampaign()
	tmpl := NewCampaignTemplate(c)

	rec1 := testSendRecord()
	rec2 := &domain.SendRecord{ID: "rec-2", Email: "other@example.org", TrackingID: "trzzzzzzzzzz"}

	msg1 := RenderWithTemplate(tmpl, Input{Campaign: c, SendRecord: rec1, Attributes: map[string]string{"first_name": "Ada"}, PublicURL: "https://track.example.org"})
	msg2 := RenderWithTemplate(tmpl, Input{Campaign: c, SendRecord: rec2, Attributes: map[string]string{"first_name": "Grace"}, PublicURL: "https://track.example.org"})

	assert.Contains(t, msg1.HTMLBody, "Hi Ada")
	assert.Contains(t, msg2.HTMLBody, "Hi Grace")
	assert.NotEqual(t, msg1.To, msg2.To)
}

func TestSignLink_VerifyRejectsTamperedTarget(t *testing.T) {
	key := []byte("k")
	sig := SignLink(key, "https://example.org/a")
	require.False(t, VerifyLink(key, "https://example.org/b", sig))
}

// extractSignedLink parses the first /link/{tracking_id}/{signature}/{encoded}
// path out of rendered HTML and returns the signature and decoded target.
func extractSignedLink(t *testing.T, html string) (signature, target string) {
	t.Helper()
	idx := strings.Index(html, "/link/")
	require.GreaterOrEqual(t, idx, 0)
	rest := html[idx+len("/link/"):]

	end := strings.IndexAny(rest, `"`)
	require.GreaterOrEqual(t, end, 0)
	rest = rest[:end]

	parts := strings.SplitN(rest, "/", 3)
	require.Len(t, parts, 3)

	decoded, err := url.QueryUnescape(parts[2])
	require.NoError(t, err)
	return parts[1], decoded
}
