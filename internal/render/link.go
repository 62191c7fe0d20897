package render

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// SignLink computes base64url(HMAC-SHA1(key, target)) (spec.md §4.5 step 4).
func SignLink(key []byte, target string) string {
	h := hmac.New(sha1.New, key)
	h.Write([]byte(target))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// VerifyLink reports whether signature matches target under key, compared
// in constant time (spec.md §4.9).
func VerifyLink(key []byte, target, signature string) bool {
	expected := SignLink(key, target)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// withDefaultQueryParams appends name=value to rawURL only if name is not
// already present, preserving every existing query key (spec.md §4.5 step 4
// "existing query keys are preserved (defaults-only merge)").
func withDefaultQueryParams(rawURL string, defaults map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range defaults {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AugmentRedirectURL sets utm_source=nuntius and utm_medium=email on
// target, overriding any existing values, and adds utm_campaign=utmName
// only if not already present (spec.md §4.9 click-redirect step).
func AugmentRedirectURL(target, utmName string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("utm_source", "nuntius")
	q.Set("utm_medium", "email")
	if _, ok := q["utm_campaign"]; !ok {
		q.Set("utm_campaign", utmName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]*)"`)

// rewriteLinks replaces every href="http..." target in html with a signed
// tracking URL, numbering links 0-based in document order (spec.md §4.5
// step 4). publicURL is the campaign's effective tracking base
// (TrackingDomain override or the global PUBLIC_URL).
func rewriteLinks(html string, trackingID string, signatureKey []byte, publicURL, utmTerm string) string {
	i := 0
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		m := hrefPattern.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		target := m[1]

		signed := withDefaultQueryParams(target, map[string]string{
			"utm_content": fmt.Sprintf("link-%d", i),
			"utm_term":    utmTerm,
		})
		i++

		signature := SignLink(signatureKey, signed)
		trackingURL := fmt.Sprintf("%s/link/%s/%s/%s",
			strings.TrimRight(publicURL, "/"), trackingID, signature, url.QueryEscape(signed))
		return `href="` + trackingURL + `"`
	})
}

var bodyCloseTag = regexp.MustCompile(`(?i)</body>`)

// injectTrackingPixel inserts a 1x1 open-tracking image immediately before
// the first </body> (case-insensitive), spec.md §4.5 step 3.
func injectTrackingPixel(html, trackingID, publicURL string) string {
	loc := bodyCloseTag.FindStringIndex(html)
	if loc == nil {
		return html
	}
	pixel := fmt.Sprintf(`<img src="%s/open/%s" width="1" height="1" alt="nt">`,
		strings.TrimRight(publicURL, "/"), trackingID)
	return html[:loc[0]] + pixel + html[loc[0]:]
}
