// Package render implements the message renderer (spec.md §4.5): variable
// substitution, tracking pixel injection, link rewriting with signed
// tracking URLs, and header construction. The MIME shape is chosen by the
// transport from which bodies are non-empty.
package render

import (
	"regexp"
	"strings"
)

var legacyMarker = regexp.MustCompile(`\[([A-Za-z0-9_]+)\]`)

// translateLegacyMarkers rewrites old-style [NAME] placeholders to the
// {{ NAME }} form before substitution (spec.md §4.5 step 2).
func translateLegacyMarkers(body string) string {
	return legacyMarker.ReplaceAllString(body, "{{ $1 }}")
}

var variableRef = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// substitute replaces every {{ name }} reference with its value from vars,
// leaving unresolved references untouched (spec.md §4.5 step 2).
func substitute(body string, vars map[string]string) string {
	return variableRef.ReplaceAllStringFunc(body, func(ref string) string {
		m := variableRef.FindStringSubmatch(ref)
		if m == nil {
			return ref
		}
		if v, ok := vars[m[1]]; ok {
			return v
		}
		return ref
	})
}

// renderBody applies legacy-marker translation then substitution, the two
// steps spec.md §4.5 step 2 requires in order.
func renderBody(body string, vars map[string]string) string {
	if body == "" {
		return ""
	}
	return substitute(translateLegacyMarkers(body), vars)
}

// substituteIfSet substitutes into an already legacy-translated body
// (see CampaignTemplate), skipping empty bodies.
func substituteIfSet(body string, vars map[string]string) string {
	if body == "" {
		return ""
	}
	return substitute(body, vars)
}

// buildVariableContext merges a subscriber's attribute map with the
// tracking id, per spec.md §4.5 step 1. tracking_id is set last, so it
// wins over an attribute of the same name: it is the one key the renderer
// itself controls.
func buildVariableContext(attrs map[string]string, trackingID string) map[string]string {
	ctx := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		ctx[strings.ToUpper(k)] = v
		ctx[k] = v
	}
	ctx["tracking_id"] = trackingID
	return ctx
}
