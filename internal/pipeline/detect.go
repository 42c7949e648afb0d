package pipeline

import "strings"

// IsBoundary reports whether a page starts a new invoice: it must carry one of
// the vendor headers and the invoice number label.
func (r *Rules) IsBoundary(text string) bool {
	if !strings.Contains(strings.ToUpper(text), r.label) {
		return false
	}
	for _, h := range r.headers {
		if h.MatchString(text) {
			return true
		}
	}
	return false
}

func (r *Rules) isLegacyBoundary(text string) bool {
	return r.legacyStart.MatchString(text)
}
