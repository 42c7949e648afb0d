package pipeline

import (
	"fmt"
	"strings"

	"partsuite/internal"
)

type SegmentPolicy string

const (
	// PolicyStrict splits on header pages and drops anything before the
	// first one. A bundle without boundaries yields no sections.
	PolicyStrict SegmentPolicy = "strict"
	// PolicyLegacy splits wherever the invoice number prefix appears and
	// treats a bundle without boundaries as a single invoice.
	PolicyLegacy SegmentPolicy = "legacy"
)

func ParseSegmentPolicy(s string) (SegmentPolicy, error) {
	switch SegmentPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	default:
		return "", fmt.Errorf("unsupported segment policy: %s", s)
	}
}

// Segment groups pages into invoice sections in page order.
func (r *Rules) Segment(pages []internal.PageText, policy SegmentPolicy) []internal.InvoiceSection {
	isBoundary := r.IsBoundary
	if policy == PolicyLegacy {
		isBoundary = r.isLegacyBoundary
	}

	var sections []internal.InvoiceSection
	var current []internal.PageText
	flush := func() {
		if len(current) > 0 {
			sections = append(sections, internal.InvoiceSection{Ordinal: len(sections), Pages: current})
		}
	}
	for _, p := range pages {
		if isBoundary(p.Text) {
			flush()
			current = []internal.PageText{p}
			continue
		}
		if current != nil {
			current = append(current, p)
		}
	}
	flush()

	if len(sections) == 0 && policy == PolicyLegacy && len(pages) > 0 {
		whole := append([]internal.PageText(nil), pages...)
		sections = append(sections, internal.InvoiceSection{Ordinal: 0, Pages: whole})
	}
	return sections
}
