package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"partsuite/internal/config"
)

const amountExpr = `\(?-?[0-9][0-9,]*\.[0-9]{2}\)?`

var (
	typeCodePattern = regexp.MustCompile(`^([A-Z]{1,2})([0-9]+)`)
	accountPattern  = regexp.MustCompile(`^([A-Z0-9.]+)\s+(.*\S)\s+(` + amountExpr + `)$`)
	commaPattern    = regexp.MustCompile(`\s*,\s*`)
)

// Rules is a vendor profile with its patterns compiled. It is safe for
// concurrent use.
type Rules struct {
	profile config.Profile

	headers     []*regexp.Regexp
	label       string
	legacyStart *regexp.Regexp
	number      *regexp.Regexp
	fullNumber  *regexp.Regexp
	dateStrict  *regexp.Regexp
	dateLoose   *regexp.Regexp
	tax         *regexp.Regexp
	aggregate   *regexp.Regexp
}

func NewRules(p config.Profile) (*Rules, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.Clone()
	r := &Rules{profile: p, label: strings.ToUpper(strings.TrimSpace(p.BoundaryLabel))}

	for _, h := range p.HeaderPatterns {
		re, err := regexp.Compile(`(?i)` + h)
		if err != nil {
			return nil, fmt.Errorf("header pattern %q: %w", h, err)
		}
		r.headers = append(r.headers, re)
	}

	prefix := regexp.QuoteMeta(p.NumberPrefix)
	label := labelExpr(p.BoundaryLabel)
	r.legacyStart = regexp.MustCompile(prefix + `[A-Z]+`)
	r.number = regexp.MustCompile(`(?i)` + label + `\s*:\s*([0-9A-Z\s]+)`)
	r.fullNumber = regexp.MustCompile(`^` + prefix + `[A-Z]{1,2}[0-9]+$`)
	r.dateStrict = regexp.MustCompile(`(?i)INVOICE\s+DATE\s*:\s*([A-Z]+\s+[0-9]{1,2}\s*,?\s*[0-9]{4})`)
	r.dateLoose = regexp.MustCompile(`(?i)INVOICE\s+DATE\s*:\s*([A-Z ,0-9]+)`)
	r.tax = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p.TaxLabel) + `.*?@\s*([0-9]+(?:\.[0-9]+)?)\s*%.*?(` + amountExpr + `)[^0-9]*$`)

	if len(p.AggregateLabels) > 0 {
		agg, err := regexp.Compile(`(?i)^(` + strings.Join(p.AggregateLabels, "|") + `)\s+(` + amountExpr + `)$`)
		if err != nil {
			return nil, fmt.Errorf("aggregate labels: %w", err)
		}
		r.aggregate = agg
	}
	return r, nil
}

func MustRules(p config.Profile) *Rules {
	r, err := NewRules(p)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rules) Profile() config.Profile { return r.profile.Clone() }

func labelExpr(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}
