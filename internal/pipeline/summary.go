package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"partsuite/internal"
	"partsuite/internal/util"
)

type Summary struct {
	Lines  []internal.SummaryLine
	Tax    *internal.TaxLine
	Totals map[string]internal.Amount
}

// ParseSummary classifies each line of the summary page as a tax line, an
// account line or an aggregate, in that order. Other lines are ignored.
func (r *Rules) ParseSummary(text string) Summary {
	s := Summary{Totals: map[string]internal.Amount{}}
	for _, line := range util.SplitLines(text) {
		if tax, ok := r.parseTax(line); ok {
			s.Tax = tax
			continue
		}
		if acct, ok := parseAccount(line); ok {
			s.Lines = append(s.Lines, acct)
			continue
		}
		if r.aggregate == nil {
			continue
		}
		if m := r.aggregate.FindStringSubmatch(line); m != nil {
			amount, err := util.ParseAmount(m[len(m)-1])
			if err != nil {
				continue
			}
			key := util.NormalizeAlnum(m[1])
			if key != "" {
				s.Totals[key] = amount
			}
		}
	}
	return s
}

func (r *Rules) parseTax(line string) (*internal.TaxLine, bool) {
	m := r.tax.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	rate, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil, false
	}
	amount, err := util.ParseAmount(m[2])
	if err != nil {
		return nil, false
	}
	return &internal.TaxLine{Rate: internal.NewAmount(rate), Amount: amount}, true
}

// parseAccount accepts "<code> <description> <amount>" where the code carries
// a digit or a dot, which keeps TOTAL and NET lines out.
func parseAccount(line string) (internal.SummaryLine, bool) {
	m := accountPattern.FindStringSubmatch(line)
	if m == nil || !strings.ContainsAny(m[1], "0123456789.") {
		return internal.SummaryLine{}, false
	}
	amount, err := util.ParseAmount(m[3])
	if err != nil {
		return internal.SummaryLine{}, false
	}
	return internal.SummaryLine{
		CodeRaw:         m[1],
		CodeNorm:        util.NormalizeAlnum(m[1]),
		DescriptionRaw:  m[2],
		DescriptionNorm: util.NormalizeAlnum(m[2]),
		Amount:          amount,
	}, true
}
