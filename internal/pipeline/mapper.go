package pipeline

import (
	"partsuite/internal"
	"partsuite/internal/config"
)

const noMappingNote = "No mapping configured"

type Mapper struct {
	accounts map[string]config.GLAccount
	taxLabel string
	payable  string
	credit   string
}

func NewMapper(p config.Profile) *Mapper {
	p = p.Clone()
	return &Mapper{
		accounts: p.GLAccounts,
		taxLabel: p.TaxLabel,
		payable:  p.TaxPayableAccount,
		credit:   p.TaxCreditAccount,
	}
}

// Map turns summary lines into GL entries in input order, followed by one
// synthetic tax entry when tax is non-zero. Codes are matched exactly as
// printed.
func (m *Mapper) Map(lines []internal.SummaryLine, tax *internal.TaxLine) []internal.MappedAccountEntry {
	out := make([]internal.MappedAccountEntry, 0, len(lines)+1)
	for _, line := range lines {
		entry := internal.MappedAccountEntry{
			Code:        line.CodeRaw,
			Description: line.DescriptionRaw,
			Amount:      line.Amount,
		}
		if gl, ok := m.accounts[line.CodeRaw]; ok {
			entry.GLAccount = strPtr(gl.Account)
			entry.GLLabel = strPtr(gl.Label)
		} else {
			entry.Note = strPtr(noMappingNote)
		}
		out = append(out, entry)
	}

	if tax != nil && !tax.Amount.IsZero() {
		entry := internal.MappedAccountEntry{
			Code:        m.taxLabel,
			Description: m.taxLabel + " tax",
			Amount:      tax.Amount,
		}
		if tax.Amount.IsNegative() {
			entry.GLAccount = strPtr(m.credit)
			entry.GLLabel = strPtr("tax credit")
		} else {
			entry.GLAccount = strPtr(m.payable)
			entry.GLLabel = strPtr("tax payable")
		}
		out = append(out, entry)
	}
	return out
}

// Annotate copies the GL coding of entries back onto the summary lines they
// came from.
func Annotate(lines []internal.SummaryLine, entries []internal.MappedAccountEntry) {
	for i := range lines {
		if i >= len(entries) {
			return
		}
		lines[i].GLAccount = entries[i].GLAccount
		lines[i].GLLabel = entries[i].GLLabel
		lines[i].Note = entries[i].Note
	}
}

func strPtr(v string) *string { return &v }
