package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryPage = `ACCOUNT SUMMARY
ARC01012   WARRANTY CHARGEBACKS        1,234.56
ENV.CONTAINER  ENVIRONMENTAL FEE          12.00
ARC01226   BACKORDER CREDIT            (1,234.56)
TOTAL CHARGES                          12.00
DISCOUNTS EARNED                        0.00
GST/HST @ 5.00% ON 12.00 ...           61.23
NET INVOICE AMOUNT                     73.23
Thank you for your business`

func TestParseSummaryClassifiesLines(t *testing.T) {
	r := defaultRules(t)
	s := r.ParseSummary(summaryPage)

	require.Len(t, s.Lines, 3)
	assert.Equal(t, "ARC01012", s.Lines[0].CodeRaw)
	assert.Equal(t, "WARRANTY CHARGEBACKS", s.Lines[0].DescriptionRaw)
	assert.Equal(t, "WARRANTYCHARGEBACKS", s.Lines[0].DescriptionNorm)
	assert.Equal(t, "1234.56", s.Lines[0].Amount.String())

	assert.Equal(t, "ENV.CONTAINER", s.Lines[1].CodeRaw)
	assert.Equal(t, "ENVCONTAINER", s.Lines[1].CodeNorm)

	assert.Equal(t, "-1234.56", s.Lines[2].Amount.String())
	assert.True(t, s.Lines[2].Amount.Equal(decimal.RequireFromString("-1234.56")))

	require.NotNil(t, s.Tax)
	assert.True(t, s.Tax.Rate.Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, "5.00", s.Tax.Rate.String())
	assert.Equal(t, "61.23", s.Tax.Amount.String())

	assert.Equal(t, "12.00", s.Totals["TOTALCHARGES"].String())
	assert.Equal(t, "0.00", s.Totals["DISCOUNTSEARNED"].String())
	assert.Equal(t, "73.23", s.Totals["NETINVOICEAMOUNT"].String())
	assert.Len(t, s.Totals, 3)
}

func TestParseSummaryTaxLastWins(t *testing.T) {
	r := defaultRules(t)
	s := r.ParseSummary("GST/HST @ 5.00% 10.00\nGST/HST @ 13% (4.50)")

	require.NotNil(t, s.Tax)
	assert.True(t, s.Tax.Rate.Equal(decimal.NewFromInt(13)))
	assert.Equal(t, "13.00", s.Tax.Rate.String())
	assert.Equal(t, "-4.50", s.Tax.Amount.String())
	assert.Empty(t, s.Lines)
}

func TestParseSummaryWithoutTax(t *testing.T) {
	r := defaultRules(t)
	s := r.ParseSummary("ARC45012 TRANSPORTATION 9.99\nSUB TOTAL 9.99")

	assert.Nil(t, s.Tax)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "9.99", s.Totals["SUBTOTAL"].String())
}

func TestParseSummaryIgnoresNoise(t *testing.T) {
	r := defaultRules(t)
	s := r.ParseSummary("PAGE 3 OF 3\nARC01012 WARRANTY 12\nDEALER CODE 12345")

	assert.Empty(t, s.Lines)
	assert.Nil(t, s.Tax)
	assert.Empty(t, s.Totals)
}
