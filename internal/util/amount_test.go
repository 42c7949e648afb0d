package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "61.23", want: "61.23"},
		{name: "thousands", input: "1,234.56", want: "1234.56"},
		{name: "parenthesized", input: "(1,234.56)", want: "-1234.56"},
		{name: "leading minus", input: "-12.00", want: "-12.00"},
		{name: "dollar sign", input: "$5,000.10", want: "5000.10"},
		{name: "padded", input: "  (0.50) ", want: "-0.50"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)))
		})
	}
}

func TestParseAmountKeepsTwoDecimals(t *testing.T) {
	got, err := ParseAmount("61.20")
	require.NoError(t, err)
	assert.Equal(t, "61.20", got.String())

	raw, err := got.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"61.20"`, string(raw))
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "()", "12,34x"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}
