package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal"
)

func TestParseMetadataWeeklyInvoice(t *testing.T) {
	r := defaultRules(t)
	text := "MOPAR CANADA INC. - PARTS INVOICE\nINVOICE NUMBER: 09308000W 123456\nINVOICE DATE: JANUARY 5, 2024\nPAGE 1"

	md, err := r.ParseMetadata(text)
	require.NoError(t, err)
	assert.Equal(t, "09308000W 123456", md.NumberRaw)
	assert.Equal(t, "09308000W123456", md.NumberNorm)
	assert.Equal(t, "W", md.TypeCode)
	assert.Equal(t, "123456", md.Digits)
	assert.Equal(t, "W123456", md.Key)
	assert.Equal(t, "Weekly invoice", md.TypeDesc)
	assert.Equal(t, "JANUARY 5, 2024", md.DateRaw)
	assert.Equal(t, "2024-01-05", md.DateISO)
}

func TestParseMetadataTwoLetterCodeAndSplitNumber(t *testing.T) {
	r := defaultRules(t)
	text := "AER INVOICE\nInvoice Number:\n09308000\nWA 7781\nInvoice Date: march 12 2023"

	md, err := r.ParseMetadata(text)
	require.NoError(t, err)
	assert.Equal(t, "09308000WA7781", md.NumberNorm)
	assert.Equal(t, "WA", md.TypeCode)
	assert.Equal(t, "WA7781", md.Key)
	assert.Equal(t, "AER invoice", md.TypeDesc)
	assert.Equal(t, "2023-03-12", md.DateISO)
}

func TestParseMetadataStopsAtNextLineOnceComplete(t *testing.T) {
	r := defaultRules(t)
	md, err := r.ParseMetadata("INVOICE NUMBER: 09308000CF 42\n12 MAIN ST")
	require.NoError(t, err)
	assert.Equal(t, "09308000CF42", md.NumberNorm)
	assert.Equal(t, "CF42", md.Key)
	assert.Equal(t, "", md.DateRaw)
	assert.Equal(t, "", md.DateISO)
}

func TestParseMetadataStopsAtTrailingFieldOnSameLine(t *testing.T) {
	r := defaultRules(t)
	md, err := r.ParseMetadata("INVOICE NUMBER: 09308000W123456 PO 4411\nINVOICE DATE: JANUARY 5, 2024")
	require.NoError(t, err)
	assert.Equal(t, "09308000W123456", md.NumberRaw)
	assert.Equal(t, "09308000W123456", md.NumberNorm)
	assert.Equal(t, "W123456", md.Key)
	assert.Equal(t, "2024-01-05", md.DateISO)
}

func TestParseMetadataUnknownType(t *testing.T) {
	r := defaultRules(t)
	md, err := r.ParseMetadata("INVOICE NUMBER: 09308000ZZ99")
	require.NoError(t, err)
	assert.Equal(t, "ZZ", md.TypeCode)
	assert.Equal(t, "unknown", md.TypeDesc)
}

func TestParseMetadataUnparseableDate(t *testing.T) {
	r := defaultRules(t)
	md, err := r.ParseMetadata("INVOICE NUMBER: 09308000W1\nINVOICE DATE: SOMETIME SOON")
	require.NoError(t, err)
	assert.Equal(t, "SOMETIME SOON", md.DateRaw)
	assert.Equal(t, "", md.DateISO)
}

func TestParseMetadataFailures(t *testing.T) {
	r := defaultRules(t)
	cases := []struct {
		name string
		text string
		want error
	}{
		{name: "missing label", text: "MOPAR CANADA INC. - PARTS INVOICE", want: internal.ErrInvalidNumber},
		{name: "wrong prefix", text: "INVOICE NUMBER: 12345678W 1", want: internal.ErrInvalidNumber},
		{name: "no type code", text: "INVOICE NUMBER: 09308000 123", want: internal.ErrInvalidTypeCode},
		{name: "no digits", text: "INVOICE NUMBER: 09308000 W", want: internal.ErrInvalidTypeCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ParseMetadata(tc.text)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
