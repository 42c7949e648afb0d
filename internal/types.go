package internal

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PageText is the text of one source page. Index is the 0-based page index in
// the source PDF and survives the dropping of empty pages.
type PageText struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type InvoiceSection struct {
	Ordinal int        `json:"ordinal"`
	Pages   []PageText `json:"pages"`
}

func (s InvoiceSection) First() PageText { return s.Pages[0] }

func (s InvoiceSection) Last() PageText { return s.Pages[len(s.Pages)-1] }

func (s InvoiceSection) PageIndices() []int {
	out := make([]int, 0, len(s.Pages))
	for _, p := range s.Pages {
		out = append(out, p.Index)
	}
	return out
}

type InvoiceMetadata struct {
	NumberRaw  string `json:"invoice_number_raw"`
	NumberNorm string `json:"invoice_number"`
	TypeCode   string `json:"invoice_type_code"`
	TypeDesc   string `json:"invoice_type_description"`
	Digits     string `json:"invoice_digits"`
	Key        string `json:"invoice_key"`
	DateRaw    string `json:"invoice_date_raw"`
	DateISO    string `json:"invoice_date,omitempty"`
}

// Amount is a value held at exactly two decimal places. Currency amounts and
// tax rates both use it.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

func (a Amount) String() string {
	return a.StringFixed(2)
}

func (a Amount) IsNegative() bool {
	return a.Sign() < 0
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = NewAmount(d)
	return nil
}

type SummaryLine struct {
	CodeRaw         string  `json:"fca_code_raw"`
	CodeNorm        string  `json:"fca_code"`
	DescriptionRaw  string  `json:"description_raw"`
	DescriptionNorm string  `json:"description"`
	Amount          Amount  `json:"amount"`
	GLAccount       *string `json:"gl_account"`
	GLLabel         *string `json:"gl_label"`
	Note            *string `json:"note,omitempty"`
}

type TaxLine struct {
	Rate   Amount `json:"rate"`
	Amount Amount `json:"amount"`
}

type MappedAccountEntry struct {
	Code        string  `json:"fca_code"`
	Description string  `json:"fca_description"`
	Amount      Amount  `json:"amount"`
	GLAccount   *string `json:"gl_account"`
	GLLabel     *string `json:"internal_label"`
	Note        *string `json:"note,omitempty"`
}

// ArtifactSet holds paths relative to the parent of the output root.
type ArtifactSet struct {
	InvoicePDF string `json:"invoice_pdf,omitempty"`
	SummaryPDF string `json:"summary_pdf,omitempty"`
	MappingPDF string `json:"mapping_pdf,omitempty"`
}

type ParsedInvoice struct {
	Section       int                  `json:"section"`
	Pages         []int                `json:"pages"`
	Metadata      InvoiceMetadata      `json:"metadata"`
	Lines         []SummaryLine        `json:"summary_lines"`
	Tax           *TaxLine             `json:"tax,omitempty"`
	Totals        map[string]Amount    `json:"totals"`
	Accounts      []MappedAccountEntry `json:"accounts"`
	Artifacts     *ArtifactSet         `json:"files,omitempty"`
	ArtifactError string               `json:"artifact_error,omitempty"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type BundleStatus string

const (
	BundlePending   BundleStatus = "pending"
	BundleProcessed BundleStatus = "processed"
	BundleFailed    BundleStatus = "failed"
	BundleExported  BundleStatus = "exported"
)

// BundleRow is one multi-invoice PDF registered for processing.
type BundleRow struct {
	ID         int
	Source     string
	SourceRef  string
	Hash       string
	Path       string
	Status     BundleStatus
	ReceivedAt string
	Error      *string
}

type RunRow struct {
	ID        string
	BundleID  *int
	Method    string
	Pages     int
	Sections  int
	Invoices  int
	Status    string
	Error     *string
	CreatedAt string
}

// ExportRow is one account entry of one invoice, flattened for spreadsheets.
type ExportRow struct {
	InvoiceKey    string
	InvoiceNumber string
	TypeCode      string
	TypeDesc      string
	InvoiceDate   string
	LineNo        int
	Code          string
	Description   string
	Amount        string
	GLAccount     *string
	GLLabel       *string
	Note          *string
	InvoicePDF    *string
	MappingPDF    *string
}
