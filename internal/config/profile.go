package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes one supplier's invoice layout and its GL coding. A loaded
// profile is never mutated; callers that need a variant call Clone.
type Profile struct {
	Name              string               `yaml:"name"`
	HeaderPatterns    []string             `yaml:"header_patterns"`
	BoundaryLabel     string               `yaml:"boundary_label"`
	NumberPrefix      string               `yaml:"number_prefix"`
	InvoiceTypes      map[string]string    `yaml:"invoice_types"`
	GLAccounts        map[string]GLAccount `yaml:"gl_accounts"`
	TaxLabel          string               `yaml:"tax_label"`
	TaxPayableAccount string               `yaml:"tax_payable_account"`
	TaxCreditAccount  string               `yaml:"tax_credit_account"`
	AggregateLabels   []string             `yaml:"aggregate_labels"`
}

type GLAccount struct {
	Account string `yaml:"account"`
	Label   string `yaml:"label"`
}

func DefaultProfile() Profile {
	return Profile{
		Name: "fca",
		HeaderPatterns: []string{
			`MOPAR\s+CANADA\s+INC\.\s+-\s+PARTS\s+INVOICE`,
			`AER\s+INVOICE`,
		},
		BoundaryLabel: "INVOICE NUMBER",
		NumberPrefix:  "09308000",
		InvoiceTypes: map[string]string{
			"W":  "Weekly invoice",
			"WD": "Weekly deferred invoice",
			"WH": "Hazmat training invoice",
			"CH": "Hazmat credit invoice",
			"C":  "Weekly MRA/misc credit memo",
			"CA": "Weekly D2D obsolete credit memo",
			"CE": "Parts exchange credit memo",
			"CF": "Fleet credit memo",
			"CG": "Weekly D2D guaranteed credit memo",
			"CI": "Weekly ARO guaranteed parts returns",
			"CM": "Weekly other guaranteed parts returns",
			"CP": "Weekly D2D backorder credit memo",
			"WA": "AER invoice",
			"DM": "Debit memo",
		},
		GLAccounts: map[string]GLAccount{
			"ARC01012":      {Account: "604190", Label: "warranty chargebacks"},
			"ARC01217":      {Account: "704004", Label: "freight"},
			"ARC01222":      {Account: "704004", Label: "freight (dealer locator charge)"},
			"ARC01224":      {Account: "10400", Label: "parts (D2D obsolete)"},
			"ARC01226":      {Account: "101100", Label: "guaranteed backorder credit memo"},
			"ARC13309":      {Account: "101100", Label: "fleet credit memo / national fleet maintenance"},
			"ARC19000":      {Account: "10400", Label: "parts (battery core consolidation)"},
			"ARC31101":      {Account: "10400", Label: "parts (deposit part values)"},
			"ARC45012":      {Account: "704004", Label: "freight (transportation charge)"},
			"ARC08994":      {Account: "10400", Label: "parts (sheet metal repair)"},
			"ENV.CONTAINER": {Account: "10400", Label: "parts (environmental container)"},
			"ENV.LUBRICANT": {Account: "10400", Label: "parts (environmental lubricant)"},
		},
		TaxLabel:          "GST/HST",
		TaxPayableAccount: "201105",
		TaxCreditAccount:  "201100",
		AggregateLabels: []string{
			`TOTAL.*`,
			`DISCOUNTS\s+EARNED.*`,
			`NET\s+INVOICE\s+AMOUNT.*`,
			`NET\s+AMOUNT.*`,
			`.*TOTAL.*`,
		},
	}
}

// LoadProfile returns the built-in profile when path is empty, otherwise the
// YAML profile stored at path.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read vendor profile: %w", err)
	}
	return ParseProfile(raw)
}

func ParseProfile(raw []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode vendor profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) Validate() error {
	var errs []error
	if len(p.HeaderPatterns) == 0 {
		errs = append(errs, errors.New("header_patterns is empty"))
	}
	if strings.TrimSpace(p.BoundaryLabel) == "" {
		errs = append(errs, errors.New("boundary_label is empty"))
	}
	if strings.TrimSpace(p.NumberPrefix) == "" {
		errs = append(errs, errors.New("number_prefix is empty"))
	}
	if strings.TrimSpace(p.TaxLabel) == "" {
		errs = append(errs, errors.New("tax_label is empty"))
	}
	if p.TaxPayableAccount == "" || p.TaxCreditAccount == "" {
		errs = append(errs, errors.New("tax_payable_account and tax_credit_account are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid vendor profile %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

func (p Profile) Clone() Profile {
	out := p
	out.HeaderPatterns = append([]string(nil), p.HeaderPatterns...)
	out.AggregateLabels = append([]string(nil), p.AggregateLabels...)
	out.InvoiceTypes = maps.Clone(p.InvoiceTypes)
	out.GLAccounts = maps.Clone(p.GLAccounts)
	return out
}
