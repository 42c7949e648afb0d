package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"partsuite/internal"
)

const exportSheet = "GL coding"

// RowsFromInvoices flattens parsed invoices into one row per account entry.
func RowsFromInvoices(invoices []internal.ParsedInvoice) []internal.ExportRow {
	var rows []internal.ExportRow
	for _, inv := range invoices {
		md := inv.Metadata
		var invoicePDF, mappingPDF *string
		if inv.Artifacts != nil {
			invoicePDF = optional(inv.Artifacts.InvoicePDF)
			mappingPDF = optional(inv.Artifacts.MappingPDF)
		}
		for i, a := range inv.Accounts {
			rows = append(rows, internal.ExportRow{
				InvoiceKey:    md.Key,
				InvoiceNumber: md.NumberNorm,
				TypeCode:      md.TypeCode,
				TypeDesc:      md.TypeDesc,
				InvoiceDate:   firstNonEmpty(md.DateISO, md.DateRaw),
				LineNo:        i + 1,
				Code:          a.Code,
				Description:   a.Description,
				Amount:        a.Amount.String(),
				GLAccount:     a.GLAccount,
				GLLabel:       a.GLLabel,
				Note:          a.Note,
				InvoicePDF:    invoicePDF,
				MappingPDF:    mappingPDF,
			})
		}
	}
	return rows
}

func ExportRowsToXLSX(rows []internal.ExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}

	headers := []string{
		"invoice_key", "invoice_number", "type_code", "type_description", "invoice_date",
		"line_no", "fca_code", "description", "amount", "gl_account", "internal_label", "note",
		"invoice_pdf", "mapping_pdf",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(exportSheet, cell, value)
		}

		set(1, row.InvoiceKey)
		set(2, row.InvoiceNumber)
		set(3, row.TypeCode)
		set(4, row.TypeDesc)
		set(5, row.InvoiceDate)
		set(6, row.LineNo)
		set(7, row.Code)
		set(8, row.Description)
		set(9, amountCell(row.Amount))
		set(10, derefString(row.GLAccount))
		set(11, derefString(row.GLLabel))
		set(12, derefString(row.Note))
		set(13, derefString(row.InvoicePDF))
		set(14, derefString(row.MappingPDF))
	}

	if len(rows) > 0 {
		style, err := f.NewStyle(&excelize.Style{NumFmt: 4})
		if err != nil {
			return err
		}
		bottom := fmt.Sprintf("I%d", len(rows)+1)
		if err := f.SetCellStyle(exportSheet, "I2", bottom, style); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func amountCell(v string) any {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	return d.InexactFloat64()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
