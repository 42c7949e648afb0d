package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"partsuite/internal"
)

const (
	InvoiceParsed      = "parsed"
	InvoiceNeedsReview = "needs_review"

	FileRaw      = "raw"
	FileSummary  = "summary"
	FileGLCoding = "gl_coding"
)

// StartRun records a run before its invoices are saved. It is a no-op when
// the run already exists.
func (d *DB) StartRun(ctx context.Context, runID string, bundleID *int) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (id, bundleId, status) VALUES (?, ?, 'running')
ON CONFLICT(id) DO NOTHING
`, runID, bundleID)
	return err
}

func (d *DB) FinishRun(ctx context.Context, run internal.RunRow, timings map[string]float64) error {
	if err := d.StartRun(ctx, run.ID, run.BundleID); err != nil {
		return err
	}
	_, err := d.conn.ExecContext(ctx, `
UPDATE runs SET bundleId = COALESCE(?, bundleId), method = ?, pages = ?, sections = ?, invoices = ?,
  status = ?, error = ?, timingsJson = ?
WHERE id = ?
`, run.BundleID, run.Method, run.Pages, run.Sections, run.Invoices, run.Status, run.Error, marshalJSON(timings), run.ID)
	return err
}

func (d *DB) GetRun(ctx context.Context, runID string) (*internal.RunRow, error) {
	var r internal.RunRow
	var method sql.NullString
	err := d.conn.QueryRowContext(ctx, `
SELECT id, bundleId, method, pages, sections, invoices, status, error, createdAt FROM runs WHERE id = ?
`, runID).Scan(&r.ID, &r.BundleID, &method, &r.Pages, &r.Sections, &r.Invoices, &r.Status, &r.Error, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Method = method.String
	return &r, nil
}

func (d *DB) LatestRunForBundle(ctx context.Context, bundleID int) (*internal.RunRow, error) {
	var runID string
	err := d.conn.QueryRowContext(ctx, `
SELECT id FROM runs WHERE bundleId = ? ORDER BY createdAt DESC, rowid DESC LIMIT 1
`, bundleID).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetRun(ctx, runID)
}

// SaveInvoice stores one parsed invoice with its account entries and files.
// Saving the same invoice key twice in a run replaces the earlier copy.
func (d *DB) SaveInvoice(ctx context.Context, runID string, inv internal.ParsedInvoice) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (id, status) VALUES (?, 'running') ON CONFLICT(id) DO NOTHING`, runID); err != nil {
		return err
	}

	var taxRate, taxAmount *string
	if inv.Tax != nil {
		rate := inv.Tax.Rate.String()
		amount := inv.Tax.Amount.String()
		taxRate, taxAmount = &rate, &amount
	}
	var artifactErr *string
	if inv.ArtifactError != "" {
		artifactErr = &inv.ArtifactError
	}
	md := inv.Metadata

	var invoiceID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO invoices (
  runId, section, invoiceKey, numberRaw, numberNorm, typeCode, typeDesc, dateRaw, dateIso,
  pagesJson, taxRate, taxAmount, totalsJson, status, artifactError
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(runId, invoiceKey) DO UPDATE SET
  section=excluded.section,
  numberRaw=excluded.numberRaw,
  numberNorm=excluded.numberNorm,
  typeCode=excluded.typeCode,
  typeDesc=excluded.typeDesc,
  dateRaw=excluded.dateRaw,
  dateIso=excluded.dateIso,
  pagesJson=excluded.pagesJson,
  taxRate=excluded.taxRate,
  taxAmount=excluded.taxAmount,
  totalsJson=excluded.totalsJson,
  status=excluded.status,
  artifactError=excluded.artifactError
RETURNING id
`, runID, inv.Section, md.Key, md.NumberRaw, md.NumberNorm, md.TypeCode, md.TypeDesc, md.DateRaw, md.DateISO,
		marshalJSON(inv.Pages), taxRate, taxAmount, marshalJSON(inv.Totals), InvoiceStatus(inv), artifactErr,
	).Scan(&invoiceID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_accounts WHERE invoiceId = ?`, invoiceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_files WHERE invoiceId = ?`, invoiceID); err != nil {
		return err
	}

	for i, a := range inv.Accounts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO invoice_accounts (invoiceId, lineNo, code, description, amount, glAccount, glLabel, note)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, invoiceID, i+1, a.Code, a.Description, a.Amount.String(), a.GLAccount, a.GLLabel, a.Note); err != nil {
			return err
		}
	}

	if inv.Artifacts != nil {
		files := map[string]string{
			FileRaw:      inv.Artifacts.InvoicePDF,
			FileSummary:  inv.Artifacts.SummaryPDF,
			FileGLCoding: inv.Artifacts.MappingPDF,
		}
		for kind, path := range files {
			if path == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO invoice_files (invoiceId, kind, path) VALUES (?, ?, ?)`, invoiceID, kind, path); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// InvoiceStatus flags invoices a person should look at: unmapped codes, an
// unreadable date or missing files.
func InvoiceStatus(inv internal.ParsedInvoice) string {
	if inv.Metadata.DateISO == "" || inv.ArtifactError != "" {
		return InvoiceNeedsReview
	}
	for _, a := range inv.Accounts {
		if a.GLAccount == nil {
			return InvoiceNeedsReview
		}
	}
	return InvoiceParsed
}

type InvoiceSummary struct {
	ID         int
	RunID      string
	Key        string
	NumberNorm string
	TypeDesc   string
	DateISO    string
	Status     string
	TaxRate    *string
	Pages      []int
	Totals     map[string]string
}

func (d *DB) ListInvoices(ctx context.Context, runID string) ([]InvoiceSummary, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, runId, invoiceKey, numberNorm, typeDesc, COALESCE(dateIso, ''), status, taxRate, pagesJson, totalsJson
FROM invoices WHERE runId = ? ORDER BY section ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvoiceSummary
	for rows.Next() {
		var s InvoiceSummary
		var pagesJSON, totalsJSON string
		if err := rows.Scan(&s.ID, &s.RunID, &s.Key, &s.NumberNorm, &s.TypeDesc, &s.DateISO, &s.Status, &s.TaxRate, &pagesJSON, &totalsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(pagesJSON), &s.Pages)
		_ = json.Unmarshal([]byte(totalsJSON), &s.Totals)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) GetExportRows(ctx context.Context, runID string) ([]internal.ExportRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT
  i.invoiceKey,
  i.numberNorm,
  i.typeCode,
  i.typeDesc,
  COALESCE(NULLIF(i.dateIso, ''), i.dateRaw, ''),
  a.lineNo,
  a.code,
  a.description,
  a.amount,
  a.glAccount,
  a.glLabel,
  a.note,
  raw.path,
  gl.path
FROM invoices i
JOIN invoice_accounts a ON a.invoiceId = i.id
LEFT JOIN invoice_files raw ON raw.invoiceId = i.id AND raw.kind = 'raw'
LEFT JOIN invoice_files gl ON gl.invoiceId = i.id AND gl.kind = 'gl_coding'
WHERE i.runId = ?
ORDER BY i.section ASC, a.lineNo ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExportRow
	for rows.Next() {
		var row internal.ExportRow
		if err := rows.Scan(
			&row.InvoiceKey,
			&row.InvoiceNumber,
			&row.TypeCode,
			&row.TypeDesc,
			&row.InvoiceDate,
			&row.LineNo,
			&row.Code,
			&row.Description,
			&row.Amount,
			&row.GLAccount,
			&row.GLLabel,
			&row.Note,
			&row.InvoicePDF,
			&row.MappingPDF,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
