package pdfdoc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"partsuite/internal"
)

const (
	InvoicesDir  = "invoices"
	SummariesDir = "summaries"
	MappingsDir  = "mappings"

	stampLayout = "20060102150405"
)

// ArtifactWriter renders the per-invoice PDFs under an output root.
type ArtifactWriter struct {
	root string
	now  func() time.Time
	log  *slog.Logger
}

func NewArtifactWriter(root string, logger *slog.Logger) *ArtifactWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactWriter{root: root, now: time.Now, log: logger}
}

func (w *ArtifactWriter) Root() string { return w.root }

// Write produces the invoice subset, the summary page and the mapping
// document for inv. tag is appended to file names so repeated runs in the
// same second do not collide.
func (w *ArtifactWriter) Write(srcPath string, inv internal.ParsedInvoice, tag string) (*internal.ArtifactSet, error) {
	if len(inv.Pages) == 0 {
		return nil, fmt.Errorf("%w: invoice %s has no pages", internal.ErrArtifactWrite, inv.Metadata.Key)
	}
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read source: %v", internal.ErrArtifactWrite, err)
	}

	base := inv.Metadata.Key
	if base == "" {
		base = fmt.Sprintf("section%d", inv.Section)
	}
	base = base + "_" + w.now().Format(stampLayout)
	if tag != "" {
		base = base + "_" + tag
	}

	var invoicePDF bytes.Buffer
	if err := ExtractPages(bytes.NewReader(src), &invoicePDF, inv.Pages); err != nil {
		return nil, fmt.Errorf("%w: extract invoice pages: %v", internal.ErrArtifactWrite, err)
	}
	var summaryPDF bytes.Buffer
	if err := ExtractPages(bytes.NewReader(src), &summaryPDF, inv.Pages[len(inv.Pages)-1:]); err != nil {
		return nil, fmt.Errorf("%w: extract summary page: %v", internal.ErrArtifactWrite, err)
	}
	var cover bytes.Buffer
	if err := WriteText(&cover, "GL mapping for invoice "+inv.Metadata.NumberNorm, MappingLines(inv)); err != nil {
		return nil, fmt.Errorf("%w: render mapping cover: %v", internal.ErrArtifactWrite, err)
	}
	var mappingPDF bytes.Buffer
	if err := Merge(&mappingPDF, bytes.NewReader(cover.Bytes()), bytes.NewReader(summaryPDF.Bytes())); err != nil {
		return nil, fmt.Errorf("%w: merge mapping document: %v", internal.ErrArtifactWrite, err)
	}

	set := &internal.ArtifactSet{}
	outputs := []struct {
		dir  string
		name string
		data []byte
		dst  *string
	}{
		{InvoicesDir, base + ".pdf", invoicePDF.Bytes(), &set.InvoicePDF},
		{SummariesDir, base + "_summary.pdf", summaryPDF.Bytes(), &set.SummaryPDF},
		{MappingsDir, base + "_mapping.pdf", mappingPDF.Bytes(), &set.MappingPDF},
	}
	for _, out := range outputs {
		rel, err := w.save(out.dir, out.name, out.data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrArtifactWrite, err)
		}
		*out.dst = rel
	}

	w.log.Debug("artifacts written", "invoice", inv.Metadata.Key, "invoice_pdf", set.InvoicePDF)
	return set, nil
}

func (w *ArtifactWriter) save(dir, name string, data []byte) (string, error) {
	full := filepath.Join(w.root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(full, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(filepath.Dir(w.root), path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Resolve maps an artifact path produced by Write back to the file system,
// refusing anything outside the output root.
func (w *ArtifactWriter) Resolve(rel string) (string, error) {
	root, err := filepath.Abs(w.root)
	if err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(filepath.Dir(root), filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the output root", rel)
	}
	return path, nil
}

// Encode returns the base64 form of an artifact for inline delivery.
func (w *ArtifactWriter) Encode(rel string) (string, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// MappingLines is the body of the mapping cover page.
func MappingLines(inv internal.ParsedInvoice) []string {
	md := inv.Metadata
	date := md.DateISO
	if date == "" {
		date = md.DateRaw
	}
	lines := []string{
		fmt.Sprintf("Invoice type: %s (%s)", md.TypeCode, md.TypeDesc),
		"Invoice date: " + date,
		"",
	}
	for _, a := range inv.Accounts {
		gl := "-"
		if a.GLAccount != nil {
			gl = *a.GLAccount
		}
		label := ""
		switch {
		case a.GLLabel != nil:
			label = *a.GLLabel
		case a.Note != nil:
			label = *a.Note
		}
		lines = append(lines, fmt.Sprintf("%-14s %12s  %-8s %s", a.Code, a.Amount.String(), gl, label))
	}
	if len(inv.Totals) > 0 {
		lines = append(lines, "")
		keys := make([]string, 0, len(inv.Totals))
		for k := range inv.Totals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%-28s %12s", k, inv.Totals[k].String()))
		}
	}
	return lines
}
