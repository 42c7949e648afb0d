package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"partsuite/internal"
	"partsuite/internal/pdfdoc"
	"partsuite/internal/textract"
)

// TextSource turns a PDF on disk into page texts.
type TextSource interface {
	Acquire(ctx context.Context, path string) (textract.Result, error)
}

// ArtifactSink renders per-invoice files.
type ArtifactSink interface {
	Write(srcPath string, inv internal.ParsedInvoice, tag string) (*internal.ArtifactSet, error)
}

// InvoiceStore persists parsed invoices of one run.
type InvoiceStore interface {
	SaveInvoice(ctx context.Context, runID string, inv internal.ParsedInvoice) error
}

// FailurePolicy decides what a section failure means for the whole bundle:
// returning nil skips the section, returning an error aborts.
type FailurePolicy func(section int, err error) error

func AbortOnFailure(section int, err error) error { return err }

func SkipFailures(logger *slog.Logger) FailurePolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return func(section int, err error) error {
		logger.Warn("skipping invoice section", "section", section, "error", err)
		return nil
	}
}

func ParseFailurePolicy(name string, logger *slog.Logger) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "abort":
		return AbortOnFailure, nil
	case "skip":
		return SkipFailures(logger), nil
	default:
		return nil, fmt.Errorf("unsupported failure policy: %s", name)
	}
}

type Processor struct {
	rules     *Rules
	mapper    *Mapper
	text      TextSource
	artifacts ArtifactSink
	store     InvoiceStore
	policy    SegmentPolicy
	onFailure FailurePolicy
	log       *slog.Logger
}

type Option func(*Processor)

func WithArtifacts(sink ArtifactSink) Option { return func(p *Processor) { p.artifacts = sink } }

func WithStore(store InvoiceStore) Option { return func(p *Processor) { p.store = store } }

func WithSegmentPolicy(policy SegmentPolicy) Option {
	return func(p *Processor) { p.policy = policy }
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Processor) { p.onFailure = policy }
}

func WithLogger(logger *slog.Logger) Option { return func(p *Processor) { p.log = logger } }

func NewProcessor(rules *Rules, text TextSource, opts ...Option) *Processor {
	p := &Processor{
		rules:     rules,
		mapper:    NewMapper(rules.profile),
		text:      text,
		policy:    PolicyStrict,
		onFailure: AbortOnFailure,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Report struct {
	RunID    string
	Method   string
	Pages    int
	Sections int
	Skipped  int
	Text     []internal.PageText
	Invoices []internal.ParsedInvoice
	Timings  map[string]float64
}

// ProcessFile runs the whole pipeline over one bundle on disk.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), Timings: map[string]float64{}}
	log := p.log.With("run_id", report.RunID, "path", path)

	acquired, err := p.text.Acquire(ctx, path)
	report.Timings["acquireMs"] = float64(time.Since(start).Milliseconds())
	if err != nil {
		return report, internal.NewStageError(internal.StageAcquire, -1, -1, err)
	}
	report.Method = acquired.Method
	report.Pages = len(acquired.Pages)
	report.Text = acquired.Pages

	sections := p.rules.Segment(acquired.Pages, p.policy)
	report.Sections = len(sections)
	log.Info("bundle segmented", "method", acquired.Method, "pages", report.Pages, "sections", len(sections))

	parseStart := time.Now()
	for _, section := range sections {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		inv, err := p.parseSection(section)
		if err != nil {
			if abort := p.onFailure(section.Ordinal, err); abort != nil {
				return report, abort
			}
			report.Skipped++
			continue
		}

		if p.artifacts != nil {
			set, err := p.artifacts.Write(path, inv, report.RunID[:8])
			if err != nil {
				inv.ArtifactError = err.Error()
				log.Error("artifact write failed", "invoice", inv.Metadata.Key, "error", err)
			} else {
				inv.Artifacts = set
			}
		}

		if p.store != nil {
			if err := p.store.SaveInvoice(ctx, report.RunID, inv); err != nil {
				return report, internal.NewStageError(internal.StagePersist, section.Ordinal, section.First().Index, err)
			}
		}
		report.Invoices = append(report.Invoices, inv)
	}
	report.Timings["parseMs"] = float64(time.Since(parseStart).Milliseconds())
	report.Timings["totalMs"] = float64(time.Since(start).Milliseconds())

	if len(report.Invoices) == 0 {
		return report, internal.NewStageError(internal.StageSegment, -1, -1, internal.ErrNoInvoices)
	}
	log.Info("bundle processed", "invoices", len(report.Invoices), "skipped", report.Skipped, "total_ms", report.Timings["totalMs"])
	return report, nil
}

// ProcessBytes spills an uploaded bundle to disk and processes it.
func (p *Processor) ProcessBytes(ctx context.Context, data []byte) (Report, error) {
	f, err := os.CreateTemp("", "partsuite-bundle-*.pdf")
	if err != nil {
		return Report{}, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return Report{}, err
	}
	if err := f.Close(); err != nil {
		return Report{}, err
	}
	return p.ProcessFile(ctx, f.Name())
}

func (p *Processor) parseSection(section internal.InvoiceSection) (internal.ParsedInvoice, error) {
	first := section.First()
	md, err := p.rules.ParseMetadata(first.Text)
	if err != nil {
		return internal.ParsedInvoice{}, internal.NewStageError(internal.StageMetadata, section.Ordinal, first.Index, err)
	}

	summary := p.rules.ParseSummary(section.Last().Text)
	accounts := p.mapper.Map(summary.Lines, summary.Tax)
	Annotate(summary.Lines, accounts)

	return internal.ParsedInvoice{
		Section:  section.Ordinal,
		Pages:    section.PageIndices(),
		Metadata: md,
		Lines:    summary.Lines,
		Tax:      summary.Tax,
		Totals:   summary.Totals,
		Accounts: accounts,
	}, nil
}

// IsInputError reports whether err comes from the bundle's content rather
// than from the environment.
func IsInputError(err error) bool {
	return errors.Is(err, internal.ErrInvalidNumber) ||
		errors.Is(err, internal.ErrInvalidTypeCode) ||
		errors.Is(err, internal.ErrNoInvoices)
}

var _ ArtifactSink = (*pdfdoc.ArtifactWriter)(nil)
