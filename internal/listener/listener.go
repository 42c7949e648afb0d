package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"partsuite/internal"
	"partsuite/internal/config"
	"partsuite/internal/connectors"
	gmailconnector "partsuite/internal/connectors/gmail"
	imapconnector "partsuite/internal/connectors/imap"
	"partsuite/internal/pipeline"
	"partsuite/internal/storage"
)

// BundleProcessor runs the invoice pipeline over one bundle on disk.
type BundleProcessor interface {
	ProcessFile(ctx context.Context, path string) (pipeline.Report, error)
}

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor BundleProcessor
	store     *connectors.BundleStore
	fetch     *connectors.FetchService
	log       *slog.Logger
}

const (
	lastCycleKey  = "listener.last_cycle"
	lastExportKey = "listener.last_export"
)

type CycleResult struct {
	Fetched   int
	Scanned   int
	Processed int
	Failed    int
	Exported  int
}

// NewService wires a listener. fetch may be nil, in which case only the inbox
// directory is watched.
func NewService(db *storage.DB, cfg config.Config, processor BundleProcessor, store *connectors.BundleStore, fetch *connectors.FetchService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cfg: cfg, processor: processor, store: store, fetch: fetch, log: logger}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.log.Error("listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches mail, registers new bundles and processes pending ones.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	if s.fetch != nil {
		fetched, err := s.fetch.FetchAndStore(s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
		if err != nil {
			return result, fmt.Errorf("fetch mail: %w", err)
		}
		result.Fetched = fetched.Created
	}

	scanned, err := s.store.ScanInbox()
	if err != nil {
		return result, fmt.Errorf("scan inbox: %w", err)
	}
	result.Scanned = scanned.Created

	batch := s.cfg.ListenerProcessBatch
	if batch <= 0 {
		batch = 10
	}
	pending, err := s.db.ListBundlesByStatus(internal.BundlePending, batch)
	if err != nil {
		return result, err
	}

	for _, bundle := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ok, err := s.ProcessBundle(ctx, bundle)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Failed++
			continue
		}
		result.Processed++
	}

	if s.cfg.ListenerAutoExport {
		exported, err := s.exportProcessed(ctx)
		if err != nil {
			return result, err
		}
		result.Exported = exported
	}

	if err := s.db.SetMetadata(lastCycleKey, s.now()); err != nil {
		return result, err
	}

	s.log.Info("listener cycle done",
		"fetched", result.Fetched,
		"scanned", result.Scanned,
		"processed", result.Processed,
		"failed", result.Failed,
		"exported", result.Exported,
	)
	return result, nil
}

// ProcessBundle runs one bundle and records the outcome. ok is false when the
// bundle itself failed; err is reserved for storage failures.
func (s *Service) ProcessBundle(ctx context.Context, bundle internal.BundleRow) (ok bool, err error) {
	log := s.log.With("bundle_id", bundle.ID, "path", bundle.Path)
	report, procErr := s.processor.ProcessFile(ctx, bundle.Path)

	if len(report.Text) > 0 {
		if err := s.db.CachePageText(bundle.ID, report.Method, report.Text); err != nil {
			return false, err
		}
	}

	bundleID := bundle.ID
	run := internal.RunRow{
		ID:       report.RunID,
		BundleID: &bundleID,
		Method:   report.Method,
		Pages:    report.Pages,
		Sections: report.Sections,
		Invoices: len(report.Invoices),
		Status:   "succeeded",
	}
	if procErr != nil {
		msg := procErr.Error()
		run.Status = "failed"
		run.Error = &msg
	}
	if run.ID != "" {
		if err := s.db.FinishRun(ctx, run, report.Timings); err != nil {
			return false, err
		}
	}

	if procErr != nil {
		if errors.Is(procErr, context.Canceled) {
			return false, procErr
		}
		log.Error("bundle failed", "error", procErr)
		msg := procErr.Error()
		return false, s.db.UpdateBundleStatus(bundle.ID, internal.BundleFailed, &msg)
	}

	review := 0
	if report.RunID != "" {
		invoices, err := s.db.ListInvoices(ctx, report.RunID)
		if err != nil {
			return false, err
		}
		for _, inv := range invoices {
			if inv.Status == storage.InvoiceNeedsReview {
				review++
			}
		}
	}

	log.Info("bundle processed", "run_id", report.RunID, "invoices", len(report.Invoices), "needs_review", review)
	return true, s.db.UpdateBundleStatus(bundle.ID, internal.BundleProcessed, nil)
}

func (s *Service) exportProcessed(ctx context.Context) (int, error) {
	bundles, err := s.db.ListBundlesByStatus(internal.BundleProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, bundle := range bundles {
		run, err := s.db.LatestRunForBundle(ctx, bundle.ID)
		if err != nil {
			return exported, err
		}
		if run == nil {
			continue
		}
		rows, err := s.db.GetExportRows(ctx, run.ID)
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", bundle.ID, sanitizeRef(bundle.SourceRef))
		outputPath := filepath.Join(s.cfg.OutputDir, "exports", filename)
		if err := pipeline.ExportRowsToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateBundleStatus(bundle.ID, internal.BundleExported, nil); err != nil {
			return exported, err
		}
		exported++
	}
	if exported > 0 {
		if err := s.db.SetMetadata(lastExportKey, s.now()); err != nil {
			return exported, err
		}
	}
	return exported, nil
}

// Status is what the listener last did, as recorded in the database.
type Status struct {
	LastCycle  *string
	LastExport *string
	Pending    int
}

func (s *Service) Status() (Status, error) {
	var st Status
	var err error
	if st.LastCycle, err = s.db.GetMetadata(lastCycleKey); err != nil {
		return st, err
	}
	if st.LastExport, err = s.db.GetMetadata(lastExportKey); err != nil {
		return st, err
	}
	pending, err := s.db.ListBundlesByStatus(internal.BundlePending, 1000)
	if err != nil {
		return st, err
	}
	st.Pending = len(pending)
	return st, nil
}

func (s *Service) now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewMailConnector returns the connector for provider, or nil when provider is
// empty.
func NewMailConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "":
		return nil, nil
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

func sanitizeRef(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := strings.Trim(repl.Replace(input), "_")
	if len(out) > 120 {
		out = out[:120]
	}
	if out == "" {
		out = "bundle"
	}
	return out
}
