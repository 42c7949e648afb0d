package app

import (
	"io"
	"log/slog"

	"partsuite/internal/config"
	"partsuite/internal/connectors"
	"partsuite/internal/listener"
	"partsuite/internal/pdfdoc"
	"partsuite/internal/pipeline"
	"partsuite/internal/storage"
	"partsuite/internal/textract"
	"partsuite/internal/web"
)

// App holds the components shared by the command line entry points.
type App struct {
	Config    config.Config
	DB        *storage.DB
	Log       *slog.Logger
	Rules     *pipeline.Rules
	Extractor *textract.Extractor
	Artifacts *pdfdoc.ArtifactWriter
	Processor *pipeline.Processor
	Bundles   *connectors.BundleStore
}

func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Build loads the vendor profile and wires the pipeline against db.
func Build(cfg config.Config, db *storage.DB, logger *slog.Logger) (*App, error) {
	profile, err := config.LoadProfile(cfg.VendorProfilePath)
	if err != nil {
		return nil, err
	}
	rules, err := pipeline.NewRules(profile)
	if err != nil {
		return nil, err
	}
	segment, err := pipeline.ParseSegmentPolicy(cfg.SegmentPolicy)
	if err != nil {
		return nil, err
	}
	onFailure, err := pipeline.ParseFailurePolicy(cfg.FailurePolicy, logger)
	if err != nil {
		return nil, err
	}

	extractor := textract.NewExtractor(textract.ConfigFrom(cfg), textract.ExecRunner{Logger: logger}, logger)
	artifacts := pdfdoc.NewArtifactWriter(cfg.OutputDir, logger)
	processor := pipeline.NewProcessor(rules, extractor,
		pipeline.WithArtifacts(artifacts),
		pipeline.WithStore(db),
		pipeline.WithSegmentPolicy(segment),
		pipeline.WithFailurePolicy(onFailure),
		pipeline.WithLogger(logger),
	)

	return &App{
		Config:    cfg,
		DB:        db,
		Log:       logger,
		Rules:     rules,
		Extractor: extractor,
		Artifacts: artifacts,
		Processor: processor,
		Bundles:   connectors.NewBundleStore(db, cfg.InboxDir, cfg.RawMailDir),
	}, nil
}

// FetchService returns nil when provider is empty.
func (a *App) FetchService(provider string) (*connectors.FetchService, error) {
	conn, err := listener.NewMailConnector(a.Config, provider)
	if err != nil || conn == nil {
		return nil, err
	}
	return connectors.NewFetchService(conn, a.Bundles, a.Config.MailSupplierFrom, a.Log), nil
}

func (a *App) Listener() (*listener.Service, error) {
	fetch, err := a.FetchService(a.Config.ListenerProvider)
	if err != nil {
		return nil, err
	}
	return listener.NewService(a.DB, a.Config, a.Processor, a.Bundles, fetch, a.Log), nil
}

func (a *App) Server() *web.Server {
	return web.NewServer(a.Processor, a.Artifacts, a.Config.MaxUploadMB, a.Log)
}
