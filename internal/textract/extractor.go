package textract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"partsuite/internal"
	"partsuite/internal/config"
)

const (
	MethodEmbedded = "embedded"
	MethodLayout   = "layout"
	MethodOCR      = "ocr"
)

type Config struct {
	Pdftotext      string
	Pdftoppm       string
	Tesseract      string
	DPI            int
	PSM            int
	Lang           string
	Workers        int
	LayoutMinChars int
	Timeout        time.Duration
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Pdftotext:      cfg.Pdftotext,
		Pdftoppm:       cfg.Pdftoppm,
		Tesseract:      cfg.Tesseract,
		DPI:            cfg.OCRDPI,
		PSM:            cfg.OCRPSM,
		Lang:           cfg.OCRLang,
		Workers:        cfg.OCRWorkers,
		LayoutMinChars: cfg.LayoutMinChars,
		Timeout:        cfg.ExternalTimeout(),
	}
}

func (c Config) withDefaults() Config {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.PSM <= 0 {
		c.PSM = 6
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.LayoutMinChars <= 0 {
		c.LayoutMinChars = 40
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// Strategy is one way of turning a PDF into page texts. Accept decides whether
// a successful result is good enough to stop the chain.
type Strategy struct {
	Name   string
	Run    func(ctx context.Context, path string) ([]internal.PageText, error)
	Accept func(pages []internal.PageText) bool
}

type Attempt struct {
	Strategy string
	Pages    int
	Duration time.Duration
	Err      error
}

type Result struct {
	Pages    []internal.PageText
	Method   string
	Attempts []Attempt
}

type Extractor struct {
	cfg    Config
	runner Runner
	log    *slog.Logger
	chain  []Strategy
}

func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	e := &Extractor{cfg: cfg.withDefaults(), runner: runner, log: logger}
	e.chain = []Strategy{
		{Name: MethodEmbedded, Run: e.embeddedText, Accept: anyPage},
		{Name: MethodLayout, Run: e.layoutText, Accept: e.layoutAccepted},
		{Name: MethodOCR, Run: e.ocrText, Accept: anyPage},
	}
	return e
}

// WithStrategies returns a copy of the extractor that walks the given chain.
func (e *Extractor) WithStrategies(chain ...Strategy) *Extractor {
	out := *e
	out.chain = append([]Strategy(nil), chain...)
	return &out
}

// Acquire walks the strategy chain and returns the first accepted result.
// Empty pages are dropped but each page keeps its source index.
func (e *Extractor) Acquire(ctx context.Context, path string) (Result, error) {
	var res Result
	var errs []error
	for _, s := range e.chain {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		pages, err := s.Run(ctx, path)
		attempt := Attempt{Strategy: s.Name, Duration: time.Since(start), Err: err}
		if err == nil {
			pages = dropEmpty(pages)
			attempt.Pages = len(pages)
			if !s.Accept(pages) {
				attempt.Err = errors.New("no usable text")
			}
		}
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Err != nil {
			e.log.Debug("text strategy rejected", "strategy", s.Name, "error", attempt.Err, "duration_ms", attempt.Duration.Milliseconds())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, attempt.Err))
			continue
		}
		res.Pages = pages
		res.Method = s.Name
		e.log.Info("text acquired", "strategy", s.Name, "pages", len(pages), "duration_ms", attempt.Duration.Milliseconds())
		return res, nil
	}
	return res, fmt.Errorf("%w: %w", internal.ErrExtraction, errors.Join(errs...))
}

// AcquireBytes spills data to a temporary file so external tools can read it.
func (e *Extractor) AcquireBytes(ctx context.Context, data []byte) (Result, error) {
	f, err := os.CreateTemp("", "partsuite-src-*.pdf")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return Result{}, err
	}
	if err := f.Close(); err != nil {
		return Result{}, err
	}
	return e.Acquire(ctx, f.Name())
}

// run executes one external command under its own deadline.
func (e *Extractor) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, stderr, err := e.runner.Run(callCtx, name, args...)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", internal.ErrTimeout, name, e.cfg.Timeout)
		}
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, truncate(msg, 512))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func dropEmpty(pages []internal.PageText) []internal.PageText {
	out := pages[:0:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, p)
		}
	}
	return out
}

func anyPage(pages []internal.PageText) bool {
	return len(pages) > 0
}

func (e *Extractor) layoutAccepted(pages []internal.PageText) bool {
	for _, p := range pages {
		if len(strings.TrimSpace(p.Text)) > e.cfg.LayoutMinChars {
			return true
		}
	}
	return false
}
