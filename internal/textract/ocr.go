package textract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"partsuite/internal"
)

// pdftoppm zero-pads page numbers once a document has ten or more pages.
var renderedPagePattern = regexp.MustCompile(`-(\d+)\.png$`)

type renderedPage struct {
	number int
	path   string
}

func (e *Extractor) ocrText(ctx context.Context, path string) ([]internal.PageText, error) {
	tmpDir, err := os.MkdirTemp("", "partsuite-ocr-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.log.Warn("remove ocr temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	if _, err := e.run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix); err != nil {
		return nil, missingBinary(err)
	}

	images, err := renderedPages(tmpDir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.New("pdftoppm produced no images")
	}

	pages := make([]internal.PageText, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, img := range images {
		g.Go(func() error {
			args := []string{img.path, "stdout", "--psm", strconv.Itoa(e.cfg.PSM)}
			if e.cfg.Lang != "" {
				args = append(args, "-l", e.cfg.Lang)
			}
			out, err := e.run(gctx, e.cfg.Tesseract, args...)
			if err != nil {
				return fmt.Errorf("page %d: %w", img.number, missingBinary(err))
			}
			pages[i] = internal.PageText{Index: img.number - 1, Text: string(out)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func renderedPages(dir string) ([]renderedPage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []renderedPage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := renderedPagePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		out = append(out, renderedPage{number: n, path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out, nil
}

func missingBinary(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %w", internal.ErrMissingOCRBinaries, err)
	}
	return err
}
