package textract

import (
	"context"
	"strings"

	"partsuite/internal"
)

// layoutText runs pdftotext in layout mode; pages are separated by form feeds.
func (e *Extractor) layoutText(ctx context.Context, path string) ([]internal.PageText, error) {
	out, err := e.run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, err
	}
	chunks := strings.Split(string(out), "\f")
	pages := make([]internal.PageText, 0, len(chunks))
	for i, chunk := range chunks {
		pages = append(pages, internal.PageText{Index: i, Text: chunk})
	}
	return pages, nil
}
