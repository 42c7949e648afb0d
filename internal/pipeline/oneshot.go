package pipeline

import (
	"context"
	"encoding/json"
	"io"

	"partsuite/internal"
)

// TextDump is the page text of one PDF as produced by the acquisition chain.
type TextDump struct {
	Source   string              `json:"source"`
	Method   string              `json:"method"`
	Pages    []internal.PageText `json:"pages"`
	Attempts []string            `json:"attempts,omitempty"`
}

func ExtractText(ctx context.Context, src TextSource, path string) (TextDump, error) {
	res, err := src.Acquire(ctx, path)
	dump := TextDump{Source: path, Method: res.Method, Pages: res.Pages}
	for _, a := range res.Attempts {
		if a.Err != nil {
			dump.Attempts = append(dump.Attempts, a.Strategy+": "+a.Err.Error())
		} else {
			dump.Attempts = append(dump.Attempts, a.Strategy+": ok")
		}
	}
	if err != nil {
		return dump, internal.NewStageError(internal.StageAcquire, -1, -1, err)
	}
	return dump, nil
}

// PageCache holds the page text of registered bundles.
type PageCache interface {
	GetPageText(bundleID int) ([]internal.PageText, string, error)
	CachePageText(bundleID int, method string, pages []internal.PageText) error
}

// ExtractCachedText serves the cached text of bundleID when there is any,
// otherwise it runs the acquisition chain and fills the cache. fresh skips
// the lookup.
func ExtractCachedText(ctx context.Context, cache PageCache, src TextSource, bundleID int, path string, fresh bool) (TextDump, error) {
	if !fresh {
		pages, method, err := cache.GetPageText(bundleID)
		if err != nil {
			return TextDump{}, err
		}
		if len(pages) > 0 {
			return TextDump{Source: path, Method: method, Pages: pages, Attempts: []string{"cache: ok"}}, nil
		}
	}
	dump, err := ExtractText(ctx, src, path)
	if err != nil {
		return dump, err
	}
	if err := cache.CachePageText(bundleID, dump.Method, dump.Pages); err != nil {
		return dump, err
	}
	return dump, nil
}

func WriteTextDump(w io.Writer, dump TextDump) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
