package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal"
	"partsuite/internal/pdfdoc"
	"partsuite/internal/textract"
)

func TestExtractTextDump(t *testing.T) {
	path := writeBundle(t, []pdfdoc.Page{{Title: "only page", Lines: []string{"second line"}}})
	ext := textract.NewExtractor(textract.Config{}, noExternalTools{}, nil)

	dump, err := ExtractText(context.Background(), ext, path)
	require.NoError(t, err)
	assert.Equal(t, textract.MethodEmbedded, dump.Method)
	assert.Equal(t, []string{"embedded: ok"}, dump.Attempts)
	require.Len(t, dump.Pages, 1)
	assert.Equal(t, "only page\nsecond line", dump.Pages[0].Text)

	var buf bytes.Buffer
	require.NoError(t, WriteTextDump(&buf, dump))
	var decoded TextDump
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, dump.Pages, decoded.Pages)
}

func TestExtractTextFailure(t *testing.T) {
	_, err := ExtractText(context.Background(), staticText{err: errors.Join(internal.ErrExtraction)}, "x.pdf")
	assert.ErrorIs(t, err, internal.ErrExtraction)
}

type memoryCache struct {
	pages  map[int][]internal.PageText
	method map[int]string
}

func (m *memoryCache) GetPageText(bundleID int) ([]internal.PageText, string, error) {
	return m.pages[bundleID], m.method[bundleID], nil
}

func (m *memoryCache) CachePageText(bundleID int, method string, pages []internal.PageText) error {
	m.pages[bundleID] = pages
	m.method[bundleID] = method
	return nil
}

func TestExtractCachedText(t *testing.T) {
	cache := &memoryCache{pages: map[int][]internal.PageText{}, method: map[int]string{}}
	first := staticText{pages: []internal.PageText{{Index: 0, Text: "first"}}}

	dump, err := ExtractCachedText(context.Background(), cache, first, 7, "b.pdf", false)
	require.NoError(t, err)
	assert.Equal(t, "static", dump.Method)
	assert.Equal(t, "first", cache.pages[7][0].Text)

	second := staticText{pages: []internal.PageText{{Index: 0, Text: "second"}}}
	dump, err = ExtractCachedText(context.Background(), cache, second, 7, "b.pdf", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache: ok"}, dump.Attempts)
	assert.Equal(t, "first", dump.Pages[0].Text)

	dump, err = ExtractCachedText(context.Background(), cache, second, 7, "b.pdf", true)
	require.NoError(t, err)
	assert.Equal(t, "second", dump.Pages[0].Text)
	assert.Equal(t, "second", cache.pages[7][0].Text)
}

func TestExtractCachedTextLeavesCacheOnFailure(t *testing.T) {
	cache := &memoryCache{pages: map[int][]internal.PageText{}, method: map[int]string{}}
	_, err := ExtractCachedText(context.Background(), cache, staticText{err: internal.ErrExtraction}, 1, "x.pdf", false)
	assert.ErrorIs(t, err, internal.ErrExtraction)
	assert.Empty(t, cache.pages)
}
