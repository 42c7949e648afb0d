package listener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal"
	"partsuite/internal/config"
	"partsuite/internal/connectors"
	"partsuite/internal/pipeline"
	"partsuite/internal/storage"
	"partsuite/internal/textract"
)

type fileText map[string][]internal.PageText

func (f fileText) Acquire(ctx context.Context, path string) (textract.Result, error) {
	return textract.Result{Pages: f[filepath.Base(path)], Method: textract.MethodLayout}, nil
}

var weeklyPages = []internal.PageText{
	{Index: 0, Text: "MOPAR CANADA INC. - PARTS INVOICE\nINVOICE NUMBER: 09308000W 123456\nINVOICE DATE: JANUARY 5, 2024"},
	{Index: 1, Text: "ARC01217 FREIGHT 40.00\nGST/HST @ 13.00% 5.20\nNET INVOICE AMOUNT 45.20"},
}

func setup(t *testing.T, texts fileText) (*Service, *storage.DB, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		InboxDir:             filepath.Join(dir, "inbox"),
		OutputDir:            filepath.Join(dir, "output"),
		ListenerProcessBatch: 5,
		ListenerAutoExport:   true,
	}
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	proc := pipeline.NewProcessor(pipeline.MustRules(config.DefaultProfile()), texts, pipeline.WithStore(db))
	store := connectors.NewBundleStore(db, cfg.InboxDir, "")
	return NewService(db, cfg, proc, store, nil, nil), db, cfg
}

func drop(t *testing.T, cfg config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.InboxDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InboxDir, name), []byte(content), 0o644))
}

func TestRunCycleProcessesAndExports(t *testing.T) {
	svc, db, cfg := setup(t, fileText{
		"week.pdf":  weeklyPages,
		"empty.pdf": {{Index: 0, Text: "nothing that looks like an invoice"}},
	})
	drop(t, cfg, "week.pdf", "%PDF week")
	drop(t, cfg, "empty.pdf", "%PDF empty")

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Exported)

	exported, err := db.ListBundlesByStatus(internal.BundleExported, 10)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.Equal(t, "week.pdf", exported[0].SourceRef)

	pages, method, err := db.GetPageText(exported[0].ID)
	require.NoError(t, err)
	assert.Equal(t, textract.MethodLayout, method)
	assert.Len(t, pages, 2)

	run, err := db.LatestRunForBundle(context.Background(), exported[0].ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "succeeded", run.Status)
	assert.Equal(t, 1, run.Invoices)

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "exports", fmt.Sprintf("%d_week.pdf.xlsx", exported[0].ID)))
	assert.NoError(t, err)

	failed, err := db.ListBundlesByStatus(internal.BundleFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Contains(t, *failed[0].Error, "no invoice sections found")

	st, err := svc.Status()
	require.NoError(t, err)
	require.NotNil(t, st.LastCycle)
	require.NotNil(t, st.LastExport)
	assert.Zero(t, st.Pending)
	firstExport := *st.LastExport

	// A second cycle has nothing new to do.
	res, err = svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{}, res)

	st, err = svc.Status()
	require.NoError(t, err)
	assert.Equal(t, firstExport, *st.LastExport)
}

func TestStatusBeforeFirstCycle(t *testing.T) {
	svc, _, cfg := setup(t, fileText{})
	drop(t, cfg, "later.pdf", "%PDF later")
	_, _, err := svc.store.RegisterFile(filepath.Join(cfg.InboxDir, "later.pdf"))
	require.NoError(t, err)

	st, err := svc.Status()
	require.NoError(t, err)
	assert.Nil(t, st.LastCycle)
	assert.Nil(t, st.LastExport)
	assert.Equal(t, 1, st.Pending)
}

func TestNewMailConnector(t *testing.T) {
	c, err := NewMailConnector(config.Config{}, "")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewMailConnector(config.Config{}, "pop3")
	assert.Error(t, err)

	_, err = NewMailConnector(config.Config{}, "imap")
	assert.ErrorContains(t, err, "IMAP_HOST")
}

func TestSanitizeRef(t *testing.T) {
	assert.Equal(t, "m1_mopar.example", sanitizeRef("<m1@mopar.example>"))
	assert.Equal(t, "bundle", sanitizeRef("<>"))
}
