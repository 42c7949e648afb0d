package connectors

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal"
	"partsuite/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f fakeConnector) FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error) {
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func buildMessage(t *testing.T, from string, attachments map[string][]byte) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Supplier", from).
		To("Accounts", "ap@dealer.example").
		Subject("Weekly invoices").
		Text([]byte("Invoices attached."))
	for name, content := range attachments {
		contentType := "application/octet-stream"
		if filepath.Ext(name) == ".pdf" {
			contentType = "application/pdf"
		}
		b = b.AddAttachment(content, contentType, name)
	}
	part, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, part.Encode(&buf))
	return buf.Bytes()
}

func newStore(t *testing.T) (*BundleStore, *storage.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	inbox := filepath.Join(dir, "inbox")
	return NewBundleStore(db, inbox, filepath.Join(dir, "raw")), db, inbox
}

func TestStoreMessageRegistersPDFAttachments(t *testing.T) {
	store, db, inbox := newStore(t)
	raw := buildMessage(t, "invoices@mopar.example", map[string][]byte{
		"bundle.pdf": []byte("%PDF-1.4 first"),
		"notes.txt":  []byte("ignore me"),
	})

	res, err := store.StoreMessage(internal.FetchedMailMessage{
		Provider:   "imap",
		MessageID:  "<m1@mopar.example>",
		ReceivedAt: "2025-03-03T10:00:00Z",
		Raw:        raw,
	})
	require.NoError(t, err)
	require.Len(t, res.Bundles, 1)
	assert.Equal(t, 1, res.Created)

	b := res.Bundles[0]
	assert.Equal(t, "mail:imap", b.Source)
	assert.Equal(t, "<m1@mopar.example>", b.SourceRef)
	assert.Equal(t, filepath.Join(inbox, b.Hash+".pdf"), b.Path)

	content, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 first", string(content))

	pending, err := db.ListBundlesByStatus(internal.BundlePending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// The same message fetched twice does not create a second bundle.
	res, err = store.StoreMessage(internal.FetchedMailMessage{Provider: "imap", MessageID: "<m1@mopar.example>", Raw: raw})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
}

func TestScanInboxRegistersLooseFiles(t *testing.T) {
	store, _, inbox := newStore(t)
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "week12.PDF"), []byte("%PDF-1.4 a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "readme.txt"), []byte("x"), 0o644))

	res, err := store.ScanInbox()
	require.NoError(t, err)
	require.Len(t, res.Bundles, 1)
	assert.Equal(t, SourceInbox, res.Bundles[0].Source)
	assert.Equal(t, "week12.PDF", res.Bundles[0].SourceRef)

	res, err = store.ScanInbox()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
}

func TestScanInboxMissingDir(t *testing.T) {
	store, _, _ := newStore(t)
	res, err := store.ScanInbox()
	require.NoError(t, err)
	assert.Empty(t, res.Bundles)
}

func TestFetchAndStoreFiltersSupplier(t *testing.T) {
	store, _, _ := newStore(t)
	connector := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "gmail", MessageID: "a", From: "Mopar <Invoices@Mopar.example>", Raw: buildMessage(t, "invoices@mopar.example", map[string][]byte{"a.pdf": []byte("%PDF a")})},
		{Provider: "gmail", MessageID: "b", From: "someone@else.example", Raw: buildMessage(t, "someone@else.example", map[string][]byte{"b.pdf": []byte("%PDF b")})},
		{Provider: "gmail", MessageID: "c", From: "invoices@mopar.example", Raw: buildMessage(t, "invoices@mopar.example", nil)},
	}}

	svc := NewFetchService(connector, store, "invoices@mopar.example", nil)
	res, err := svc.FetchAndStore("INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Bundles)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, "gmail", res.Provider)
}

func TestIsPDFPart(t *testing.T) {
	assert.True(t, isPDFPart("Bundle.PDF", ""))
	assert.True(t, isPDFPart("", "application/pdf; name=x"))
	assert.False(t, isPDFPart("sheet.xlsx", "application/vnd.ms-excel"))
}
