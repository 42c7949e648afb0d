package connectors

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"partsuite/internal"
	"partsuite/internal/storage"
)

const SourceInbox = "inbox"

// BundleStore turns PDFs arriving by mail or dropped into the inbox directory
// into registered bundles. Bundles are addressed by the SHA-256 of their bytes.
type BundleStore struct {
	db         *storage.DB
	inboxDir   string
	rawMailDir string
}

type StoreResult struct {
	Bundles []internal.BundleRow
	Created int
}

func NewBundleStore(db *storage.DB, inboxDir, rawMailDir string) *BundleStore {
	return &BundleStore{db: db, inboxDir: inboxDir, rawMailDir: rawMailDir}
}

// StoreMessage keeps the raw message and registers each PDF attachment.
func (s *BundleStore) StoreMessage(msg internal.FetchedMailMessage) (StoreResult, error) {
	if s.rawMailDir != "" {
		if _, _, err := writeAddressed(s.rawMailDir, msg.Raw, ".eml"); err != nil {
			return StoreResult{}, err
		}
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return StoreResult{}, fmt.Errorf("parse message %s: %w", msg.MessageID, err)
	}

	var out StoreResult
	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	for _, part := range parts {
		if !isPDFPart(part.FileName, part.ContentType) || len(part.Content) == 0 {
			continue
		}
		hash, path, err := writeAddressed(s.inboxDir, part.Content, ".pdf")
		if err != nil {
			return out, err
		}
		row, created, err := s.db.RegisterBundle("mail:"+msg.Provider, msg.MessageID, hash, path, msg.ReceivedAt)
		if err != nil {
			return out, err
		}
		out.Bundles = append(out.Bundles, row)
		if created {
			out.Created++
		}
	}
	return out, nil
}

// ScanInbox registers every PDF sitting directly in the inbox directory.
func (s *BundleStore) ScanInbox() (StoreResult, error) {
	entries, err := os.ReadDir(s.inboxDir)
	if os.IsNotExist(err) {
		return StoreResult{}, nil
	}
	if err != nil {
		return StoreResult{}, err
	}

	var out StoreResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(s.inboxDir, entry.Name())
		row, created, err := s.RegisterFile(path)
		if err != nil {
			return out, err
		}
		out.Bundles = append(out.Bundles, row)
		if created {
			out.Created++
		}
	}
	return out, nil
}

func (s *BundleStore) RegisterFile(path string) (internal.BundleRow, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return internal.BundleRow{}, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return internal.BundleRow{}, false, err
	}
	sum := sha256.Sum256(raw)
	received := info.ModTime().UTC().Format(time.RFC3339)
	return s.db.RegisterBundle(SourceInbox, filepath.Base(path), hex.EncodeToString(sum[:]), path, received)
}

func isPDFPart(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".pdf") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.EqualFold(mediaType, "application/pdf")
}

func writeAddressed(dir string, raw []byte, ext string) (string, string, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", "", err
		}
	}
	return hash, path, nil
}
