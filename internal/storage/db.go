package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"partsuite/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{`PRAGMA journal_mode = WAL;`, `PRAGMA foreign_keys = ON;`, `PRAGMA busy_timeout = 5000;`} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS bundles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  sourceRef TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  path TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  error TEXT,
  receivedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_bundles_status ON bundles(status);

CREATE TABLE IF NOT EXISTS page_texts (
  bundleId INTEGER NOT NULL,
  pageIndex INTEGER NOT NULL,
  method TEXT NOT NULL,
  text TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(bundleId, pageIndex),
  FOREIGN KEY(bundleId) REFERENCES bundles(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  bundleId INTEGER,
  method TEXT,
  pages INTEGER NOT NULL DEFAULT 0,
  sections INTEGER NOT NULL DEFAULT 0,
  invoices INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  error TEXT,
  timingsJson TEXT NOT NULL DEFAULT '{}',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(bundleId) REFERENCES bundles(id)
);

CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  section INTEGER NOT NULL,
  invoiceKey TEXT NOT NULL,
  numberRaw TEXT NOT NULL,
  numberNorm TEXT NOT NULL,
  typeCode TEXT NOT NULL,
  typeDesc TEXT NOT NULL,
  dateRaw TEXT,
  dateIso TEXT,
  pagesJson TEXT NOT NULL,
  taxRate TEXT,
  taxAmount TEXT,
  totalsJson TEXT NOT NULL,
  status TEXT NOT NULL,
  artifactError TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(runId, invoiceKey),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS invoice_accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  code TEXT NOT NULL,
  description TEXT NOT NULL,
  amount TEXT NOT NULL,
  glAccount TEXT,
  glLabel TEXT,
  note TEXT,
  UNIQUE(invoiceId, lineNo),
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);

CREATE TABLE IF NOT EXISTS invoice_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  kind TEXT NOT NULL,
  path TEXT NOT NULL,
  UNIQUE(invoiceId, kind),
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const bundleColumns = `id, source, sourceRef, hash, path, status, receivedAt, error`

func scanBundle(row interface{ Scan(...any) error }) (internal.BundleRow, error) {
	var b internal.BundleRow
	var status string
	var receivedAt sql.NullString
	err := row.Scan(&b.ID, &b.Source, &b.SourceRef, &b.Hash, &b.Path, &status, &receivedAt, &b.Error)
	b.Status = internal.BundleStatus(status)
	b.ReceivedAt = receivedAt.String
	return b, err
}

// RegisterBundle records a bundle by content hash. created is false when the
// same bytes were registered before.
func (d *DB) RegisterBundle(source, sourceRef, hash, path, receivedAt string) (row internal.BundleRow, created bool, err error) {
	res, err := d.conn.Exec(`
INSERT INTO bundles (source, sourceRef, hash, path, receivedAt)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(hash) DO NOTHING
`, source, sourceRef, hash, path, receivedAt)
	if err != nil {
		return internal.BundleRow{}, false, err
	}
	n, _ := res.RowsAffected()

	existing, err := d.GetBundleByHash(hash)
	if err != nil {
		return internal.BundleRow{}, false, err
	}
	if existing == nil {
		return internal.BundleRow{}, false, errors.New("failed to register bundle")
	}
	return *existing, n > 0, nil
}

func (d *DB) GetBundleByHash(hash string) (*internal.BundleRow, error) {
	row, err := scanBundle(d.conn.QueryRow(`SELECT `+bundleColumns+` FROM bundles WHERE hash = ?`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetBundleByID(id int) (*internal.BundleRow, error) {
	row, err := scanBundle(d.conn.QueryRow(`SELECT `+bundleColumns+` FROM bundles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListBundlesByStatus(status internal.BundleStatus, limit int) ([]internal.BundleRow, error) {
	rows, err := d.conn.Query(`
SELECT `+bundleColumns+`
FROM bundles WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?
`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BundleRow
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) UpdateBundleStatus(id int, status internal.BundleStatus, errMsg *string) error {
	_, err := d.conn.Exec(`UPDATE bundles SET status = ?, error = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), errMsg, id)
	return err
}

// CachePageText replaces the stored page texts of a bundle.
func (d *DB) CachePageText(bundleID int, method string, pages []internal.PageText) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM page_texts WHERE bundleId = ?`, bundleID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO page_texts (bundleId, pageIndex, method, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range pages {
		if _, err := stmt.Exec(bundleID, p.Index, method, p.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) GetPageText(bundleID int) ([]internal.PageText, string, error) {
	rows, err := d.conn.Query(`SELECT pageIndex, method, text FROM page_texts WHERE bundleId = ? ORDER BY pageIndex ASC`, bundleID)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []internal.PageText
	method := ""
	for rows.Next() {
		var p internal.PageText
		if err := rows.Scan(&p.Index, &method, &p.Text); err != nil {
			return nil, "", err
		}
		out = append(out, p)
	}
	return out, method, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustBundleByID(id int) (internal.BundleRow, error) {
	row, err := d.GetBundleByID(id)
	if err != nil {
		return internal.BundleRow{}, err
	}
	if row == nil {
		return internal.BundleRow{}, fmt.Errorf("bundle not found: id=%d", id)
	}
	return *row, nil
}

func marshalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
