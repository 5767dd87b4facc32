package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrConflict reports that a document read or written by a transaction changed before commit.
	ErrConflict = errors.New("store: conflicting write")
	// ErrRetriesExhausted wraps ErrConflict once the retry policy gives up.
	ErrRetriesExhausted = errors.New("store: retries exhausted")
)

// Store is a JSON document store on sqlite. Each document is addressed by (collection, id) and
// carries a version used for optimistic concurrency control.
type Store struct {
	db    *sql.DB
	retry RetryPolicy
}

type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Value      json.RawMessage `json:"value"`
	Version    int64           `json:"version"`
}

func Open(path string, retry RetryPolicy) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, retry: retry.withDefaults()}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			value TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			documents INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts a transaction. Documents are loaded lazily on first access and validated at Commit.
func (s *Store) Begin() *Tx {
	return &Tx{s: s, docs: map[docKey]*doc{}}
}

func (s *Store) load(ctx context.Context, collection, id string) (*doc, error) {
	var raw string
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &doc{}, nil
	}
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, err)
	}
	return &doc{value: v, version: version, exists: true, existed: true}, nil
}

// List returns every document in a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, id, value, version FROM documents WHERE collection=? ORDER BY id`, collection)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// Dump returns every stored document ordered by (collection, id).
func (s *Store) Dump(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection, id, value, version FROM documents ORDER BY collection, id`)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		var raw string
		if err := rows.Scan(&d.Collection, &d.ID, &raw, &d.Version); err != nil {
			return nil, err
		}
		d.Value = json.RawMessage(raw)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Restore replaces the whole document table with docs. Restored versions are placed above every
// version seen so far, so transactions that read the old table fail to commit.
func (s *Store) Restore(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var base int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0) FROM documents`).Scan(&base); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents(collection,id,value,version,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UnixMilli()
	for _, d := range docs {
		if d.Collection == "" || d.ID == "" {
			return fmt.Errorf("restore: document without key")
		}
		if !json.Valid(d.Value) {
			return fmt.Errorf("restore: %s/%s: invalid json", d.Collection, d.ID)
		}
		version := d.Version
		if version <= 0 {
			version = 1
		}
		version += base
		if _, err := stmt.ExecContext(ctx, d.Collection, d.ID, string(d.Value), version, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertCatalog records the reference data a server was started with.
func (s *Store) UpsertCatalog(ctx context.Context, name, digest string, raw []byte) error {
	if name == "" || len(raw) == 0 {
		return nil
	}
	if digest == "" {
		sum := sha256.Sum256(raw)
		digest = hex.EncodeToString(sum[:])
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`, name, digest, string(raw), now); err != nil {
		return err
	}
	return tx.Commit()
}

// CatalogDigest returns the digest recorded for a catalog, or "" if none.
func (s *Store) CatalogDigest(ctx context.Context, name string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return digest, err
}

func (s *Store) RecordSnapshot(ctx context.Context, path string, documents int) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO snapshots(path,documents,recorded_at) VALUES(?,?,?)`,
		path, documents, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// commit validates every document the transaction touched and applies the writes atomically.
func (s *Store) commit(ctx context.Context, t *Tx) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, k := range t.order {
		d := t.docs[k]
		if !d.dirty {
			var version int64
			err := sqlTx.QueryRowContext(ctx, `SELECT version FROM documents WHERE collection=? AND id=?`, k.collection, k.id).Scan(&version)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if d.existed {
					return ErrConflict
				}
			case err != nil:
				return err
			case !d.existed || version != d.version:
				return ErrConflict
			}
			continue
		}

		var res sql.Result
		switch {
		case d.existed && d.exists:
			raw, err := json.Marshal(d.value)
			if err != nil {
				return err
			}
			res, err = sqlTx.ExecContext(ctx, `UPDATE documents SET value=?, version=version+1, updated_at=? WHERE collection=? AND id=? AND version=?`,
				string(raw), now, k.collection, k.id, d.version)
			if err != nil {
				return err
			}
		case d.existed:
			res, err = sqlTx.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=? AND version=?`, k.collection, k.id, d.version)
			if err != nil {
				return err
			}
		case d.exists:
			raw, err := json.Marshal(d.value)
			if err != nil {
				return err
			}
			res, err = sqlTx.ExecContext(ctx, `INSERT INTO documents(collection,id,value,version,updated_at) VALUES(?,?,?,1,?) ON CONFLICT(collection,id) DO NOTHING`,
				k.collection, k.id, string(raw), now)
			if err != nil {
				return err
			}
		default:
			// Created and deleted within the transaction; the row must still be absent.
			var one int
			err := sqlTx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection=? AND id=?`, k.collection, k.id).Scan(&one)
			if err == nil {
				return ErrConflict
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			continue
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrConflict
		}
	}
	return sqlTx.Commit()
}
