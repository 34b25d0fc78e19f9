// Package sqlitestore persists a collection and the document registry in a
// local SQLite file. Similarity is computed in process.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/core/vectormath"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Store is a SQLite-backed collection.
type Store struct {
	db         *sql.DB
	collection string
}

// Open opens (creating if needed) the database at path and prepares the
// schema.
func Open(ctx context.Context, path, collection string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps :memory: databases
	// alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, collection: collection}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dim  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS units (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			collection  TEXT NOT NULL,
			id          TEXT NOT NULL,
			document_id TEXT NOT NULL,
			text        TEXT NOT NULL,
			embedding   BLOB NOT NULL,
			metadata    TEXT NOT NULL,
			UNIQUE (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			file_name     TEXT NOT NULL,
			quarter       TEXT NOT NULL DEFAULT '',
			company       TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT '',
			storage_url   TEXT NOT NULL DEFAULT '',
			source_type   TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			unit_count    INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_quarter ON documents(quarter)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Name() string { return s.collection }

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Upsert(ctx context.Context, units []models.RetrievableUnit) error {
	if len(units) == 0 {
		return nil
	}
	dim, err := models.ValidateUnits(units)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO collections (name, dim) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, s.collection, dim); err != nil {
		return fmt.Errorf("register collection: %w", err)
	}
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, s.collection).Scan(&stored); err != nil {
		return fmt.Errorf("read collection dim: %w", err)
	}
	if stored != dim {
		return fmt.Errorf("%w: collection %s has %d dimensions, units have %d", internalerr.ErrDimensionMismatch, s.collection, stored, dim)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (collection, id, document_id, text, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE
		SET text = excluded.text, embedding = excluded.embedding, metadata = excluded.metadata
		WHERE units.document_id = excluded.document_id`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range units {
		u := &units[i]
		md, err := json.Marshal(u.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", u.ID, err)
		}
		res, err := stmt.ExecContext(ctx, s.collection, u.ID, u.DocumentID, u.Text, vectormath.Encode(u.Embedding), string(md))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", internalerr.ErrDuplicateID, u.ID)
		}
	}
	return tx.Commit()
}

// Query filters in SQL and ranks the survivors in process.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, where filter.Expr) ([]models.ScoredUnit, error) {
	clause, args, err := where.ToSQL(filter.SQLite{}, "metadata", 1)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var dim int
	err = s.db.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection dim: %w", err)
	}
	if dim != len(embedding) {
		return nil, fmt.Errorf("%w: collection %s has %d dimensions, query has %d", internalerr.ErrDimensionMismatch, s.collection, dim, len(embedding))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, document_id, text, embedding, metadata FROM units WHERE collection = ? AND `+clause+` ORDER BY seq`,
		append([]any{s.collection}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []vectormath.Candidate
	for rows.Next() {
		var (
			c   vectormath.Candidate
			emb []byte
			md  string
		)
		if err := rows.Scan(&c.Seq, &c.Unit.ID, &c.Unit.DocumentID, &c.Unit.Text, &emb, &md); err != nil {
			return nil, err
		}
		if c.Unit.Embedding, err = vectormath.Decode(emb); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", c.Unit.ID, err)
		}
		if err := json.Unmarshal([]byte(md), &c.Unit.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", c.Unit.ID, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectormath.Rank(embedding, candidates, k), nil
}

func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

// Documents

func (s *Store) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", internalerr.ErrInvalidInput)
	}
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, file_name, quarter, company, document_type, storage_url, source_type, content_hash,
			 status, unit_count, failure_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name, quarter = excluded.quarter, company = excluded.company,
			document_type = excluded.document_type, storage_url = excluded.storage_url,
			source_type = excluded.source_type, content_hash = excluded.content_hash,
			status = excluded.status, unit_count = excluded.unit_count,
			failure_count = excluded.failure_count, last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		doc.ID, doc.FileName, doc.Quarter, doc.Company, doc.DocumentType, doc.StorageURL, doc.SourceType,
		doc.ContentHash, doc.Status, doc.UnitCount, doc.FailureCount, doc.LastError, now, now)
	return err
}

const documentColumns = `id, file_name, quarter, company, document_type, storage_url, source_type, content_hash,
	status, unit_count, failure_count, last_error, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (models.Document, error) {
	var (
		d                models.Document
		created, updated int64
	)
	err := row.Scan(&d.ID, &d.FileName, &d.Quarter, &d.Company, &d.DocumentType, &d.StorageURL, &d.SourceType,
		&d.ContentHash, &d.Status, &d.UnitCount, &d.FailureCount, &d.LastError, &created, &updated)
	d.CreatedAt, d.UpdatedAt = time.Unix(0, created), time.Unix(0, updated)
	return d, err
}

func (s *Store) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, quarter string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE ? = '' OR quarter = ? ORDER BY created_at DESC, id`,
		quarter, quarter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id, status string, unitCount, failureCount int, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, unit_count = ?, failure_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, status, unitCount, failureCount, lastError, time.Now().UnixNano(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

func (s *Store) ClearDocuments(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}
