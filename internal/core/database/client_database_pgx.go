package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Ledgerlens/internal/config"
	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

type DatabaseClient struct {
	db         *sql.DB
	collection string
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	dsn, err := withSSL(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, collection: cfg.CollectionName}, nil
}

// withSSL pins the server CA when a certificate path is configured.
func withSSL(dsn, certPath string) (string, error) {
	if certPath == "" {
		return dsn, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Name() string { return c.collection }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Retrievable units

// Upsert writes units in a single transaction. The collection's dimension is
// fixed by its first write.
func (c *DatabaseClient) Upsert(ctx context.Context, units []models.RetrievableUnit) error {
	if len(units) == 0 {
		return nil
	}
	dim, err := models.ValidateUnits(units)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	reg, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, dim) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		c.collection, dim)
	if err != nil {
		return fmt.Errorf("register collection: %w", err)
	}
	if n, _ := reg.RowsAffected(); n == 1 {
		if _, err := tx.ExecContext(ctx, createHNSWIndexSQL(c.collection, dim)); err != nil {
			return fmt.Errorf("create vector index: %w", err)
		}
	}
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = $1`, c.collection).Scan(&stored); err != nil {
		return fmt.Errorf("read collection dim: %w", err)
	}
	if stored != dim {
		return fmt.Errorf("%w: collection %s has %d dimensions, units have %d", internalerr.ErrDimensionMismatch, c.collection, stored, dim)
	}

	const q = `
		INSERT INTO retrievable_units (collection, id, document_id, text, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id) DO UPDATE
		SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()
		WHERE retrievable_units.document_id = EXCLUDED.document_id
	`
	stmt, err := tx.PrepareContext(ctx, q)
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
		res, err := stmt.ExecContext(ctx, c.collection, u.ID, u.DocumentID, u.Text, pgvector.NewVector(u.Embedding), string(md))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", internalerr.ErrDuplicateID, u.ID)
		}
	}
	return tx.Commit()
}

// Query ranks units by cosine distance. Equal distances keep insertion
// order.
func (c *DatabaseClient) Query(ctx context.Context, embedding []float32, k int, where filter.Expr) ([]models.ScoredUnit, error) {
	if k <= 0 {
		return nil, nil
	}
	clause, args, err := where.ToSQL(filter.Postgres{}, "metadata", 4)
	if err != nil {
		return nil, err
	}

	var dim int
	err = c.db.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = $1`, c.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection dim: %w", err)
	}
	if dim != len(embedding) {
		return nil, fmt.Errorf("%w: collection %s has %d dimensions, query has %d", internalerr.ErrDimensionMismatch, c.collection, dim, len(embedding))
	}

	rows, err := c.db.QueryContext(ctx, queryUnitsSQL(clause, dim),
		append([]any{c.collection, pgvector.NewVector(embedding), k}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredUnit
	for rows.Next() {
		var (
			su models.ScoredUnit
			md []byte
		)
		if err := rows.Scan(&su.Unit.ID, &su.Unit.DocumentID, &su.Unit.Text, &md, &su.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(md, &su.Unit.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", su.Unit.ID, err)
		}
		out = append(out, su)
	}
	return out, rows.Err()
}

// queryUnitsSQL orders by the same typed expression the collection's HNSW
// index is built on.
func queryUnitsSQL(where string, dim int) string {
	distance := fmt.Sprintf("%s <=> $2", typedEmbedding(dim))
	return `
		SELECT id, document_id, text, metadata, 1 - (` + distance + `) AS score
		FROM retrievable_units
		WHERE collection = $1 AND ` + where + `
		ORDER BY ` + distance + `, seq
		LIMIT $3
	`
}

// The embedding column is untyped so collections of any dimension share the
// table. Each collection gets a partial HNSW index over its rows cast to the
// dimension fixed by its first write.

func typedEmbedding(dim int) string {
	return fmt.Sprintf("(embedding::vector(%d))", dim)
}

func hnswIndexName(collection string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(collection))
	return fmt.Sprintf("retrievable_units_hnsw_%08x", h.Sum32())
}

func createHNSWIndexSQL(collection string, dim int) string {
	return fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON retrievable_units USING hnsw (%s vector_cosine_ops) WHERE collection = %s`,
		hnswIndexName(collection), typedEmbedding(dim), quoteLiteral(collection))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *DatabaseClient) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM retrievable_units WHERE collection = $1`, c.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = $1`, c.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS `+hnswIndexName(c.collection)); err != nil {
		return fmt.Errorf("drop vector index: %w", err)
	}
	return tx.Commit()
}

func (c *DatabaseClient) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM retrievable_units WHERE collection = $1`, c.collection).Scan(&n)
	return n, err
}

// Documents

func (c *DatabaseClient) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, quarter, company, document_type, storage_url, source_type, content_hash,
			 status, unit_count, failure_count, last_error, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			file_name = EXCLUDED.file_name, quarter = EXCLUDED.quarter, company = EXCLUDED.company,
			document_type = EXCLUDED.document_type, storage_url = EXCLUDED.storage_url,
			source_type = EXCLUDED.source_type, content_hash = EXCLUDED.content_hash,
			status = EXCLUDED.status, unit_count = EXCLUDED.unit_count,
			failure_count = EXCLUDED.failure_count, last_error = EXCLUDED.last_error, updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.Quarter, doc.Company, doc.DocumentType, doc.StorageURL, doc.SourceType,
		doc.ContentHash, doc.Status, doc.UnitCount, doc.FailureCount, doc.LastError)
	return err
}

const documentColumns = `id, file_name, quarter, company, document_type, storage_url, source_type, content_hash,
	status, unit_count, failure_count, last_error, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.FileName, &d.Quarter, &d.Company, &d.DocumentType, &d.StorageURL, &d.SourceType,
		&d.ContentHash, &d.Status, &d.UnitCount, &d.FailureCount, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(c.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns documents newest first. An empty quarter lists all.
func (c *DatabaseClient) ListDocuments(ctx context.Context, quarter string) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE $1 = '' OR quarter = $1
		ORDER BY created_at DESC, id
	`, quarter)
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

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id, status string, unitCount, failureCount int, lastError string) error {
	const q = `
		UPDATE documents
		SET status = $2, unit_count = $3, failure_count = $4, last_error = $5, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, unitCount, failureCount, lastError)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) ClearDocuments(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents`)
	return err
}
