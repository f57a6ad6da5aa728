package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id         text PRIMARY KEY,
	content    text NOT NULL,
	updated_at timestamptz NOT NULL
)`

// PostgresStore persists documents in a PostgreSQL table, one row per
// document, upserted on save.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema exists.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()

		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Load retrieves a document's content.
func (s *PostgresStore) Load(ctx context.Context, docID string) (Document, error) {
	var doc Document

	row := s.pool.QueryRow(ctx,
		`SELECT id, content, updated_at FROM documents WHERE id = $1`, docID)

	if err := row.Scan(&doc.ID, &doc.Content, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}

		return Document{}, err
	}

	return doc, nil
}

// Save writes the document's content, replacing any previous record.
func (s *PostgresStore) Save(ctx context.Context, docID, content string, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, content, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET content = $2, updated_at = $3`,
		docID, content, updatedAt)

	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()

	return nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
