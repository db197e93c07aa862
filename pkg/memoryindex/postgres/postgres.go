// Package postgres provides a PostgreSQL-backed implementation of
// [memoryindex.Index] using the pgvector extension.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	idx, err := postgres.New(ctx, dsn, 768)
//	if err != nil { … }
//	defer idx.Close()
//
//	_ = idx.Upsert(ctx, memoryindex.Entry{ID: "m1", Text: "…", Vector: vec})
//	matches, _ := idx.Search(ctx, queryVec, 5)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/karen-ai/nlpcore/pkg/memoryindex"
)

// Compile-time interface check.
var _ memoryindex.Index = (*Index)(nil)

// Index is the pgvector-backed memory index. All methods are safe for
// concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// New creates an Index, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] so the embeddings table exists.
//
// dimensions must match the output dimension of the embedding service
// (default 768). The vector column width is baked into the schema at first
// migration; changing it later requires a manual schema change.
func New(ctx context.Context, dsn string, dimensions int) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory index: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory index: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory index: ping: %w", err)
	}

	if err := Migrate(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory index: migrate: %w", err)
	}

	return &Index{pool: pool}, nil
}

// ddlEmbeddings returns the DDL with the embedding dimension substituted.
func ddlEmbeddings(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS embeddings (
    id          TEXT         PRIMARY KEY,
    text        TEXT         NOT NULL,
    embedding   vector(%d),
    model       TEXT         NOT NULL DEFAULT '',
    indexed_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model
    ON embeddings (model);

CREATE INDEX IF NOT EXISTS idx_embeddings_embedding
    ON embeddings USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates or ensures the embeddings table and the pgvector extension
// exist. It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if _, err := pool.Exec(ctx, ddlEmbeddings(dimensions)); err != nil {
		return fmt.Errorf("memory index migrate: %w", err)
	}
	return nil
}

// Upsert implements [memoryindex.Index]. An existing entry with the same ID
// is completely replaced.
func (x *Index) Upsert(ctx context.Context, entry memoryindex.Entry) error {
	const q = `
		INSERT INTO embeddings (id, text, embedding, model, indexed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    text       = EXCLUDED.text,
		    embedding  = EXCLUDED.embedding,
		    model      = EXCLUDED.model,
		    indexed_at = EXCLUDED.indexed_at`

	indexedAt := entry.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}

	_, err := x.pool.Exec(ctx, q,
		entry.ID,
		entry.Text,
		pgvector.NewVector(entry.Vector),
		entry.Model,
		indexedAt,
	)
	if err != nil {
		return fmt.Errorf("memory index: upsert: %w", err)
	}
	return nil
}

// Search implements [memoryindex.Index]. Results are ordered by ascending
// cosine distance (most similar first).
func (x *Index) Search(ctx context.Context, vector []float32, limit int) ([]memoryindex.Match, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
		SELECT id, text, embedding, model, indexed_at,
		       embedding <=> $1 AS distance
		FROM   embeddings
		ORDER  BY distance
		LIMIT  $2`

	rows, err := x.pool.Query(ctx, q, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("memory index: search: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memoryindex.Match, error) {
		var (
			m   memoryindex.Match
			vec pgvector.Vector
		)
		if err := row.Scan(
			&m.Entry.ID,
			&m.Entry.Text,
			&vec,
			&m.Entry.Model,
			&m.Entry.IndexedAt,
			&m.Distance,
		); err != nil {
			return memoryindex.Match{}, err
		}
		m.Entry.Vector = vec.Slice()
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory index: scan rows: %w", err)
	}
	if matches == nil {
		matches = []memoryindex.Match{}
	}
	return matches, nil
}

// Delete implements [memoryindex.Index]. Deleting a missing ID succeeds.
func (x *Index) Delete(ctx context.Context, id string) error {
	if _, err := x.pool.Exec(ctx, `DELETE FROM embeddings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("memory index: delete: %w", err)
	}
	return nil
}

// Ping implements [memoryindex.Index].
func (x *Index) Ping(ctx context.Context) error {
	return x.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (x *Index) Close() {
	x.pool.Close()
}
