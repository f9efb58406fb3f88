package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// maxHNSWDimension is the largest vector pgvector can index with HNSW.
const maxHNSWDimension = 2000

// EnsureSchema installs the vector extension and creates the store's table
// and indexes when they do not exist yet.
func (vs *PGVectorStore) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	for _, stmt := range schemaStatements(vs.tableName, dimension) {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare table %s: %w", vs.tableName, err)
		}
	}
	return nil
}

func schemaStatements(table string, dimension int) []string {
	ident := pgx.Identifier{table}.Sanitize()
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`, ident, dimension),
		// Learnings are always searched within one job.
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'job_id'))`,
			pgx.Identifier{table + "_job_idx"}.Sanitize(), ident),
	}
	// Larger vectors fall back to exact search.
	if dimension <= maxHNSWDimension {
		stmts = append(stmts, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{table + "_embedding_idx"}.Sanitize(), ident))
	}
	return stmts
}
