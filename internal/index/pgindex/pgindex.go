package pgindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragbase/internal/index"
)

// Storage backs the vector index with postgres + pgvector. Searches go
// through the ivfflat index; raising Probes makes approximate search
// converge on the exact scan ranking at the cost of latency.
type Storage struct {
	db     *sql.DB
	probes int
}

func New(db *sql.DB, probes int) *Storage {
	return &Storage{db: db, probes: probes}
}

var _ index.Index = (*Storage)(nil)

func (s *Storage) Upsert(ctx context.Context, entries []index.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const query = `
		INSERT INTO rag_chunks (chunk_id, document_id, filename, ordinal, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			filename = EXCLUDED.filename,
			ordinal = EXCLUDED.ordinal,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding
	`
	for _, e := range entries {
		vec := index.Normalize(e.Vector)
		if _, err := tx.ExecContext(ctx, query, e.ChunkID, e.DocumentID, e.Filename, e.Position, e.Text, pgvector.NewVector(vec)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rag_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, filters *index.Filters) ([]index.Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if s.probes > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", s.probes)); err != nil {
			return nil, err
		}
	}
	query := `
		SELECT chunk_id, document_id, filename, ordinal, content, 1 - (embedding <=> $1) AS score
		FROM rag_chunks
	`
	args := []interface{}{pgvector.NewVector(index.Normalize(vector))}
	if filters != nil && len(filters.DocumentIDs) > 0 {
		query += ` WHERE document_id = ANY($2)`
		args = append(args, pq.Array(filters.DocumentIDs))
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 ASC, seq ASC LIMIT %d`, topK)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []index.Hit
	for rows.Next() {
		var hit index.Hit
		if err := rows.Scan(&hit.Entry.ChunkID, &hit.Entry.DocumentID, &hit.Entry.Filename, &hit.Entry.Position, &hit.Entry.Text, &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, tx.Commit()
}

func (s *Storage) CountByDocument(ctx context.Context, documentID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_chunks WHERE document_id = $1`, documentID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
