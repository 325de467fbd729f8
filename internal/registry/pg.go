package registry

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragbase/internal/model"
	"github.com/xxxsen/ragbase/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

type PG struct {
	db *sql.DB
}

func NewPG(db *sql.DB) *PG {
	return &PG{db: db}
}

var _ Registry = (*PG)(nil)

const documentColumns = "id, filename, source_format, status, chunk_count, fail_reason, ctime"

func (r *PG) Register(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":            doc.ID,
		"filename":      doc.Filename,
		"source_format": string(doc.SourceFormat),
		"status":        string(doc.Status),
		"chunk_count":   doc.ChunkCount,
		"fail_reason":   doc.FailReason,
		"ctime":         doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *PG) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, failReason string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      string(status),
		"fail_reason": failReason,
	})
}

func (r *PG) SetChunkCount(ctx context.Context, id string, count int) error {
	return r.update(ctx, id, map[string]interface{}{
		"chunk_count": count,
	})
}

func (r *PG) update(ctx context.Context, id string, fields map[string]interface{}) error {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildUpdate("documents", where, fields)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *PG) Get(ctx context.Context, id string) (*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PG) List(ctx context.Context) ([]*model.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents ORDER BY ctime ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PG) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*model.Document, error) {
	var doc model.Document
	var format, status string
	if err := row.Scan(&doc.ID, &doc.Filename, &format, &status, &doc.ChunkCount, &doc.FailReason, &doc.Ctime); err != nil {
		return nil, err
	}
	doc.SourceFormat = model.SourceFormat(format)
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}
