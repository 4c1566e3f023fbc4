package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

var documentFields = []string{"id", "user_id", "title", "content", "file_key", "summary", "state", "complexity", "fail_reason", "ctime", "mtime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"user_id":     doc.UserID,
		"title":       doc.Title,
		"content":     doc.Content,
		"file_key":    doc.FileKey,
		"summary":     doc.Summary,
		"state":       doc.State,
		"complexity":  doc.Complexity,
		"fail_reason": doc.FailReason,
		"ctime":       doc.Ctime,
		"mtime":       doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) GetDocument(ctx context.Context, userID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":      docID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

func (r *DocumentRepo) GetDocuments(ctx context.Context, userID string, ids []string) ([]*model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"user_id": userID,
		"id in":   ids,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryDocuments(ctx, sqlStr, args)
}

func (r *DocumentRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryDocuments(ctx, sqlStr, args)
}

func (r *DocumentRepo) ListByState(ctx context.Context, state int, limit int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"state":    state,
		"_orderby": "mtime asc",
		"_limit":   []uint{0, uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryDocuments(ctx, sqlStr, args)
}

// ListUserIDs returns every user that owns at least one document, for batch
// jobs that fan out per user.
func (r *DocumentRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM documents")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) UpdateState(ctx context.Context, userID, docID string, state int, failReason string) error {
	return r.update(ctx, userID, docID, map[string]interface{}{
		"state":       state,
		"fail_reason": failReason,
	})
}

func (r *DocumentRepo) SetComplexity(ctx context.Context, userID, docID string, complexity int) error {
	return r.update(ctx, userID, docID, map[string]interface{}{
		"complexity": complexity,
	})
}

func (r *DocumentRepo) SetSummary(ctx context.Context, userID, docID, summary string) error {
	return r.update(ctx, userID, docID, map[string]interface{}{
		"summary": summary,
	})
}

func (r *DocumentRepo) Touch(ctx context.Context, userID, docID string, mtime int64) error {
	return r.update(ctx, userID, docID, map[string]interface{}{
		"mtime": mtime,
	})
}

func (r *DocumentRepo) update(ctx context.Context, userID, docID string, update map[string]interface{}) error {
	where := map[string]interface{}{
		"id":      docID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
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

func (r *DocumentRepo) Delete(ctx context.Context, userID, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{
		"id":      docID,
		"user_id": userID,
	})
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

func (r *DocumentRepo) queryDocuments(ctx context.Context, sqlStr string, args []interface{}) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.FileKey,
		&doc.Summary, &doc.State, &doc.Complexity, &doc.FailReason, &doc.Ctime, &doc.Mtime)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
