package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
)

var chunkFields = []string{"id", "document_id", "user_id", "position", "start_off", "end_off", "content", "token_count"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks swaps a document's chunk set in one transaction so readers
// never see a mix of old and new generations.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, userID, docID string, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlDelete, deleteArgs := dbutil.Finalize("DELETE FROM chunks WHERE user_id=? AND document_id=?", []interface{}{userID, docID})
	if _, err := tx.ExecContext(ctx, sqlDelete, deleteArgs...); err != nil {
		return err
	}
	for _, c := range chunks {
		sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{{
			"id":          c.ID,
			"document_id": docID,
			"user_id":     userID,
			"position":    c.Position,
			"start_off":   c.Start,
			"end_off":     c.End,
			"content":     c.Text,
			"token_count": c.TokenCount,
		}})
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) GetChunks(ctx context.Context, userID string, ids []string) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"user_id": userID,
		"id in":   ids,
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryChunks(ctx, sqlStr, args)
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, userID, docID string) ([]*model.Chunk, error) {
	where := map[string]interface{}{
		"user_id":     userID,
		"document_id": docID,
		"_orderby":    "position asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryChunks(ctx, sqlStr, args)
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, userID, docID string) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{
		"user_id":     userID,
		"document_id": docID,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) queryChunks(ctx context.Context, sqlStr string, args []interface{}) ([]*model.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Chunk
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Position, &c.Start, &c.End, &c.Text, &c.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
