package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
)

type InsightRepo struct {
	db *sql.DB
}

func NewInsightRepo(db *sql.DB) *InsightRepo {
	return &InsightRepo{db: db}
}

// ReplaceInsights swaps the user's whole insight set in one transaction, so
// a reader sees either the previous run or the new one, never a mix.
func (r *InsightRepo) ReplaceInsights(ctx context.Context, userID string, insights []*model.Insight) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlDel, delArgs := dbutil.Finalize("DELETE FROM insights WHERE user_id=?", []interface{}{userID})
	if _, err := tx.ExecContext(ctx, sqlDel, delArgs...); err != nil {
		return err
	}
	for _, in := range insights {
		docIDs, err := json.Marshal(in.DocumentIDs)
		if err != nil {
			return err
		}
		chunkIDs, err := json.Marshal(in.ChunkIDs)
		if err != nil {
			return err
		}
		sqlStr, args, err := builder.BuildInsert("insights", []map[string]interface{}{{
			"id":           in.ID,
			"user_id":      userID,
			"kind":         in.Kind,
			"title":        in.Title,
			"detail":       in.Detail,
			"score":        in.Score,
			"document_ids": string(docIDs),
			"chunk_ids":    string(chunkIDs),
			"ctime":        in.Ctime,
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

func (r *InsightRepo) ListByUser(ctx context.Context, userID string) ([]*model.Insight, error) {
	sqlStr, args, err := builder.BuildSelect("insights", map[string]interface{}{
		"user_id":  userID,
		"_orderby": "score desc, ctime desc",
	}, []string{"id", "user_id", "kind", "title", "detail", "score", "document_ids", "chunk_ids", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanInsight(rows *sql.Rows) (*model.Insight, error) {
	var in model.Insight
	var docIDs, chunkIDs string
	if err := rows.Scan(&in.ID, &in.UserID, &in.Kind, &in.Title, &in.Detail,
		&in.Score, &docIDs, &chunkIDs, &in.Ctime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(docIDs), &in.DocumentIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(chunkIDs), &in.ChunkIDs); err != nil {
		return nil, err
	}
	return &in, nil
}
