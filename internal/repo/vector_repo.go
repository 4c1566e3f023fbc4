package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/insight"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
)

// VectorRepo persists index entries in pgvector. The in-memory index is the
// serving structure; this is its durability layer and the vector source for
// batch jobs.
type VectorRepo struct {
	db *sql.DB
}

func NewVectorRepo(db *sql.DB) *VectorRepo {
	return &VectorRepo{db: db}
}

var _ index.Persister = (*VectorRepo)(nil)
var _ insight.VectorSource = (*VectorRepo)(nil)

func (r *VectorRepo) ReplaceDocument(ctx context.Context, scope, docID, model string, docTime int64, entries []index.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlDelete, deleteArgs := dbutil.Finalize("DELETE FROM chunk_vectors WHERE user_id=? AND document_id=?", []interface{}{scope, docID})
	if _, err := tx.ExecContext(ctx, sqlDelete, deleteArgs...); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunk_vectors (chunk_id, document_id, user_id, model, doc_time, embedding) VALUES ($1, $2, $3, $4, $5, $6)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ChunkID, docID, scope, model, docTime, pgvector.NewVector(e.Vector)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *VectorRepo) DeleteDocument(ctx context.Context, scope, docID string) error {
	sqlStr, args, err := builder.BuildDelete("chunk_vectors", map[string]interface{}{
		"user_id":     scope,
		"document_id": docID,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *VectorRepo) DeleteScope(ctx context.Context, scope string) error {
	sqlStr, args, err := builder.BuildDelete("chunk_vectors", map[string]interface{}{
		"user_id": scope,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Load streams every persisted entry, grouped by nothing in particular; the
// index reassembles documents itself.
func (r *VectorRepo) Load(ctx context.Context, fn func(scope, docID, model string, docTime int64, entry index.Entry) error) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT chunk_id, document_id, user_id, model, doc_time, embedding FROM chunk_vectors")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var chunkID, docID, scope, model string
		var docTime int64
		var vec pgvector.Vector
		if err := rows.Scan(&chunkID, &docID, &scope, &model, &docTime, &vec); err != nil {
			return err
		}
		entry := index.Entry{ChunkID: chunkID, DocumentID: docID, Vector: vec.Slice()}
		if err := fn(scope, docID, model, docTime, entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ChunkVectors hands a user's full vector set to the insight engine.
func (r *VectorRepo) ChunkVectors(ctx context.Context, userID string) ([]insight.ChunkVector, error) {
	sqlStr, args := dbutil.Finalize(
		"SELECT chunk_id, document_id, embedding FROM chunk_vectors WHERE user_id=?", []interface{}{userID})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []insight.ChunkVector
	for rows.Next() {
		var cv insight.ChunkVector
		var vec pgvector.Vector
		if err := rows.Scan(&cv.ChunkID, &cv.DocumentID, &vec); err != nil {
			return nil, err
		}
		cv.Vector = vec.Slice()
		out = append(out, cv)
	}
	return out, rows.Err()
}
