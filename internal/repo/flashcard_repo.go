package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
)

type FlashcardRepo struct {
	db *sql.DB
}

func NewFlashcardRepo(db *sql.DB) *FlashcardRepo {
	return &FlashcardRepo{db: db}
}

// ReplaceByDocument regenerating cards for a paper replaces the old deck.
func (r *FlashcardRepo) ReplaceByDocument(ctx context.Context, userID, docID string, cards []*model.Flashcard) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlDel, delArgs := dbutil.Finalize("DELETE FROM flashcards WHERE user_id=? AND document_id=?", []interface{}{userID, docID})
	if _, err := tx.ExecContext(ctx, sqlDel, delArgs...); err != nil {
		return err
	}
	for _, c := range cards {
		sqlStr, args, err := builder.BuildInsert("flashcards", []map[string]interface{}{{
			"id":          c.ID,
			"document_id": docID,
			"user_id":     userID,
			"question":    c.Question,
			"answer":      c.Answer,
			"difficulty":  c.Difficulty,
			"category":    c.Category,
			"ctime":       c.Ctime,
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

func (r *FlashcardRepo) ListByDocument(ctx context.Context, userID, docID string) ([]*model.Flashcard, error) {
	sqlStr, args, err := builder.BuildSelect("flashcards", map[string]interface{}{
		"user_id":     userID,
		"document_id": docID,
		"_orderby":    "ctime asc, id asc",
	}, []string{"id", "document_id", "user_id", "question", "answer", "difficulty", "category", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Flashcard
	for rows.Next() {
		var c model.Flashcard
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Question, &c.Answer, &c.Difficulty, &c.Category, &c.Ctime); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *FlashcardRepo) DeleteByDocument(ctx context.Context, userID, docID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM flashcards WHERE user_id=? AND document_id=?", []interface{}{userID, docID})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
