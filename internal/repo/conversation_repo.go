package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

// ConversationRepo is the append-only chat history. Turns are never updated
// or deleted individually; read-back is always ordered by seq.
type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) CreateSession(ctx context.Context, sess *model.ChatSession) error {
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{{
		"id":          sess.ID,
		"user_id":     sess.UserID,
		"document_id": sess.DocumentID,
		"title":       sess.Title,
		"ctime":       sess.Ctime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ConversationRepo) GetSession(ctx context.Context, userID, sessionID string) (*model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect("chat_sessions", map[string]interface{}{
		"id":      sessionID,
		"user_id": userID,
	}, []string{"id", "user_id", "document_id", "title", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var sess model.ChatSession
	err = row.Scan(&sess.ID, &sess.UserID, &sess.DocumentID, &sess.Title, &sess.Ctime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *ConversationRepo) ListSessions(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect("chat_sessions", map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc",
	}, []string{"id", "user_id", "document_id", "title", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ChatSession
	for rows.Next() {
		var sess model.ChatSession
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.DocumentID, &sess.Title, &sess.Ctime); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// AppendTurn assigns the next seq inside a transaction so concurrent
// appends to the same session never collide.
func (r *ConversationRepo) AppendTurn(ctx context.Context, userID string, turn *model.ChatTurn) error {
	citations, err := json.Marshal(turn.Citations)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sqlSeq, seqArgs := dbutil.Finalize(
		"SELECT COALESCE(MAX(seq), 0) FROM chat_turns WHERE session_id=? AND user_id=?",
		[]interface{}{turn.SessionID, userID})
	var maxSeq int
	if err := tx.QueryRowContext(ctx, sqlSeq, seqArgs...).Scan(&maxSeq); err != nil {
		return err
	}
	turn.Seq = maxSeq + 1

	sqlStr, args, err := builder.BuildInsert("chat_turns", []map[string]interface{}{{
		"session_id": turn.SessionID,
		"user_id":    userID,
		"seq":        turn.Seq,
		"question":   turn.Question,
		"answer":     turn.Answer,
		"citations":  string(citations),
		"failed":     turn.Failed,
		"ctime":      turn.Ctime,
	}})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ConversationRepo) ListTurns(ctx context.Context, userID, sessionID string) ([]*model.ChatTurn, error) {
	sqlStr, args, err := builder.BuildSelect("chat_turns", map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
		"_orderby":   "seq asc",
	}, []string{"session_id", "seq", "question", "answer", "citations", "failed", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryTurns(ctx, sqlStr, args)
}

// RecentTurns returns the newest limit turns in chronological order.
func (r *ConversationRepo) RecentTurns(ctx context.Context, userID, sessionID string, limit int) ([]*model.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	sqlStr, args, err := builder.BuildSelect("chat_turns", map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
		"_orderby":   "seq desc",
		"_limit":     []uint{0, uint(limit)},
	}, []string{"session_id", "seq", "question", "answer", "citations", "failed", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	turns, err := r.queryTurns(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *ConversationRepo) queryTurns(ctx context.Context, sqlStr string, args []interface{}) ([]*model.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ChatTurn
	for rows.Next() {
		var turn model.ChatTurn
		var citations string
		if err := rows.Scan(&turn.SessionID, &turn.Seq, &turn.Question, &turn.Answer, &citations, &turn.Failed, &turn.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(citations), &turn.Citations); err != nil {
			return nil, err
		}
		out = append(out, &turn)
	}
	return out, rows.Err()
}
