package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/rag"
	"github.com/xxxsen/paperpilot/internal/repo"
)

type ChatService struct {
	sessions *repo.ConversationRepo
	docs     *repo.DocumentRepo
	engine   *rag.Engine
}

func NewChatService(sessions *repo.ConversationRepo, docs *repo.DocumentRepo, engine *rag.Engine) *ChatService {
	return &ChatService{sessions: sessions, docs: docs, engine: engine}
}

// StartSession opens a chat scoped to one paper or, with an empty docID,
// the whole library.
func (s *ChatService) StartSession(ctx context.Context, userID, docID, title string) (*model.ChatSession, error) {
	if docID != "" {
		if _, err := s.docs.GetDocument(ctx, userID, docID); err != nil {
			return nil, err
		}
	}
	if title == "" {
		title = "New chat"
	}
	sess := &model.ChatSession{
		ID:         newID(),
		UserID:     userID,
		DocumentID: docID,
		Title:      title,
		Ctime:      timeutil.NowMilli(),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	return s.sessions.ListSessions(ctx, userID)
}

func (s *ChatService) History(ctx context.Context, userID, sessionID string) ([]*model.ChatTurn, error) {
	if _, err := s.sessions.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.ListTurns(ctx, userID, sessionID)
}

// Ask runs one retrieval-augmented turn in the session's scope. A degraded
// answer comes back with citations and no text.
func (s *ChatService) Ask(ctx context.Context, userID, sessionID, question string) (*rag.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", appErr.ErrInvalid)
	}
	sess, err := s.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.engine.Answer(ctx, rag.Request{
		UserID:     userID,
		SessionID:  sess.ID,
		Question:   question,
		DocumentID: sess.DocumentID,
	})
}
