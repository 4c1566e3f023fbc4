package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
)

// request progression, for structured logging only
type stage string

const (
	stageReceived  stage = "received_question"
	stageEmbedded  stage = "embedded"
	stageRetrieved stage = "retrieved"
	stageAssembled stage = "prompt_assembled"
	stageAnswered  stage = "answered"
	stageFailed    stage = "failed"
)

// TurnStore is the append-only conversation history the engine writes every
// outcome to, including failures.
type TurnStore interface {
	AppendTurn(ctx context.Context, userID string, turn *model.ChatTurn) error
	RecentTurns(ctx context.Context, userID, sessionID string, limit int) ([]*model.ChatTurn, error)
}

// ChunkSource resolves retrieved chunk ids back to their text.
type ChunkSource interface {
	GetChunks(ctx context.Context, userID string, ids []string) ([]*model.Chunk, error)
}

// DocumentSource resolves document titles and upload times for citations.
type DocumentSource interface {
	GetDocuments(ctx context.Context, userID string, ids []string) ([]*model.Document, error)
}

type Config struct {
	TopK            int
	MaxPromptTokens int
	HistoryTurns    int
	RetryBackoff    time.Duration
	AllowDegraded   bool
}

type Request struct {
	UserID     string
	SessionID  string
	Question   string
	DocumentID string // optional single-document filter
}

type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"` // distinct source documents, upload order
	Degraded  bool     `json:"degraded"`
}

type Engine struct {
	cfg      Config
	embedder ai.IEmbedder
	gen      ai.IGenerator
	idx      index.Index
	chunks   ChunkSource
	docs     DocumentSource
	turns    TurnStore
}

func NewEngine(cfg Config, embedder ai.IEmbedder, gen ai.IGenerator, idx index.Index,
	chunks ChunkSource, docs DocumentSource, turns TurnStore) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = 6000
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Engine{cfg: cfg, embedder: embedder, gen: gen, idx: idx,
		chunks: chunks, docs: docs, turns: turns}
}

// Answer runs one retrieval-augmented question. On generation failure after
// the retry, and when degraded answers are allowed, the returned Answer
// still carries the retrieved citations alongside the ErrGenerationFailed
// error so the caller can show the evidence it found.
func (e *Engine) Answer(ctx context.Context, req Request) (*Answer, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("user_id", req.UserID),
		zap.String("session_id", req.SessionID),
	)
	logger.Debug("rag request", zap.String("stage", string(stageReceived)))
	if req.Question == "" {
		return nil, fmt.Errorf("%w: empty question", appErr.ErrInvalid)
	}

	st := e.idx.Stats(req.UserID)
	if st.Entries > 0 && st.Model != e.embedder.ModelName() {
		return nil, fmt.Errorf("%w: scope indexed with %s, embedder is %s",
			appErr.ErrModelMismatch, st.Model, e.embedder.ModelName())
	}

	vec, err := e.embedder.EmbedOne(ctx, req.Question, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	logger.Debug("rag request", zap.String("stage", string(stageEmbedded)))

	evidence, err := e.retrieve(ctx, req, vec)
	if err != nil {
		return nil, err
	}
	logger.Debug("rag request",
		zap.String("stage", string(stageRetrieved)), zap.Int("chunks", len(evidence)))

	history, err := e.turns.RecentTurns(ctx, req.UserID, req.SessionID, e.cfg.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	prompt, included := assemblePrompt(req.Question, evidence, history, e.cfg.MaxPromptTokens)
	citations, err := e.citations(ctx, req.UserID, included)
	if err != nil {
		return nil, err
	}
	logger.Debug("rag request", zap.String("stage", string(stageAssembled)))

	text, genErr := e.generate(ctx, prompt)
	if genErr != nil {
		logger.Error("generation failed after retry",
			zap.String("stage", string(stageFailed)), zap.Error(genErr))
		e.persistTurn(ctx, req, "", citations, true)
		if e.cfg.AllowDegraded && len(citations) > 0 {
			return &Answer{Citations: citations, Degraded: true},
				fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, genErr)
		}
		return nil, fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, genErr)
	}
	logger.Debug("rag request", zap.String("stage", string(stageAnswered)))
	e.persistTurn(ctx, req, text, citations, false)
	return &Answer{Text: text, Citations: citations}, nil
}

func (e *Engine) retrieve(ctx context.Context, req Request, vec []float32) ([]Evidence, error) {
	scored, err := e.idx.Query(ctx, req.UserID, vec, e.embedder.ModelName(), index.QueryOptions{
		K:          e.cfg.TopK,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.ChunkID)
	}
	chunks, err := e.chunks.GetChunks(ctx, req.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]*model.Chunk, len(chunks))
	docIDs := make([]string, 0, len(scored))
	seenDoc := make(map[string]struct{})
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for _, s := range scored {
		if _, ok := seenDoc[s.DocumentID]; !ok {
			seenDoc[s.DocumentID] = struct{}{}
			docIDs = append(docIDs, s.DocumentID)
		}
	}
	docs, err := e.docs.GetDocuments(ctx, req.UserID, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	out := make([]Evidence, 0, len(scored))
	for _, s := range scored {
		c := byID[s.ChunkID]
		if c == nil {
			// index ahead of the chunk store, skip rather than cite text
			// we cannot show
			continue
		}
		out = append(out, Evidence{
			ChunkID:       s.ChunkID,
			DocumentID:    s.DocumentID,
			DocumentTitle: titles[s.DocumentID],
			Text:          c.Text,
		})
	}
	return out, nil
}

// citations lists the distinct documents that made it into the prompt,
// ordered by upload time, each exactly once.
func (e *Engine) citations(ctx context.Context, userID string, included []Evidence) ([]string, error) {
	if len(included) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(included))
	for _, ev := range included {
		if _, ok := seen[ev.DocumentID]; ok {
			continue
		}
		seen[ev.DocumentID] = struct{}{}
		ids = append(ids, ev.DocumentID)
	}
	docs, err := e.docs.GetDocuments(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ctime < docs[j].Ctime })
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out, nil
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	text, err := e.gen.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if !retryable(err) {
		return "", err
	}
	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return e.gen.Generate(ctx, prompt)
}

func retryable(err error) bool {
	return appErr.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

func (e *Engine) persistTurn(ctx context.Context, req Request, answer string, citations []string, failed bool) {
	turn := &model.ChatTurn{
		SessionID: req.SessionID,
		Question:  req.Question,
		Answer:    answer,
		Citations: citations,
		Failed:    failed,
		Ctime:     timeutil.NowMilli(),
	}
	if err := e.turns.AppendTurn(ctx, req.UserID, turn); err != nil {
		logutil.GetLogger(ctx).Error("persist chat turn failed",
			zap.String("session_id", req.SessionID), zap.Error(err))
	}
}
