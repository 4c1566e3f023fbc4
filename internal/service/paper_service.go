package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/extract"
	"github.com/xxxsen/paperpilot/internal/filestore"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/ingest"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/repo"
)

const maxPaperChars = 2 << 20

const summaryPrompt = `Summarize the following research paper for a study companion app. Produce two or three plain paragraphs: what the paper is about, its key findings, and why they matter. No markdown headers.

%s`

const flashcardPrompt = `Create %d study flashcards from the following research paper. Reply with a JSON array only, no other text. Each element: {"question": "...", "answer": "...", "difficulty": "easy|medium|hard", "category": "short topic label"}.

%s`

type PaperService struct {
	docs       *repo.DocumentRepo
	chunks     *repo.ChunkRepo
	flashcards *repo.FlashcardRepo
	files      filestore.Store
	idx        index.Index
	ingest     *ingest.Service
	gen        ai.IGenerator
}

func NewPaperService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, flashcards *repo.FlashcardRepo,
	files filestore.Store, idx index.Index, ing *ingest.Service, gen ai.IGenerator) *PaperService {
	return &PaperService{
		docs: docs, chunks: chunks, flashcards: flashcards,
		files: files, idx: idx, ingest: ing, gen: gen,
	}
}

// Upload stores the raw file, extracts plain text, creates the document in
// pending state and queues it for ingestion. Extraction here is flattening
// only; markdown structure is folded into plain paragraphs.
func (s *PaperService) Upload(ctx context.Context, userID, title, filename string, r filestore.ReadSeekCloser, size int64) (*model.Document, error) {
	if size <= 0 || size > maxPaperChars {
		return nil, fmt.Errorf("%w: file size %d out of range", appErr.ErrInvalid, size)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxPaperChars))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	content := string(raw)
	if strings.HasSuffix(strings.ToLower(filename), ".md") ||
		strings.HasSuffix(strings.ToLower(filename), ".markdown") {
		content = extract.FlattenMarkdown(content)
	}
	content = extract.Normalize(content)

	docID := newID()
	fileKey := docID
	if err := s.files.Save(ctx, fileKey, r, size); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}
	doc, err := s.create(ctx, userID, title, content, fileKey)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateFromText is the paste-a-paper path; no raw file is kept.
func (s *PaperService) CreateFromText(ctx context.Context, userID, title, content string) (*model.Document, error) {
	content = extract.Normalize(content)
	return s.create(ctx, userID, title, content, "")
}

func (s *PaperService) create(ctx context.Context, userID, title, content, fileKey string) (*model.Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", appErr.ErrInvalid)
	}
	if title == "" {
		title = firstLine(content)
	}
	now := timeutil.NowMilli()
	doc := &model.Document{
		ID:         newID(),
		UserID:     userID,
		Title:      title,
		Content:    content,
		FileKey:    fileKey,
		State:      model.DocumentStatePending,
		Complexity: 1,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if err := s.ingest.Enqueue(ctx, userID, doc.ID); err != nil {
		// the retry job picks pending documents up later
		logutil.GetLogger(ctx).Warn("enqueue ingest failed, left pending",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

func (s *PaperService) Get(ctx context.Context, userID, docID string) (*model.Document, error) {
	return s.docs.GetDocument(ctx, userID, docID)
}

func (s *PaperService) List(ctx context.Context, userID string, offset, limit int) ([]*model.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.docs.ListByUser(ctx, userID, offset, limit)
}

// Delete removes the document everywhere: vector index (which also clears
// the persisted vectors), chunks, flashcards, the raw file and finally the
// record itself.
func (s *PaperService) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.idx.DeleteDocument(ctx, userID, docID); err != nil {
		return fmt.Errorf("deindex document: %w", err)
	}
	if err := s.chunks.DeleteByDocument(ctx, userID, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.flashcards.DeleteByDocument(ctx, userID, docID); err != nil {
		return fmt.Errorf("delete flashcards: %w", err)
	}
	if doc.FileKey != "" {
		if err := s.files.Delete(ctx, doc.FileKey); err != nil {
			logutil.GetLogger(ctx).Warn("delete raw file failed",
				zap.String("file_key", doc.FileKey), zap.Error(err))
		}
	}
	return s.docs.Delete(ctx, userID, docID)
}

// RetryIngest re-queues a failed document. Only failed documents are
// retryable; anything else is already moving or done.
func (s *PaperService) RetryIngest(ctx context.Context, userID, docID string) error {
	doc, err := s.docs.GetDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if doc.State != model.DocumentStateFailed {
		return fmt.Errorf("%w: document state is %s", appErr.ErrConflict, model.DocumentStateName(doc.State))
	}
	if err := s.docs.UpdateState(ctx, userID, docID, model.DocumentStatePending, ""); err != nil {
		return err
	}
	return s.ingest.Enqueue(ctx, userID, docID)
}

// GenerateSummary produces and stores the study summary for an indexed
// paper.
func (s *PaperService) GenerateSummary(ctx context.Context, userID, docID string) (string, error) {
	doc, err := s.docs.GetDocument(ctx, userID, docID)
	if err != nil {
		return "", err
	}
	summary, err := s.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, clip(doc.Content, 30000)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, err)
	}
	summary = strings.TrimSpace(summary)
	if err := s.docs.SetSummary(ctx, userID, docID, summary); err != nil {
		return "", err
	}
	return summary, nil
}

// GenerateFlashcards builds a fresh deck for the paper, replacing any
// previous one.
func (s *PaperService) GenerateFlashcards(ctx context.Context, userID, docID string, count int) ([]*model.Flashcard, error) {
	if count <= 0 || count > 50 {
		count = 10
	}
	doc, err := s.docs.GetDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	reply, err := s.gen.Generate(ctx, fmt.Sprintf(flashcardPrompt, count, clip(doc.Content, 30000)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, err)
	}
	cards, err := parseFlashcards(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrGenerationFailed, err)
	}
	now := timeutil.NowMilli()
	for _, c := range cards {
		c.ID = newID()
		c.DocumentID = docID
		c.UserID = userID
		c.Ctime = now
	}
	if err := s.flashcards.ReplaceByDocument(ctx, userID, docID, cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *PaperService) ListFlashcards(ctx context.Context, userID, docID string) ([]*model.Flashcard, error) {
	return s.flashcards.ListByDocument(ctx, userID, docID)
}

func parseFlashcards(reply string) ([]*model.Flashcard, error) {
	reply = stripCodeFence(reply)
	var cards []*model.Flashcard
	if err := json.Unmarshal([]byte(reply), &cards); err != nil {
		return nil, fmt.Errorf("parse flashcards: %w", err)
	}
	out := cards[:0]
	for _, c := range cards {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Answer) == "" {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable flashcards in reply")
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			return clip(line, 200)
		}
	}
	return "Untitled paper"
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
