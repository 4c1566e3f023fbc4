package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/chunker"
	"github.com/xxxsen/paperpilot/internal/event"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/plan"
)

type DocumentStore interface {
	GetDocument(ctx context.Context, userID, docID string) (*model.Document, error)
	UpdateState(ctx context.Context, userID, docID string, state int, failReason string) error
	SetComplexity(ctx context.Context, userID, docID string, complexity int) error
	ListByState(ctx context.Context, state int, limit int) ([]*model.Document, error)
}

type ChunkStore interface {
	ReplaceChunks(ctx context.Context, userID, docID string, chunks []*model.Chunk) error
}

type Config struct {
	ChunkTokens   int
	OverlapTokens int
	Workers       int
	QueueSize     int
	EmbedBatch    int
}

func (c Config) normalized() Config {
	if c.ChunkTokens <= 0 {
		c.ChunkTokens = 400
	}
	if c.OverlapTokens <= 0 {
		c.OverlapTokens = c.ChunkTokens / 5
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EmbedBatch <= 0 {
		c.EmbedBatch = 16
	}
	return c
}

type task struct {
	userID string
	docID  string
}

// Service runs the chunk, embed, index pipeline as background work per
// document. The document's lifecycle state is the only signal the rest of
// the system reads; a cancelled run leaves documents that did not finish in
// their pre-run state instead of half indexed.
type Service struct {
	cfg      Config
	docs     DocumentStore
	chunks   ChunkStore
	embedder ai.IEmbedder
	idx      index.Index
	pub      event.Publisher
	newID    func() string

	queue  chan task
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewService(cfg Config, docs DocumentStore, chunks ChunkStore,
	embedder ai.IEmbedder, idx index.Index, pub event.Publisher) *Service {
	cfg = cfg.normalized()
	if pub == nil {
		pub = event.NopPublisher{}
	}
	return &Service{
		cfg:      cfg,
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		idx:      idx,
		pub:      pub,
		newID:    uuid.NewString,
		queue:    make(chan task, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	logutil.GetLogger(ctx).Info("ingest workers started", zap.Int("workers", s.cfg.Workers))
}

// Stop cancels in-flight work and waits for the workers to drain.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue schedules a document for ingestion. A full queue is reported as a
// retryable saturation error rather than blocking the upload request.
func (s *Service) Enqueue(ctx context.Context, userID, docID string) error {
	select {
	case s.queue <- task{userID: userID, docID: docID}:
		return nil
	default:
		return fmt.Errorf("%w: ingest queue full", appErr.ErrTooMany)
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			if err := s.Process(ctx, t.userID, t.docID); err != nil {
				if ctx.Err() != nil {
					return
				}
				logutil.GetLogger(ctx).Error("ingest document failed",
					zap.String("doc_id", t.docID), zap.Error(err))
			}
		}
	}
}

// Process runs the full pipeline for one document synchronously. Exported
// for the retry job, which re-drives failed documents on a schedule.
func (s *Service) Process(ctx context.Context, userID, docID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID), zap.String("doc_id", docID))
	doc, err := s.docs.GetDocument(ctx, userID, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.State == model.DocumentStateIndexed {
		return nil
	}
	if err := s.pipeline(ctx, doc); err != nil {
		if ctx.Err() != nil {
			// shutdown, not a document problem; leave the state alone so a
			// later run picks it up
			return ctx.Err()
		}
		reason := err.Error()
		if uerr := s.docs.UpdateState(ctx, userID, docID, model.DocumentStateFailed, reason); uerr != nil {
			logger.Error("mark document failed", zap.Error(uerr))
		}
		s.pub.Publish(ctx, event.Event{
			Type: event.TypeDocumentFailed, UserID: userID, DocumentID: docID, Detail: reason,
		})
		return fmt.Errorf("%w: %v", appErr.ErrIngestion, err)
	}
	return nil
}

func (s *Service) pipeline(ctx context.Context, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spans := chunker.Split(doc.Content, s.cfg.ChunkTokens, s.cfg.OverlapTokens)
	if len(spans) == 0 {
		return fmt.Errorf("document has no extractable text")
	}
	chunks := make([]*model.Chunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, &model.Chunk{
			ID:         s.newID(),
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			Position:   sp.Position,
			Start:      sp.Start,
			End:        sp.End,
			Text:       sp.Text,
			TokenCount: sp.TokenCount,
		})
	}
	if err := s.chunks.ReplaceChunks(ctx, doc.UserID, doc.ID, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := s.docs.UpdateState(ctx, doc.UserID, doc.ID, model.DocumentStateChunked, ""); err != nil {
		return fmt.Errorf("mark chunked: %w", err)
	}
	s.pub.Publish(ctx, event.Event{
		Type: event.TypeDocumentChunked, UserID: doc.UserID, DocumentID: doc.ID,
	})

	// the chunk set changed, so the study effort estimate changes with it
	if err := s.docs.SetComplexity(ctx, doc.UserID, doc.ID, plan.EstimateComplexity(doc.Content)); err != nil {
		return fmt.Errorf("store complexity: %w", err)
	}

	entries, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}
	if err := s.idx.Upsert(ctx, doc.UserID, doc.ID, s.embedder.ModelName(), doc.Ctime, entries); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	if err := s.docs.UpdateState(ctx, doc.UserID, doc.ID, model.DocumentStateIndexed, ""); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	s.pub.Publish(ctx, event.Event{
		Type: event.TypeDocumentIndexed, UserID: doc.UserID, DocumentID: doc.ID,
	})
	return nil
}

func (s *Service) embed(ctx context.Context, chunks []*model.Chunk) ([]index.Entry, error) {
	entries := make([]index.Entry, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.cfg.EmbedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, 0, len(batch))
		for _, c := range batch {
			texts = append(texts, c.Text)
		}
		results := s.embedder.EmbedBatch(ctx, texts, ai.TaskTypeDocument)
		for i, res := range results {
			if res.Err != nil {
				return nil, fmt.Errorf("embed chunk %d: %w", batch[i].Position, res.Err)
			}
			entries = append(entries, index.Entry{ChunkID: batch[i].ID, Vector: res.Vector})
		}
	}
	return entries, nil
}
