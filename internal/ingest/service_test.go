package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/event"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

type memStore struct {
	mu         sync.Mutex
	docs       map[string]*model.Document
	chunks     map[string][]*model.Chunk
	complexity map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		docs:       map[string]*model.Document{},
		chunks:     map[string][]*model.Chunk{},
		complexity: map[string]int{},
	}
}

func (m *memStore) GetDocument(ctx context.Context, userID, docID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) UpdateState(ctx context.Context, userID, docID string, state int, failReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok {
		return appErr.ErrNotFound
	}
	d.State = state
	d.FailReason = failReason
	return nil
}

func (m *memStore) SetComplexity(ctx context.Context, userID, docID string, complexity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complexity[docID] = complexity
	return nil
}

func (m *memStore) ListByState(ctx context.Context, state int, limit int) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, d := range m.docs {
		if d.State == state {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceChunks(ctx context.Context, userID, docID string, chunks []*model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[docID] = chunks
	return nil
}

func (m *memStore) state(docID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[docID].State
}

type batchEmbedder struct {
	mu      sync.Mutex
	failAt  string // text substring that triggers a per-item failure
	batches int
}

func (b *batchEmbedder) EmbedOne(ctx context.Context, text string, taskType string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (b *batchEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) []ai.EmbedResult {
	b.mu.Lock()
	b.batches++
	b.mu.Unlock()
	out := make([]ai.EmbedResult, len(texts))
	for i, t := range texts {
		if b.failAt != "" && strings.Contains(t, b.failAt) {
			out[i] = ai.EmbedResult{Err: appErr.ErrBackendBusy}
			continue
		}
		out[i] = ai.EmbedResult{Vector: []float32{float32(len(t)), 1}}
	}
	return out
}

func (b *batchEmbedder) ModelName() string { return "embed-1" }

func seedDoc(m *memStore, docID, content string) {
	m.docs[docID] = &model.Document{
		ID: docID, UserID: "u1", Title: docID, Content: content,
		State: model.DocumentStatePending, Ctime: 100,
	}
}

func TestProcessIndexesDocument(t *testing.T) {
	store := newMemStore()
	seedDoc(store, "d1", "First sentence here. Second sentence follows. Third one closes.")
	idx := index.NewMemoryIndex()
	bus := event.NewBus()
	events := bus.Subscribe(8)
	svc := NewService(Config{ChunkTokens: 8, OverlapTokens: 2}, store, store, &batchEmbedder{}, idx, bus)

	require.NoError(t, svc.Process(context.Background(), "u1", "d1"))
	require.Equal(t, model.DocumentStateIndexed, store.state("d1"))
	require.NotEmpty(t, store.chunks["d1"])
	require.Positive(t, store.complexity["d1"])

	st := idx.Stats("u1")
	require.Equal(t, 1, st.Documents)
	require.Equal(t, len(store.chunks["d1"]), st.Entries)
	require.Equal(t, "embed-1", st.Model)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	require.Equal(t, []string{event.TypeDocumentChunked, event.TypeDocumentIndexed}, types)
}

func TestProcessEmbedFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	seedDoc(store, "d1", "Alpha beta gamma. Poison text here. More words follow.")
	idx := index.NewMemoryIndex()
	bus := event.NewBus()
	events := bus.Subscribe(8)
	emb := &batchEmbedder{failAt: "Poison"}
	svc := NewService(Config{ChunkTokens: 4, OverlapTokens: 1}, store, store, emb, idx, bus)

	err := svc.Process(context.Background(), "u1", "d1")
	require.ErrorIs(t, err, appErr.ErrIngestion)
	require.Equal(t, model.DocumentStateFailed, store.state("d1"))
	require.NotEmpty(t, store.docs["d1"].FailReason)
	require.Zero(t, idx.Stats("u1").Entries, "failed document never partially indexed")

	var sawFailed bool
	for len(events) > 0 {
		if (<-events).Type == event.TypeDocumentFailed {
			sawFailed = true
		}
	}
	require.True(t, sawFailed)
}

func TestProcessEmptyDocumentFails(t *testing.T) {
	store := newMemStore()
	seedDoc(store, "d1", "   \n  ")
	svc := NewService(Config{}, store, store, &batchEmbedder{}, index.NewMemoryIndex(), nil)

	err := svc.Process(context.Background(), "u1", "d1")
	require.ErrorIs(t, err, appErr.ErrIngestion)
	require.Equal(t, model.DocumentStateFailed, store.state("d1"))
}

func TestProcessSkipsAlreadyIndexed(t *testing.T) {
	store := newMemStore()
	seedDoc(store, "d1", "Some content here.")
	store.docs["d1"].State = model.DocumentStateIndexed
	emb := &batchEmbedder{}
	svc := NewService(Config{}, store, store, emb, index.NewMemoryIndex(), nil)

	require.NoError(t, svc.Process(context.Background(), "u1", "d1"))
	require.Zero(t, emb.batches)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	store := newMemStore()
	svc := NewService(Config{QueueSize: 1}, store, store, &batchEmbedder{}, index.NewMemoryIndex(), nil)
	// workers not started, the queue just fills
	require.NoError(t, svc.Enqueue(context.Background(), "u1", "d1"))
	err := svc.Enqueue(context.Background(), "u1", "d2")
	require.ErrorIs(t, err, appErr.ErrTooMany)
}

func TestWorkersDrainQueue(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 5; i++ {
		seedDoc(store, fmt.Sprintf("d%d", i), "One sentence. Another sentence. A third sentence.")
	}
	idx := index.NewMemoryIndex()
	svc := NewService(Config{Workers: 3, ChunkTokens: 8, OverlapTokens: 2}, store, store, &batchEmbedder{}, idx, nil)
	svc.Start(context.Background())
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Enqueue(context.Background(), "u1", fmt.Sprintf("d%d", i)))
	}
	require.Eventually(t, func() bool {
		return idx.Stats("u1").Documents == 5
	}, 5*time.Second, 10*time.Millisecond)
	svc.Stop()
	for i := 0; i < 5; i++ {
		require.Equal(t, model.DocumentStateIndexed, store.state(fmt.Sprintf("d%d", i)))
	}
}

func TestCancellationLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	seedDoc(store, "d1", "Some content that would normally index fine.")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(Config{}, store, store, &blockingEmbedder{}, index.NewMemoryIndex(), nil)

	err := svc.Process(ctx, "u1", "d1")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, model.DocumentStatePending, store.state("d1"),
		"cancelled run does not mark the document failed")
}

type blockingEmbedder struct{}

func (b *blockingEmbedder) EmbedOne(ctx context.Context, text string, taskType string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) []ai.EmbedResult {
	out := make([]ai.EmbedResult, len(texts))
	for i := range out {
		out[i] = ai.EmbedResult{Err: ctx.Err()}
	}
	return out
}

func (b *blockingEmbedder) ModelName() string { return "embed-1" }
