package insight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/model"
)

type fakeWorld struct {
	vectors []ChunkVector
	chunks  map[string]*model.Chunk
	docs    map[string]*model.Document
	goals   []model.StudyGoal

	replaced [][]*model.Insight
}

func newWorld() *fakeWorld {
	return &fakeWorld{chunks: map[string]*model.Chunk{}, docs: map[string]*model.Document{}}
}

func (w *fakeWorld) ChunkVectors(ctx context.Context, userID string) ([]ChunkVector, error) {
	out := make([]ChunkVector, len(w.vectors))
	copy(out, w.vectors)
	return out, nil
}

func (w *fakeWorld) GetChunks(ctx context.Context, userID string, ids []string) ([]*model.Chunk, error) {
	var out []*model.Chunk
	for _, id := range ids {
		if c, ok := w.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *fakeWorld) GetDocuments(ctx context.Context, userID string, ids []string) ([]*model.Document, error) {
	var out []*model.Document
	for _, id := range ids {
		if d, ok := w.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (w *fakeWorld) ActiveGoals(ctx context.Context, userID string) ([]model.StudyGoal, error) {
	return w.goals, nil
}

func (w *fakeWorld) ReplaceInsights(ctx context.Context, userID string, insights []*model.Insight) error {
	w.replaced = append(w.replaced, insights)
	return nil
}

type scriptedStance struct {
	opposing bool
	calls    int
}

func (s *scriptedStance) Opposing(ctx context.Context, a, b string) (bool, error) {
	s.calls++
	return s.opposing, nil
}

type probeEmbedder struct {
	vec []float32
}

func (p *probeEmbedder) EmbedOne(ctx context.Context, text string, taskType string) ([]float32, error) {
	return p.vec, nil
}

func (p *probeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) []ai.EmbedResult {
	return nil
}

func (p *probeEmbedder) ModelName() string { return "embed-1" }

func (w *fakeWorld) addChunk(chunkID, docID string, vec []float32) {
	w.vectors = append(w.vectors, ChunkVector{ChunkID: chunkID, DocumentID: docID, Vector: vec})
	w.chunks[chunkID] = &model.Chunk{ID: chunkID, DocumentID: docID, Text: "text of " + chunkID}
	if _, ok := w.docs[docID]; !ok {
		w.docs[docID] = &model.Document{ID: docID, Title: "Paper " + docID}
	}
}

func newTestEngine(w *fakeWorld, stance StanceClassifier, idx index.Index) *Engine {
	return NewEngine(Config{TrendMinDocs: 3, PairThreshold: 0.9, GapThreshold: 0.55, MaxPairsPerRun: 50},
		w, w, w, w, w, stance, &probeEmbedder{vec: []float32{1, 0}}, idx)
}

func kinds(insights []*model.Insight) map[string]int {
	out := map[string]int{}
	for _, in := range insights {
		out[in.Kind]++
	}
	return out
}

func TestTrendNeedsThreeDocuments(t *testing.T) {
	w := newWorld()
	// near-identical vectors across three documents
	w.addChunk("c1", "d1", []float32{1, 0, 0})
	w.addChunk("c2", "d2", []float32{0.99, 0.01, 0})
	w.addChunk("c3", "d3", []float32{0.98, 0.02, 0})
	// unrelated singleton
	w.addChunk("c4", "d4", []float32{0, 0, 1})
	stance := &scriptedStance{}
	eng := newTestEngine(w, stance, index.NewMemoryIndex())

	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Len(t, w.replaced, 1)
	got := kinds(w.replaced[0])
	require.Equal(t, 1, got[model.InsightKindTrend])

	trend := w.replaced[0][0]
	require.ElementsMatch(t, []string{"d1", "d2", "d3"}, trend.DocumentIDs)
	require.GreaterOrEqual(t, trend.Score, 1)
	require.LessOrEqual(t, trend.Score, 10)
}

func TestTwoDocumentsIsNotATrend(t *testing.T) {
	w := newWorld()
	w.addChunk("c1", "d1", []float32{1, 0})
	w.addChunk("c2", "d2", []float32{0.99, 0.01})
	eng := newTestEngine(w, &scriptedStance{}, index.NewMemoryIndex())

	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Zero(t, kinds(w.replaced[0])[model.InsightKindTrend])
}

func TestContradictionRequiresOpposingStance(t *testing.T) {
	w := newWorld()
	w.addChunk("c1", "d1", []float32{1, 0})
	w.addChunk("c2", "d2", []float32{0.99, 0.01})

	agree := &scriptedStance{opposing: false}
	eng := newTestEngine(w, agree, index.NewMemoryIndex())
	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Zero(t, kinds(w.replaced[0])[model.InsightKindContradiction])
	require.Positive(t, agree.calls, "similar cross-document pair was judged")

	oppose := &scriptedStance{opposing: true}
	w2 := newWorld()
	w2.addChunk("c1", "d1", []float32{1, 0})
	w2.addChunk("c2", "d2", []float32{0.99, 0.01})
	eng2 := newTestEngine(w2, oppose, index.NewMemoryIndex())
	require.NoError(t, eng2.Run(context.Background(), "u1"))
	contras := 0
	for _, in := range w2.replaced[0] {
		if in.Kind == model.InsightKindContradiction {
			contras++
			require.ElementsMatch(t, []string{"d1", "d2"}, in.DocumentIDs)
			require.Len(t, in.ChunkIDs, 2)
		}
	}
	require.Equal(t, 1, contras)
}

func TestSameDocumentPairsNeverJudged(t *testing.T) {
	w := newWorld()
	w.addChunk("c1", "d1", []float32{1, 0})
	w.addChunk("c2", "d1", []float32{0.99, 0.01})
	stance := &scriptedStance{opposing: true}
	eng := newTestEngine(w, stance, index.NewMemoryIndex())

	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Zero(t, stance.calls)
}

func TestGapWhenGoalUncovered(t *testing.T) {
	w := newWorld()
	w.goals = []model.StudyGoal{{Objective: "quantum error correction"}}
	idx := index.NewMemoryIndex()
	// library exists but points elsewhere entirely
	require.NoError(t, idx.Upsert(context.Background(), "u1", "d1", "embed-1", 1,
		[]index.Entry{{ChunkID: "c9", Vector: []float32{0, 1}}}))
	eng := newTestEngine(w, &scriptedStance{}, idx)

	require.NoError(t, eng.Run(context.Background(), "u1"))
	got := kinds(w.replaced[0])
	require.Equal(t, 1, got[model.InsightKindGap])
}

func TestNoGapWhenGoalCovered(t *testing.T) {
	w := newWorld()
	w.goals = []model.StudyGoal{{Objective: "covered topic"}}
	idx := index.NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), "u1", "d1", "embed-1", 1,
		[]index.Entry{{ChunkID: "c9", Vector: []float32{1, 0}}}))
	eng := newTestEngine(w, &scriptedStance{}, idx)

	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Zero(t, kinds(w.replaced[0])[model.InsightKindGap])
}

func TestRunReplacesAndIsIdempotent(t *testing.T) {
	w := newWorld()
	w.addChunk("c1", "d1", []float32{1, 0, 0})
	w.addChunk("c2", "d2", []float32{0.99, 0.01, 0})
	w.addChunk("c3", "d3", []float32{0.98, 0.02, 0})
	eng := newTestEngine(w, &scriptedStance{}, index.NewMemoryIndex())

	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.NoError(t, eng.Run(context.Background(), "u1"))
	require.Len(t, w.replaced, 2, "every run replaces the whole set")

	first, second := w.replaced[0], w.replaced[1]
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].Kind, second[i].Kind)
		require.Equal(t, first[i].Title, second[i].Title)
		require.Equal(t, first[i].DocumentIDs, second[i].DocumentIDs)
		require.Equal(t, first[i].ChunkIDs, second[i].ChunkIDs)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	w := newWorld()
	w.addChunk("c1", "d1", []float32{1, 0})
	w.addChunk("c2", "d2", []float32{0.99, 0.01})
	eng := newTestEngine(w, &scriptedStance{}, index.NewMemoryIndex())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := eng.Run(ctx, "u1")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, w.replaced, "cancelled run never replaces the set")
}
