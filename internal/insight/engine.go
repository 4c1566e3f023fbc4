package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
)

// ChunkVector pairs a chunk with its stored embedding.
type ChunkVector struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// VectorSource hands the engine a user's full chunk vector set.
type VectorSource interface {
	ChunkVectors(ctx context.Context, userID string) ([]ChunkVector, error)
}

type ChunkSource interface {
	GetChunks(ctx context.Context, userID string, ids []string) ([]*model.Chunk, error)
}

type DocumentSource interface {
	GetDocuments(ctx context.Context, userID string, ids []string) ([]*model.Document, error)
}

type GoalSource interface {
	ActiveGoals(ctx context.Context, userID string) ([]model.StudyGoal, error)
}

// Sink replaces the user's whole insight set in one transaction.
type Sink interface {
	ReplaceInsights(ctx context.Context, userID string, insights []*model.Insight) error
}

// StanceClassifier decides whether two statements take opposing positions.
// Vector similarity alone cannot tell agreement from contradiction, so this
// is a separate judgment, model backed in production.
type StanceClassifier interface {
	Opposing(ctx context.Context, a, b string) (bool, error)
}

type Config struct {
	TrendMinDocs   int
	PairThreshold  float32
	GapThreshold   float32
	MaxPairsPerRun int
}

func (c Config) normalized() Config {
	if c.TrendMinDocs <= 0 {
		c.TrendMinDocs = 3
	}
	if c.PairThreshold <= 0 {
		c.PairThreshold = 0.80
	}
	if c.GapThreshold <= 0 {
		c.GapThreshold = 0.55
	}
	if c.MaxPairsPerRun <= 0 {
		c.MaxPairsPerRun = 50
	}
	return c
}

type Engine struct {
	cfg      Config
	vectors  VectorSource
	chunks   ChunkSource
	docs     DocumentSource
	goals    GoalSource
	sink     Sink
	stance   StanceClassifier
	embedder ai.IEmbedder
	idx      index.Index
}

func NewEngine(cfg Config, vectors VectorSource, chunks ChunkSource, docs DocumentSource,
	goals GoalSource, sink Sink, stance StanceClassifier, embedder ai.IEmbedder, idx index.Index) *Engine {
	return &Engine{
		cfg: cfg.normalized(), vectors: vectors, chunks: chunks, docs: docs,
		goals: goals, sink: sink, stance: stance, embedder: embedder, idx: idx,
	}
}

// Run computes the full insight set for one user and replaces the previous
// set. The run is idempotent for unchanged input and checks for
// cancellation between documents and pairs.
func (e *Engine) Run(ctx context.Context, userID string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", userID))
	vecs, err := e.vectors.ChunkVectors(ctx, userID)
	if err != nil {
		return fmt.Errorf("load chunk vectors: %w", err)
	}
	sort.Slice(vecs, func(i, j int) bool { return vecs[i].ChunkID < vecs[j].ChunkID })

	var insights []*model.Insight
	trends, err := e.trends(ctx, userID, vecs)
	if err != nil {
		return err
	}
	insights = append(insights, trends...)

	contradictions, err := e.contradictions(ctx, userID, vecs)
	if err != nil {
		return err
	}
	insights = append(insights, contradictions...)

	gaps, err := e.gaps(ctx, userID)
	if err != nil {
		return err
	}
	insights = append(insights, gaps...)

	now := timeutil.NowMilli()
	for _, in := range insights {
		in.UserID = userID
		in.Ctime = now
	}
	if err := e.sink.ReplaceInsights(ctx, userID, insights); err != nil {
		return fmt.Errorf("replace insights: %w", err)
	}
	logger.Info("insight run finished",
		zap.Int("trends", len(trends)),
		zap.Int("contradictions", len(contradictions)),
		zap.Int("gaps", len(gaps)))
	return nil
}

type cluster struct {
	centroid []float64
	members  []ChunkVector
	docs     map[string]struct{}
}

// trends clusters chunks greedily by cosine similarity against running
// centroids. Clusters touching at least TrendMinDocs documents become a
// trend insight.
func (e *Engine) trends(ctx context.Context, userID string, vecs []ChunkVector) ([]*model.Insight, error) {
	var clusters []*cluster
	for _, v := range vecs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, bestSim := (*cluster)(nil), float64(0)
		for _, c := range clusters {
			sim := cosine64(c.centroid, v.Vector)
			if sim >= float64(e.cfg.PairThreshold) && sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if best == nil {
			best = &cluster{docs: map[string]struct{}{}}
			clusters = append(clusters, best)
		}
		best.members = append(best.members, v)
		best.docs[v.DocumentID] = struct{}{}
		best.centroid = recenter(best.centroid, v.Vector, len(best.members))
	}

	var out []*model.Insight
	for _, c := range clusters {
		if len(c.docs) < e.cfg.TrendMinDocs {
			continue
		}
		docIDs := sortedKeys(c.docs)
		titles, err := e.docTitles(ctx, userID, docIDs)
		if err != nil {
			return nil, err
		}
		chunkIDs := make([]string, 0, len(c.members))
		for _, m := range c.members {
			chunkIDs = append(chunkIDs, m.ChunkID)
		}
		out = append(out, &model.Insight{
			Kind:        model.InsightKindTrend,
			Title:       fmt.Sprintf("Recurring theme across %d papers", len(docIDs)),
			Detail:      fmt.Sprintf("%d closely related passages appear in: %s", len(c.members), strings.Join(titles, ", ")),
			Score:       clampScore(2 * len(docIDs)),
			DocumentIDs: docIDs,
			ChunkIDs:    chunkIDs,
		})
	}
	return out, nil
}

// contradictions looks at high-similarity cross-document pairs and asks the
// stance classifier whether they oppose each other. The pair budget keeps a
// large library from exploding the run.
func (e *Engine) contradictions(ctx context.Context, userID string, vecs []ChunkVector) ([]*model.Insight, error) {
	type pair struct {
		a, b ChunkVector
		sim  float64
	}
	var pairs []pair
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			if vecs[i].DocumentID == vecs[j].DocumentID {
				continue
			}
			sim := cosine32(vecs[i].Vector, vecs[j].Vector)
			if sim >= float64(e.cfg.PairThreshold) {
				pairs = append(pairs, pair{a: vecs[i], b: vecs[j], sim: sim})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].sim > pairs[j].sim })
	if len(pairs) > e.cfg.MaxPairsPerRun {
		pairs = pairs[:e.cfg.MaxPairsPerRun]
	}

	var out []*model.Insight
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		texts, err := e.chunks.GetChunks(ctx, userID, []string{p.a.ChunkID, p.b.ChunkID})
		if err != nil {
			return nil, fmt.Errorf("load pair chunks: %w", err)
		}
		if len(texts) != 2 {
			continue
		}
		opposing, err := e.stance.Opposing(ctx, texts[0].Text, texts[1].Text)
		if err != nil {
			logutil.GetLogger(ctx).Warn("stance judgment failed, skip pair",
				zap.String("chunk_a", p.a.ChunkID), zap.String("chunk_b", p.b.ChunkID), zap.Error(err))
			continue
		}
		if !opposing {
			continue
		}
		docIDs := []string{p.a.DocumentID, p.b.DocumentID}
		sort.Strings(docIDs)
		titles, err := e.docTitles(ctx, userID, docIDs)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.Insight{
			Kind:        model.InsightKindContradiction,
			Title:       fmt.Sprintf("Conflicting claims: %s", strings.Join(titles, " vs ")),
			Detail:      fmt.Sprintf("Two closely related passages (similarity %.2f) take opposing positions.", p.sim),
			Score:       clampScore(int(math.Round(p.sim * 10))),
			DocumentIDs: docIDs,
			ChunkIDs:    []string{p.a.ChunkID, p.b.ChunkID},
		})
	}
	return out, nil
}

// gaps probes the index with each active goal objective; a goal with no
// chunk above the threshold has no coverage in the library.
func (e *Engine) gaps(ctx context.Context, userID string) ([]*model.Insight, error) {
	goals, err := e.goals.ActiveGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	var out []*model.Insight
	for _, g := range goals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.Objective == "" {
			continue
		}
		vec, err := e.embedder.EmbedOne(ctx, g.Objective, ai.TaskTypeQuery)
		if err != nil {
			logutil.GetLogger(ctx).Warn("gap probe embed failed", zap.Error(err))
			continue
		}
		hits, err := e.idx.Query(ctx, userID, vec, e.embedder.ModelName(), index.QueryOptions{K: 1})
		if err != nil {
			return nil, fmt.Errorf("gap probe query: %w", err)
		}
		best := float64(0)
		if len(hits) > 0 {
			best = float64(hits[0].Score)
		}
		if best >= float64(e.cfg.GapThreshold) {
			continue
		}
		out = append(out, &model.Insight{
			Kind:   model.InsightKindGap,
			Title:  fmt.Sprintf("No sources cover: %s", g.Objective),
			Detail: fmt.Sprintf("Best library match for this goal scores %.2f, below the coverage threshold.", best),
			Score:  clampScore(10 - int(math.Round(best*10))),
		})
	}
	return out, nil
}

func (e *Engine) docTitles(ctx context.Context, userID string, ids []string) ([]string, error) {
	docs, err := e.docs.GetDocuments(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		titles = append(titles, d.Title)
	}
	return titles, nil
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func recenter(centroid []float64, v []float32, n int) []float64 {
	if centroid == nil {
		centroid = make([]float64, len(v))
	}
	for i := range centroid {
		centroid[i] += (float64(v[i]) - centroid[i]) / float64(n)
	}
	return centroid
}

func cosine64(a []float64, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * float64(b[i])
		na += a[i] * a[i]
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cosine32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
