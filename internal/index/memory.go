package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
)

// MemoryIndex is a per-scope exact-scan cosine index. Writes go through the
// optional persister first, then apply under the scope's write lock, which
// gives readers the all-or-nothing view the retrieval path depends on.
type MemoryIndex struct {
	mu       sync.RWMutex
	scopes   map[string]*scopeShard
	docOwner map[string]string // document id -> scope, for cross-scope probes
	defaultK int
	persist  Persister
}

type scopeShard struct {
	mu    sync.RWMutex
	model string
	dim   int
	docs  map[string]*docEntries
}

type docEntries struct {
	docTime int64
	entries []Entry // vectors normalized at insert
}

type Option func(*MemoryIndex)

func WithDefaultK(k int) Option {
	return func(m *MemoryIndex) {
		if k > 0 {
			m.defaultK = k
		}
	}
}

func WithPersister(p Persister) Option {
	return func(m *MemoryIndex) {
		m.persist = p
	}
}

func NewMemoryIndex(opts ...Option) *MemoryIndex {
	m := &MemoryIndex{
		scopes:   make(map[string]*scopeShard),
		docOwner: make(map[string]string),
		defaultK: 5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Warm loads all persisted entries into memory. Called once before the
// index starts serving.
func (m *MemoryIndex) Warm(ctx context.Context) error {
	if m.persist == nil {
		return nil
	}
	type pending struct {
		scope   string
		model   string
		docTime int64
		entries []Entry
	}
	byDoc := make(map[string]*pending)
	err := m.persist.Load(ctx, func(scope, docID, model string, docTime int64, entry Entry) error {
		p := byDoc[docID]
		if p == nil {
			p = &pending{scope: scope, model: model, docTime: docTime}
			byDoc[docID] = p
		}
		p.entries = append(p.entries, entry)
		return nil
	})
	if err != nil {
		return err
	}
	for docID, p := range byDoc {
		if err := m.apply(p.scope, docID, p.model, p.docTime, p.entries); err != nil {
			logutil.GetLogger(ctx).Warn("skip document while warming index",
				zap.String("doc_id", docID), zap.Error(err))
		}
	}
	logutil.GetLogger(ctx).Info("vector index warmed", zap.Int("documents", len(byDoc)))
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, scope, docID, model string, docTime int64, entries []Entry) error {
	if scope == "" || docID == "" {
		return appErr.ErrInvalid
	}
	if len(entries) == 0 {
		return appErr.ErrInvalid
	}
	if m.persist != nil {
		if err := m.persist.ReplaceDocument(ctx, scope, docID, model, docTime, entries); err != nil {
			return err
		}
	}
	return m.apply(scope, docID, model, docTime, entries)
}

func (m *MemoryIndex) apply(scope, docID, model string, docTime int64, entries []Entry) error {
	shard := m.shard(scope, true)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if len(shard.docs) > 0 && shard.model != model {
		return fmt.Errorf("%w: scope %s indexed with %s, got %s", appErr.ErrModelMismatch, scope, shard.model, model)
	}
	dim := len(entries[0].Vector)
	if shard.dim != 0 && shard.dim != dim && len(shard.docs) > 0 {
		return fmt.Errorf("%w: dimension %d != %d", appErr.ErrModelMismatch, dim, shard.dim)
	}
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: ragged batch", appErr.ErrInvalid)
		}
		normalized[i] = Entry{
			ChunkID:    e.ChunkID,
			DocumentID: docID,
			Vector:     normalize(e.Vector),
		}
	}
	shard.model = model
	shard.dim = dim
	shard.docs[docID] = &docEntries{docTime: docTime, entries: normalized}

	m.mu.Lock()
	m.docOwner[docID] = scope
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, scope string, vector []float32, model string, opts QueryOptions) ([]Scored, error) {
	if scope == "" {
		return nil, appErr.ErrInvalid
	}
	if opts.DocumentID != "" {
		m.mu.RLock()
		owner, known := m.docOwner[opts.DocumentID]
		m.mu.RUnlock()
		if known && owner != scope {
			logutil.GetLogger(ctx).Error("cross-scope index access rejected",
				zap.String("scope", scope),
				zap.String("document_id", opts.DocumentID),
				zap.String("owner_scope", owner),
			)
			return nil, appErr.ErrScopeViolation
		}
	}
	shard := m.shard(scope, false)
	if shard == nil {
		return nil, nil
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	if len(shard.docs) == 0 {
		return nil, nil
	}
	if shard.model != model {
		return nil, fmt.Errorf("%w: scope %s indexed with %s, queried with %s", appErr.ErrModelMismatch, scope, shard.model, model)
	}
	if len(vector) != shard.dim {
		return nil, fmt.Errorf("%w: query dimension %d != %d", appErr.ErrModelMismatch, len(vector), shard.dim)
	}

	q := normalize(vector)
	type hit struct {
		Scored
		docTime int64
	}
	var hits []hit
	total := 0
	for docID, doc := range shard.docs {
		if opts.DocumentID != "" && docID != opts.DocumentID {
			continue
		}
		total += len(doc.entries)
		for _, e := range doc.entries {
			hits = append(hits, hit{
				Scored: Scored{
					ChunkID:    e.ChunkID,
					DocumentID: e.DocumentID,
					Score:      dot(q, e.Vector),
				},
				docTime: doc.docTime,
			})
		}
	}
	if total == 0 {
		return nil, nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].docTime != hits[j].docTime {
			return hits[i].docTime > hits[j].docTime
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	k := opts.K
	if k <= 0 {
		k = m.defaultK
	}
	if k < 1 {
		k = 1
	}
	if k > total {
		k = total
	}
	out := make([]Scored, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, hits[i].Scored)
	}
	return out, nil
}

func (m *MemoryIndex) DeleteDocument(ctx context.Context, scope, docID string) error {
	if m.persist != nil {
		if err := m.persist.DeleteDocument(ctx, scope, docID); err != nil {
			return err
		}
	}
	shard := m.shard(scope, false)
	if shard != nil {
		shard.mu.Lock()
		delete(shard.docs, docID)
		shard.mu.Unlock()
	}
	m.mu.Lock()
	delete(m.docOwner, docID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) DeleteScope(ctx context.Context, scope string) error {
	if m.persist != nil {
		if err := m.persist.DeleteScope(ctx, scope); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.scopes, scope)
	for docID, owner := range m.docOwner {
		if owner == scope {
			delete(m.docOwner, docID)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Stats(scope string) Stats {
	shard := m.shard(scope, false)
	if shard == nil {
		return Stats{}
	}
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	st := Stats{Documents: len(shard.docs), Model: shard.model}
	for _, doc := range shard.docs {
		st.Entries += len(doc.entries)
	}
	return st
}

func (m *MemoryIndex) shard(scope string, create bool) *scopeShard {
	m.mu.RLock()
	shard := m.scopes[scope]
	m.mu.RUnlock()
	if shard != nil || !create {
		return shard
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if shard = m.scopes[scope]; shard == nil {
		shard = &scopeShard{docs: make(map[string]*docEntries)}
		m.scopes[scope] = shard
	}
	return shard
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
