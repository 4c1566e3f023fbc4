package index

import "context"

// Entry is the unit the vector index stores and searches. Entries belong to
// exactly one user scope and never leave it.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// Scored is one retrieval hit. Results are ordered by descending score with
// ties resolved toward the most recently uploaded document.
type Scored struct {
	ChunkID    string
	DocumentID string
	Score      float32
}

type QueryOptions struct {
	// K is the number of hits wanted; 0 uses the index default. The
	// effective value is clamped to [1, scope size].
	K int
	// DocumentID restricts the search to a single document in the scope.
	DocumentID string
}

type Stats struct {
	Entries   int
	Documents int
	Model     string
}

// Index is a nearest-neighbor store partitioned by user scope. Upsert and
// DeleteDocument are atomic per document: a concurrent Query sees either
// all of a document's entries or none of them.
type Index interface {
	Upsert(ctx context.Context, scope, docID, model string, docTime int64, entries []Entry) error
	Query(ctx context.Context, scope string, vector []float32, model string, opts QueryOptions) ([]Scored, error)
	DeleteDocument(ctx context.Context, scope, docID string) error
	DeleteScope(ctx context.Context, scope string) error
	Stats(scope string) Stats
}

// Persister is the durable side of the in-memory index. Implementations
// replace a document's vector rows transactionally.
type Persister interface {
	ReplaceDocument(ctx context.Context, scope, docID, model string, docTime int64, entries []Entry) error
	DeleteDocument(ctx context.Context, scope, docID string) error
	DeleteScope(ctx context.Context, scope string) error
	Load(ctx context.Context, fn func(scope, docID, model string, docTime int64, entry Entry) error) error
}
