package model

const (
	InsightKindTrend         = "trend"
	InsightKindContradiction = "contradiction"
	InsightKindGap           = "gap"
)

// Insight is a derived artifact over at least two chunks/documents. Each
// engine run replaces the full set for a user; superseded insights are
// retired with the run, never mutated in place.
type Insight struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail"`
	Score       int      `json:"score"` // relevance, clamped to 1..10
	DocumentIDs []string `json:"document_ids"`
	ChunkIDs    []string `json:"chunk_ids"`
	Ctime       int64    `json:"ctime"`
}
