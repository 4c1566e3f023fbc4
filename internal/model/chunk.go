package model

// Chunk is the retrieval unit cut from a document. Start/End index the
// document content; chunks are immutable and deleted en masse when their
// document is deleted or re-ingested.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Position   int    `json:"position"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}
