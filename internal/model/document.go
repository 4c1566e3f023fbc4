package model

// Document lifecycle. Transitions run one way through the ingest pipeline;
// the only backward edge is failed -> pending on retry.
const (
	DocumentStatePending = 1
	DocumentStateChunked = 2
	DocumentStateIndexed = 3
	DocumentStateFailed  = 4
)

type Document struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	FileKey    string `json:"file_key"`
	Summary    string `json:"summary"`
	State      int    `json:"state"`
	Complexity int    `json:"complexity"`
	FailReason string `json:"fail_reason,omitempty"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

func DocumentStateName(state int) string {
	switch state {
	case DocumentStatePending:
		return "pending"
	case DocumentStateChunked:
		return "chunked"
	case DocumentStateIndexed:
		return "indexed"
	case DocumentStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
