package model

type ChatSession struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title"`
	Ctime      int64  `json:"ctime"`
}

// ChatTurn is one question/answer exchange. Turns are append only and read
// back ordered by Seq. Failed turns keep their citations so a degraded
// answer can still point at the retrieved evidence.
type ChatTurn struct {
	SessionID string   `json:"session_id"`
	Seq       int      `json:"seq"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	Failed    bool     `json:"failed"`
	Ctime     int64    `json:"ctime"`
}
