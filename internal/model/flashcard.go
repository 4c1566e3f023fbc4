package model

type Flashcard struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"` // easy / medium / hard
	Category   string `json:"category"`   // concept / definition / application
	Ctime      int64  `json:"ctime"`
}
