package entity

import "time"

type ScanCompletedEvent struct {
	SessionID     string    `json:"session_id"`
	GameID        string    `json:"game_id"`
	CategoryID    string    `json:"category_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	ImportedCount int       `json:"imported_count"`
	CompletedAt   time.Time `json:"completed_at"`
}
