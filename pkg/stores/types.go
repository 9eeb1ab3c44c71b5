package stores

import (
	"time"
)

// ObjectRecord is a stored config object row.
type ObjectRecord struct {
	Name      string    `json:"name"`
	Tree      string    `json:"tree"` // JSON blob
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CycleRecord is a stored orchestration cycle summary, kept for status
// reporting and audit.
type CycleRecord struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Result    string    `json:"result"` // JSON blob of engine.CycleResult
	StartedAt time.Time `json:"started_at"`
	CreatedAt time.Time `json:"created_at"`
}
