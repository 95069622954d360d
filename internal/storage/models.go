package storage

import (
	"time"
)

// Refresh statuses.
const (
	RefreshOK     = "ok"
	RefreshFailed = "failed"
)

// QueryLogEntry is one processed analytic question.
type QueryLogEntry struct {
	ID         int64     `json:"id"`
	UserEmail  string    `json:"user"`
	Text       string    `json:"query"`
	Intent     string    `json:"intent"`
	ResultType string    `json:"resultType"`
	Dates      []string  `json:"dates"`
	Metrics    []string  `json:"metrics"`
	ItemCount  int       `json:"itemCount"`
	Error      *string   `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RefreshRecord captures one sheet fetch attempt.
type RefreshRecord struct {
	ID         int64
	SheetName  string
	Status     string
	RowCount   int
	DurationMS int64
	Error      *string
	CreatedAt  time.Time
}
