package models

import (
	"time"

	"github.com/google/uuid"
)

// Changes partitions a fresh availability set against the previous run.
type Changes struct {
	New     []Availability `json:"new"`
	Removed []Availability `json:"removed"`
}

// SearchResult is the outcome of one search execution. Immutable after save
// except for the NotificationSent flag.
type SearchResult struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	SearchID         uuid.UUID      `json:"search_id" db:"search_id"`
	Timestamp        time.Time      `json:"timestamp" db:"timestamp"`
	Availabilities   []Availability `json:"availabilities" db:"availabilities"`
	Changes          Changes        `json:"changes" db:"changes"`
	NotificationSent bool           `json:"notification_sent" db:"notification_sent"`
	Error            string         `json:"error,omitempty" db:"error"`
}
