package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLog is an append-only audit record of one delivery attempt.
type NotificationLog struct {
	ID           int64     `json:"id" db:"id"`
	SearchID     uuid.UUID `json:"search_id" db:"search_id"`
	ResultID     uuid.UUID `json:"result_id" db:"result_id"`
	SentAt       time.Time `json:"sent_at" db:"sent_at"`
	Recipient    string    `json:"recipient" db:"recipient"`
	Subject      string    `json:"subject" db:"subject"`
	NewCount     int       `json:"new_count" db:"new_count"`
	RemovedCount int       `json:"removed_count" db:"removed_count"`
	Success      bool      `json:"success" db:"success"`
	Error        string    `json:"error,omitempty" db:"error"`
}
