package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// SearchExecution is the progress and audit record for one run.
// TotalChecks is fixed once the probe grid is computed; CompletedChecks and
// FoundAvailabilities only grow while the execution is running.
type SearchExecution struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	SearchID            uuid.UUID       `json:"search_id" db:"search_id"`
	Status              ExecutionStatus `json:"status" db:"status"`
	StartedAt           time.Time       `json:"started_at" db:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at" db:"completed_at"`
	TotalChecks         int             `json:"total_checks" db:"total_checks"`
	CompletedChecks     int             `json:"completed_checks" db:"completed_checks"`
	FoundAvailabilities int             `json:"found_availabilities" db:"found_availabilities"`
	Error               string          `json:"error,omitempty" db:"error"`
}

// Terminal reports whether the execution has reached a final status.
func (e *SearchExecution) Terminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}
