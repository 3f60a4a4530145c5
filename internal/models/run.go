package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Processing run statuses.
const (
	RunQueued    = "QUEUED"
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// ProcessingRun tracks one batch submission through the worker. Results and
// Failures are filled in when the run reaches a terminal status.
type ProcessingRun struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Status      string          `json:"status"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	LastBalance *int            `json:"last_balance,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	Failures    json.RawMessage `json:"failures,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
