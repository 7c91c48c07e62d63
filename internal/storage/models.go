package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Advice job statuses. StatusRetrying is internal: a job waiting out a retry
// backoff is still "active" from a caller's point of view, which keeps the
// externally visible status sequence monotonic (queued -> active ->
// completed/failed).
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusRetrying  = "retrying"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PublicStatus maps an internal job status to the externally visible one.
func PublicStatus(status string) string {
	if status == StatusRetrying {
		return StatusActive
	}
	return status
}

// AdviceJob is one asynchronous advice-generation request.
type AdviceJob struct {
	ID              string
	DistrictID      int
	OptionsJSON     string
	Question        string
	Status          string
	Attempts        int
	MaxAttempts     int
	RunAfter        time.Time
	ResultJSON      string // empty until completed
	FailureReason   string // empty unless failed
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Job is a generic background job (doc embedding and similar housekeeping).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// TrendDoc is a retrieval document about neighborhood nightlife trends.
// Embedding is nil until the embed worker has processed the doc.
type TrendDoc struct {
	ID         string
	Source     string
	ExternalID string
	Area       string
	URL        string
	Content    string
	Embedding  []byte
	CreatedAt  time.Time
}
