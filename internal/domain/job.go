package domain

import (
	"errors"
	"strings"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// StaleJobError is recorded on jobs the reaper fails for never being claimed.
const StaleJobError = "job timed out: not picked up by a worker before the pending deadline"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// CanTransitionTo encodes PENDING → PROCESSING → {COMPLETED, FAILED}, plus the
// reaper's PENDING → FAILED. No state is re-entered.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one report generation request.
type Job struct {
	ID        string    `json:"id"`
	StoreCode string    `json:"store_code"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope rebuilds the reconciliation window the job was requested for.
func (j *Job) Scope() (Scope, error) {
	var stores []string
	if j.StoreCode != "" {
		stores = strings.Split(j.StoreCode, ",")
	}
	return NewScope(j.StartDate, j.EndDate, stores)
}
