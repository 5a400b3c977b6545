package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DefaultContentVariant is recorded when a completed job names no variant.
const DefaultContentVariant = "source"

// DefaultFailureMessage is used when the remote reports a failure without details.
const DefaultFailureMessage = "Generation failed"

// ActiveStatuses lists the states the poller still needs to reconcile.
var ActiveStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing}

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// ParseRemoteStatus maps the vocabulary of the remote video API onto local
// statuses. ok is false for values the service does not recognise.
func ParseRemoteStatus(raw string) (JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending":
		return JobStatusQueued, true
	case "in_progress", "processing", "running":
		return JobStatusProcessing, true
	case "completed", "succeeded", "success":
		return JobStatusCompleted, true
	case "failed", "cancelled", "canceled", "error":
		return JobStatusFailed, true
	}
	return "", false
}

// VideoJob is the locally tracked record of one remote video generation.
type VideoJob struct {
	ID           string
	UserID       string
	Prompt       string
	RemoteID     string
	Status       JobStatus
	ErrorMessage string
	Seconds      int
	Size         string

	ContentVariant        string
	ContentToken          string
	ContentTokenExpiresAt *time.Time
	ContentReadyAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition moves an active job to status and keeps ErrorMessage consistent:
// it is set only for failed jobs. Terminal jobs are left untouched and false
// is returned, as is a processing job observed as queued again.
func (j *VideoJob) Transition(status JobStatus, errMsg string, now time.Time) bool {
	if j.Status.Terminal() || !status.Valid() {
		return false
	}
	if j.Status == JobStatusProcessing && status == JobStatusQueued {
		return false
	}
	j.Status = status
	if status == JobStatusFailed {
		if strings.TrimSpace(errMsg) == "" {
			errMsg = DefaultFailureMessage
		}
		j.ErrorMessage = errMsg
	} else {
		j.ErrorMessage = ""
	}
	j.UpdatedAt = now
	return true
}

// Ready reports whether the rendered content can be fetched.
func (j *VideoJob) Ready() bool {
	return j.Status == JobStatusCompleted
}

// TokenValid reports whether the stored content token may still be used at now.
func (j *VideoJob) TokenValid(now time.Time) bool {
	if j.ContentToken == "" {
		return false
	}
	return j.ContentTokenExpiresAt == nil || now.Before(*j.ContentTokenExpiresAt)
}
