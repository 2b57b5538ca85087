// Package model defines the Job and Worker entities shared by every
// component in the dispatch system: the coordinator, the stores, the
// queue transport, and the worker runtime. It carries a plain int64
// identity rather than a typed-identifier scheme, and omits the
// retry/priority/timeout fields a user-extensible job system would need —
// spec.md's closed five-type job set does not.
package model

import (
	"encoding/json"
	"time"
)

// JobType is one of the closed set of job kinds spec.md §3 names.
type JobType string

const (
	JobTypeEmail        JobType = "EMAIL"
	JobTypeWhatsApp     JobType = "WHATSAPP"
	JobTypeSMS          JobType = "SMS"
	JobTypeNotification JobType = "NOTIFICATION"
	JobTypeCronjob      JobType = "CRONJOB"
)

// ValidJobTypes is the closed set a Create Job request is validated against.
var ValidJobTypes = map[JobType]bool{
	JobTypeEmail:        true,
	JobTypeWhatsApp:     true,
	JobTypeSMS:          true,
	JobTypeNotification: true,
	JobTypeCronjob:      true,
}

// JobStatus is a state in the Job lifecycle machine, spec.md §4.1.1.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is a unit of producer-submitted work, tracked from creation to a
// terminal status. Identity is a plain monotonically assigned integer,
// per spec.md §3.
type Job struct {
	ID        int64           `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	WorkerID  *int64          `json:"workerId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CanTransitionTo reports whether moving from j.Status to next is a legal
// one-way transition under spec.md §4.1.1 (pending → processing →
// {completed, failed}; failed → pending is explicitly not supported).
func (j *Job) CanTransitionTo(next JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		// completed and failed are terminal.
		return false
	}
}

// BacklogEntry is the per-type FIFO payload the Queue Transport (C2)
// pushes onto jobs:<type> lists, spec.md §3.
type BacklogEntry struct {
	JobID   int64           `json:"jobId"`
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Channel names for C2's pub/sub contract, spec.md §6.
const (
	ChannelJobNew           = "job:new"
	ChannelWorkerJobComplete = "worker:job-complete"
	ChannelWorkerJobFailed   = "worker:job-failed"
)

// JobNewEvent is published on ChannelJobNew when a job is enqueued.
type JobNewEvent struct {
	Type JobType `json:"type"`
}

// JobCompleteEvent is published on ChannelWorkerJobComplete, spec.md §4.1.3.
type JobCompleteEvent struct {
	JobID    int64           `json:"jobId"`
	WorkerID int64           `json:"workerId"`
	Result   json.RawMessage `json:"result"`
}

// JobFailedEvent is published on ChannelWorkerJobFailed, spec.md §4.1.3.
type JobFailedEvent struct {
	JobID    int64  `json:"jobId"`
	WorkerID int64  `json:"workerId"`
	Error    string `json:"error"`
}
