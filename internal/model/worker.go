package model

import "time"

// WorkerStatus is idle at rest and busy only while holding a claimed job,
// spec.md §3.
type WorkerStatus string

const (
	WorkerStatusIdle WorkerStatus = "idle"
	WorkerStatusBusy WorkerStatus = "busy"
)

// Worker is a long-lived process dedicated to one job type, supervised and
// restartable by the Worker Supervisor (C5). The process handle itself is
// runtime-only and not persisted — see internal/supervisor.
type Worker struct {
	ID         int64        `json:"id"`
	Type       JobType      `json:"type"`
	Status     WorkerStatus `json:"status"`
	IsActive   bool         `json:"isActive"`
	LastActive time.Time    `json:"lastActive"`
}
