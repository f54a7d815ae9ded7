// Package events provides the in-process event bus for margin runs and
// maintenance jobs.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	RunStored      EventType = "RUN_STORED"
	RunFailed      EventType = "RUN_FAILED"
	RunsPurged     EventType = "RUNS_PURGED"
	BackupUploaded EventType = "BACKUP_UPLOADED"
	JobCompleted   EventType = "JOB_COMPLETED"
	JobFailed      EventType = "JOB_FAILED"
)

// Types lists every event type the bus emits.
var Types = []EventType{
	RunStored,
	RunFailed,
	RunsPurged,
	BackupUploaded,
	JobCompleted,
	JobFailed,
}

// Event is a published event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
