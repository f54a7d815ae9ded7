package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventData is implemented by all event payloads
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStoredData contains data for RunStored events
type RunStoredData struct {
	RunID       string  `json:"run_id"`
	Label       string  `json:"label,omitempty"`
	Paths       int     `json:"paths"`
	TotalMean   float64 `json:"total_mean"`
	TotalP99    float64 `json:"total_p99"`
	FloorEvents int     `json:"floor_events"`
}

// EventType returns the event type for RunStoredData
func (d *RunStoredData) EventType() EventType {
	return RunStored
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	Label string `json:"label,omitempty"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}

// RunsPurgedData contains data for RunsPurged events
type RunsPurgedData struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// EventType returns the event type for RunsPurgedData
func (d *RunsPurgedData) EventType() EventType {
	return RunsPurged
}

// BackupUploadedData contains data for BackupUploaded events
type BackupUploadedData struct {
	Key     string `json:"key"`
	Rotated int    `json:"rotated"`
}

// EventType returns the event type for BackupUploadedData
func (d *BackupUploadedData) EventType() EventType {
	return BackupUploaded
}

// JobStatusData contains data for scheduled job completion
type JobStatusData struct {
	Job      string  `json:"job"`
	Status   string  `json:"status"` // "completed", "failed"
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration"`
}

// EventType returns the event type for JobStatusData. The type follows the
// Status field.
func (d *JobStatusData) EventType() EventType {
	if d.Status == "failed" {
		return JobFailed
	}
	return JobCompleted
}

// newEventData returns an empty payload for t
func newEventData(t EventType) (EventData, error) {
	switch t {
	case RunStored:
		return &RunStoredData{}, nil
	case RunFailed:
		return &RunFailedData{}, nil
	case RunsPurged:
		return &RunsPurgedData{}, nil
	case BackupUploaded:
		return &BackupUploadedData{}, nil
	case JobCompleted, JobFailed:
		return &JobStatusData{}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON decodes the payload according to the event type
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}
	payload, err := newEventData(aux.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(aux.Data, payload); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", aux.Type, err)
	}
	e.Data = payload
	return nil
}
