// Package runs persists SIMM margin computations and their breakdowns.
package runs

import (
	"errors"
	"time"

	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/pkg/ensemble"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("margin run not found")

// Run is a stored margin computation. Result is only populated by Get.
type Run struct {
	ID               string            `json:"id"`
	Label            string            `json:"label,omitempty"`
	EvaluationTime   time.Time         `json:"evaluation_time"`
	CreatedAt        time.Time         `json:"created_at"`
	Fingerprint      string            `json:"fingerprint"`
	Coordinates      int               `json:"coordinates"`
	Paths            int               `json:"paths"`
	PostingThreshold float64           `json:"posting_threshold"`
	TotalMean        float64           `json:"total_mean"`
	TotalP99         float64           `json:"total_p99"`
	FloorEvents      int               `json:"floor_events"`
	Summary          *ensemble.Summary `json:"summary,omitempty"`
	Result           *simm.Result      `json:"result,omitempty"`
}

// Request describes a margin run.
type Request struct {
	Label            string
	EvaluationTime   time.Time
	Gradient         simm.Gradient
	PostingThreshold *float64
	Shards           int
}

// record is the msgpack blob stored alongside a run.
type record struct {
	Summary ensemble.Summary `msgpack:"summary"`
	Result  *simm.Result     `msgpack:"result"`
}
