package simm

import "sync"

// Stage names where a variance-covariance sum can be floored.
const (
	StageBucket       = "bucket"
	StageRiskClass    = "risk_class"
	StageCurvature    = "curvature"
	StageProductClass = "product_class"
)

// FloorEvent records a variance-covariance sum that went negative before its
// square root and was floored at zero. It signals inconsistent correlation data.
type FloorEvent struct {
	Stage        string       `json:"stage" msgpack:"stage"`
	ProductClass ProductClass `json:"product_class" msgpack:"product_class"`
	RiskClass    RiskClass    `json:"risk_class" msgpack:"risk_class"`
	MarginType   MarginType   `json:"margin_type" msgpack:"margin_type"`
	Bucket       string       `json:"bucket,omitempty" msgpack:"bucket"`
	Outcomes     int          `json:"outcomes" msgpack:"outcomes"`
}

// Diagnostics collects data-quality signals of one computation. The zero value
// is ready to use and safe for concurrent recording.
type Diagnostics struct {
	mu     sync.Mutex
	floors []FloorEvent
}

func (d *Diagnostics) recordFloor(ev FloorEvent) {
	if d == nil || ev.Outcomes == 0 {
		return
	}
	d.mu.Lock()
	d.floors = append(d.floors, ev)
	d.mu.Unlock()
}

// replay records events captured by an earlier aggregation.
func (d *Diagnostics) replay(events []FloorEvent) {
	for _, ev := range events {
		d.recordFloor(ev)
	}
}

// Floors returns a copy of the recorded floor events.
func (d *Diagnostics) Floors() []FloorEvent {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FloorEvent, len(d.floors))
	copy(out, d.floors)
	return out
}

// scope carries the labels attached to floor events raised inside one group.
type scope struct {
	diag *Diagnostics
	pc   ProductClass
	rc   RiskClass
	mt   MarginType
}

func (s scope) floor(stage, bucket string, outcomes int) {
	s.diag.recordFloor(FloorEvent{
		Stage:        stage,
		ProductClass: s.pc,
		RiskClass:    s.rc,
		MarginType:   s.mt,
		Bucket:       bucket,
		Outcomes:     outcomes,
	})
}
