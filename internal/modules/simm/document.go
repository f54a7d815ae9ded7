package simm

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aristath/simm/pkg/ensemble"
)

// GradientEntry is the wire form of one sensitivity. Values holds a number for a
// deterministic sensitivity or an array with one value per outcome.
type GradientEntry struct {
	RiskClass    RiskClass       `json:"risk_class"`
	MarginType   MarginType      `json:"margin_type"`
	ProductClass ProductClass    `json:"product_class"`
	Bucket       string          `json:"bucket"`
	Qualifier    string          `json:"qualifier"`
	Vertex       string          `json:"vertex,omitempty"`
	SubCurve     string          `json:"sub_curve,omitempty"`
	Values       ensemble.Vector `json:"values"`
}

// Coordinate returns the risk factor of the entry.
func (e GradientEntry) Coordinate() Coordinate {
	return Coordinate{
		Vertex:       e.Vertex,
		SubCurve:     e.SubCurve,
		Qualifier:    e.Qualifier,
		Bucket:       e.Bucket,
		RiskClass:    e.RiskClass,
		MarginType:   e.MarginType,
		ProductClass: e.ProductClass,
	}
}

// GradientDocument is the JSON document carrying a gradient.
type GradientDocument struct {
	EvaluationTime time.Time       `json:"evaluation_time"`
	Sensitivities  []GradientEntry `json:"sensitivities"`
}

// DecodeGradientDocument reads a document from r.
func DecodeGradientDocument(r io.Reader) (*GradientDocument, error) {
	var doc GradientDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode gradient document: %w", err)
	}
	return &doc, nil
}

// Gradient builds the gradient of the document. Entries sharing a coordinate
// are netted.
func (d *GradientDocument) Gradient() (Gradient, error) {
	g := make(Gradient, len(d.Sensitivities))
	for i, e := range d.Sensitivities {
		if e.Bucket == "" {
			return nil, fmt.Errorf("sensitivity %d: bucket is required", i)
		}
		c := e.Coordinate()
		if prev, ok := g[c]; ok {
			if !ensemble.Compatible(prev, e.Values) {
				return nil, fmt.Errorf("%w: %s listed with %d and %d outcomes", ErrEnsembleMismatch, c, prev.Len(), e.Values.Len())
			}
			g[c] = prev.Add(e.Values)
			continue
		}
		g[c] = e.Values
	}
	if _, err := g.Paths(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGradientDocument returns the wire form of g in canonical order.
func NewGradientDocument(t time.Time, g Gradient) *GradientDocument {
	doc := &GradientDocument{EvaluationTime: t}
	for _, c := range g.Coordinates() {
		doc.Sensitivities = append(doc.Sensitivities, GradientEntry{
			RiskClass:    c.RiskClass,
			MarginType:   c.MarginType,
			ProductClass: c.ProductClass,
			Bucket:       c.Bucket,
			Qualifier:    c.Qualifier,
			Vertex:       c.Vertex,
			SubCurve:     c.SubCurve,
			Values:       g[c],
		})
	}
	return doc
}
