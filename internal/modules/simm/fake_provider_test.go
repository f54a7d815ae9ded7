package simm

import (
	"time"

	"github.com/aristath/simm/pkg/ensemble"
)

// fakeProvider is a flat parameter set. Zero-valued hooks fall back to the
// constant fields.
type fakeProvider struct {
	riskWeight float64
	addWeight  float64
	threshold  float64
	intra      float64
	cross      float64
	riskClass  float64

	riskWeightFn func(c Coordinate) (float64, error)
	addWeightFn  func(c Coordinate) (float64, error)
	thresholdFn  func(c Coordinate) (float64, error)
	intraFn      func(a, b Coordinate) (float64, error)
	crossFn      func(rc RiskClass, a, b string) (float64, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		riskWeight: 25,
		addWeight:  1,
		threshold:  1,
	}
}

func (f *fakeProvider) RiskWeight(c Coordinate) (float64, error) {
	if f.riskWeightFn != nil {
		return f.riskWeightFn(c)
	}
	return f.riskWeight, nil
}

func (f *fakeProvider) AdditionalWeight(c Coordinate) (float64, error) {
	if f.addWeightFn != nil {
		return f.addWeightFn(c)
	}
	return f.addWeight, nil
}

func (f *fakeProvider) ConcentrationThreshold(c Coordinate) (float64, error) {
	if f.thresholdFn != nil {
		return f.thresholdFn(c)
	}
	return f.threshold, nil
}

func (f *fakeProvider) IntraBucketCorrelation(a, b Coordinate) (float64, error) {
	if f.intraFn != nil {
		return f.intraFn(a, b)
	}
	return f.intra, nil
}

func (f *fakeProvider) CrossBucketCorrelation(rc RiskClass, a, b string) (float64, error) {
	if f.crossFn != nil {
		return f.crossFn(rc, a, b)
	}
	return f.cross, nil
}

func (f *fakeProvider) RiskClassCorrelation(a, b RiskClass) (float64, error) {
	return f.riskClass, nil
}

var evalTime = time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)

func equityDelta(bucket, qualifier string) Coordinate {
	return Coordinate{
		Bucket:       bucket,
		Qualifier:    qualifier,
		RiskClass:    Equity,
		MarginType:   Delta,
		ProductClass: EquityProduct,
	}
}

func rateDelta(currency, tenor string) Coordinate {
	return Coordinate{
		Vertex:       tenor,
		SubCurve:     "OIS",
		Qualifier:    currency,
		Bucket:       currency,
		RiskClass:    InterestRate,
		MarginType:   Delta,
		ProductClass: RatesFX,
	}
}

func scalarOf(v ensemble.Vector) float64 {
	x, _ := v.Float()
	return x
}

func newVec(values ...float64) ensemble.Vector {
	return ensemble.New(values...)
}
