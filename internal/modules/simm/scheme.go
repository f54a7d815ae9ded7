package simm

import (
	"github.com/aristath/simm/pkg/ensemble"
)

// BucketScheme is the capability that distinguishes the aggregation variants:
// where concentration is measured and which correlations apply.
type BucketScheme interface {
	// Weigh turns the net sensitivities of one bucket into weighted sensitivities
	// and returns the bucket's representative concentration factor.
	Weigh(p ParameterProvider, members []NetSensitivity) ([]WeightedSensitivity, ensemble.Vector, error)
	// Correlation returns the intra-bucket correlation of two distinct members.
	Correlation(p ParameterProvider, a, b Coordinate) (float64, error)
	// CrossCorrelation returns the correlation between two buckets.
	CrossCorrelation(p ParameterProvider, rc RiskClass, a, b string) (float64, error)
}

// SchemeFor selects the aggregation variant of a risk class and margin type.
func SchemeFor(rc RiskClass, mt MarginType) (BucketScheme, error) {
	if !rc.Valid() {
		return nil, Configf("select scheme", "unknown risk class %s", rc)
	}
	switch mt {
	case Curvature:
		return curvatureScheme{}, nil
	case Delta, Vega:
		switch rc {
		case InterestRate:
			return perBucketScheme{}, nil
		case CreditQualifying, CreditNonQualifying, Equity, Commodity, FX:
			return perRiskFactorScheme{}, nil
		}
	}
	return nil, Configf("select scheme", "unsupported combination %s/%s", rc, mt)
}

// perRiskFactorScheme measures concentration on each risk factor.
type perRiskFactorScheme struct{}

func (perRiskFactorScheme) Weigh(p ParameterProvider, members []NetSensitivity) ([]WeightedSensitivity, ensemble.Vector, error) {
	out := make([]WeightedSensitivity, 0, len(members))
	net := ensemble.Vector{}
	for _, m := range members {
		cr, err := concentrationFor(p, m.Coordinate, m.Amount)
		if err != nil {
			return nil, ensemble.Vector{}, err
		}
		ws, err := weighAmount(p, m.Coordinate, m.Amount, cr)
		if err != nil {
			return nil, ensemble.Vector{}, err
		}
		out = append(out, ws)
		net = net.Add(m.Amount)
	}
	if len(members) == 0 {
		return out, ensemble.Scalar(1), nil
	}
	bucketCR, err := concentrationFor(p, members[0].Coordinate, net)
	if err != nil {
		return nil, ensemble.Vector{}, err
	}
	return out, bucketCR, nil
}

func (perRiskFactorScheme) Correlation(p ParameterProvider, a, b Coordinate) (float64, error) {
	return p.IntraBucketCorrelation(a, b)
}

func (perRiskFactorScheme) CrossCorrelation(p ParameterProvider, rc RiskClass, a, b string) (float64, error) {
	return p.CrossBucketCorrelation(rc, a, b)
}

// perBucketScheme measures concentration once on the bucket's net sensitivity.
type perBucketScheme struct{}

func (perBucketScheme) Weigh(p ParameterProvider, members []NetSensitivity) ([]WeightedSensitivity, ensemble.Vector, error) {
	return BuildBucketWeightedSensitivities(p, members)
}

func (perBucketScheme) Correlation(p ParameterProvider, a, b Coordinate) (float64, error) {
	return p.IntraBucketCorrelation(a, b)
}

func (perBucketScheme) CrossCorrelation(p ParameterProvider, rc RiskClass, a, b string) (float64, error) {
	return p.CrossBucketCorrelation(rc, a, b)
}

// curvatureScheme applies no concentration and squares the vega correlations.
// Curvature amounts already carry their risk weight.
type curvatureScheme struct{}

func (curvatureScheme) Weigh(_ ParameterProvider, members []NetSensitivity) ([]WeightedSensitivity, ensemble.Vector, error) {
	one := ensemble.Scalar(1)
	out := make([]WeightedSensitivity, 0, len(members))
	for _, m := range members {
		out = append(out, WeightedSensitivity{
			Coordinate:    m.Coordinate,
			Concentration: one,
			Value:         m.Amount,
		})
	}
	return out, one, nil
}

func (curvatureScheme) Correlation(p ParameterProvider, a, b Coordinate) (float64, error) {
	rho, err := p.IntraBucketCorrelation(a.WithMarginType(Vega), b.WithMarginType(Vega))
	if err != nil {
		return 0, err
	}
	return rho * rho, nil
}

func (curvatureScheme) CrossCorrelation(p ParameterProvider, rc RiskClass, a, b string) (float64, error) {
	rho, err := p.CrossBucketCorrelation(rc, a, b)
	if err != nil {
		return 0, err
	}
	return rho * rho, nil
}
