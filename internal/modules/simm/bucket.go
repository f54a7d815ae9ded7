package simm

import (
	"math"

	"github.com/aristath/simm/pkg/ensemble"
)

// BucketResult is the aggregate of one bucket.
type BucketResult struct {
	Bucket        string
	Sensitivities []WeightedSensitivity
	// K is the bucket figure, non-negative on every outcome.
	K ensemble.Vector
	// Concentration is the bucket's representative concentration factor used
	// for cross-bucket scaling.
	Concentration ensemble.Vector
}

// IsResidual reports whether this is the residual bucket.
func (b BucketResult) IsResidual() bool {
	return b.Bucket == ResidualBucket
}

// Sum returns the net weighted sensitivity of the bucket.
func (b BucketResult) Sum() ensemble.Vector {
	total := ensemble.Vector{}
	for _, ws := range b.Sensitivities {
		total = total.Add(ws.Value)
	}
	return total
}

// S returns the net weighted sensitivity capped into [-K, K].
func (b BucketResult) S() ensemble.Vector {
	return b.Sum().Clamp(b.K.Neg(), b.K)
}

// concentrationRatio is min(x, y) / max(x, y), defined as 1 when both are zero.
func concentrationRatio(x, y ensemble.Vector) ensemble.Vector {
	return ensemble.Zip(x, y, func(a, b float64) float64 {
		hi := math.Max(a, b)
		if hi == 0 {
			return 1
		}
		return math.Min(a, b) / hi
	})
}

// AggregateBucket computes K = √(Σ_k Σ_l WS_k WS_l ρ_kl f(CR_k, CR_l)) for one
// bucket. A negative sum is floored at zero and reported through diag.
func AggregateBucket(p ParameterProvider, scheme BucketScheme, bucket string, ws []WeightedSensitivity, concentration ensemble.Vector, diag *Diagnostics) (BucketResult, error) {
	var rc RiskClass
	var mt MarginType
	var pc ProductClass
	if len(ws) > 0 {
		rc, mt, pc = ws[0].Coordinate.RiskClass, ws[0].Coordinate.MarginType, ws[0].Coordinate.ProductClass
	}

	variance, err := bucketVariance(p, scheme, ws)
	if err != nil {
		return BucketResult{}, err
	}
	variance, floored := variance.FloorZero()
	scope{diag: diag, pc: pc, rc: rc, mt: mt}.floor(StageBucket, bucket, floored)

	return BucketResult{
		Bucket:        bucket,
		Sensitivities: ws,
		K:             variance.Sqrt(),
		Concentration: concentration,
	}, nil
}

func bucketVariance(p ParameterProvider, scheme BucketScheme, ws []WeightedSensitivity) (ensemble.Vector, error) {
	sum := ensemble.Vector{}
	for k := range ws {
		sum = sum.Add(ws[k].Value.Square())
		for l := k + 1; l < len(ws); l++ {
			rho, err := scheme.Correlation(p, ws[k].Coordinate, ws[l].Coordinate)
			if err != nil {
				return ensemble.Vector{}, err
			}
			f := concentrationRatio(ws[k].Concentration, ws[l].Concentration)
			sum = sum.Add(ws[k].Value.Mul(ws[l].Value).Mul(f).Scale(2 * rho))
		}
	}
	return sum, nil
}

func aggregateGroup(p ParameterProvider, scheme BucketScheme, bucket string, members []NetSensitivity, diag *Diagnostics) (BucketResult, error) {
	ws, cr, err := scheme.Weigh(p, members)
	if err != nil {
		return BucketResult{}, err
	}
	return AggregateBucket(p, scheme, bucket, ws, cr, diag)
}

type bucketGroup struct {
	bucket  string
	members []NetSensitivity
}

// groupByBucket keeps the canonical order of nets, which is sorted by bucket first
// within one risk class and margin type.
func groupByBucket(nets []NetSensitivity) []bucketGroup {
	var groups []bucketGroup
	for _, n := range nets {
		if len(groups) == 0 || groups[len(groups)-1].bucket != n.Coordinate.Bucket {
			groups = append(groups, bucketGroup{bucket: n.Coordinate.Bucket})
		}
		last := &groups[len(groups)-1]
		last.members = append(last.members, n)
	}
	return groups
}
