package simm

import (
	"github.com/aristath/simm/pkg/ensemble"
)

// splitResidual separates the residual bucket from the others. Interest rate
// has no residual carve-out, so every bucket is regular there.
func splitResidual(rc RiskClass, buckets []BucketResult) (regular []BucketResult, residual *BucketResult) {
	for i := range buckets {
		if !rc.IsRates() && buckets[i].IsResidual() {
			residual = &buckets[i]
			continue
		}
		regular = append(regular, buckets[i])
	}
	return regular, residual
}

// crossBucketVariance returns Σ_b K_b² + Σ_{b≠c} S_b S_c g_bc ρ_bc, unfloored.
func crossBucketVariance(p ParameterProvider, scheme BucketScheme, rc RiskClass, buckets []BucketResult) (ensemble.Vector, error) {
	s := make([]ensemble.Vector, len(buckets))
	for i := range buckets {
		s[i] = buckets[i].S()
	}

	sum := ensemble.Vector{}
	for b := range buckets {
		sum = sum.Add(buckets[b].K.Square())
		for c := b + 1; c < len(buckets); c++ {
			rho, err := scheme.CrossCorrelation(p, rc, buckets[b].Bucket, buckets[c].Bucket)
			if err != nil {
				return ensemble.Vector{}, err
			}
			g := concentrationRatio(buckets[b].Concentration, buckets[c].Concentration)
			sum = sum.Add(s[b].Mul(s[c]).Mul(g).Scale(2 * rho))
		}
	}
	return sum, nil
}

// CombineBuckets turns the bucket results of one risk class and margin type into
// its delta or vega margin:
//
//	√(Σ_b K_b² + Σ_{b≠c} S_b S_c g_bc ρ_bc) + K_residual
//
// The residual bucket never enters the correlated sum.
func CombineBuckets(p ParameterProvider, scheme BucketScheme, rc RiskClass, buckets []BucketResult, diag *Diagnostics) (ensemble.Vector, error) {
	regular, residual := splitResidual(rc, buckets)

	variance, err := crossBucketVariance(p, scheme, rc, regular)
	if err != nil {
		return ensemble.Vector{}, err
	}
	variance, floored := variance.FloorZero()
	scopeOf(buckets, diag).floor(StageRiskClass, "", floored)

	margin := variance.Sqrt()
	if residual != nil {
		margin = margin.Add(residual.K)
	}
	return margin, nil
}

// scopeOf labels floor events with the classes of the first weighted sensitivity.
func scopeOf(buckets []BucketResult, diag *Diagnostics) scope {
	for _, b := range buckets {
		if len(b.Sensitivities) > 0 {
			c := b.Sensitivities[0].Coordinate
			return scope{diag: diag, pc: c.ProductClass, rc: c.RiskClass, mt: c.MarginType}
		}
	}
	return scope{diag: diag}
}
