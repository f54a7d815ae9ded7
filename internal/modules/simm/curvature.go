package simm

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/simm/pkg/ensemble"
)

// curvatureQuantile is Φ⁻¹(0.995).
var curvatureQuantile = distuv.UnitNormal.Quantile(0.995)

// CurvatureLambda returns λ = (θ + 1)(z² − 1) − θ.
func CurvatureLambda(theta ensemble.Vector) ensemble.Vector {
	z2 := curvatureQuantile*curvatureQuantile - 1
	return theta.Map(func(t float64) float64 {
		return (t+1)*z2 - t
	})
}

// curvatureTheta returns θ = min(0, ΣCVR / Σ|CVR|), with θ = 0 where Σ|CVR| = 0.
func curvatureTheta(sum, sumAbs ensemble.Vector) ensemble.Vector {
	return ensemble.Zip(sum, sumAbs, func(s, a float64) float64 {
		if a == 0 {
			return 0
		}
		return math.Min(0, s/a)
	})
}

// CombineCurvature computes the curvature margin of one risk class. Residual and
// non-residual partitions each get their own θ and λ and are floored separately:
//
//	max(0, λ·M + ΣCVR)
//
// where M is the variance-covariance figure of the partition built from squared
// vega correlations. An empty partition contributes zero.
func CombineCurvature(p ParameterProvider, scheme BucketScheme, rc RiskClass, buckets []BucketResult, diag *Diagnostics) (ensemble.Vector, error) {
	regular, residual := splitResidual(rc, buckets)
	sc := scopeOf(buckets, diag)

	margin := ensemble.Vector{}
	if len(regular) > 0 {
		variance, err := crossBucketVariance(p, scheme, rc, regular)
		if err != nil {
			return ensemble.Vector{}, err
		}
		variance, floored := variance.FloorZero()
		sc.floor(StageCurvature, "", floored)
		margin = margin.Add(curvatureMargin(regular, variance.Sqrt()))
	}
	if residual != nil {
		margin = margin.Add(curvatureMargin([]BucketResult{*residual}, residual.K))
	}
	return margin, nil
}

func curvatureMargin(buckets []BucketResult, m ensemble.Vector) ensemble.Vector {
	sum := ensemble.Vector{}
	sumAbs := ensemble.Vector{}
	for _, b := range buckets {
		for _, ws := range b.Sensitivities {
			sum = sum.Add(ws.Value)
			sumAbs = sumAbs.Add(ws.Value.Abs())
		}
	}
	lambda := CurvatureLambda(curvatureTheta(sum, sumAbs))
	out, _ := lambda.Mul(m).Add(sum).FloorZero()
	return out
}
