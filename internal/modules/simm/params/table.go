// Package params provides a YAML-backed SIMM parameter table implementing
// simm.ParameterProvider.
package params

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/simm/internal/modules/simm"
	"github.com/aristath/simm/pkg/embedded"
)

// regularGroup is the volatility group of currencies not listed elsewhere.
const regularGroup = "regular"

// vegaScale converts a delta risk weight into the implied volatility scaling
// applied to vega sensitivities: √(365/14) / Φ⁻¹(0.99).
var vegaScale = math.Sqrt(365.0/14) / distuv.UnitNormal.Quantile(0.99)

// Matrix is a labelled square matrix.
type Matrix struct {
	Labels []string    `yaml:"labels"`
	Values [][]float64 `yaml:"values"`
}

func (m Matrix) index(label string) (int, bool) {
	for i, l := range m.Labels {
		if l == label {
			return i, true
		}
	}
	return 0, false
}

// RatesParams holds the interest rate calibration.
type RatesParams struct {
	Tenors                   []string             `yaml:"tenors"`
	VolatilityGroups         map[string][]string  `yaml:"volatility_groups"`
	DeltaWeights             map[string][]float64 `yaml:"delta_weights"`
	VegaWeight               float64              `yaml:"vega_weight"`
	DeltaThresholds          map[string]float64   `yaml:"delta_thresholds"`
	VegaThresholds           map[string]float64   `yaml:"vega_thresholds"`
	TenorCorrelation         [][]float64          `yaml:"tenor_correlation"`
	SubCurveCorrelation      float64              `yaml:"sub_curve_correlation"`
	CrossCurrencyCorrelation float64              `yaml:"cross_currency_correlation"`
}

// BucketParams holds the calibration of one non-rates bucket.
type BucketParams struct {
	DeltaWeight    float64 `yaml:"delta_weight"`
	VegaWeight     float64 `yaml:"vega_weight"`
	DeltaThreshold float64 `yaml:"delta_threshold"`
	VegaThreshold  float64 `yaml:"vega_threshold"`
	Correlation    float64 `yaml:"correlation"`
}

// ClassParams holds the calibration of a non-rates risk class.
type ClassParams struct {
	Buckets                   map[string]BucketParams `yaml:"buckets"`
	SameQualifierCorrelation  float64                 `yaml:"same_qualifier_correlation"`
	HistoricalVolatilityRatio float64                 `yaml:"historical_volatility_ratio"`
	ScaleVega                 bool                    `yaml:"scale_vega"`
	CrossBucket               Matrix                  `yaml:"cross_bucket"`
	CrossBucketDefault        float64                 `yaml:"cross_bucket_default"`
}

// Table is a SIMM calibration. It is read-only after Load and safe for
// concurrent use.
type Table struct {
	Version      string                 `yaml:"version"`
	RiskClasses  Matrix                 `yaml:"risk_class_correlation"`
	InterestRate RatesParams            `yaml:"interest_rate"`
	Classes      map[string]ClassParams `yaml:"classes"`

	classes    map[simm.RiskClass]ClassParams
	tenorIndex map[string]int
	currencies map[string]string
	riskClass  [6][6]float64
}

var _ simm.ParameterProvider = (*Table)(nil)

// Load decodes and validates a parameter table.
func Load(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to decode parameter table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile loads a parameter table from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter table: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Default loads the parameter table compiled into the binary.
func Default() (*Table, error) {
	raw, err := embedded.Files.ReadFile(embedded.DefaultParamsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded parameter table: %w", err)
	}
	return Load(bytes.NewReader(raw))
}

// Resolve loads path, or the embedded table when path is empty.
func Resolve(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// RiskWeight returns the delta or vega risk weight, or the curvature scaling
// of the coordinate's tenor.
func (t *Table) RiskWeight(c simm.Coordinate) (float64, error) {
	if c.MarginType == simm.Curvature {
		return curvatureScale(c)
	}
	if c.RiskClass.IsRates() {
		switch c.MarginType {
		case simm.Delta:
			i, err := t.tenor(c)
			if err != nil {
				return 0, err
			}
			return t.InterestRate.DeltaWeights[t.volatilityGroup(c.Bucket)][i], nil
		case simm.Vega:
			return t.InterestRate.VegaWeight, nil
		}
		return 0, simm.Configf("risk weight", "unsupported margin type %s", c.MarginType)
	}

	b, err := t.bucket(c.RiskClass, c.Bucket)
	if err != nil {
		return 0, err
	}
	switch c.MarginType {
	case simm.Delta:
		return b.DeltaWeight, nil
	case simm.Vega:
		return b.VegaWeight, nil
	}
	return 0, simm.Configf("risk weight", "unsupported margin type %s", c.MarginType)
}

// AdditionalWeight is 1 except for vega of classes with ScaleVega, where it is
// HVR × RW_delta × √(365/14) / Φ⁻¹(0.99).
func (t *Table) AdditionalWeight(c simm.Coordinate) (float64, error) {
	if c.MarginType != simm.Vega || c.RiskClass.IsRates() {
		return 1, nil
	}
	cp, err := t.class(c.RiskClass)
	if err != nil {
		return 0, err
	}
	if !cp.ScaleVega {
		return 1, nil
	}
	b, err := t.bucket(c.RiskClass, c.Bucket)
	if err != nil {
		return 0, err
	}
	return cp.HistoricalVolatilityRatio * b.DeltaWeight * vegaScale, nil
}

// ConcentrationThreshold returns the delta threshold for delta and the vega
// threshold otherwise.
func (t *Table) ConcentrationThreshold(c simm.Coordinate) (float64, error) {
	if c.RiskClass.IsRates() {
		group := t.volatilityGroup(c.Bucket)
		if c.MarginType == simm.Delta {
			return t.InterestRate.DeltaThresholds[group], nil
		}
		return t.InterestRate.VegaThresholds[group], nil
	}

	b, err := t.bucket(c.RiskClass, c.Bucket)
	if err != nil {
		return 0, err
	}
	if c.MarginType == simm.Delta {
		return b.DeltaThreshold, nil
	}
	return b.VegaThreshold, nil
}

// IntraBucketCorrelation returns the tenor correlation, scaled by the
// sub-curve correlation across curves, for interest rate. Other classes use
// the same-qualifier correlation for one issuer or underlying and the bucket
// correlation otherwise.
func (t *Table) IntraBucketCorrelation(a, b simm.Coordinate) (float64, error) {
	if a.RiskClass != b.RiskClass || a.Bucket != b.Bucket {
		return 0, simm.Configf("intra-bucket correlation", "%s and %s are not in one bucket", a, b)
	}
	if a.RiskClass.IsRates() {
		i, err := t.tenor(a)
		if err != nil {
			return 0, err
		}
		j, err := t.tenor(b)
		if err != nil {
			return 0, err
		}
		rho := t.InterestRate.TenorCorrelation[i][j]
		if !strings.EqualFold(a.SubCurve, b.SubCurve) {
			rho *= t.InterestRate.SubCurveCorrelation
		}
		return rho, nil
	}

	cp, err := t.class(a.RiskClass)
	if err != nil {
		return 0, err
	}
	if a.Qualifier == b.Qualifier {
		return cp.SameQualifierCorrelation, nil
	}
	bp, err := t.bucket(a.RiskClass, a.Bucket)
	if err != nil {
		return 0, err
	}
	return bp.Correlation, nil
}

// CrossBucketCorrelation returns the cross-currency correlation for interest
// rate and the cross-bucket matrix entry, or its default, for other classes.
func (t *Table) CrossBucketCorrelation(rc simm.RiskClass, bucketA, bucketB string) (float64, error) {
	if bucketA == bucketB {
		return 1, nil
	}
	if rc.IsRates() {
		return t.InterestRate.CrossCurrencyCorrelation, nil
	}
	if bucketA == simm.ResidualBucket || bucketB == simm.ResidualBucket {
		return 0, simm.Configf("cross-bucket correlation", "%s residual bucket has no cross-bucket correlation", rc)
	}

	cp, err := t.class(rc)
	if err != nil {
		return 0, err
	}
	i, okA := cp.CrossBucket.index(bucketA)
	j, okB := cp.CrossBucket.index(bucketB)
	if okA && okB {
		return cp.CrossBucket.Values[i][j], nil
	}
	if _, err := t.bucket(rc, bucketA); err != nil {
		return 0, err
	}
	if _, err := t.bucket(rc, bucketB); err != nil {
		return 0, err
	}
	return cp.CrossBucketDefault, nil
}

// RiskClassCorrelation returns the correlation of two risk classes.
func (t *Table) RiskClassCorrelation(a, b simm.RiskClass) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, simm.Configf("risk class correlation", "unknown pair %s/%s", a, b)
	}
	return t.riskClass[a][b], nil
}

func (t *Table) class(rc simm.RiskClass) (ClassParams, error) {
	cp, ok := t.classes[rc]
	if !ok {
		return ClassParams{}, simm.Configf("parameters", "no calibration for risk class %s", rc)
	}
	return cp, nil
}

func (t *Table) bucket(rc simm.RiskClass, bucket string) (BucketParams, error) {
	cp, err := t.class(rc)
	if err != nil {
		return BucketParams{}, err
	}
	b, ok := cp.Buckets[bucket]
	if !ok {
		return BucketParams{}, simm.Configf("parameters", "no calibration for %s bucket %q", rc, bucket)
	}
	return b, nil
}

func (t *Table) tenor(c simm.Coordinate) (int, error) {
	i, ok := t.tenorIndex[strings.ToLower(c.Vertex)]
	if !ok {
		return 0, simm.Configf("parameters", "%s: unknown tenor %q", c, c.Vertex)
	}
	return i, nil
}

func (t *Table) volatilityGroup(currency string) string {
	if g, ok := t.currencies[strings.ToUpper(currency)]; ok {
		return g
	}
	return regularGroup
}

// curvatureScale is 0.5 × min(1, 14 / days(tenor)).
func curvatureScale(c simm.Coordinate) (float64, error) {
	days, ok := simm.TenorDays(c.Vertex)
	if !ok || days <= 0 {
		return 0, simm.Configf("curvature weight", "%s: curvature needs a tenor vertex", c)
	}
	return 0.5 * math.Min(1, 14/days), nil
}
