// Package simm implements the ISDA Standard Initial Margin Model aggregation:
// weighted sensitivities are combined into bucket figures, bucket figures into
// risk-class margins, and risk-class margins into product-class and total margin.
//
// Every value flowing through the aggregation is an ensemble.Vector, so the same
// code computes a deterministic margin or one margin per simulated outcome.
package simm

import (
	"fmt"
	"strings"
)

// ResidualBucket is the bucket key of the catch-all bucket of a risk class.
const ResidualBucket = "Residual"

// RiskClass is one of the six SIMM risk classes.
type RiskClass int

const (
	InterestRate RiskClass = iota
	CreditQualifying
	CreditNonQualifying
	Equity
	Commodity
	FX
)

// RiskClasses lists every risk class in canonical order.
var RiskClasses = []RiskClass{InterestRate, CreditQualifying, CreditNonQualifying, Equity, Commodity, FX}

func (rc RiskClass) String() string {
	switch rc {
	case InterestRate:
		return "InterestRate"
	case CreditQualifying:
		return "CreditQualifying"
	case CreditNonQualifying:
		return "CreditNonQualifying"
	case Equity:
		return "Equity"
	case Commodity:
		return "Commodity"
	case FX:
		return "FX"
	}
	return fmt.Sprintf("RiskClass(%d)", int(rc))
}

// Valid reports whether rc is one of the declared risk classes.
func (rc RiskClass) Valid() bool {
	return rc >= InterestRate && rc <= FX
}

// IsRates reports whether rc uses the interest-rate aggregation variant.
func (rc RiskClass) IsRates() bool {
	return rc == InterestRate
}

// ParseRiskClass accepts the canonical names plus the common CRIF spellings.
func ParseRiskClass(s string) (RiskClass, error) {
	switch normalize(s) {
	case "interestrate", "rates", "ir", "riskirdelta", "riskirvol", "riskircurv":
		return InterestRate, nil
	case "creditqualifying", "creditq", "cq":
		return CreditQualifying, nil
	case "creditnonqualifying", "creditnonq", "cnq":
		return CreditNonQualifying, nil
	case "equity", "eq":
		return Equity, nil
	case "commodity", "comm", "co":
		return Commodity, nil
	case "fx":
		return FX, nil
	}
	return 0, &ConfigError{Op: "parse risk class", Detail: fmt.Sprintf("unknown risk class %q", s)}
}

// MarginType is the kind of sensitivity: delta, vega or curvature.
type MarginType int

const (
	Delta MarginType = iota
	Vega
	Curvature
)

// MarginTypes lists every margin type in canonical order.
var MarginTypes = []MarginType{Delta, Vega, Curvature}

func (mt MarginType) String() string {
	switch mt {
	case Delta:
		return "Delta"
	case Vega:
		return "Vega"
	case Curvature:
		return "Curvature"
	}
	return fmt.Sprintf("MarginType(%d)", int(mt))
}

// Valid reports whether mt is one of the declared margin types.
func (mt MarginType) Valid() bool {
	return mt >= Delta && mt <= Curvature
}

// ParseMarginType parses a margin type name.
func ParseMarginType(s string) (MarginType, error) {
	switch normalize(s) {
	case "delta":
		return Delta, nil
	case "vega", "vol":
		return Vega, nil
	case "curvature", "curv":
		return Curvature, nil
	}
	return 0, &ConfigError{Op: "parse margin type", Detail: fmt.Sprintf("unknown margin type %q", s)}
}

// ProductClass is one of the four SIMM product classes.
type ProductClass int

const (
	RatesFX ProductClass = iota
	Credit
	EquityProduct
	CommodityProduct
)

// ProductClasses lists every product class in canonical order.
var ProductClasses = []ProductClass{RatesFX, Credit, EquityProduct, CommodityProduct}

func (pc ProductClass) String() string {
	switch pc {
	case RatesFX:
		return "RatesFX"
	case Credit:
		return "Credit"
	case EquityProduct:
		return "Equity"
	case CommodityProduct:
		return "Commodity"
	}
	return fmt.Sprintf("ProductClass(%d)", int(pc))
}

// Valid reports whether pc is one of the declared product classes.
func (pc ProductClass) Valid() bool {
	return pc >= RatesFX && pc <= CommodityProduct
}

// ParseProductClass parses a product class name.
func ParseProductClass(s string) (ProductClass, error) {
	switch normalize(s) {
	case "ratesfx", "rates", "fx":
		return RatesFX, nil
	case "credit":
		return Credit, nil
	case "equity":
		return EquityProduct, nil
	case "commodity":
		return CommodityProduct, nil
	}
	return 0, &ConfigError{Op: "parse product class", Detail: fmt.Sprintf("unknown product class %q", s)}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Coordinate identifies one risk factor. It is a comparable value type and can be
// used as a map key; two coordinates are equal iff every field matches.
type Coordinate struct {
	Vertex       string
	SubCurve     string
	Qualifier    string
	Bucket       string
	RiskClass    RiskClass
	MarginType   MarginType
	ProductClass ProductClass
}

// StripVertex returns c with an empty vertex.
func (c Coordinate) StripVertex() Coordinate {
	c.Vertex = ""
	return c
}

// WithMarginType returns c with the margin type replaced.
func (c Coordinate) WithMarginType(mt MarginType) Coordinate {
	c.MarginType = mt
	return c
}

// IsResidual reports whether c sits in the residual bucket.
func (c Coordinate) IsResidual() bool {
	return c.Bucket == ResidualBucket
}

func (c Coordinate) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/%s/%s/%s", c.ProductClass, c.RiskClass, c.MarginType, c.Bucket, c.Qualifier)
	if c.Vertex != "" {
		b.WriteString("/" + c.Vertex)
	}
	if c.SubCurve != "" {
		b.WriteString("/" + c.SubCurve)
	}
	return b.String()
}

// Compare orders coordinates canonically. Every sum in the aggregation runs in
// this order so repeated computations are bit-identical.
func Compare(a, b Coordinate) int {
	switch {
	case a.ProductClass != b.ProductClass:
		return int(a.ProductClass) - int(b.ProductClass)
	case a.RiskClass != b.RiskClass:
		return int(a.RiskClass) - int(b.RiskClass)
	case a.MarginType != b.MarginType:
		return int(a.MarginType) - int(b.MarginType)
	}
	if c := strings.Compare(a.Bucket, b.Bucket); c != 0 {
		return c
	}
	if c := strings.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	if c := compareVertex(a.Vertex, b.Vertex); c != 0 {
		return c
	}
	return strings.Compare(a.SubCurve, b.SubCurve)
}

// compareVertex orders tenor labels by maturity when both parse, lexically otherwise.
func compareVertex(a, b string) int {
	da, okA := TenorDays(a)
	db, okB := TenorDays(b)
	if okA && okB && da != db {
		if da < db {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// TenorDays converts a tenor label such as "2w", "3m" or "10y" to calendar days.
func TenorDays(label string) (float64, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if len(label) < 2 {
		return 0, false
	}
	var n float64
	if _, err := fmt.Sscanf(label[:len(label)-1], "%g", &n); err != nil {
		return 0, false
	}
	switch label[len(label)-1] {
	case 'd':
		return n, true
	case 'w':
		return 7 * n, true
	case 'm':
		return 365.0 / 12 * n, true
	case 'y':
		return 365 * n, true
	}
	return 0, false
}

func (rc RiskClass) MarshalText() ([]byte, error) {
	if !rc.Valid() {
		return nil, Configf("marshal risk class", "invalid value %d", int(rc))
	}
	return []byte(rc.String()), nil
}

func (rc *RiskClass) UnmarshalText(text []byte) error {
	v, err := ParseRiskClass(string(text))
	if err != nil {
		return err
	}
	*rc = v
	return nil
}

func (mt MarginType) MarshalText() ([]byte, error) {
	if !mt.Valid() {
		return nil, Configf("marshal margin type", "invalid value %d", int(mt))
	}
	return []byte(mt.String()), nil
}

func (mt *MarginType) UnmarshalText(text []byte) error {
	v, err := ParseMarginType(string(text))
	if err != nil {
		return err
	}
	*mt = v
	return nil
}

func (pc ProductClass) MarshalText() ([]byte, error) {
	if !pc.Valid() {
		return nil, Configf("marshal product class", "invalid value %d", int(pc))
	}
	return []byte(pc.String()), nil
}

func (pc *ProductClass) UnmarshalText(text []byte) error {
	v, err := ParseProductClass(string(text))
	if err != nil {
		return err
	}
	*pc = v
	return nil
}
