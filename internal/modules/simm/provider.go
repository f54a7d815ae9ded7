package simm

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a gap in the parameter tables or an unsupported
	// risk-class / margin-type / bucket combination. It is never retried.
	ErrConfiguration = errors.New("simm: configuration error")

	// ErrEnsembleMismatch is returned when gradient values carry different
	// outcome counts.
	ErrEnsembleMismatch = errors.New("simm: ensemble size mismatch")
)

// ConfigError describes a configuration error.
type ConfigError struct {
	Op     string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("simm: %s: %s", e.Op, e.Detail)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Configf builds a ConfigError.
func Configf(op, format string, args ...interface{}) error {
	return &ConfigError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ParameterProvider supplies the regulatory parameters. Implementations are
// queried concurrently and must not mutate state while a computation runs.
type ParameterProvider interface {
	// RiskWeight returns the risk weight of a coordinate.
	RiskWeight(c Coordinate) (float64, error)
	// AdditionalWeight is 1 except for vega outside interest rate and credit,
	// where it folds in the historical volatility ratio and the time scaling.
	AdditionalWeight(c Coordinate) (float64, error)
	// ConcentrationThreshold returns the concentration threshold of a coordinate.
	ConcentrationThreshold(c Coordinate) (float64, error)
	// IntraBucketCorrelation returns the correlation of two risk factors in one bucket.
	IntraBucketCorrelation(a, b Coordinate) (float64, error)
	// CrossBucketCorrelation returns the correlation of two buckets of a risk class.
	CrossBucketCorrelation(rc RiskClass, bucketA, bucketB string) (float64, error)
	// RiskClassCorrelation returns the correlation of two risk classes.
	RiskClassCorrelation(a, b RiskClass) (float64, error)
}
