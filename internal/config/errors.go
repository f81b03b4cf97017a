package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a structural setting that cannot produce a
// working layer. Constructors return it before allocating anything.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Invalid builds a ConfigurationError.
func Invalid(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// Validate checks the settings that every consumer relies on and returns all
// violations joined.
func (c Config) Validate() error {
	var errs []error

	m := c.Model
	if m.DModel <= 0 {
		errs = append(errs, Invalid("model.d_model", m.DModel, "must be > 0"))
	}

	if m.EmbeddingDim != 0 && m.EmbeddingDim != m.DModel {
		errs = append(errs, Invalid("model.embedding_dim", m.EmbeddingDim, fmt.Sprintf("must equal model.d_model (%d)", m.DModel)))
	}

	if m.DConv <= 0 {
		errs = append(errs, Invalid("model.d_conv", m.DConv, "must be > 0"))
	}

	if err := CheckDecayBounds(m.RMin, m.RMax); err != nil {
		errs = append(errs, err)
	}

	if m.Dropout < 0 || m.Dropout >= 1 {
		errs = append(errs, Invalid("model.dropout", m.Dropout, "must be in [0, 1)"))
	}

	if c.Runtime.Workers < 0 {
		errs = append(errs, Invalid("runtime.workers", c.Runtime.Workers, "must be >= 0"))
	}

	if c.Scan.BlockSize < 2 {
		errs = append(errs, Invalid("scan.block_size", c.Scan.BlockSize, "must be >= 2"))
	}

	return errors.Join(errs...)
}

// CheckDecayBounds requires 0 < rMin < rMax < 1.
func CheckDecayBounds(rMin, rMax float64) error {
	if !(rMin > 0 && rMin < 1) {
		return Invalid("model.r_min", rMin, "must be in (0, 1)")
	}

	if !(rMax > rMin && rMax < 1) {
		return Invalid("model.r_max", rMax, fmt.Sprintf("must be in (r_min=%g, 1)", rMin))
	}

	return nil
}
