package models

import (
	"fmt"
	"slices"
	"strings"

	dErrors "minimizer/pkg/domain-errors"
)

// DefaultSeed is used when a trial is configured without a seed.
const DefaultSeed = "default_seed"

// reservedVariable cannot be used as a balancing variable name because it
// collides with the arm column in exports.
const reservedVariable = "arm"

// Variable is a categorical prognostic factor balanced across arms.
type Variable struct {
	Name   string   `json:"name" yaml:"name" validate:"required"`
	Values []string `json:"values" yaml:"values" validate:"min=2,dive,required"`
}

// Allows reports whether value is one of the variable's categories.
func (v Variable) Allows(value string) bool {
	return slices.Contains(v.Values, value)
}

// Config is the immutable allocation configuration of a trial.
//
// Invariants:
//   - Arms has at least two distinct, non-empty names
//   - at least one Variable; names distinct, non-empty, never "arm"
//   - each Variable has at least two distinct, non-empty values
//   - Weight is in [0,1]
//   - Seed is non-empty after Normalize
type Config struct {
	Arms       []string   `json:"arms" yaml:"arms"`
	Variables  []Variable `json:"variables" yaml:"variables"`
	Weight     float64    `json:"weight" yaml:"weight"`
	Seed       string     `json:"seed" yaml:"seed"`
	StrictMode bool       `json:"strict_mode" yaml:"strict_mode"`
}

// NewConfig normalises and validates a configuration.
func NewConfig(arms []string, variables []Variable, weight float64, seed string, strict bool) (Config, error) {
	cfg := Config{
		Arms:       slices.Clone(arms),
		Variables:  make([]Variable, len(variables)),
		Weight:     weight,
		Seed:       seed,
		StrictMode: strict,
	}
	for i, v := range variables {
		cfg.Variables[i] = Variable{Name: v.Name, Values: slices.Clone(v.Values)}
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize trims names and applies the default seed.
func (c *Config) Normalize() {
	for i := range c.Arms {
		c.Arms[i] = strings.TrimSpace(c.Arms[i])
	}
	for i := range c.Variables {
		c.Variables[i].Name = strings.TrimSpace(c.Variables[i].Name)
		for j := range c.Variables[i].Values {
			c.Variables[i].Values[j] = strings.TrimSpace(c.Variables[i].Values[j])
		}
	}
	if c.Seed == "" {
		c.Seed = DefaultSeed
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if len(c.Arms) < 2 {
		return dErrors.New(dErrors.CodeInvariantViolation, "a trial needs at least two arms")
	}
	if err := distinctNonEmpty("arm", c.Arms); err != nil {
		return err
	}
	if len(c.Variables) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "a trial needs at least one minimisation variable")
	}
	names := make([]string, len(c.Variables))
	for i, v := range c.Variables {
		if strings.EqualFold(v.Name, reservedVariable) {
			return dErrors.New(dErrors.CodeInvariantViolation, `"arm" cannot be used as a variable name`)
		}
		if len(v.Values) < 2 {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("variable %q needs at least two values", v.Name))
		}
		if err := distinctNonEmpty(fmt.Sprintf("value of variable %q", v.Name), v.Values); err != nil {
			return err
		}
		names[i] = v.Name
	}
	if err := distinctNonEmpty("variable name", names); err != nil {
		return err
	}
	if c.Weight < 0 || c.Weight > 1 {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("weight must be between 0 and 1, got %v", c.Weight))
	}
	if c.Seed == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "seed is required")
	}
	return nil
}

// HasArm reports whether arm is configured.
func (c Config) HasArm(arm string) bool {
	return slices.Contains(c.Arms, arm)
}

// Variable returns the named variable.
func (c Config) Variable(name string) (Variable, bool) {
	for _, v := range c.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// VariableNames returns the variable names in configured order.
func (c Config) VariableNames() []string {
	names := make([]string, len(c.Variables))
	for i, v := range c.Variables {
		names[i] = v.Name
	}
	return names
}

// CheckCharacteristics verifies that chars has exactly the configured variables
// and that every value is allowed. Key-set problems are reported before value
// problems.
func (c Config) CheckCharacteristics(chars map[string]string) error {
	missing := make([]string, 0)
	for _, v := range c.Variables {
		if _, ok := chars[v.Name]; !ok {
			missing = append(missing, v.Name)
		}
	}
	extra := make([]string, 0)
	for k := range chars {
		if _, ok := c.Variable(k); !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		slices.Sort(extra)
		return dErrors.New(dErrors.CodeSchemaMismatch, fmt.Sprintf(
			"characteristics do not match trial variables %v: missing %v, unexpected %v",
			c.VariableNames(), missing, extra))
	}
	for _, v := range c.Variables {
		if value := chars[v.Name]; !v.Allows(value) {
			return dErrors.New(dErrors.CodeInvalidValue, fmt.Sprintf(
				"invalid value %q for %s: should be one of %v", value, v.Name, v.Values))
		}
	}
	return nil
}

// CheckArm returns InvalidArm when arm is not configured.
func (c Config) CheckArm(arm string) error {
	if !c.HasArm(arm) {
		return dErrors.New(dErrors.CodeInvalidArm,
			fmt.Sprintf("arm %q is not one of the trial arms %v", arm, c.Arms))
	}
	return nil
}

func distinctNonEmpty(what string, values []string) error {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, what+" cannot be empty")
		}
		if _, dup := seen[v]; dup {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("duplicate %s %q", what, v))
		}
		seen[v] = struct{}{}
	}
	return nil
}
