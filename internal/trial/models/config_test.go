package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "minimizer/pkg/domain-errors"
)

func twoByTwo() []Variable {
	return []Variable{
		{Name: "gender", Values: []string{"male", "female"}},
		{Name: "age", Values: []string{"young", "old"}},
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("applies default seed and trims names", func(t *testing.T) {
		cfg, err := NewConfig([]string{" A", "B "}, twoByTwo(), 0.8, "", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, cfg.Arms)
		assert.Equal(t, DefaultSeed, cfg.Seed)
	})

	t.Run("does not alias caller slices", func(t *testing.T) {
		arms := []string{"A", "B"}
		cfg, err := NewConfig(arms, twoByTwo(), 0.8, "s", true)
		require.NoError(t, err)
		arms[0] = "Z"
		assert.Equal(t, "A", cfg.Arms[0])
	})

	tests := []struct {
		name      string
		arms      []string
		variables []Variable
		weight    float64
	}{
		{"single arm", []string{"A"}, twoByTwo(), 0.5},
		{"duplicate arm", []string{"A", "A"}, twoByTwo(), 0.5},
		{"empty arm", []string{"A", " "}, twoByTwo(), 0.5},
		{"no variables", []string{"A", "B"}, nil, 0.5},
		{"reserved variable name", []string{"A", "B"}, []Variable{{Name: "arm", Values: []string{"x", "y"}}}, 0.5},
		{"single value", []string{"A", "B"}, []Variable{{Name: "g", Values: []string{"x"}}}, 0.5},
		{"duplicate value", []string{"A", "B"}, []Variable{{Name: "g", Values: []string{"x", "x"}}}, 0.5},
		{"duplicate variable", []string{"A", "B"}, append(twoByTwo(), Variable{Name: "age", Values: []string{"a", "b"}}), 0.5},
		{"weight above one", []string{"A", "B"}, twoByTwo(), 1.5},
		{"negative weight", []string{"A", "B"}, twoByTwo(), -0.1},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.arms, tt.variables, tt.weight, "s", false)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestCheckCharacteristics(t *testing.T) {
	cfg, err := NewConfig([]string{"A", "B"}, twoByTwo(), 1, "s", true)
	require.NoError(t, err)

	t.Run("accepts exact key set", func(t *testing.T) {
		assert.NoError(t, cfg.CheckCharacteristics(map[string]string{"gender": "male", "age": "old"}))
	})

	t.Run("missing key is a schema mismatch", func(t *testing.T) {
		err := cfg.CheckCharacteristics(map[string]string{"gender": "male"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
		assert.Contains(t, err.Error(), "age")
	})

	t.Run("extra key is a schema mismatch", func(t *testing.T) {
		err := cfg.CheckCharacteristics(map[string]string{"gender": "male", "age": "old", "site": "x"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
		assert.Contains(t, err.Error(), "site")
	})

	t.Run("schema mismatch wins over bad values", func(t *testing.T) {
		err := cfg.CheckCharacteristics(map[string]string{"gender": "unknown"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
	})

	t.Run("out-of-domain value", func(t *testing.T) {
		err := cfg.CheckCharacteristics(map[string]string{"gender": "unknown", "age": "old"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidValue))
		assert.Contains(t, err.Error(), "unknown")
		assert.Contains(t, err.Error(), "[male female]")
	})
}

func TestCheckArm(t *testing.T) {
	cfg, err := NewConfig([]string{"A", "B"}, twoByTwo(), 1, "s", false)
	require.NoError(t, err)
	assert.NoError(t, cfg.CheckArm("B"))
	assert.True(t, dErrors.HasCode(cfg.CheckArm("C"), dErrors.CodeInvalidArm))
}
