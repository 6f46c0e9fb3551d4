package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "minimizer/pkg/domain-errors"
)

func TestTrialArchive(t *testing.T) {
	cfg, err := NewConfig([]string{"A", "B"}, twoByTwo(), 0.8, "", true)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	trial, err := NewTrial("T1", cfg, "alice", now)
	require.NoError(t, err)
	require.NoError(t, trial.CanMutate())

	trial.ApplyArchive(now.Add(time.Hour))
	assert.True(t, trial.IsArchived())
	assert.True(t, dErrors.HasCode(trial.CanMutate(), dErrors.CodeConflict))
	assert.True(t, trial.Summary().Archived)
}

func TestTrialCloneIsDeep(t *testing.T) {
	cfg, err := NewConfig([]string{"A", "B"}, twoByTwo(), 0.8, "", true)
	require.NoError(t, err)
	trial, err := NewTrial("T1", cfg, "alice", time.Now())
	require.NoError(t, err)
	require.NoError(t, trial.Registry.Add(patient("P1", "A", true)))

	c := trial.Clone()
	require.NoError(t, c.Registry.Deactivate("P1"))
	c.ApplyArchive(time.Now())

	assert.Equal(t, 1, trial.Registry.CountActive())
	assert.False(t, trial.IsArchived())
}

func TestNewTrialRejectsEmptyID(t *testing.T) {
	cfg, err := NewConfig([]string{"A", "B"}, twoByTwo(), 0.8, "", true)
	require.NoError(t, err)
	_, err = NewTrial("", cfg, "alice", time.Now())
	assert.Error(t, err)
}
