package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	strict    Config
	nonStrict Config
	registry  *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	var err error
	s.strict, err = NewConfig([]string{"A", "B"}, twoByTwo(), 1, "s", true)
	s.Require().NoError(err)
	s.nonStrict = s.strict
	s.nonStrict.StrictMode = false

	s.registry, err = NewRegistry(
		patient("P1", "A", true),
		patient("P2", "B", true),
		patient("P3", "A", false),
	)
	s.Require().NoError(err)
}

func patient(pid, arm string, active bool) Patient {
	return Patient{
		ID:              id.PatientID(pid),
		Characteristics: map[string]string{"gender": "male", "age": "young"},
		Arm:             arm,
		Active:          active,
		EnrolledAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *RegistrySuite) TestCounts() {
	s.Equal(3, s.registry.CountTotal())
	s.Equal(2, s.registry.CountActive())
	s.Len(s.registry.ActivePatients(), 2)
}

func (s *RegistrySuite) TestAddRejectsDuplicate() {
	err := s.registry.Add(patient("P1", "B", true))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEntity))
	s.Equal(3, s.registry.CountTotal())
}

func (s *RegistrySuite) TestPreservesEnrollmentOrder() {
	s.Require().NoError(s.registry.Add(patient("P0", "B", true)))
	ids := make([]id.PatientID, 0)
	for _, p := range s.registry.Patients() {
		ids = append(ids, p.ID)
	}
	s.Equal([]id.PatientID{"P1", "P2", "P3", "P0"}, ids)
}

func (s *RegistrySuite) TestActiveToggling() {
	s.Run("deactivate excludes from active count only", func() {
		s.Require().NoError(s.registry.Deactivate("P1"))
		s.Equal(3, s.registry.CountTotal())
		s.Equal(1, s.registry.CountActive())
	})

	s.Run("reactivate restores", func() {
		s.Require().NoError(s.registry.Reactivate("P1"))
		s.Require().NoError(s.registry.Reactivate("P3"))
		s.Equal(3, s.registry.CountActive())
	})

	s.Run("unknown id", func() {
		s.True(dErrors.HasCode(s.registry.Deactivate("nope"), dErrors.CodeNotFound))
		s.True(dErrors.HasCode(s.registry.Reactivate("nope"), dErrors.CodeNotFound))
	})

	s.Run("arm is untouched", func() {
		p, ok := s.registry.Get("P1")
		s.Require().True(ok)
		s.Equal("A", p.Arm)
	})
}

func (s *RegistrySuite) TestReassignArm() {
	s.Run("forbidden in strict mode for the same patient and arm", func() {
		_, err := s.registry.ReassignArm(s.strict, "P1", "B")
		s.True(dErrors.HasCode(err, dErrors.CodeNotPermitted))
		p, _ := s.registry.Get("P1")
		s.Equal("A", p.Arm)
	})

	s.Run("allowed in non-strict mode", func() {
		previous, err := s.registry.ReassignArm(s.nonStrict, "P1", "B")
		s.Require().NoError(err)
		s.Equal("A", previous)
		p, _ := s.registry.Get("P1")
		s.Equal("B", p.Arm)
	})

	s.Run("unknown patient", func() {
		_, err := s.registry.ReassignArm(s.nonStrict, "nope", "B")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown arm", func() {
		_, err := s.registry.ReassignArm(s.nonStrict, "P2", "C")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArm))
	})
}

func (s *RegistrySuite) TestCloneIsIndependent() {
	c := s.registry.Clone()
	s.Require().NoError(c.Deactivate("P1"))
	s.Require().NoError(c.Add(patient("P9", "A", true)))

	s.Equal(2, s.registry.CountActive())
	s.False(s.registry.Has("P9"))
}

func (s *RegistrySuite) TestValidate() {
	s.NoError(s.registry.Validate(s.strict))

	bad := s.registry.Clone()
	s.Require().NoError(bad.Add(Patient{ID: "P4", Characteristics: map[string]string{"gender": "male", "age": "young"}, Arm: "Z"}))
	err := bad.Validate(s.strict)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArm))
	s.Contains(err.Error(), "P4")
}

func TestRegistryJSONKeepsOrder(t *testing.T) {
	reg, err := NewRegistry(patient("b", "A", true), patient("a", "B", false))
	require.NoError(t, err)

	data, err := json.Marshal(reg)
	require.NoError(t, err)

	var decoded Registry
	require.NoError(t, json.Unmarshal(data, &decoded))
	patients := decoded.Patients()
	require.Len(t, patients, 2)
	assert.Equal(t, id.PatientID("b"), patients[0].ID)
	assert.Equal(t, id.PatientID("a"), patients[1].ID)
	assert.False(t, patients[1].Active)
}

func TestEmptyRegistryMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(&Registry{})
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestRegistryJSONRejectsDuplicates(t *testing.T) {
	var r Registry
	err := json.Unmarshal([]byte(`[{"id":"x","arm":"A"},{"id":"x","arm":"B"}]`), &r)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateEntity))
}
