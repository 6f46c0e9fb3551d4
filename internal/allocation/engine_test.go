package allocation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

type EngineSuite struct {
	suite.Suite
	engine *Engine
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	s.engine = NewEngine(WithClock(func() time.Time { return s.now }))
}

func (s *EngineSuite) config(weight float64, strict bool, arms ...string) models.Config {
	if len(arms) == 0 {
		arms = []string{"A", "B"}
	}
	cfg, err := models.NewConfig(arms, []models.Variable{
		{Name: "gender", Values: []string{"male", "female"}},
		{Name: "age", Values: []string{"young", "old"}},
	}, weight, "test-seed", strict)
	s.Require().NoError(err)
	return cfg
}

func chars(gender, age string) map[string]string {
	return map[string]string{"gender": gender, "age": age}
}

func seeded(s *EngineSuite, patients ...models.Patient) *models.Registry {
	reg, err := models.NewRegistry(patients...)
	s.Require().NoError(err)
	return reg
}

func enrolled(pid, arm, gender, age string, active bool) models.Patient {
	return models.Patient{ID: id.PatientID(pid), Characteristics: chars(gender, age), Arm: arm, Active: active}
}

func (s *EngineSuite) TestFirstPatientUsesUniformDraw() {
	cfg := s.config(0.8, true)
	reg := &models.Registry{}

	alloc, err := s.engine.Allocate(cfg, reg, "P1", chars("male", "young"), "")
	s.Require().NoError(err)
	s.Equal(MethodFirst, alloc.Method)
	// Sample("P1", "test-seed") is about 0.071.
	s.Equal("A", alloc.Arm)

	p, ok := reg.Get("P1")
	s.Require().True(ok)
	s.True(p.Active)
	s.Equal(s.now, p.EnrolledAt)
}

func (s *EngineSuite) TestReplayability() {
	cfg := s.config(0.8, true, "A", "B", "C")
	run := func() []string {
		reg := &models.Registry{}
		arms := make([]string, 0, 40)
		genders := []string{"male", "female"}
		ages := []string{"young", "old"}
		for i := 0; i < 40; i++ {
			alloc, err := s.engine.Allocate(cfg, reg, id.PatientID(fmt.Sprintf("P%03d", i)),
				chars(genders[i%2], ages[(i/3)%2]), "")
			s.Require().NoError(err)
			arms = append(arms, alloc.Arm)
		}
		return arms
	}
	s.Equal(run(), run())
}

func (s *EngineSuite) TestSchemaEnforcement() {
	cfg := s.config(0.8, true)
	reg := seeded(s, enrolled("P0", "A", "male", "young", true))

	s.Run("missing variable", func() {
		_, err := s.engine.Allocate(cfg, reg, "P1", map[string]string{"gender": "male"}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
	})
	s.Run("extra key", func() {
		c := chars("male", "young")
		c["site"] = "leeds"
		_, err := s.engine.Allocate(cfg, reg, "P1", c, "")
		s.True(dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
	})
	s.Run("out-of-domain value", func() {
		_, err := s.engine.Allocate(cfg, reg, "P1", chars("other", "young"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidValue))
	})
	s.Equal(1, reg.CountTotal())
}

func (s *EngineSuite) TestDuplicateLeavesRegistryUnchanged() {
	cfg := s.config(0.8, true)
	reg := &models.Registry{}
	_, err := s.engine.Allocate(cfg, reg, "P1", chars("male", "young"), "")
	s.Require().NoError(err)

	_, err = s.engine.Allocate(cfg, reg, "P1", chars("female", "old"), "")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEntity))
	s.Equal(1, reg.CountTotal())
}

func (s *EngineSuite) TestValidationOrder() {
	strict := s.config(0.8, true)
	reg := seeded(s, enrolled("P0", "A", "male", "young", true))

	s.Run("duplicate before schema", func() {
		_, err := s.engine.Allocate(strict, reg, "P0", map[string]string{}, "")
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEntity))
	})
	s.Run("schema before manual arm", func() {
		_, err := s.engine.Allocate(strict, reg, "P1", map[string]string{}, "B")
		s.True(dErrors.HasCode(err, dErrors.CodeSchemaMismatch))
	})
	s.Run("value before manual arm", func() {
		_, err := s.engine.Allocate(strict, reg, "P1", chars("x", "young"), "B")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidValue))
	})
}

func (s *EngineSuite) TestManualArm() {
	reg := seeded(s, enrolled("P0", "A", "male", "young", true))

	s.Run("strict mode forbids manual arm", func() {
		_, err := s.engine.Allocate(s.config(0.8, true), reg, "P1", chars("male", "old"), "B")
		s.True(dErrors.HasCode(err, dErrors.CodeNotPermitted))
	})
	s.Run("unknown arm", func() {
		_, err := s.engine.Allocate(s.config(0.8, false), reg, "P1", chars("male", "old"), "Z")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArm))
	})
	s.Run("valid manual arm is honoured", func() {
		alloc, err := s.engine.Allocate(s.config(0.8, false), reg, "P1", chars("male", "old"), "A")
		s.Require().NoError(err)
		s.Equal(Allocation{Arm: "A", Method: MethodManual}, alloc)
	})
	s.Equal(2, reg.CountTotal())
}

func (s *EngineSuite) TestMinimisationUnderFullWeight() {
	cfg := s.config(1.0, true)
	reg := seeded(s,
		enrolled("P1", "A", "male", "young", true),
		enrolled("P2", "A", "male", "young", true),
		enrolled("P3", "A", "male", "young", true),
	)

	alloc, err := s.engine.Allocate(cfg, reg, "P4", chars("male", "old"), "")
	s.Require().NoError(err)
	s.Equal("B", alloc.Arm)
	s.Equal(MethodMinimisation, alloc.Method)
	s.Equal(map[string]int{"A": 3, "B": 0}, alloc.Scores)
}

func (s *EngineSuite) TestTieBreakOnlyOnGlobalTie() {
	cfg := s.config(1.0, true)
	// Registry is not empty, but no active patient shares the candidate's values.
	reg := seeded(s, enrolled("P0", "A", "female", "old", false))

	alloc, err := s.engine.Allocate(cfg, reg, "T1", chars("female", "old"), "")
	s.Require().NoError(err)
	s.Equal(MethodTieBreak, alloc.Method)
	// Sample("minimisation_tie_[female, old]", "test-seed") is about 0.757.
	s.Equal("B", alloc.Arm)
	s.Equal(map[string]int{"A": 0, "B": 0}, alloc.Scores)
}

func (s *EngineSuite) TestPartialTieTakesFirstMinimumInOrder() {
	cfg := s.config(1.0, true, "A", "B", "C")
	reg := seeded(s, enrolled("P0", "A", "male", "young", true))

	alloc, err := s.engine.Allocate(cfg, reg, "P1", chars("male", "old"), "")
	s.Require().NoError(err)
	s.Equal(MethodMinimisation, alloc.Method)
	s.Equal("B", alloc.Arm)
}

func (s *EngineSuite) TestInactivePatientsDoNotScore() {
	cfg := s.config(1.0, true)
	reg := seeded(s,
		enrolled("P1", "A", "male", "young", true),
		enrolled("P2", "B", "male", "young", false),
		enrolled("P3", "B", "male", "young", false),
	)

	alloc, err := s.engine.Allocate(cfg, reg, "P4", chars("male", "young"), "")
	s.Require().NoError(err)
	s.Equal(map[string]int{"A": 2, "B": 0}, alloc.Scores)
	s.Equal("B", alloc.Arm)
}

func (s *EngineSuite) TestChanceWhenWeightIsZero() {
	cfg := s.config(0, true)
	reg := seeded(s, enrolled("P0", "A", "male", "young", true))

	alloc, err := s.engine.Allocate(cfg, reg, "P2", chars("male", "young"), "")
	s.Require().NoError(err)
	s.Equal(MethodChance, alloc.Method)
	s.Equal(cfg.Arms[pick(Sample("P2", cfg.Seed), 2)], alloc.Arm)
	s.Nil(alloc.Scores)
}

func (s *EngineSuite) TestTieBreakKeyUsesConfiguredOrder() {
	cfg := s.config(1.0, true)
	key := TieBreakKey(cfg, map[string]string{"age": "old", "gender": "male"})
	s.Equal("minimisation_tie_[male, old]", key)
}
