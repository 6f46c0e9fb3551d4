package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/sentinel"
)

// trialStore is the contract every implementation satisfies.
type trialStore interface {
	Create(ctx context.Context, trial *models.Trial) error
	Get(ctx context.Context, trialID id.TrialID) (*models.Trial, error)
	Save(ctx context.Context, trial *models.Trial) error
	List(ctx context.Context) ([]*models.Trial, error)
}

// storeContract runs the shared behaviour checks against any trialStore.
type storeContract struct {
	suite.Suite
	store trialStore
	ctx   context.Context
}

func newTestTrial(t *testing.T, trialID string) *models.Trial {
	t.Helper()
	cfg, err := models.NewConfig(
		[]string{"A", "B"},
		[]models.Variable{{Name: "gender", Values: []string{"male", "female"}}},
		0.8, "seed", false,
	)
	require.NoError(t, err)
	trial, err := models.NewTrial(id.TrialID(trialID), cfg, "alice", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	return trial
}

func (s *storeContract) TestCreateAndGet() {
	trial := newTestTrial(s.T(), "T1")
	s.Require().NoError(s.store.Create(s.ctx, trial))

	found, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	s.Equal(trial.Config, found.Config)
	s.Equal(id.Username("alice"), found.CreatedBy)
	s.True(trial.CreatedAt.Equal(found.CreatedAt))
	s.Zero(found.Registry.CountTotal())
	s.False(found.IsArchived())
}

func (s *storeContract) TestCreateDuplicate() {
	s.Require().NoError(s.store.Create(s.ctx, newTestTrial(s.T(), "T1")))
	err := s.store.Create(s.ctx, newTestTrial(s.T(), "T1"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *storeContract) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestSavePersistsRegistryInOrder() {
	trial := newTestTrial(s.T(), "T1")
	s.Require().NoError(s.store.Create(s.ctx, trial))

	enrolled := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	for _, pid := range []id.PatientID{"P3", "P1", "P2"} {
		s.Require().NoError(trial.Registry.Add(models.Patient{
			ID: pid, Characteristics: map[string]string{"gender": "male"}, Arm: "A", Active: true, EnrolledAt: enrolled,
		}))
	}
	s.Require().NoError(trial.Registry.Deactivate("P1"))
	s.Require().NoError(s.store.Save(s.ctx, trial))

	found, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	patients := found.Registry.Patients()
	s.Require().Len(patients, 3)
	s.Equal(id.PatientID("P3"), patients[0].ID)
	s.Equal(id.PatientID("P1"), patients[1].ID)
	s.False(patients[1].Active)
	s.Equal(2, found.Registry.CountActive())
}

func (s *storeContract) TestSaveNeverChangesConfig() {
	trial := newTestTrial(s.T(), "T1")
	s.Require().NoError(s.store.Create(s.ctx, trial))

	trial.Config.Weight = 0.1
	trial.Config.Arms = []string{"X", "Y"}
	s.Require().NoError(s.store.Save(s.ctx, trial))

	found, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	s.Equal(0.8, found.Config.Weight)
	s.Equal([]string{"A", "B"}, found.Config.Arms)
}

func (s *storeContract) TestSaveArchive() {
	trial := newTestTrial(s.T(), "T1")
	s.Require().NoError(s.store.Create(s.ctx, trial))

	trial.ApplyArchive(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Save(s.ctx, trial))

	found, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	s.True(found.IsArchived())
	s.ErrorContains(found.CanMutate(), "archived")
}

func (s *storeContract) TestSaveMissing() {
	err := s.store.Save(s.ctx, newTestTrial(s.T(), "ghost"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestListOrderedByID() {
	for _, tid := range []string{"beta", "alpha", "gamma"} {
		s.Require().NoError(s.store.Create(s.ctx, newTestTrial(s.T(), tid)))
	}
	trials, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(trials, 3)
	s.Equal(id.TrialID("alpha"), trials[0].ID)
	s.Equal(id.TrialID("gamma"), trials[2].ID)
}

type InMemoryStoreSuite struct {
	storeContract
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestReturnedTrialsAreCopies() {
	trial := newTestTrial(s.T(), "T1")
	s.Require().NoError(s.store.Create(s.ctx, trial))

	found, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	s.Require().NoError(found.Registry.Add(models.Patient{ID: "P1", Characteristics: map[string]string{"gender": "male"}, Arm: "A", Active: true}))

	again, err := s.store.Get(s.ctx, "T1")
	s.Require().NoError(err)
	s.Zero(again.Registry.CountTotal())
}
