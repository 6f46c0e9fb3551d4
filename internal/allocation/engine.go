// Package allocation decides which arm a newly enrolled patient joins, using
// minimisation with seeded deterministic randomness.
package allocation

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
	dErrors "minimizer/pkg/domain-errors"
)

// Method records which rule chose the arm.
type Method string

const (
	MethodManual       Method = "manual"
	MethodFirst        Method = "first"
	MethodMinimisation Method = "minimisation"
	MethodTieBreak     Method = "tie_break"
	MethodChance       Method = "chance"
)

// Allocation is the outcome of one enrollment. Scores is set only when the
// minimisation rule ran.
type Allocation struct {
	Arm    string         `json:"arm"`
	Method Method         `json:"method"`
	Scores map[string]int `json:"scores,omitempty"`
}

// Engine allocates patients. It holds no trial state; configuration and
// registry are passed on every call.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of enrollment timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allocate validates the candidate, chooses an arm and appends the patient to
// reg. manualArm is ignored when empty. On error reg is unchanged.
//
// Validation order: duplicate id, characteristic keys, characteristic values,
// manual arm.
func (e *Engine) Allocate(cfg models.Config, reg *models.Registry, patientID id.PatientID, characteristics map[string]string, manualArm string) (Allocation, error) {
	if reg.Has(patientID) {
		return Allocation{}, dErrors.New(dErrors.CodeDuplicateEntity,
			fmt.Sprintf("patient %s is already enrolled", patientID))
	}
	if err := cfg.CheckCharacteristics(characteristics); err != nil {
		return Allocation{}, err
	}
	if manualArm != "" {
		if cfg.StrictMode {
			return Allocation{}, dErrors.New(dErrors.CodeNotPermitted,
				"manual arm assignment is not allowed in strict minimisation mode")
		}
		if err := cfg.CheckArm(manualArm); err != nil {
			return Allocation{}, err
		}
	}

	alloc := decide(cfg, reg, patientID, characteristics, manualArm)
	if err := reg.Add(models.Patient{
		ID:              patientID,
		Characteristics: maps.Clone(characteristics),
		Arm:             alloc.Arm,
		Active:          true,
		EnrolledAt:      e.now(),
	}); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func decide(cfg models.Config, reg *models.Registry, patientID id.PatientID, characteristics map[string]string, manualArm string) Allocation {
	if manualArm != "" {
		return Allocation{Arm: manualArm, Method: MethodManual}
	}
	key := patientID.String()
	// The first patient ever enrolled, counting inactive ones.
	if reg.CountTotal() == 0 {
		return Allocation{Arm: uniformArm(cfg, key), Method: MethodFirst}
	}
	if Sample(key+"_allocation", cfg.Seed) <= cfg.Weight {
		return minimise(cfg, reg.ActivePatients(), characteristics)
	}
	return Allocation{Arm: uniformArm(cfg, key), Method: MethodChance}
}

func uniformArm(cfg models.Config, key string) string {
	return cfg.Arms[pick(Sample(key, cfg.Seed), len(cfg.Arms))]
}

// Scores counts, per arm, how many active patients share each of the
// candidate's characteristic values. A patient contributes once per matching
// variable.
func Scores(cfg models.Config, active []models.Patient, characteristics map[string]string) map[string]int {
	scores := make(map[string]int, len(cfg.Arms))
	for _, arm := range cfg.Arms {
		scores[arm] = 0
	}
	for _, p := range active {
		if _, ok := scores[p.Arm]; !ok {
			continue
		}
		for _, v := range cfg.Variables {
			if p.Characteristics[v.Name] == characteristics[v.Name] {
				scores[p.Arm]++
			}
		}
	}
	return scores
}

// minimise picks the least loaded arm. Only a tie across all arms goes to the
// hash tie-break; a partial tie at the minimum resolves to the first such arm
// in configured order.
func minimise(cfg models.Config, active []models.Patient, characteristics map[string]string) Allocation {
	scores := Scores(cfg, active, characteristics)

	minArm := cfg.Arms[0]
	minScore, maxScore := scores[minArm], scores[minArm]
	for _, arm := range cfg.Arms[1:] {
		s := scores[arm]
		if s < minScore {
			minArm, minScore = arm, s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	if minScore == maxScore {
		return Allocation{
			Arm:    uniformArm(cfg, TieBreakKey(cfg, characteristics)),
			Method: MethodTieBreak,
			Scores: scores,
		}
	}
	return Allocation{Arm: minArm, Method: MethodMinimisation, Scores: scores}
}

// TieBreakKey is the sample key for a global tie: the candidate's values in
// configured variable order, e.g. "minimisation_tie_[male, young]".
func TieBreakKey(cfg models.Config, characteristics map[string]string) string {
	values := make([]string, len(cfg.Variables))
	for i, v := range cfg.Variables {
		values[i] = characteristics[v.Name]
	}
	return "minimisation_tie_[" + strings.Join(values, ", ") + "]"
}
