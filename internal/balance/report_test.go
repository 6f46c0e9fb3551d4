package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minimizer/internal/trial/models"
	id "minimizer/pkg/domain"
)

func genderConfig(t *testing.T, arms ...string) models.Config {
	t.Helper()
	cfg, err := models.NewConfig(arms, []models.Variable{
		{Name: "gender", Values: []string{"male", "female"}},
	}, 0.8, "s", true)
	require.NoError(t, err)
	return cfg
}

func registryOf(t *testing.T, rows ...[3]string) *models.Registry {
	t.Helper()
	reg := &models.Registry{}
	for i, r := range rows {
		require.NoError(t, reg.Add(models.Patient{
			ID:              id.PatientID(string(rune('a' + i))),
			Characteristics: map[string]string{"gender": r[1]},
			Arm:             r[0],
			Active:          r[2] != "inactive",
		}))
	}
	return reg
}

func TestComputeBalancedTwoByTwo(t *testing.T) {
	cfg := genderConfig(t, "A", "B")
	reg := registryOf(t,
		[3]string{"A", "male"}, [3]string{"A", "male"}, [3]string{"A", "female"},
		[3]string{"B", "male"}, [3]string{"B", "female"}, [3]string{"B", "female"},
	)

	rep := Compute(cfg, reg)
	require.Len(t, rep.Tables, 1)
	table := rep.Tables[0]

	assert.True(t, table.Sufficient)
	assert.Equal(t, [][]int{{2, 1}, {1, 2}}, table.Counts)
	assert.Equal(t, []int{3, 3}, table.ArmTotals)
	assert.Equal(t, []int{3, 3}, table.ValueTotals)
	assert.Equal(t, 6, table.Total)
	for _, s := range append(table.Skew, table.Imbalance...) {
		assert.Equal(t, "1 (33%)", s.String())
	}

	assert.Equal(t, [][]string{
		{"", "male", "female", "Total", "Skew"},
		{"A", "2", "1", "3", "1 (33%)"},
		{"B", "1", "2", "3", "1 (33%)"},
		{"Total", "3", "3", "6", ""},
		{"Imbalance", "1 (33%)", "1 (33%)", "", ""},
	}, table.Rows())
	assert.Empty(t, table.Note())
}

func TestComputeCountsActiveOnly(t *testing.T) {
	cfg := genderConfig(t, "A", "B")
	reg := registryOf(t,
		[3]string{"A", "male"}, [3]string{"B", "female"}, [3]string{"B", "male", "inactive"},
	)

	rep := Compute(cfg, reg)
	assert.Equal(t, 3, rep.TotalPatients)
	assert.Equal(t, 2, rep.ActivePatients)
	assert.Equal(t, [][]int{{1, 0}, {0, 1}}, rep.Tables[0].Counts)
}

func TestComputeInsufficientData(t *testing.T) {
	cfg := genderConfig(t, "A", "B")

	t.Run("empty registry", func(t *testing.T) {
		table := Compute(cfg, &models.Registry{}).Tables[0]
		assert.False(t, table.Sufficient)
		assert.Equal(t, "insufficient data", table.Note())
	})

	t.Run("only one arm has active patients", func(t *testing.T) {
		reg := registryOf(t, [3]string{"A", "male"}, [3]string{"B", "female", "inactive"})
		table := Compute(cfg, reg).Tables[0]
		assert.False(t, table.Sufficient)
		assert.Nil(t, table.Skew)
		assert.Nil(t, table.Imbalance)

		rows := table.Rows()
		assert.Equal(t, []string{"", "male", "female", "Total"}, rows[0])
		assert.Len(t, rows, 4)
	})
}

func TestEmptyArmRowHasZeroSkew(t *testing.T) {
	cfg := genderConfig(t, "A", "B", "C")
	reg := registryOf(t, [3]string{"A", "male"}, [3]string{"B", "female"})
	table := Compute(cfg, reg).Tables[0]

	require.True(t, table.Sufficient)
	assert.Equal(t, Spread{}, table.Skew[2])
	assert.Equal(t, Spread{Diff: 1, Percent: 100}, table.Imbalance[0])
}

func TestSpreadRoundsHalfToEven(t *testing.T) {
	assert.Equal(t, Spread{Diff: 1, Percent: 12}, spread([]int{3, 3, 2}))
	assert.Equal(t, Spread{Diff: 3, Percent: 38}, spread([]int{1, 1, 2, 4}))
	assert.Equal(t, Spread{}, spread([]int{0, 0}))
	assert.Equal(t, Spread{}, spread(nil))
}
