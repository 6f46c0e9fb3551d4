// Package balance cross-tabulates active patients by arm for each
// minimisation variable and summarises the spread.
package balance

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"minimizer/internal/trial/models"
)

const (
	TotalLabel     = "Total"
	SkewLabel      = "Skew"
	ImbalanceLabel = "Imbalance"

	insufficientData = "insufficient data"
)

// Spread is max minus min over a set of counts, with that difference as a
// whole percentage of the set's sum.
type Spread struct {
	Diff    int `json:"diff"`
	Percent int `json:"percent"`
}

func (s Spread) String() string {
	return fmt.Sprintf("%d (%d%%)", s.Diff, s.Percent)
}

// Table is one variable's arm by value count table. Skew and Imbalance are
// filled only when Sufficient.
type Table struct {
	Variable    string   `json:"variable"`
	Arms        []string `json:"arms"`
	Values      []string `json:"values"`
	Counts      [][]int  `json:"counts"`
	ArmTotals   []int    `json:"arm_totals"`
	ValueTotals []int    `json:"value_totals"`
	Total       int      `json:"total"`
	Sufficient  bool     `json:"sufficient"`
	Skew        []Spread `json:"skew,omitempty"`
	Imbalance   []Spread `json:"imbalance,omitempty"`
}

// Report holds one table per variable, in configured order.
type Report struct {
	TotalPatients  int     `json:"total_patients"`
	ActivePatients int     `json:"active_patients"`
	Tables         []Table `json:"tables"`
}

// Compute builds the balance report from active patients only.
func Compute(cfg models.Config, reg *models.Registry) Report {
	active := reg.ActivePatients()
	rep := Report{
		TotalPatients:  reg.CountTotal(),
		ActivePatients: len(active),
		Tables:         make([]Table, 0, len(cfg.Variables)),
	}
	for _, v := range cfg.Variables {
		rep.Tables = append(rep.Tables, tabulate(cfg.Arms, v, active))
	}
	return rep
}

func tabulate(arms []string, v models.Variable, active []models.Patient) Table {
	armIndex := indexOf(arms)
	valueIndex := indexOf(v.Values)

	t := Table{
		Variable:    v.Name,
		Arms:        arms,
		Values:      v.Values,
		Counts:      make([][]int, len(arms)),
		ArmTotals:   make([]int, len(arms)),
		ValueTotals: make([]int, len(v.Values)),
	}
	for i := range t.Counts {
		t.Counts[i] = make([]int, len(v.Values))
	}
	for _, p := range active {
		a, okArm := armIndex[p.Arm]
		c, okValue := valueIndex[p.Characteristics[v.Name]]
		if !okArm || !okValue {
			continue
		}
		t.Counts[a][c]++
		t.ArmTotals[a]++
		t.ValueTotals[c]++
		t.Total++
	}

	populated := 0
	for _, n := range t.ArmTotals {
		if n > 0 {
			populated++
		}
	}
	if len(arms) < 2 || populated < 2 {
		return t
	}

	t.Sufficient = true
	t.Skew = make([]Spread, len(arms))
	for a, row := range t.Counts {
		t.Skew[a] = spread(row)
	}
	t.Imbalance = make([]Spread, len(v.Values))
	for c := range v.Values {
		column := make([]int, len(arms))
		for a := range arms {
			column[a] = t.Counts[a][c]
		}
		t.Imbalance[c] = spread(column)
	}
	return t
}

// spread rounds the percentage half to even and reports 0% for an all-zero set.
func spread(counts []int) Spread {
	data := make(stats.Float64Data, len(counts))
	for i, n := range counts {
		data[i] = float64(n)
	}
	hi, err := stats.Max(data)
	if err != nil {
		return Spread{}
	}
	lo, _ := stats.Min(data)
	sum, _ := stats.Sum(data)

	s := Spread{Diff: int(hi - lo)}
	if sum > 0 {
		s.Percent = int(math.RoundToEven((hi - lo) / sum * 100))
	}
	return s
}

// Rows renders the table as display cells, header first. Blank cells are
// empty strings.
func (t Table) Rows() [][]string {
	header := append([]string{""}, t.Values...)
	header = append(header, TotalLabel)
	if t.Sufficient {
		header = append(header, SkewLabel)
	}
	rows := [][]string{header}

	for a, arm := range t.Arms {
		row := []string{arm}
		for _, n := range t.Counts[a] {
			row = append(row, fmt.Sprint(n))
		}
		row = append(row, fmt.Sprint(t.ArmTotals[a]))
		if t.Sufficient {
			row = append(row, t.Skew[a].String())
		}
		rows = append(rows, row)
	}

	total := []string{TotalLabel}
	for _, n := range t.ValueTotals {
		total = append(total, fmt.Sprint(n))
	}
	total = append(total, fmt.Sprint(t.Total))
	if t.Sufficient {
		total = append(total, "")
	}
	rows = append(rows, total)

	if t.Sufficient {
		imbalance := []string{ImbalanceLabel}
		for _, s := range t.Imbalance {
			imbalance = append(imbalance, s.String())
		}
		imbalance = append(imbalance, "", "")
		rows = append(rows, imbalance)
	}
	return rows
}

// Note is shown under a table that has no skew or imbalance.
func (t Table) Note() string {
	if t.Sufficient {
		return ""
	}
	return insufficientData
}

func indexOf(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}
