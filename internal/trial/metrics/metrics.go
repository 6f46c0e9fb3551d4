package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the trial module: allocation outcomes,
// registry edits and how long callers wait on the per-trial transaction.
type Metrics struct {
	TrialsCreated   prometheus.Counter
	TrialsArchived  prometheus.Counter
	Allocations     *prometheus.CounterVec
	PatientChanges  *prometheus.CounterVec
	AllocationError *prometheus.CounterVec
	TxDuration      *prometheus.HistogramVec
}

// New creates a new Metrics instance with all trial module metrics registered.
func New() *Metrics {
	return &Metrics{
		TrialsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "minimizer_trials_created_total",
			Help: "Total number of trials created",
		}),
		TrialsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "minimizer_trials_archived_total",
			Help: "Total number of trials archived",
		}),
		Allocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minimizer_allocations_total",
			Help: "Patients allocated, by deciding method",
		}, []string{"method"}),
		PatientChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minimizer_patient_changes_total",
			Help: "Registry edits after enrollment, by kind",
		}, []string{"kind"}),
		AllocationError: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minimizer_allocation_rejections_total",
			Help: "Enrollments rejected, by error code",
		}, []string{"code"}),
		TxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minimizer_trial_tx_duration_seconds",
			Help:    "Duration of per-trial transactions including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementTrialsCreated() {
	m.TrialsCreated.Inc()
}

func (m *Metrics) IncrementTrialsArchived() {
	m.TrialsArchived.Inc()
}

func (m *Metrics) IncrementAllocation(method string) {
	m.Allocations.WithLabelValues(method).Inc()
}

func (m *Metrics) IncrementPatientChange(kind string) {
	m.PatientChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementRejection(code string) {
	m.AllocationError.WithLabelValues(code).Inc()
}

// ObserveTx records the duration of a trial transaction.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTx(operation string, start time.Time) {
	m.TxDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
