package gate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports authorization decisions as Prometheus counters.
type MetricsObserver struct {
	evaluations *prometheus.CounterVec
}

// NewMetricsObserver creates the observer and registers its collectors on
// reg. Pass prometheus.DefaultRegisterer to use the default registry.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_evaluations_total",
				Help: "Total number of ability evaluations.",
			},
			[]string{"ability", "allowed"},
		),
	}

	if err := reg.Register(m.evaluations); err != nil {
		return nil, err
	}

	return m, nil
}

// Observe implements Observer.
func (m *MetricsObserver) Observe(evt Evaluation) {
	m.evaluations.WithLabelValues(evt.Ability, strconv.FormatBool(evt.Allowed)).Inc()
}
