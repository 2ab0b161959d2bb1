package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"liquidityDesk/internal/model"
)

// Metrics counts settled flow steps.
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewMetrics registers the flow collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpdesk_flow_steps_total",
			Help: "Settled flow steps by outcome.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lpdesk_flow_step_duration_seconds",
			Help:    "Time from step start to settlement.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"step"}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.stepDuration)
	}
	return m
}

func (m *Metrics) observe(step Step, status model.StepStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(step), string(status)).Inc()
	m.stepDuration.WithLabelValues(string(step)).Observe(elapsed.Seconds())
}
