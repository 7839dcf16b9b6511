package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CounterValue reads the current value of a CounterVec for the given label set.
// Missing series read as 0. Intended for tests that assert on metric side effects.
func CounterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	c, err := cv.GetMetricWith(labels)
	if err != nil {
		return 0
	}
	var dm dto.Metric
	if err := c.Write(&dm); err != nil {
		return 0
	}
	return dm.GetCounter().GetValue()
}
