package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels
const (
	OperationCreateCooccurrences = "create_cooccurrences"
	OperationDeleteCooccurrences = "delete_cooccurrences"
	OperationRank                = "rank"
	OperationEvaluate            = "evaluate"
	OperationPersist             = "persist"
	OperationExtract             = "extract"
)

// Metrics holds the collectors of one KeyGrapher.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	Operations        *prometheus.CounterVec
	KeywordsPersisted prometheus.Counter
	CooccurrenceEdges prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registerer. Collectors already registered on reg are reused so
// several instances can share one registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keygrapher_operation_duration_seconds",
				Help:    "Time spent per keyword extraction operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygrapher_operations_total",
				Help: "Number of keyword extraction operations by status",
			},
			[]string{"operation", "status"},
		),
		KeywordsPersisted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keygrapher_keywords_persisted_total",
				Help: "Number of keyword associations written",
			},
		),
		CooccurrenceEdges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keygrapher_cooccurrence_observations_total",
				Help: "Number of co-occurrence pair observations upserted",
			},
		),
	}

	m.OperationDuration = register(reg, m.OperationDuration)
	m.Operations = register(reg, m.Operations)
	m.KeywordsPersisted = register(reg, m.KeywordsPersisted)
	m.CooccurrenceEdges = register(reg, m.CooccurrenceEdges)

	return m
}

// Observe records duration and status of one operation.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.Operations.WithLabelValues(operation, status).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
