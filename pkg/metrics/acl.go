package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ACLMetrics provides observability for ACL operations.
//
// This interface is optional - if a nil ACLMetrics is given to the ACL
// manager, operations proceed without metrics collection.
type ACLMetrics interface {
	// RecordOperation records a completed ACL operation.
	//
	// Parameters:
	//   - operation: Operation name ("get", "set", "init", "chmod")
	//   - aclType: "access", "default" or "" when not type specific
	//   - duration: Time taken to complete the operation
	//   - err: Error if operation failed, nil if successful
	RecordOperation(operation, aclType string, duration time.Duration, err error)

	// RecordCacheLookup records the outcome of an ACL cache lookup.
	//
	// Parameters:
	//   - state: "cached", "absent" or "not_cached"
	RecordCacheLookup(state string)

	// RecordInheritance records a child inode initialised from its parent's
	// default ACL.
	//
	// Parameters:
	//   - extended: true if the child received an extended access ACL
	RecordInheritance(extended bool)

	// RecordCorrupt records an attribute value that failed to decode.
	RecordCorrupt(aclType string)
}

type aclMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	inheritances      *prometheus.CounterVec
	corruptTotal      *prometheus.CounterVec
}

// NewACLMetrics creates ACLMetrics registered on the global registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the ACL manager to skip collection.
func NewACLMetrics() ACLMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewACLMetricsWith(GetRegistry())
}

// NewACLMetricsWith creates ACLMetrics registered on reg.
func NewACLMetricsWith(reg prometheus.Registerer) ACLMetrics {
	return &aclMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoacl_operations_total",
				Help: "Total number of ACL operations by operation, type, and status",
			},
			[]string{"operation", "type", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoacl_operation_duration_seconds",
				Help: "Duration of ACL operations in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1.0,     // 1s
				},
			},
			[]string{"operation", "type"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoacl_cache_lookups_total",
				Help: "Total number of ACL cache lookups by resulting state",
			},
			[]string{"state"},
		),
		inheritances: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoacl_inheritances_total",
				Help: "Total number of inodes initialised from a default ACL",
			},
			[]string{"extended"},
		),
		corruptTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoacl_corrupt_attributes_total",
				Help: "Total number of stored ACL attributes that failed to decode",
			},
			[]string{"type"},
		),
	}
}

func (m *aclMetrics) RecordOperation(operation, aclType string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, aclType, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation, aclType).Observe(duration.Seconds())
}

func (m *aclMetrics) RecordCacheLookup(state string) {
	m.cacheLookups.WithLabelValues(state).Inc()
}

func (m *aclMetrics) RecordInheritance(extended bool) {
	label := "false"
	if extended {
		label = "true"
	}
	m.inheritances.WithLabelValues(label).Inc()
}

func (m *aclMetrics) RecordCorrupt(aclType string) {
	m.corruptTotal.WithLabelValues(aclType).Inc()
}
