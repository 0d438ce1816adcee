package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for low-level metadata store
// operations (get/set of inodes and attributes).
type StoreMetrics interface {
	// RecordStorageOperation records a low-level storage operation.
	//
	// Parameters:
	//   - operation: Storage operation (e.g., "get_xattr", "set_xattr", "mark_dirty")
	//   - duration: Time taken
	//   - err: Error if failed
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

type storeMetrics struct {
	storeType          string
	storageOpsTotal    *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates StoreMetrics registered on the global registry.
//
// Parameters:
//   - storeType: Type of metadata store (e.g., "memory", "badger", "s3")
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics(storeType string) StoreMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewStoreMetricsWith(GetRegistry(), storeType)
}

// NewStoreMetricsWith creates StoreMetrics registered on reg.
func NewStoreMetricsWith(reg prometheus.Registerer, storeType string) StoreMetrics {
	return &storeMetrics{
		storeType: storeType,
		storageOpsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoacl_storage_operations_total",
				Help: "Total number of low-level storage operations by store type, operation, and status",
			},
			[]string{"store_type", "operation", "status"},
		),
		storageOpsDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoacl_storage_operation_duration_seconds",
				Help: "Duration of low-level storage operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.025,  // 25ms
					0.05,   // 50ms
					0.1,    // 100ms
				},
			},
			[]string{"store_type", "operation"},
		),
	}
}

func (m *storeMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsTotal.WithLabelValues(m.storeType, operation, status(err)).Inc()
	m.storageOpsDuration.WithLabelValues(m.storeType, operation).Observe(duration.Seconds())
}
