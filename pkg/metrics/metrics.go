// Package metrics provides Prometheus metrics for SOP state persistence.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goliatone/go-sop/pkg/errs"
)

// Operation labels.
const (
	OpSave    = "save"
	OpLoad    = "load"
	OpBackup  = "backup"
	OpRestore = "restore"
	OpImport  = "import"
	OpExport  = "export"
	OpClear   = "clear"
)

// Recorder groups the collectors. A nil *Recorder records nothing.
type Recorder struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	MutationsTotal    *prometheus.CounterVec
	FilterEvaluations *prometheus.CounterVec
	StorageUsedBytes  prometheus.Gauge
	StorageQuotaBytes prometheus.Gauge
	Dirty             prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sop_state_operations_total",
				Help: "Total number of persistence operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sop_state_operation_duration_seconds",
				Help:    "Duration of persistence operations",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sop_state_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"operation", "kind"},
		),
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sop_state_mutations_total",
				Help: "Total number of successful entity mutations",
			},
			[]string{"entity", "action"},
		),
		FilterEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sop_filter_evaluations_total",
				Help: "Filter expression evaluations by engine and entity type",
			},
			[]string{"engine", "entity", "status"},
		),
		StorageUsedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sop_storage_used_bytes",
			Help: "Bytes used in the storage namespace",
		}),
		StorageQuotaBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sop_storage_quota_bytes",
			Help: "Configured storage soft quota",
		}),
		Dirty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sop_state_dirty",
			Help: "1 when unsaved changes exist",
		}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
func (r *Recorder) ObserveOperation(op string, started time.Time, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		kind := string(errs.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		r.ErrorsTotal.WithLabelValues(op, kind).Inc()
	}
	r.OperationsTotal.WithLabelValues(op, status).Inc()
	r.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveMutation counts one successful entity mutation.
func (r *Recorder) ObserveMutation(entity, action string) {
	if r == nil {
		return
	}
	r.MutationsTotal.WithLabelValues(entity, action).Inc()
}

// ObserveFilter counts one filter expression evaluation.
func (r *Recorder) ObserveFilter(engine, entity string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.FilterEvaluations.WithLabelValues(engine, entity, status).Inc()
}

// SetStorage records namespace usage.
func (r *Recorder) SetStorage(used, quota int64) {
	if r == nil {
		return
	}
	r.StorageUsedBytes.Set(float64(used))
	r.StorageQuotaBytes.Set(float64(quota))
}

// SetDirty mirrors the dirty flag.
func (r *Recorder) SetDirty(dirty bool) {
	if r == nil {
		return
	}
	if dirty {
		r.Dirty.Set(1)
		return
	}
	r.Dirty.Set(0)
}
