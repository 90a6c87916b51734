// Package monitoring exposes run metrics in the Prometheus text format for
// the node_exporter textfile collector.
package monitoring

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/london-crime/internal/model"
)

const namespace = "london_crime"

// Metrics holds the gauges describing the most recent run.
type Metrics struct {
	registry *prometheus.Registry

	LastRunSuccess   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge
	LastRunFailure   *prometheus.GaugeVec // labels: kind
	RowsWritten      prometheus.Gauge
	OutputBytes      prometheus.Gauge
	ArchiveBytes     prometheus.Gauge
	FilesExtracted   prometheus.Gauge
}

// NewMetrics creates the gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run produced the output file, 0 otherwise.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last successful run.",
		}),
		LastRunFailure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failure",
			Help:      "1 for the error kind that ended the last run.",
		}, []string{"kind"}),
		RowsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_written",
			Help:      "Records written to the Parquet file by the last successful run.",
		}),
		OutputBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of the Parquet file written by the last successful run.",
		}),
		ArchiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_bytes",
			Help:      "Size of the archive downloaded by the last successful run.",
		}),
		FilesExtracted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_extracted",
			Help:      "Region CSVs extracted by the last successful run.",
		}),
	}

	m.registry.MustRegister(
		m.LastRunSuccess,
		m.LastRunTimestamp,
		m.LastRunDuration,
		m.LastRunFailure,
		m.RowsWritten,
		m.OutputBytes,
		m.ArchiveBytes,
		m.FilesExtracted,
	)
	return m
}

// Registry returns the registry holding the run gauges.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSuccess records a completed run finished at unix time now.
func (m *Metrics) ObserveSuccess(res *model.RunResult, now float64) {
	m.LastRunSuccess.Set(1)
	m.LastRunTimestamp.Set(now)
	m.LastRunDuration.Set(res.Elapsed.Seconds())
	m.LastRunFailure.Reset()
	m.RowsWritten.Set(float64(res.Rows))
	m.OutputBytes.Set(float64(res.OutputBytes))
	m.ArchiveBytes.Set(float64(res.ArchiveBytes))
	m.FilesExtracted.Set(float64(len(res.Files)))
}

// ObserveFailure records a failed run finished at unix time now.
func (m *Metrics) ObserveFailure(kind model.ErrorKind, now float64) {
	if kind == "" {
		kind = "unknown"
	}
	m.LastRunSuccess.Set(0)
	m.LastRunTimestamp.Set(now)
	m.LastRunFailure.Reset()
	m.LastRunFailure.WithLabelValues(string(kind)).Set(1)
}

// WriteTextfile writes all gauges to path, creating its directory.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "monitoring: create directory for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
