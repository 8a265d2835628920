package adapters

import (
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/prometheus/client_golang/prometheus"

	"chainsnap/internal/ports"
)

// TextfileMetricsAdapter renders run gauges in the node exporter textfile
// format. Each run replaces the file.
type TextfileMetricsAdapter struct {
	Path     string
	registry *prometheus.Registry
	success  prometheus.Gauge
	finished prometheus.Gauge
	duration prometheus.Gauge
	downtime prometheus.Gauge
	size     prometheus.Gauge
	height   prometheus.Gauge
}

func NewTextfileMetricsAdapter(path string) *TextfileMetricsAdapter {
	gauge := func(name string, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "chainsnap", Name: name, Help: help})
	}
	a := &TextfileMetricsAdapter{
		Path:     path,
		registry: prometheus.NewRegistry(),
		success:  gauge("last_run_success", "1 if the last snapshot run succeeded."),
		finished: gauge("last_run_timestamp_seconds", "Unix time the last snapshot run finished."),
		duration: gauge("run_duration_seconds", "Wall time of the last snapshot run."),
		downtime: gauge("node_downtime_seconds", "Time the node service was stopped during the last run."),
		size:     gauge("archive_bytes", "Size of the last produced archive."),
		height:   gauge("block_height", "Block height captured by the last run, 0 when unknown."),
	}
	a.registry.MustRegister(a.success, a.finished, a.duration, a.downtime, a.size, a.height)
	return a
}

func (a *TextfileMetricsAdapter) RecordRun(report ports.RunReport) error {
	if report.Success {
		a.success.Set(1)
	} else {
		a.success.Set(0)
	}
	a.finished.Set(float64(report.Finished.Unix()))
	a.duration.Set(report.Duration.Seconds())
	a.downtime.Set(report.Downtime.Seconds())
	a.size.Set(float64(report.ArchiveLen))
	a.height.Set(float64(report.Height))
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create metrics directory").
			WithCause(err)
	}
	if err := prometheus.WriteToTextfile(a.Path, a.registry); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write metrics textfile").
			WithCause(err)
	}
	return nil
}

// NoopMetricsAdapter discards reports when no metrics file is configured.
type NoopMetricsAdapter struct{}

func (NoopMetricsAdapter) RecordRun(ports.RunReport) error {
	return nil
}

var (
	_ ports.MetricsPort = (*TextfileMetricsAdapter)(nil)
	_ ports.MetricsPort = NoopMetricsAdapter{}
)
