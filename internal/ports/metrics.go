package ports

import "time"

type RunReport struct {
	Success    bool
	Finished   time.Time
	Duration   time.Duration
	Downtime   time.Duration
	ArchiveLen int64
	Height     int64
}

// MetricsPort records the outcome of a snapshot run.
type MetricsPort interface {
	RecordRun(report RunReport) error
}
