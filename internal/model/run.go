// Package model holds the types shared by the pipeline, its history store and the CLI.
package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusFetching RunStatus = "fetching"
	RunStatusLoading  RunStatus = "loading"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether no further transitions follow this status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	ErrorKindFetch     ErrorKind = "fetch"
	ErrorKindArchive   ErrorKind = "archive"
	ErrorKindNoMatch   ErrorKind = "no_match"
	ErrorKindTransform ErrorKind = "transform"
)

// RunResult holds the outcome of a successful run.
type RunResult struct {
	ArchiveBytes int64         `json:"archive_bytes"`
	Files        []string      `json:"files"`
	Rows         int64         `json:"rows"`
	OutputPath   string        `json:"output_path"`
	OutputBytes  int64         `json:"output_bytes"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Run is one recorded invocation of the pipeline.
type Run struct {
	ID          string     `json:"id"`
	SourceURL   string     `json:"source_url"`
	OutputPath  string     `json:"output_path"`
	Status      RunStatus  `json:"status"`
	ErrorKind   ErrorKind  `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	Rows        int64      `json:"rows"`
	OutputBytes int64      `json:"output_bytes"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
