// Package model defines the domain types used across the application.
package model

import "time"

// Record is one harvested chat message.
// Category holds the comma-separated labels assigned by the last pipeline
// run, or the empty string when nothing matched.
type Record struct {
	Username   string `json:"username"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	SourceChat string `json:"source_chat"`
	Category   string `json:"category"`
}

// CategoryRule maps a keyword list to one category label.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// RunKind identifies the loop a journal run belongs to.
type RunKind string

// Supported run kinds.
const (
	RunHarvest RunKind = "harvest"
	RunJoin    RunKind = "join"
	RunLeave   RunKind = "leave"
)

// ResultStatus is the outcome of processing one endpoint.
type ResultStatus string

// Supported result statuses.
const (
	StatusOK     ResultStatus = "ok"
	StatusFailed ResultStatus = "failed"
)

// Run is one pass of a loop over endpoints, tracked in the journal.
type Run struct {
	ID         string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt *time.Time
	OK         int
	Failed     int
}

// EndpointResult records what happened to one endpoint within a run.
type EndpointResult struct {
	RunID       string
	Endpoint    string
	Status      ResultStatus
	Records     int
	Error       string
	ProcessedAt time.Time
}
