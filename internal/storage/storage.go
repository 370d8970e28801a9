// Package storage defines the harvest journal interface and its SQLite
// implementation.
package storage

import (
	"context"
	"errors"

	"tg_harvest/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Journal records which endpoints each run has processed, so an
// interrupted run can be resumed.
type Journal interface {
	StartRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	LatestOpenRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	FinishRun(ctx context.Context, id string) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	RecordResult(ctx context.Context, res *model.EndpointResult) error
	ListResults(ctx context.Context, runID string) ([]model.EndpointResult, error)
	IsDone(ctx context.Context, runID, endpoint string) (bool, error)

	Close() error
}
