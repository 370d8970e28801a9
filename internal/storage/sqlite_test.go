package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tg_harvest/internal/model"
)

var ignoreRunTS = cmpopts.IgnoreFields(model.Run{}, "StartedAt", "FinishedAt")
var ignoreResultTS = cmpopts.IgnoreFields(model.EndpointResult{}, "ProcessedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// steppedClock returns a clock that advances one second per call.
func steppedClock() func() time.Time {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	run, err := s.StartRun(ctx, model.RunHarvest)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID")
	}

	open, err := s.LatestOpenRun(ctx, model.RunHarvest)
	if err != nil {
		t.Fatalf("latest open run: %v", err)
	}
	if diff := cmp.Diff(run.ID, open.ID); diff != "" {
		t.Errorf("open run mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.LatestOpenRun(ctx, model.RunJoin); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other kind, got %v", err)
	}

	if err := s.FinishRun(ctx, run.ID); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if _, err := s.LatestOpenRun(ctx, model.RunHarvest); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after finish, got %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s := newTestDB(t)
	if err := s.FinishRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUnknownRun(t *testing.T) {
	s := newTestDB(t)
	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestOpenRunPicksNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	s.now = steppedClock()

	if _, err := s.StartRun(ctx, model.RunHarvest); err != nil {
		t.Fatalf("start first: %v", err)
	}
	second, err := s.StartRun(ctx, model.RunHarvest)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}

	got, err := s.LatestOpenRun(ctx, model.RunHarvest)
	if err != nil {
		t.Fatalf("latest open run: %v", err)
	}
	if diff := cmp.Diff(second.ID, got.ID); diff != "" {
		t.Errorf("latest run mismatch (-want +got):\n%s", diff)
	}
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	s.now = steppedClock()

	run, err := s.StartRun(ctx, model.RunHarvest)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	results := []model.EndpointResult{
		{RunID: run.ID, Endpoint: "phangan_chat", Status: model.StatusOK, Records: 42},
		{RunID: run.ID, Endpoint: "phuket_market", Status: model.StatusFailed, Error: "CHANNEL_PRIVATE"},
		{RunID: run.ID, Endpoint: "samui", Status: model.StatusOK, Records: 0},
	}
	for i := range results {
		if err := s.RecordResult(ctx, &results[i]); err != nil {
			t.Fatalf("record %s: %v", results[i].Endpoint, err)
		}
	}

	got, err := s.ListResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if diff := cmp.Diff(results, got, ignoreResultTS); diff != "" {
		t.Errorf("ListResults mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		endpoint string
		want     bool
	}{
		{endpoint: "phangan_chat", want: true},
		{endpoint: "phuket_market", want: false},
		{endpoint: "unknown", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			done, err := s.IsDone(ctx, run.ID, tt.endpoint)
			if err != nil {
				t.Fatalf("is done: %v", err)
			}
			if diff := cmp.Diff(tt.want, done); diff != "" {
				t.Errorf("IsDone mismatch (-want +got):\n%s", diff)
			}
		})
	}

	r, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	want := model.Run{ID: run.ID, Kind: model.RunHarvest, OK: 2, Failed: 1}
	if diff := cmp.Diff(want, *r, ignoreRunTS); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResultReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	run, err := s.StartRun(ctx, model.RunJoin)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	if err := s.RecordResult(ctx, &model.EndpointResult{RunID: run.ID, Endpoint: "samui", Status: model.StatusFailed, Error: "timeout"}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := s.RecordResult(ctx, &model.EndpointResult{RunID: run.ID, Endpoint: "samui", Status: model.StatusOK}); err != nil {
		t.Fatalf("record ok: %v", err)
	}

	got, err := s.ListResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	want := []model.EndpointResult{{RunID: run.ID, Endpoint: "samui", Status: model.StatusOK}}
	if diff := cmp.Diff(want, got, ignoreResultTS); diff != "" {
		t.Errorf("ListResults mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordResultUnknownRun(t *testing.T) {
	s := newTestDB(t)
	err := s.RecordResult(context.Background(), &model.EndpointResult{RunID: "missing", Endpoint: "x", Status: model.StatusOK})
	if err == nil {
		t.Fatal("expected foreign key error, got nil")
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	s.now = steppedClock()

	var ids []string
	for _, kind := range []model.RunKind{model.RunHarvest, model.RunJoin, model.RunLeave} {
		r, err := s.StartRun(ctx, kind)
		if err != nil {
			t.Fatalf("start %s: %v", kind, err)
		}
		ids = append(ids, r.ID)
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	want := []model.Run{
		{ID: ids[2], Kind: model.RunLeave},
		{ID: ids[1], Kind: model.RunJoin},
	}
	if diff := cmp.Diff(want, runs, ignoreRunTS); diff != "" {
		t.Errorf("ListRuns mismatch (-want +got):\n%s", diff)
	}
}
