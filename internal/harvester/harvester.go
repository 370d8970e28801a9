// Package harvester walks the endpoint list through the rate-limited
// remote API, appending fetched records to the corpus after every
// endpoint.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tg_harvest/internal/endpoint"
	"tg_harvest/internal/metrics"
	"tg_harvest/internal/model"
	"tg_harvest/internal/ratelimit"
	"tg_harvest/internal/storage"
)

// DefaultPageSize is the number of most recent records fetched per endpoint.
const DefaultPageSize = 100

// RecordStore is the corpus the harvester appends to.
type RecordStore interface {
	Read() ([]model.Record, error)
	Write(records []model.Record) error
}

// Invoker runs one remote call with throttling and rate-limit recovery.
type Invoker interface {
	Invoke(ctx context.Context, d ratelimit.Delay, op func(ctx context.Context) error) error
}

// Options tunes the harvester loops.
type Options struct {
	PageSize   int
	FetchDelay ratelimit.Delay
	JoinDelay  ratelimit.Delay
	LeaveDelay ratelimit.Delay
}

// DefaultOptions mirrors the pacing the remote API tolerates for a
// single account.
func DefaultOptions() Options {
	return Options{
		PageSize:   DefaultPageSize,
		FetchDelay: ratelimit.Delay{Min: 3, Max: 10},
		JoinDelay:  ratelimit.Delay{Min: 1, Max: 10},
		LeaveDelay: ratelimit.Delay{Min: 3, Max: 10},
	}
}

// Summary reports the outcome of one loop.
type Summary struct {
	Kind      model.RunKind
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Records   int
}

// Harvester processes endpoints strictly one at a time.
type Harvester struct {
	client  Client
	invoker Invoker
	store   RecordStore
	journal storage.Journal
	opts    Options
	log     *slog.Logger
	resume  bool
}

// New creates a Harvester.
func New(client Client, invoker Invoker, store RecordStore, journal storage.Journal, opts Options, log *slog.Logger) *Harvester {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Harvester{
		client:  client,
		invoker: invoker,
		store:   store,
		journal: journal,
		opts:    opts,
		log:     log,
	}
}

// SetResume makes the next loops continue the latest unfinished run of
// their kind instead of starting a new one.
func (h *Harvester) SetResume(resume bool) {
	h.resume = resume
}

// Harvest fetches recent records for every endpoint in order. The corpus
// is rewritten after each endpoint so a failure or interruption never
// loses records of endpoints already processed. A per-endpoint failure is
// logged and skipped; only corpus and journal errors abort the loop.
func (h *Harvester) Harvest(ctx context.Context, endpoints []string) (Summary, error) {
	records, err := h.store.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read corpus: %w", err)
	}

	return h.loop(ctx, model.RunHarvest, endpoints, func(ctx context.Context, _ int, ep string) (int, error) {
		fetched, err := h.fetch(ctx, ep)
		if err != nil {
			return 0, err
		}
		if len(fetched) == 0 {
			return 0, nil
		}

		records = append(records, fetched...)
		if err := h.store.Write(records); err != nil {
			return 0, &fatalError{fmt.Errorf("write corpus: %w", err)}
		}
		metrics.RecordsHarvested.Add(float64(len(fetched)))
		h.log.Info("saved records", "endpoint", ep, "count", len(fetched), "total", len(records))
		return len(fetched), nil
	})
}

// fetch resolves ep and pulls one page of history. Blank messages are
// dropped and every record starts uncategorized.
func (h *Harvester) fetch(ctx context.Context, ep string) ([]model.Record, error) {
	var msgs []Message
	err := h.invoker.Invoke(ctx, h.opts.FetchDelay, func(ctx context.Context) error {
		entity, err := h.client.ResolveEntity(ctx, endpoint.Handle(ep))
		if err != nil {
			return fmt.Errorf("resolve entity: %w", err)
		}
		msgs, err = h.client.FetchRecords(ctx, entity, h.opts.PageSize)
		if err != nil {
			return fmt.Errorf("fetch records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.log.Debug("retrieved messages", "endpoint", ep, "count", len(msgs))

	out := make([]model.Record, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		sender := m.SenderID
		if sender == "" {
			sender = "unknown"
		}
		out = append(out, model.Record{
			Username:   sender,
			Message:    m.Text,
			Timestamp:  m.Date,
			SourceChat: ep,
			Category:   "",
		})
	}
	return out, nil
}

// Join joins every endpoint in order.
func (h *Harvester) Join(ctx context.Context, endpoints []string) (Summary, error) {
	return h.loop(ctx, model.RunJoin, endpoints, func(ctx context.Context, _ int, ep string) (int, error) {
		handle := endpoint.Handle(ep)
		err := h.invoker.Invoke(ctx, h.opts.JoinDelay, func(ctx context.Context) error {
			return h.client.JoinChannel(ctx, handle)
		})
		if err != nil {
			return 0, fmt.Errorf("join channel: %w", err)
		}
		h.log.Info("joined", "endpoint", handle)
		return 0, nil
	})
}

// LeaveAll leaves every group and channel the account is a member of.
func (h *Harvester) LeaveAll(ctx context.Context) (Summary, error) {
	var entities []Entity
	err := h.invoker.Invoke(ctx, ratelimit.Delay{}, func(ctx context.Context) error {
		var err error
		entities, err = h.client.ListJoinedEndpoints(ctx)
		return err
	})
	if err != nil {
		return Summary{Kind: model.RunLeave}, fmt.Errorf("list joined endpoints: %w", err)
	}
	h.log.Info("found joined endpoints", "count", len(entities))

	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return h.loop(ctx, model.RunLeave, names, func(ctx context.Context, i int, name string) (int, error) {
		err := h.invoker.Invoke(ctx, h.opts.LeaveDelay, func(ctx context.Context) error {
			return h.client.LeaveChannel(ctx, entities[i])
		})
		if err != nil {
			return 0, fmt.Errorf("leave channel: %w", err)
		}
		h.log.Info("left", "endpoint", name)
		return 0, nil
	})
}

// fatalError aborts the loop instead of skipping the endpoint.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

type stepFunc func(ctx context.Context, i int, ep string) (records int, err error)

// loop runs step for each endpoint, journaling every outcome. It stops
// early on cancellation or on a fatalError, leaving the run open so it
// can be resumed.
func (h *Harvester) loop(ctx context.Context, kind model.RunKind, endpoints []string, step stepFunc) (Summary, error) {
	sum := Summary{Kind: kind, Total: len(endpoints)}

	run, err := h.openRun(ctx, kind)
	if err != nil {
		return sum, err
	}
	sum.RunID = run.ID
	h.log.Info("starting run", "kind", kind, "run_id", run.ID, "endpoints", len(endpoints))

	for i, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			h.log.Warn("run interrupted", "kind", kind, "run_id", run.ID, "processed", i)
			return sum, err
		}

		if h.resume {
			done, err := h.journal.IsDone(ctx, run.ID, ep)
			if err != nil {
				return sum, fmt.Errorf("check journal: %w", err)
			}
			if done {
				h.log.Debug("already processed, skipping", "endpoint", ep)
				sum.Skipped++
				continue
			}
		}

		h.log.Info("processing", "kind", kind, "endpoint", ep, "position", i+1, "of", len(endpoints))
		n, err := step(ctx, i, ep)

		var fatal *fatalError
		if errors.As(err, &fatal) {
			return sum, fatal.err
		}
		if err != nil && ctx.Err() != nil {
			h.log.Warn("run interrupted", "kind", kind, "run_id", run.ID, "endpoint", ep)
			return sum, ctx.Err()
		}

		res := &model.EndpointResult{RunID: run.ID, Endpoint: ep, Status: model.StatusOK, Records: n}
		if err != nil {
			h.log.Error("endpoint failed", "kind", kind, "endpoint", ep, "error", err)
			res.Status = model.StatusFailed
			res.Error = err.Error()
			sum.Failed++
		} else {
			sum.Succeeded++
			sum.Records += n
		}
		metrics.Endpoints.WithLabelValues(string(kind), string(res.Status)).Inc()

		// The outcome is journaled even when ctx was cancelled meanwhile:
		// the corpus already holds this endpoint's records.
		if err := h.journal.RecordResult(context.WithoutCancel(ctx), res); err != nil {
			return sum, fmt.Errorf("journal endpoint %s: %w", ep, err)
		}
	}

	if err := h.journal.FinishRun(context.WithoutCancel(ctx), run.ID); err != nil {
		return sum, fmt.Errorf("close journal run: %w", err)
	}
	h.log.Info("run finished", "kind", kind, "run_id", run.ID,
		"succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped, "records", sum.Records)
	return sum, nil
}

func (h *Harvester) openRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	if h.resume {
		run, err := h.journal.LatestOpenRun(ctx, kind)
		if err == nil {
			h.log.Info("resuming run", "kind", kind, "run_id", run.ID, "started_at", run.StartedAt)
			return run, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("find open run: %w", err)
		}
	}
	run, err := h.journal.StartRun(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}
