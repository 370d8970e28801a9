// Package ratelimit throttles calls to the remote API and recovers from
// rate-limit errors by waiting the required time and retrying once.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"tg_harvest/internal/metrics"
)

// Error is a rate-limit rejection that names how long to wait before
// the call may be repeated.
type Error struct {
	RetryAfter int // seconds
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited for %ds: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited for %ds", e.RetryAfter)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var waitRe = regexp.MustCompile(`(?i)a wait of (\d+) seconds? is required`)

// ParseWait extracts N from messages of the form
// "A wait of N seconds is required". It reports false for anything else,
// including a zero wait.
func ParseWait(msg string) (int, bool) {
	m := waitRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// FromMessage converts err into an *Error when its text carries a wait
// duration. Other errors are returned unchanged.
func FromMessage(err error) error {
	if err == nil {
		return nil
	}
	var rl *Error
	if errors.As(err, &rl) {
		return err
	}
	if n, ok := ParseWait(err.Error()); ok {
		return &Error{RetryAfter: n, Err: err}
	}
	return err
}

// Delay is an inclusive window of whole seconds to pause before a call.
type Delay struct {
	Min int
	Max int
}

// Invoker runs operations with a random pre-call pause and a single
// retry after a rate-limit wait.
type Invoker struct {
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
	intN  func(n int) int
}

// New creates an Invoker that sleeps in real time.
func New(log *slog.Logger) *Invoker {
	return &Invoker{
		log:   log,
		sleep: sleepCtx,
		intN:  rand.IntN,
	}
}

// NewWithSleep creates an Invoker with a custom sleep function (useful
// for testing).
func NewWithSleep(log *slog.Logger, sleep func(ctx context.Context, d time.Duration) error) *Invoker {
	inv := New(log)
	inv.sleep = sleep
	return inv
}

// Invoke waits a random duration within d, then calls op. A rate-limit
// error with a positive RetryAfter causes exactly one wait-and-retry;
// every other error is returned as is.
func (inv *Invoker) Invoke(ctx context.Context, d Delay, op func(ctx context.Context) error) error {
	secs := d.Min
	if d.Max > d.Min {
		secs += inv.intN(d.Max - d.Min + 1)
	}
	inv.log.Debug("waiting before call", "seconds", secs)
	if err := inv.sleep(ctx, time.Duration(secs)*time.Second); err != nil {
		return err
	}

	err := op(ctx)
	if err == nil {
		metrics.Invocations.WithLabelValues("ok").Inc()
		return nil
	}

	var rl *Error
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		metrics.Invocations.WithLabelValues("error").Inc()
		return err
	}

	metrics.Invocations.WithLabelValues("rate_limited").Inc()
	metrics.RateLimitWaits.Inc()
	metrics.RateLimitWaitSeconds.Add(float64(rl.RetryAfter))
	inv.log.Warn("rate limited, waiting", "wait_seconds", rl.RetryAfter)

	if err := inv.sleep(ctx, time.Duration(rl.RetryAfter)*time.Second); err != nil {
		return err
	}
	inv.log.Info("resuming after rate limit")

	if err := op(ctx); err != nil {
		metrics.Invocations.WithLabelValues("error").Inc()
		return fmt.Errorf("retry after rate limit: %w", err)
	}
	metrics.Invocations.WithLabelValues("ok").Inc()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
