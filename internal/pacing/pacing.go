// Package pacing spaces outbound messages so bulk sends stay under provider
// spam thresholds.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer gates the send loop. Acquire is called before every message and
// PauseBatch once between consecutive batches.
type Pacer interface {
	Acquire(ctx context.Context) error
	PauseBatch(ctx context.Context) error
}

// IntervalPacer enforces a fixed minimum interval between messages and a
// fixed pause between batches.
type IntervalPacer struct {
	limiter    *rate.Limiter
	batchDelay time.Duration
}

// NewIntervalPacer returns a pacer that lets one message through every delay
// and sleeps batchDelay between batches. Zero durations disable the matching gate.
func NewIntervalPacer(delay, batchDelay time.Duration) *IntervalPacer {
	p := &IntervalPacer{batchDelay: batchDelay}
	if delay > 0 {
		p.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return p
}

// FromMillis builds an IntervalPacer from the millisecond values used in requests.
func FromMillis(delayMs, batchDelayMs int) *IntervalPacer {
	return NewIntervalPacer(time.Duration(delayMs)*time.Millisecond, time.Duration(batchDelayMs)*time.Millisecond)
}

// Acquire blocks until the next message may be sent or ctx is done.
func (p *IntervalPacer) Acquire(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// PauseBatch sleeps for the batch delay or until ctx is done.
func (p *IntervalPacer) PauseBatch(ctx context.Context) error {
	return Sleep(ctx, p.batchDelay)
}

// Sleep waits for d, returning early with ctx.Err() when ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Unpaced never waits. Used by the worker, where SQS delivery delay already
// spaces the batches, and in tests.
type Unpaced struct{}

func (Unpaced) Acquire(ctx context.Context) error    { return ctx.Err() }
func (Unpaced) PauseBatch(ctx context.Context) error { return ctx.Err() }
