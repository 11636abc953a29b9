// Package collector exports org datasets to CSV, pacing API calls with the
// adaptive rate controller.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// DelaySource computes the next pause; *ratelimit.Controller implements it.
type DelaySource interface {
	ComputeDelay(ctx context.Context, previous *float64) (*float64, time.Duration)
}

// Pacer spaces out API calls. A fixed delay overrides the controller.
type Pacer struct {
	source DelaySource
	fixed  time.Duration
	logger *logging.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	smoothed *float64
}

// NewPacer returns a pacer driven by source, or by fixed when it is positive.
func NewPacer(source DelaySource, fixed time.Duration, logger *logging.Logger) *Pacer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pacer{source: source, fixed: fixed, logger: logger, sleep: sleepContext}
}

// Next returns the delay before the next call and advances the smoothing state.
func (p *Pacer) Next(ctx context.Context) time.Duration {
	if p.fixed > 0 || p.source == nil {
		return p.fixed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var d time.Duration
	p.smoothed, d = p.source.ComputeDelay(ctx, p.smoothed)
	return d
}

// Wait sleeps for the next delay. It returns early with ctx's error.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next(ctx)
	p.logger.Info().Msgf("Sleeping for %.2f seconds", d.Seconds())
	return p.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
