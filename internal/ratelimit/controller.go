package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// Controller computes the delay to wait before the next API call.
//
// It is meant to be driven serially by a single collector loop. The mutex
// only makes accidental concurrent use queue up instead of interleaving
// writes to the tuning file.
type Controller struct {
	mu      sync.Mutex
	cache   *UsageCache
	source  UsageSource
	store   TuningStore
	diag    DiagnosticLog
	metrics *Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithDiagnostics appends a record to d after every computation.
func WithDiagnostics(d DiagnosticLog) Option {
	return func(c *Controller) { c.diag = d }
}

// WithMetrics publishes controller state to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sends controller events to l.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller over cache. A nil cache gets a fresh one.
func NewController(cache *UsageCache, source UsageSource, store TuningStore, opts ...Option) *Controller {
	if cache == nil {
		cache = NewUsageCache()
	}
	c := &Controller{
		cache:  cache,
		source: source,
		store:  store,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the usage cache the controller updates.
func (c *Controller) Cache() *UsageCache {
	return c.cache
}

// ComputeDelay returns the new smoothed delay (seconds) and the delay to wait.
//
// previous is the smoothed value returned by the last call, nil on the first.
// It never fails: if usage cannot be fetched or state cannot be saved, the
// caller gets previous back unchanged with FallbackDelay and nothing is persisted.
func (c *Controller) ComputeDelay(ctx context.Context, previous *float64) (*float64, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	smoothed, delay, err := c.compute(ctx, previous)
	if err != nil {
		c.logger.Warn().Err(err).Msgf("failed to calculate dynamic delay, using default %v", FallbackDelay)
		c.metrics.fallback()
		return previous, FallbackDelay
	}
	return &smoothed, time.Duration(delay * float64(time.Second))
}

func (c *Controller) compute(ctx context.Context, previous *float64) (smoothed, delay float64, err error) {
	state, err := c.store.Load()
	if err != nil {
		return 0, 0, err
	}
	if state.sanitize() {
		c.logger.Warn().Msg("tuning gains out of bounds, reset to defaults")
	}
	kp, ki := state.ProportionalGain, state.IntegralGain

	now := c.now()
	if err := c.cache.update(ctx, c.source, now); err != nil {
		return 0, 0, fmt.Errorf("failed to fetch API usage: %w", err)
	}
	used, limit := c.cache.usage()

	// Position on the ideal linear spend line
	secondsElapsed := secondsIntoHour(now)
	secondsRemaining := math.Max(SecondsPerHour-secondsElapsed, 1)
	idealUsed := secondsElapsed / SecondsPerHour * float64(limit)
	errVal := float64(used) - idealUsed

	if c.cache.rolledOver(secondsElapsed) {
		c.logger.Info().Float64("integral", state.Integral).Msg("hour boundary crossed, halving integral")
		state.Integral *= HourRolloverDecay
	}

	remaining := math.Max(float64(limit-used), 1)
	baseDelay := math.Min(secondsRemaining/remaining, MaxDelaySeconds)

	unsat := baseDelay + kp*errVal + ki*state.Integral
	sat := clamp(unsat, MinDelaySeconds, MaxDelaySeconds)

	// Anti-windup: the further the output saturates, the harder the integral
	// is pulled back.
	backCalc := clamp(math.Abs(sat-unsat)/BackCalcDivisor, MinBackCalcGain, MaxBackCalcGain)
	state.Integral = clamp(state.Integral*IntegralDecay+backCalc*(sat-unsat), -IntegralLimit, IntegralLimit)

	state.appendError(errVal)
	alpha := computeAlpha(state.Errors)

	smoothed = sat
	if previous != nil {
		smoothed = alpha*sat + (1-alpha)*(*previous)
	}
	delay = math.Max(smoothed, MinDelaySeconds)

	state.BackCalcGain = backCalc
	state.adjustGains()
	if err := c.store.Save(state); err != nil {
		return 0, 0, err
	}

	dm := DelayMetrics{
		Used:       used,
		Limit:      limit,
		Error:      errVal,
		BaseDelay:  baseDelay,
		UnsatDelay: unsat,
		FinalDelay: delay,
		Alpha:      alpha,
	}
	c.metrics.observe(dm, state)

	if c.diag != nil {
		rec := DiagnosticRecord{
			Timestamp:    isoTimestamp(now),
			DelayMetrics: dm,
			APICache:     *c.cache,
			TuningData:   *state,
		}
		if err := c.diag.Append(rec); err != nil {
			c.logger.Warn().Err(err).Msg("failed to write delay metrics")
		}
	}

	c.logger.Debug().
		Int("used", used).
		Int("limit", limit).
		Float64("error", errVal).
		Float64("base_delay", baseDelay).
		Float64("alpha", alpha).
		Float64("k_p", state.ProportionalGain).
		Float64("k_i", state.IntegralGain).
		Msgf("computed delay %.3fs", delay)

	return smoothed, delay, nil
}
