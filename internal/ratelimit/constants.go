// Package ratelimit paces API calls against Mist's hourly request budget.
//
// Mist grants each token a fixed number of requests per UTC hour (5000 by
// default) and answers 429 for the rest of the hour once it is spent. Instead
// of a fixed token bucket, the Controller compares actual usage with an ideal
// linear spend line and computes the delay before the next call with an
// anti-windup PI loop:
//
//	ideal  = secondsIntoHour / 3600 * limit
//	error  = used - ideal            (positive means ahead of budget)
//	base   = secondsRemaining / requestsRemaining
//	delay  = clamp(base + kp*error + ki*integral, 0.2s, 10s)
//
// Gains self-tune from the trend of recent errors and are persisted between
// runs in tuning_data.json.
package ratelimit

import "time"

// Gain defaults and bounds
const (
	// DefaultProportionalGain - kp used for fresh or out-of-bounds tuning
	DefaultProportionalGain = 0.1

	// DefaultIntegralGain - ki used for fresh or out-of-bounds tuning
	DefaultIntegralGain = 0.0005

	// MinProportionalGain / MaxProportionalGain - kp must lie in (Min, Max]
	MinProportionalGain = 1e-6
	MaxProportionalGain = 1.0

	// MinIntegralGain / MaxIntegralGain - ki must lie in (Min, Max]
	MinIntegralGain = 1e-8
	MaxIntegralGain = 0.01

	// GainIncrease / GainDecrease - multiplicative step applied from the error trend
	GainIncrease = 1.05
	GainDecrease = 0.95
)

// Delay bounds in seconds
const (
	MinDelaySeconds = 0.2
	MaxDelaySeconds = 10.0

	// FallbackDelay - returned whenever a computation cannot complete
	FallbackDelay = 500 * time.Millisecond
)

// Integral and anti-windup parameters
const (
	// IntegralLimit - the integral is clamped to [-IntegralLimit, IntegralLimit]
	IntegralLimit = 1000.0

	// IntegralDecay - applied to the integral on every computation
	IntegralDecay = 0.98

	// HourRolloverDecay - applied once when the UTC hour wraps
	HourRolloverDecay = 0.5

	// Back-calculation gain is |sat-unsat|/BackCalcDivisor clamped to [Min, Max]
	BackCalcDivisor     = 10.0
	MinBackCalcGain     = 0.01
	MaxBackCalcGain     = 0.5
	DefaultBackCalcGain = MinBackCalcGain
)

// Error history and smoothing
const (
	// ErrorHistorySize - persisted error samples
	ErrorHistorySize = 20

	// TrendWindow - samples used for the gain trend and the alpha deviation
	TrendWindow = 10

	// DefaultAlpha - smoothing factor while fewer than two samples exist
	DefaultAlpha = 0.3

	// MinAlpha / MaxAlpha - alpha range mapped from error deviation
	MinAlpha = 0.1
	MaxAlpha = 0.9

	// AlphaStdDivisor - deviation (in requests) that maps to MaxAlpha
	AlphaStdDivisor = 50.0
)

// Usage cache refresh triggers
const (
	// RefreshAfterRequests - extrapolated calls before asking the API again
	RefreshAfterRequests = 100

	// RefreshAfter - maximum age of the authoritative usage figure
	RefreshAfter = 60 * time.Second

	// HourStartWindow - always refresh during the first seconds of a UTC hour
	HourStartWindow = 5 * time.Second

	// SecondsPerHour - budget window length
	SecondsPerHour = 3600.0
)
