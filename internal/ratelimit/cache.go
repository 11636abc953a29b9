package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
)

// UsageSource reports the requests spent in the current hour and the hourly limit.
// api.Client implements it via GET /self/usage.
type UsageSource interface {
	FetchUsage(ctx context.Context) (used, limit int, err error)
}

// UsageCache is the controller's view of the hourly budget.
//
// The authoritative figure is refreshed from the API now and then; between
// refreshes usage is extrapolated from the elapsed time so the controller does
// not spend a request of its own on every call. The collector owns the cache
// and hands it to the Controller; it is not safe for concurrent use on its own.
type UsageCache struct {
	Used              int       `json:"used"`
	Limit             int       `json:"limit"`
	LastUpdated       time.Time `json:"last_updated"`
	PerceivedRequests int       `json:"perceived_requests"`
	Initialized       bool      `json:"initialized"`

	// PreviousSecondsElapsed is the seconds-into-hour seen by the last computation.
	PreviousSecondsElapsed float64 `json:"previous_elapsed"`
	hasPrevious            bool
}

// NewUsageCache returns an uninitialized cache; the first computation refreshes it.
func NewUsageCache() *UsageCache {
	return &UsageCache{Limit: constants.DefaultRequestLimit}
}

// needsRefresh reports whether the authoritative usage must be fetched.
func (u *UsageCache) needsRefresh(now time.Time) bool {
	switch {
	case !u.Initialized:
		return true
	case u.PerceivedRequests >= RefreshAfterRequests:
		return true
	case now.Sub(u.LastUpdated) > RefreshAfter:
		return true
	}
	utc := now.UTC()
	return utc.Minute() == 0 && time.Duration(utc.Second())*time.Second < HourStartWindow
}

// update refreshes or extrapolates the cached usage. On a fetch error the
// cache is left untouched.
func (u *UsageCache) update(ctx context.Context, src UsageSource, now time.Time) error {
	if u.needsRefresh(now) {
		used, limit, err := src.FetchUsage(ctx)
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = constants.DefaultRequestLimit
		}
		u.Used = used
		u.Limit = limit
		u.PerceivedRequests = 0
		u.Initialized = true
		u.LastUpdated = now
		return nil
	}

	elapsed := now.Sub(u.LastUpdated).Seconds()
	u.Used += int(math.RoundToEven(float64(u.Limit) / SecondsPerHour * elapsed))
	u.PerceivedRequests++
	u.LastUpdated = now
	return nil
}

// usage returns used (clamped to the limit) and the limit.
func (u *UsageCache) usage() (used, limit int) {
	return min(u.Used, u.Limit), u.Limit
}

// rolledOver records secondsElapsed and reports whether it went backwards,
// i.e. a new UTC hour started since the previous computation.
func (u *UsageCache) rolledOver(secondsElapsed float64) bool {
	wrapped := u.hasPrevious && secondsElapsed < u.PreviousSecondsElapsed
	u.PreviousSecondsElapsed = secondsElapsed
	u.hasPrevious = true
	return wrapped
}

// secondsIntoHour returns the fractional seconds elapsed in the current UTC hour.
func secondsIntoHour(now time.Time) float64 {
	utc := now.UTC()
	return float64(utc.Minute()*60+utc.Second()) + float64(utc.Nanosecond())/1e9
}
