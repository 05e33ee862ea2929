package shipper

import (
	"math/rand"
	"time"
)

const (
	retryFloor  = time.Second
	retryCeil   = time.Minute
	retrySpread = 0.25
)

// retry yields doubling delays between retryFloor and retryCeil, each
// spread by up to ±retrySpread.
type retry struct {
	base time.Duration
}

func newRetry() *retry { return &retry{base: retryFloor} }

func (r *retry) wait() time.Duration {
	spread := (rand.Float64()*2 - 1) * retrySpread //nolint:gosec // jitter only
	d := r.base + time.Duration(spread*float64(r.base))

	r.base *= 2
	if r.base > retryCeil {
		r.base = retryCeil
	}
	if d < 0 {
		return 0
	}
	return d
}

func (r *retry) clear() { r.base = retryFloor }
