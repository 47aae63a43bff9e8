package admission

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps how many comments are answered per rolling minute.
// It is safe for concurrent use.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter allows perMinute replies per minute with bursts of the
// same size. perMinute <= 0 disables the limit.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
}

// Allow consumes one token if available.
func (r *RateLimiter) Allow() bool {
	return r.lim.Allow()
}
