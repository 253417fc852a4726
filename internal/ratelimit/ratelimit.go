// Package ratelimit implements fixed-window request limiting keyed by caller
// IP. The admin surface uses it to throttle probing; limiter failures fail
// open so a broken counter store never takes down legitimate traffic.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storegate_ratelimit_denied_total",
	Help: "Requests denied by the fixed-window rate limiter",
}, []string{"limiter"})

const (
	// DefaultLimit and DefaultWindow implement the admin surface default of
	// 10 requests per 60 seconds per client IP.
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Result describes a limiter decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a fixed-window counter. Allow consumes one slot for key and
// reports whether the request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}
