// Package ratelimit throttles MCP tool calls with one token bucket per tool.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports a refused call and when a token becomes available.
// RetryAfter is negative when the bucket never refills.
type LimitError struct {
	Tool       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter < 0 {
		return fmt.Sprintf("rate limit exceeded for %s", e.Tool)
	}
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Tool, e.RetryAfter)
}

// Is lets errors.Is match ErrRateLimited.
func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// Limiter keeps a token bucket per key, all with the same rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time
}

// NewLimiter allows perSecond calls per key on average, with bursts of up
// to burst calls. Each key starts with a full bucket.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

func (l *Limiter) bucket(key string) (*rate.Limiter, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	return b, l.nowFunc()
}

// Take consumes a token for key when one is available and returns zero.
// Otherwise nothing is consumed and it returns how long until a token
// would be available, or -1 when none ever will be.
func (l *Limiter) Take(key string) time.Duration {
	b, now := l.bucket(key)
	r := b.ReserveN(now, 1)
	if !r.OK() {
		return -1
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return 0
	}
	r.CancelAt(now)
	// A zero-rate bucket reports an infinite delay once the burst is spent.
	if d == rate.InfDuration {
		return -1
	}
	return d
}

// Allow reports whether a call for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.Take(key) == 0
}

// ToolLimiters maps tool names to their limiters. A nil map limits nothing.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool budgets. Runs simulate and
// write files, so they get the tightest one.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"episim_run":     NewLimiter(10.0/60.0, 2), // 10/minute, burst 2
		"episim_runs":    NewLimiter(1.0, 10),      // 60/minute, burst 10
		"episim_summary": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"episim_config":  NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter always
// pass; a refusal is a *LimitError.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	d := limiter.Take(toolName)
	if d == 0 {
		return nil
	}
	if d > 0 {
		d = d.Round(time.Second)
		if d == 0 {
			d = time.Second
		}
	}
	return &LimitError{Tool: toolName, RetryAfter: d}
}
