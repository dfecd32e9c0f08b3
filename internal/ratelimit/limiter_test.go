package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// frozenLimiter returns a limiter whose clock only moves when advance is called.
func frozenLimiter(perSecond float64, burst int) (*Limiter, func(time.Duration)) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	l := NewLimiter(perSecond, burst)
	l.nowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return l, func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
}

func TestTake(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		calls     int           // tokens taken before the checked call
		advance   time.Duration // clock movement before the checked call
		want      time.Duration
	}{
		{"first call", 1, 2, 0, 0, 0},
		{"within burst", 1, 3, 2, 0, 0},
		{"burst exhausted", 1, 2, 2, 0, time.Second},
		{"refilled", 10, 2, 2, 200 * time.Millisecond, 0},
		{"partly refilled", 2, 1, 1, 250 * time.Millisecond, 250 * time.Millisecond},
		{"slow refill", 10.0 / 60.0, 2, 2, 0, 6 * time.Second},
		{"zero rate within burst", 0, 2, 1, 0, 0},
		{"zero rate exhausted", 0, 2, 2, time.Hour, -1},
		{"zero burst", 1, 0, 0, 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, advance := frozenLimiter(tt.perSecond, tt.burst)
			for i := 0; i < tt.calls; i++ {
				if d := l.Take("episim_run"); d != 0 {
					t.Fatalf("setup call %d refused (%v)", i+1, d)
				}
			}
			advance(tt.advance)
			if got := l.Take("episim_run"); got != tt.want {
				t.Errorf("Take() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTake_RefusalConsumesNothing(t *testing.T) {
	l, advance := frozenLimiter(1, 1)
	l.Take("k")

	// Repeated refusals must not push the next token further out.
	for i := 0; i < 5; i++ {
		if d := l.Take("k"); d != time.Second {
			t.Fatalf("refusal %d: Take() = %v, want 1s", i+1, d)
		}
	}
	advance(time.Second)
	if !l.Allow("k") {
		t.Error("token should be available after one second")
	}
}

func TestTake_ZeroRateNeverRefills(t *testing.T) {
	l := NewLimiter(0, 1)
	if d := l.Take("episim_run"); d != 0 {
		t.Fatalf("first Take() = %v, want 0", d)
	}
	for i := 0; i < 3; i++ {
		if d := l.Take("episim_run"); d != -1 {
			t.Errorf("Take() %d after burst = %v, want -1", i+1, d)
		}
	}

	err := CheckLimit(ToolLimiters{"episim_run": l}, "episim_run")
	if err == nil || err.Error() != "rate limit exceeded for episim_run" {
		t.Errorf("CheckLimit() = %v, want no retry hint", err)
	}
}

func TestAllow_BurstCap(t *testing.T) {
	l, advance := frozenLimiter(100, 3)
	for i := 0; i < 3; i++ {
		l.Allow("k")
	}
	advance(10 * time.Second)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow("k") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d after a long idle, want burst of 3", allowed)
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Allow("episim_run")
	if l.Allow("episim_run") {
		t.Error("episim_run should be exhausted")
	}
	if !l.Allow("episim_runs") {
		t.Error("episim_runs has its own bucket")
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l, _ := frozenLimiter(1000, 100)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("k") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// The clock is frozen, so exactly the burst gets through.
	if n := allowed.Load(); n != 100 {
		t.Errorf("allowed %d, want 100", n)
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool  string
		burst int
		rate  float64
	}{
		{"episim_run", 2, 10.0 / 60.0},
		{"episim_runs", 10, 1},
		{"episim_summary", 10, 1},
		{"episim_config", 5, 0.5},
	}
	if len(limiters) != len(tests) {
		t.Errorf("NewToolLimiters() has %d tools, want %d", len(limiters), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			l, ok := limiters[tt.tool]
			if !ok {
				t.Fatalf("no limiter for %s", tt.tool)
			}
			if l.burst != tt.burst || float64(l.rate) != tt.rate {
				t.Errorf("rate, burst = %v, %d, want %v, %d", l.rate, l.burst, tt.rate, tt.burst)
			}
		})
	}
}

func TestCheckLimit(t *testing.T) {
	run, _ := frozenLimiter(10.0/60.0, 2)
	dead, _ := frozenLimiter(0, 0)
	limiters := ToolLimiters{"episim_run": run, "episim_config": dead}

	for i := 0; i < 2; i++ {
		if err := CheckLimit(limiters, "episim_run"); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	err := CheckLimit(limiters, "episim_run")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *LimitError", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("LimitError should match ErrRateLimited")
	}
	if le.Tool != "episim_run" || le.RetryAfter != 6*time.Second {
		t.Errorf("LimitError = %+v, want episim_run retry in 6s", le)
	}
	if got := err.Error(); got != "rate limit exceeded for episim_run, retry in 6s" {
		t.Errorf("Error() = %q", got)
	}

	err = CheckLimit(limiters, "episim_config")
	if !errors.As(err, &le) || le.RetryAfter >= 0 {
		t.Errorf("never-refilling bucket: err = %v", err)
	}
	if got := err.Error(); got != "rate limit exceeded for episim_config" {
		t.Errorf("Error() = %q", got)
	}

	// Unknown tools and a nil map are never limited.
	if err := CheckLimit(limiters, "episim_summary"); err != nil {
		t.Errorf("unconfigured tool: %v", err)
	}
	if err := CheckLimit(nil, "episim_run"); err != nil {
		t.Errorf("nil limiters: %v", err)
	}
}

func TestCheckLimit_RoundsUpSubSecond(t *testing.T) {
	l, advance := frozenLimiter(1, 1)
	limiters := ToolLimiters{"episim_runs": l}
	CheckLimit(limiters, "episim_runs")
	advance(800 * time.Millisecond)

	var le *LimitError
	if err := CheckLimit(limiters, "episim_runs"); !errors.As(err, &le) || le.RetryAfter != time.Second {
		t.Errorf("err = %v, want retry in 1s", err)
	}
}
