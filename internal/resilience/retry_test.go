package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("bad gateway"), http.StatusBadGateway)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error after recovery: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid credentials")
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors must not retry)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	outage := NewTransientError(errors.New("service unavailable"), http.StatusServiceUnavailable)
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return outage
	})
	if !errors.Is(err, outage) {
		t.Fatalf("err = %v, want last attempt error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Second

	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("outage"), http.StatusBadGateway)
	})
	if err == nil {
		t.Fatal("Do returned nil after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("Do slept %v after cancel, want immediate return", elapsed)
	}
}

func TestDoElapsedCoversBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0,
	}

	start := time.Now()
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(errors.New("outage"), http.StatusGatewayTimeout)
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Do returned nil for a persistently failing call")
	}
	if want := cfg.BackoffBudget(); elapsed < want {
		t.Errorf("elapsed = %v, want >= backoff budget %v", elapsed, want)
	}
}

func TestDoCallsOnRetry(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return NewTransientError(errors.New("outage"), http.StatusBadGateway)
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 3 * time.Second}, // capped
		{5, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}
	for i := 0; i < 100; i++ {
		d := cfg.delay(0)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [500ms, 1500ms]", d)
		}
	}
}

func TestBackoffBudget(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetryConfig
		want time.Duration
	}{
		{
			name: "three attempts uncapped",
			cfg:  RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2.0},
			want: 3 * time.Second,
		},
		{
			name: "cap limits later delays",
			cfg:  RetryConfig{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2.0},
			want: 3 * time.Second,
		},
		{
			name: "single attempt never sleeps",
			cfg:  RetryConfig{MaxAttempts: 1, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2.0},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BackoffBudget(); got != tt.want {
				t.Errorf("BackoffBudget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 2000, 60000, 3.0, 0.1)
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want 2s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != time.Minute {
		t.Errorf("MaxBackoff = %v, want 1m", cfg.MaxBackoff)
	}
	if cfg.Multiplier != 3.0 {
		t.Errorf("Multiplier = %v, want 3.0", cfg.Multiplier)
	}
	if cfg.JitterFraction != 0.1 {
		t.Errorf("JitterFraction = %v, want 0.1", cfg.JitterFraction)
	}

	def := FromRetryConfig(0, 0, 0, 0, 0)
	base := DefaultRetryConfig()
	if def.MaxAttempts != base.MaxAttempts || def.InitialBackoff != base.InitialBackoff {
		t.Errorf("zero values should keep defaults, got %+v", def)
	}
	if def.JitterFraction != 0 {
		t.Errorf("JitterFraction = %v, want 0", def.JitterFraction)
	}
}
