package retry

import (
	"context"
	"testing"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffExponential {
		t.Fatalf("expected exponential default mode got %s", p.Mode)
	}
	if p.Initial != 500*time.Millisecond {
		t.Fatalf("expected initial 500ms got %v", p.Initial)
	}
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts got %d", p.MaxAttempts)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts got %d", p.MaxAttempts)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		if d := fixed.Delay(i); d != 100*time.Millisecond {
			t.Fatalf("fixed attempt %d expected 100ms got %v", i, d)
		}
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}}
	for _, c := range cases {
		if got := linear.Delay(c.attempt); got != c.want {
			t.Fatalf("linear attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}

	// 500ms, 1s, 2s ... capped at 8s
	exp := DefaultPolicy()
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 500 * time.Millisecond}, {2, time.Second}, {3, 2 * time.Second}, {6, 8 * time.Second}, {70, 8 * time.Second}}
	for _, c := range expCases {
		if got := exp.Delay(c.attempt); got != c.want {
			t.Fatalf("exp attempt %d expected %v got %v", c.attempt, c.want, got)
		}
	}
}

// TestDelayEdgeCases ensures non-positive attempts yield zero.
func TestDelayEdgeCases(t *testing.T) {
	p := DefaultPolicy()
	if d := p.Delay(0); d != 0 {
		t.Fatalf("attempt 0 expected 0 got %v", d)
	}
	if d := p.Delay(-1); d != 0 {
		t.Fatalf("attempt -1 expected 0 got %v", d)
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	if err := (Policy{Initial: 0, Max: time.Second, MaxAttempts: 1}).Validate(); err == nil {
		t.Fatalf("expected error for zero initial")
	}
	if err := (Policy{Initial: time.Second, Max: 0, MaxAttempts: 1}).Validate(); err == nil {
		t.Fatalf("expected error for zero max")
	}
	if err := (Policy{Initial: time.Second, Max: time.Second, MaxAttempts: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

// TestSleepHonorsCancellation returns immediately on a canceled context.
func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := NewPolicy(config.RetryBackoffFixed, time.Minute, time.Minute, 2).Sleep(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not return promptly")
	}
}

// TestFromConfig reads durations from a defaulted config.
func TestFromConfig(t *testing.T) {
	cfg := &config.Config{Content: config.ContentConfig{Fixtures: "x"}}
	config.ApplyDefaults(cfg)
	cfg.Retry.InitialDelay = "250ms"

	p := FromConfig(cfg)
	if p.Initial != 250*time.Millisecond || p.MaxAttempts != 3 {
		t.Fatalf("unexpected policy %+v", p)
	}
}
