package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterStrategyGrowth(t *testing.T) {
	strategy := ExponentialJitterStrategy{}

	cases := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond},
		{"attempt 1", 1, 200 * time.Millisecond},
		{"attempt 2", 2, 400 * time.Millisecond},
		{"attempt 3", 3, 800 * time.Millisecond},
	}

	for _, tc := range cases {
		// Jitter disabled for exact comparison.
		got := strategy.Calculate(tc.attempt, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExponentialJitterStrategyCap(t *testing.T) {
	strategy := ExponentialJitterStrategy{}

	got := strategy.Calculate(20, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
	if got != 5*time.Second {
		t.Errorf("expected the cap, got %v", got)
	}

	// Huge attempt numbers must not overflow into negative durations.
	got = strategy.Calculate(1000, time.Second, 10*time.Second, 2.0, 0.0)
	if got != 10*time.Second {
		t.Errorf("expected the cap for large attempts, got %v", got)
	}
}

func TestExponentialJitterStrategyBounds(t *testing.T) {
	strategy := ExponentialJitterStrategy{}

	for i := 0; i < 100; i++ {
		got := strategy.Calculate(2, 100*time.Millisecond, 5*time.Second, 2.0, 0.5)
		if got < 400*time.Millisecond || got > 600*time.Millisecond {
			t.Fatalf("jittered delay %v outside [400ms, 600ms]", got)
		}
	}
}

func TestExponentialJitterStrategyNegativeAttempt(t *testing.T) {
	strategy := ExponentialJitterStrategy{}

	got := strategy.Calculate(-3, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
	if got != 100*time.Millisecond {
		t.Errorf("negative attempts must behave like attempt 0, got %v", got)
	}
}

func TestDecorrelatedJitterStrategyBounds(t *testing.T) {
	strategy := DecorrelatedJitterStrategy{}

	if got := strategy.Calculate(0, 100*time.Millisecond, 5*time.Second, 2.0, 0.0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 must return the initial delay, got %v", got)
	}

	for i := 0; i < 100; i++ {
		got := strategy.Calculate(1, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("attempt 1 delay %v outside [100ms, 300ms]", got)
		}
	}

	for i := 0; i < 100; i++ {
		got := strategy.Calculate(9, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
		if got < 100*time.Millisecond || got > 5*time.Second {
			t.Fatalf("deep attempt delay %v outside [100ms, 5s]", got)
		}
	}
}

func TestClampJitter(t *testing.T) {
	cases := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0},
	}

	for _, tc := range cases {
		if got := clampJitter(tc.input); got != tc.want {
			t.Errorf("clampJitter(%v) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
