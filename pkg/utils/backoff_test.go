package utils

import (
	"testing"
	"time"
)

func TestConstantBackoff(t *testing.T) {
	backoff := ConstantBackoff{Delay: 100 * time.Millisecond}
	for i := 0; i < 5; i++ {
		if got := backoff.NextDelay(i); got != 100*time.Millisecond {
			t.Errorf("Attempt %d: expected 100ms, got %v", i, got)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := NewExponentialBackoff(100*time.Millisecond, time.Second)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped at max
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := backoff.NextDelay(tt.attempt); got != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestExponentialBackoffJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 3,
		Jitter:     NewRandSource(7),
	}
	for attempt := 0; attempt < 4; attempt++ {
		base := 100 * time.Millisecond
		for i := 0; i < attempt; i++ {
			base *= 3
		}
		got := backoff.NextDelay(attempt)
		if got < base/2 || got >= base*3/2 {
			t.Errorf("Attempt %d: delay %v outside [%v, %v)", attempt, got, base/2, base*3/2)
		}
	}
}
