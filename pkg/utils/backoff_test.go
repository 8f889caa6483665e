package utils

import (
	"testing"
	"time"
)

func TestConstantPoll(t *testing.T) {
	interval := 200 * time.Millisecond
	poll := NewConstantPoll(interval)

	for i := 0; i < 10; i++ {
		if d := poll.NextDelay(i); d != interval {
			t.Errorf("Attempt %d: expected %v, got %v", i, interval, d)
		}
	}
}

func TestExponentialPoll(t *testing.T) {
	poll := NewExponentialPoll(100*time.Millisecond, 2*time.Second, 2.0)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 2 * time.Second}, // capped
		{50, 2 * time.Second},
	}

	for _, tt := range tests {
		if d := poll.NextDelay(tt.attempt); d != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, d)
		}
	}
}

func TestExponentialPollDefaults(t *testing.T) {
	poll := NewExponentialPoll(100*time.Millisecond, 0, 0)
	if poll.Multiplier != 2.0 {
		t.Errorf("expected default multiplier 2.0, got %f", poll.Multiplier)
	}
	if poll.MaxInterval != 100*time.Millisecond {
		t.Errorf("expected max raised to interval, got %v", poll.MaxInterval)
	}
}

func TestPollFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		interval time.Duration
		attempt  int
		expected time.Duration
		wantErr  bool
	}{
		{"default is constant", "", 200 * time.Millisecond, 3, 200 * time.Millisecond, false},
		{"constant", "constant", 50 * time.Millisecond, 7, 50 * time.Millisecond, false},
		{"exponential", "exponential", 50 * time.Millisecond, 2, 200 * time.Millisecond, false},
		{"exponential default cap", "exponential", 50 * time.Millisecond, 20, 5 * time.Second, false},
		{"unknown", "random", 50 * time.Millisecond, 0, 0, true},
		{"zero interval", "constant", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poll, err := PollFromConfig(tt.kind, tt.interval, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d := poll.NextDelay(tt.attempt); d != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, d)
			}
		})
	}
}
