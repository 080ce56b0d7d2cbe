package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryTransient_SucceedsThirdAttempt(t *testing.T) {
	base := time.Second
	var slept []time.Duration
	sleep := func(d time.Duration) { slept = append(slept, d) }

	attempts := 0
	call := func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("429 rate limit exceeded")
		}
		return "ok", nil
	}

	out, err := RetryTransient(context.Background(), 3, base, sleep, call)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d", attempts)
	}

	// Backoff doubles: base before attempt 2, 2*base before attempt 3.
	if len(slept) != 2 || slept[0] != base || slept[1] != 2*base {
		t.Errorf("sleeps = %v", slept)
	}
	var total time.Duration
	for _, d := range slept {
		total += d
	}
	if total != 3*base {
		t.Errorf("total sleep = %v, want %v", total, 3*base)
	}
}

func TestRetryTransient_ExhaustsBudget(t *testing.T) {
	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("RESOURCE_EXHAUSTED")
	}

	_, err := RetryTransient(context.Background(), 3, time.Millisecond, func(time.Duration) {}, call)
	if !errors.Is(err, ErrProviderOverloaded) {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetryTransient_NonTransientFailsFast(t *testing.T) {
	calls := 0
	wantErr := errors.New("400 invalid request")
	call := func(ctx context.Context) (string, error) {
		calls++
		return "", wantErr
	}

	_, err := RetryTransient(context.Background(), 3, time.Millisecond, func(time.Duration) {}, call)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestRetryTransient_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	call := func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("503 unavailable")
	}

	_, err := RetryTransient(ctx, 3, time.Millisecond, func(time.Duration) {}, call)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestIsTransientOverload(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("googleapi: Error 429: Resource has been exhausted"), true},
		{errors.New("rpc error: code = ResourceExhausted desc = quota exceeded"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("the model is overloaded"), true},
		{errors.New("400 invalid argument"), false},
		{errors.New("context deadline exceeded"), false},
	}

	for _, tc := range cases {
		if got := IsTransientOverload(tc.err); got != tc.want {
			t.Errorf("IsTransientOverload(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
