package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{
			name:    "attempt zero has no delay",
			policy:  Policy{InitialDelay: time.Second, BackoffStrategy: BackoffFixed},
			attempt: 0,
			want:    0,
		},
		{
			name:    "fixed backoff stays constant",
			policy:  Policy{InitialDelay: time.Second, BackoffStrategy: BackoffFixed},
			attempt: 3,
			want:    time.Second,
		},
		{
			name:    "exponential backoff doubles",
			policy:  Policy{InitialDelay: time.Second, BackoffStrategy: BackoffExponential},
			attempt: 3,
			want:    4 * time.Second,
		},
		{
			name:    "exponential backoff capped by max delay",
			policy:  Policy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffStrategy: BackoffExponential},
			attempt: 4,
			want:    3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.CalculateDelay(tt.attempt); got != tt.want {
				t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExecutorSucceedsAfterRetries(t *testing.T) {
	executor := NewExecutor(Policy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffStrategy: BackoffFixed})

	calls := 0
	err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	executor := NewExecutor(Policy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffStrategy: BackoffFixed})

	wantErr := errors.New("permanent")
	calls := 0
	err := executor.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	executor := NewExecutor(Policy{MaxRetries: 10, InitialDelay: time.Hour, BackoffStrategy: BackoffFixed})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- executor.Execute(ctx, func(ctx context.Context, attempt int) error {
			calls++
			if calls == 1 {
				close(started)
			}
			return errors.New("transient")
		})
	}()

	<-started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
