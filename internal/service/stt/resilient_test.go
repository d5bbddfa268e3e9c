package stt

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedAdapter returns the queued results in order.
type scriptedAdapter struct {
	results []error
	calls   int
	block   bool
}

func (a *scriptedAdapter) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	a.calls++
	if a.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if len(a.results) == 0 {
		return "ok", nil
	}
	err := a.results[0]
	a.results = a.results[1:]
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func (a *scriptedAdapter) Name() string  { return "scripted" }
func (a *scriptedAdapter) Model() string { return "scripted-1" }

func fastPolicy(attempts int) Policy {
	return Policy{Timeout: time.Second, MaxAttempts: attempts, Backoff: time.Millisecond}
}

func TestResilient_RetriesUnavailable(t *testing.T) {
	next := &scriptedAdapter{results: []error{
		fmt.Errorf("%w: connection reset", ErrProviderUnavailable),
		nil,
	}}
	r := NewResilient(next, fastPolicy(3))

	text, err := r.Transcribe(context.Background(), []byte("audio"), 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" {
		t.Errorf("expected 'ok', got %q", text)
	}
	if next.calls != 2 {
		t.Errorf("expected 2 calls, got %d", next.calls)
	}
}

func TestResilient_GivesUpAfterMaxAttempts(t *testing.T) {
	next := &scriptedAdapter{results: []error{ErrProviderUnavailable, ErrProviderUnavailable, ErrProviderUnavailable}}
	r := NewResilient(next, fastPolicy(2))

	_, err := r.Transcribe(context.Background(), []byte("audio"), 16000)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if next.calls != 2 {
		t.Errorf("expected 2 calls, got %d", next.calls)
	}
}

func TestResilient_DoesNotRetryNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rejected", fmt.Errorf("%w: status 400", ErrProviderRejected)},
		{"auth failed", fmt.Errorf("%w: status 401", ErrProviderAuthFailed)},
		{"unknown", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedAdapter{results: []error{tt.err, nil}}
			r := NewResilient(next, fastPolicy(3))

			_, err := r.Transcribe(context.Background(), []byte("audio"), 16000)
			if !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
			if next.calls != 1 {
				t.Errorf("expected 1 call, got %d", next.calls)
			}
		})
	}
}

func TestResilient_TimeoutIsUnavailable(t *testing.T) {
	next := &scriptedAdapter{block: true}
	r := NewResilient(next, Policy{Timeout: 10 * time.Millisecond, MaxAttempts: 1})

	_, err := r.Transcribe(context.Background(), []byte("audio"), 16000)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if Kind(err) != KindUnavailable {
		t.Errorf("expected kind %s, got %s", KindUnavailable, Kind(err))
	}
}

func TestResilient_Preconditions(t *testing.T) {
	next := &scriptedAdapter{}
	r := NewResilient(next, fastPolicy(1))

	if _, err := r.Transcribe(context.Background(), nil, 16000); !errors.Is(err, ErrProviderRejected) {
		t.Errorf("empty audio: expected ErrProviderRejected, got %v", err)
	}
	if _, err := r.Transcribe(context.Background(), []byte("a"), 0); !errors.Is(err, ErrProviderRejected) {
		t.Errorf("zero sample rate: expected ErrProviderRejected, got %v", err)
	}
	if next.calls != 0 {
		t.Errorf("adapter should not be called, got %d calls", next.calls)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{fmt.Errorf("wrap: %w", ErrProviderUnavailable), KindUnavailable},
		{fmt.Errorf("wrap: %w", ErrProviderRejected), KindRejected},
		{fmt.Errorf("wrap: %w", ErrProviderAuthFailed), KindAuthFailed},
		{errors.New("other"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.expected {
				t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.expected)
			}
		})
	}
}
