package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy bounds each provider call and sets how unavailable providers are retried.
type Policy struct {
	Timeout     time.Duration // per attempt, 0 disables
	MaxAttempts int           // total attempts, values < 1 mean 1
	Backoff     time.Duration // doubled after every failed attempt
}

// DefaultPolicy returns the default call policy.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     30 * time.Second,
		MaxAttempts: 2,
		Backoff:     250 * time.Millisecond,
	}
}

// Resilient wraps an Adapter with a per-attempt timeout and retries.
// Only ErrProviderUnavailable is retried; a timeout is reported as
// ErrProviderUnavailable.
type Resilient struct {
	next   Adapter
	policy Policy
}

// NewResilient wraps next with policy.
func NewResilient(next Adapter, policy Policy) *Resilient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Resilient{next: next, policy: policy}
}

func (r *Resilient) Name() string  { return r.next.Name() }
func (r *Resilient) Model() string { return r.next.Model() }

// Transcribe calls the wrapped adapter until it succeeds, fails with a
// non-retryable error or runs out of attempts.
func (r *Resilient) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrProviderRejected)
	}
	if sampleRate <= 0 {
		return "", fmt.Errorf("%w: invalid sample rate %d", ErrProviderRejected, sampleRate)
	}

	backoff := r.policy.Backoff
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		var text string
		text, err = r.attempt(ctx, audio, sampleRate)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrProviderUnavailable) || attempt == r.policy.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("sttProvider", r.next.Name()).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("STT provider unavailable, retrying")

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", err
}

func (r *Resilient) attempt(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	text, err := r.next.Transcribe(ctx, audio, sampleRate)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrProviderUnavailable) {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return text, err
}
