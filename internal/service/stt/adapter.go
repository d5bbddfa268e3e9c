// Package stt defines the interface for Speech-to-Text adapters and the
// failure taxonomy shared by all providers.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Errors every adapter maps its failures onto. Match them with errors.Is.
var (
	// ErrProviderUnavailable - network failure, timeout or provider-side outage. Retryable.
	ErrProviderUnavailable = errors.New("stt provider unavailable")
	// ErrProviderRejected - the provider refused the request (e.g. malformed audio). Not retried.
	ErrProviderRejected = errors.New("stt provider rejected request")
	// ErrProviderAuthFailed - missing or invalid credential. Every later call fails the same way.
	ErrProviderAuthFailed = errors.New("stt provider authentication failed")
)

// Error kinds reported to peers and used as metric labels.
const (
	KindUnavailable = "provider-unavailable"
	KindRejected    = "provider-rejected"
	KindAuthFailed  = "provider-auth-failed"
	KindUnknown     = "unknown"
)

// Kind returns the short code for an adapter error.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrProviderAuthFailed):
		return KindAuthFailed
	case errors.Is(err, ErrProviderRejected):
		return KindRejected
	case errors.Is(err, ErrProviderUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// Adapter defines the interface for STT providers (Deepgram, Google, mock).
type Adapter interface {
	// Transcribe sends one utterance of single-channel 16-bit linear PCM at
	// sampleRate and returns the primary transcript. audio must be non-empty.
	Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error)

	// Name returns the provider name ("deepgram", "google", "mock").
	Name() string

	// Model returns the model identifier for logs and the capability descriptor.
	Model() string
}

// DefaultLanguageCode is requested when no language is configured.
const DefaultLanguageCode = "en-US"

// Options are the request parameters shared by all providers.
// An empty Model selects the provider's default.
type Options struct {
	Model        string
	LanguageCode string
}

// Unconfigured is an Adapter for a provider that could not be set up at
// startup. Every call fails with ErrProviderAuthFailed so the server keeps
// running and peers get a consistent error.
type Unconfigured struct {
	Provider string
	Err      error
}

func (u Unconfigured) Name() string  { return u.Provider }
func (u Unconfigured) Model() string { return "" }

func (u Unconfigured) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	return "", fmt.Errorf("%w: %s is not configured: %v", ErrProviderAuthFailed, u.Provider, u.Err)
}
