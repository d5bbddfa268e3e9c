// Package mock provides a mock STT adapter for running without provider credentials.
// It returns canned transcripts in order and records every call it receives.
package mock

import (
	"context"
	"sync"
	"time"

	"wyoming-stt-bridge/internal/service/stt"
)

// DefaultUtterances are the transcripts returned in rotation.
var DefaultUtterances = []string{
	"turn on the kitchen lights",
	"what is the weather like today",
	"set a timer for ten minutes",
	"play some music in the living room",
	"good night",
}

// Call records one Transcribe invocation.
type Call struct {
	AudioBytes int
	SampleRate int
}

// Adapter implements stt.Adapter with canned responses.
type Adapter struct {
	mu         sync.Mutex
	utterances []string
	next       int
	calls      []Call

	// Delay simulates provider latency. Cancelled by ctx.
	Delay time.Duration
	// Err, when set, is returned from every call instead of a transcript.
	Err error
}

// New creates a new mock STT adapter cycling through DefaultUtterances.
func New() *Adapter {
	return NewWithUtterances(DefaultUtterances)
}

// NewWithUtterances creates a mock adapter cycling through utterances.
// An empty list makes every call return an empty transcript.
func NewWithUtterances(utterances []string) *Adapter {
	return &Adapter{utterances: append([]string(nil), utterances...)}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "mock" }

// Model returns the mock model identifier.
func (a *Adapter) Model() string { return "mock" }

// Transcribe returns the next canned transcript.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, Call{AudioBytes: len(audio), SampleRate: sampleRate})
	delay, failure := a.Delay, a.Err
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.utterances) == 0 {
		return "", nil
	}
	text := a.utterances[a.next%len(a.utterances)]
	a.next++
	return text, nil
}

// Calls returns a copy of the recorded calls.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

var _ stt.Adapter = (*Adapter)(nil)
