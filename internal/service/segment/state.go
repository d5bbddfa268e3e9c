// Package segment provides utterance ID generation and the per-connection
// session state: the audio accumulated since the last finalize and the
// lifecycle phase.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// Phase represents the lifecycle phase of a session.
type Phase int

const (
	// PhaseIdle - No audio accumulated since the last finalize.
	PhaseIdle Phase = iota
	// PhaseStreaming - At least one audio chunk received since the last finalize.
	PhaseStreaming
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseStreaming:
		return "STREAMING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

const (
	// DefaultSampleRate is used when a session is created without one.
	DefaultSampleRate = 16000
	// DefaultMaxAudioBytes caps one utterance (~164 seconds at 16kHz 16-bit mono).
	DefaultMaxAudioBytes = 5 * 1024 * 1024
)

// ErrBufferOverflow is returned when a chunk would push the buffer past its cap.
var ErrBufferOverflow = errors.New("audio buffer overflow")

// Session holds the audio of the utterance in progress for one connection.
// Thread-safe for concurrent access.
//
// Phase transitions:
//
//	IDLE ──Append()──→ STREAMING ──TakeAndReset()──→ IDLE
//	                     │    ↑
//	                     └────┘ Append()
//
// Rules:
//   - Append only ever grows the buffer; a chunk that would exceed the cap is
//     rejected whole and the buffered audio is kept.
//   - TakeAndReset is the only way to clear the buffer and must run exactly
//     once per finalize, whether transcription succeeds or not.
type Session struct {
	mu            sync.Mutex
	connectionId  string
	sampleRate    int
	maxAudioBytes int

	audio    []byte
	phase    Phase
	rejected int
}

// NewSession creates an empty session in IDLE phase.
// A non-positive sampleRate falls back to DefaultSampleRate; a non-positive
// maxAudioBytes disables the cap.
func NewSession(connectionId string, sampleRate, maxAudioBytes int) *Session {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Session{
		connectionId:  connectionId,
		sampleRate:    sampleRate,
		maxAudioBytes: maxAudioBytes,
		phase:         PhaseIdle,
	}
}

// ConnectionId returns the ID of the owning connection.
func (s *Session) ConnectionId() string {
	return s.connectionId
}

// SampleRate returns the sample rate of the buffered audio.
func (s *Session) SampleRate() int {
	return s.sampleRate
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Len returns the number of buffered audio bytes.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// RejectedChunks returns how many chunks were rejected since the last finalize.
func (s *Session) RejectedChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Append adds audio to the buffer and moves the session to STREAMING.
// Returns an error wrapping ErrBufferOverflow if the cap would be exceeded.
// Once a chunk has been rejected every further chunk is rejected until
// TakeAndReset, so the buffered audio stays contiguous.
func (s *Session) Append(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseStreaming

	if s.rejected > 0 {
		s.rejected++
		return fmt.Errorf("%w: utterance already truncated at %d bytes", ErrBufferOverflow, len(s.audio))
	}
	if s.maxAudioBytes > 0 && len(s.audio)+len(audio) > s.maxAudioBytes {
		s.rejected++
		return fmt.Errorf("%w: %d + %d > %d bytes",
			ErrBufferOverflow, len(s.audio), len(audio), s.maxAudioBytes)
	}

	s.audio = append(s.audio, audio...)
	return nil
}

// TakeAndReset returns the buffered audio and empties the buffer,
// moving the session back to IDLE. The caller owns the returned slice.
func (s *Session) TakeAndReset() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	audio := s.audio
	s.audio = nil
	s.phase = PhaseIdle
	s.rejected = 0
	return audio
}
