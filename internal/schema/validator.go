// Package schema validates outbound transcript events before they are published.
package schema

import (
	"errors"
	"fmt"

	"wyoming-stt-bridge/internal/models"
)

// ErrInvalidEvent is returned for events that fail validation.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event model.
func (v *Validator) Validate(event any) error {
	switch e := event.(type) {
	case models.TranscriptFinal:
		return v.validateFinal(&e)
	case *models.TranscriptFinal:
		return v.validateFinal(e)
	case models.TranscriptFailed:
		return v.validateFailed(&e)
	case *models.TranscriptFailed:
		return v.validateFailed(e)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func (v *Validator) validateFinal(e *models.TranscriptFinal) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.EventType != models.EventTranscriptFinal {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, e.EventType)
	}
	return v.validateCommon(e.ConnectionID, e.UtteranceID, e.Provider, e.Timestamp, e.SampleRate, e.AudioBytes)
}

func (v *Validator) validateFailed(e *models.TranscriptFailed) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.EventType != models.EventTranscriptFailed {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, e.EventType)
	}
	if e.ErrorCode == "" {
		return fmt.Errorf("%w: errorCode is required", ErrInvalidEvent)
	}
	return v.validateCommon(e.ConnectionID, e.UtteranceID, e.Provider, e.Timestamp, e.SampleRate, e.AudioBytes)
}

func (v *Validator) validateCommon(connID, uttID, provider string, ts int64, sampleRate, audioBytes int) error {
	switch {
	case connID == "":
		return fmt.Errorf("%w: connectionId is required", ErrInvalidEvent)
	case uttID == "":
		return fmt.Errorf("%w: utteranceId is required", ErrInvalidEvent)
	case provider == "":
		return fmt.Errorf("%w: provider is required", ErrInvalidEvent)
	case ts <= 0:
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	case sampleRate <= 0:
		return fmt.Errorf("%w: sampleRate must be positive", ErrInvalidEvent)
	case audioBytes < 0:
		return fmt.Errorf("%w: audioBytes must not be negative", ErrInvalidEvent)
	}
	return nil
}
