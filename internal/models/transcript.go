// Package models defines the data structures for transcript events.
package models

// Event types.
const (
	EventTranscriptFinal  = "stt.transcript.final"
	EventTranscriptFailed = "stt.transcript.failed"
)

// TranscriptFinal is published after a transcript has been written to the peer.
type TranscriptFinal struct {
	EventType       string `json:"eventType"`
	ConnectionID    string `json:"connectionId"`
	UtteranceID     string `json:"utteranceId"`
	Timestamp       int64  `json:"timestamp"`
	Text            string `json:"text"`
	Provider        string `json:"provider"`
	SampleRate      int    `json:"sampleRate"`
	AudioBytes      int    `json:"audioBytes"`
	AudioDurationMs int64  `json:"audioDurationMs"`
	LatencyMs       int64  `json:"latencyMs"`
}

// TranscriptFailed is published when the provider could not transcribe an utterance.
type TranscriptFailed struct {
	EventType       string `json:"eventType"`
	ConnectionID    string `json:"connectionId"`
	UtteranceID     string `json:"utteranceId"`
	Timestamp       int64  `json:"timestamp"`
	ErrorCode       string `json:"errorCode"`
	Error           string `json:"error"`
	Provider        string `json:"provider"`
	SampleRate      int    `json:"sampleRate"`
	AudioBytes      int    `json:"audioBytes"`
	AudioDurationMs int64  `json:"audioDurationMs"`
	LatencyMs       int64  `json:"latencyMs"`
}

// AudioDurationMs returns the duration of 16-bit mono PCM at sampleRate.
func AudioDurationMs(audioBytes, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(audioBytes) * 1000 / int64(sampleRate*2)
}
