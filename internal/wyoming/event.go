// Package wyoming implements the Wyoming event protocol used by voice
// assistants to talk to speech services over a plain socket.
//
// A frame is a single line of JSON (the header) terminated by '\n',
// optionally followed by a JSON data section of data_length bytes and a
// binary payload of payload_length bytes.
package wyoming

import "encoding/json"

// Version is the protocol version advertised in written headers.
const Version = "1.5.2"

// Type identifies an event. The set is open: unknown types decode fine and
// are left to the caller to ignore.
type Type string

const (
	TypeDescribe   Type = "describe"
	TypeInfo       Type = "info"
	TypeAudioStart Type = "audio-start"
	TypeAudioChunk Type = "audio-chunk"
	TypeAudioStop  Type = "audio-stop"
	TypeTranscribe Type = "transcribe"
	TypeTranscript Type = "transcript"
	TypeError      Type = "error"
)

// Event is one decoded frame.
type Event struct {
	Type    Type
	Data    map[string]any
	Payload []byte
}

// StringField returns the value of a string data field.
func (e Event) StringField(key string) (string, bool) {
	v, ok := e.Data[key].(string)
	return v, ok
}

// IntField returns the value of a numeric data field.
func (e Event) IntField(key string) (int, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// Transcript is the result of a transcription.
type Transcript struct {
	Text string
}

// Event encodes the transcript. It never carries a payload.
func (t Transcript) Event() Event {
	return Event{Type: TypeTranscript, Data: map[string]any{"text": t.Text}}
}

// TranscriptFromEvent reads a transcript event.
func TranscriptFromEvent(e Event) Transcript {
	text, _ := e.StringField("text")
	return Transcript{Text: text}
}

// Error reports a failure to the peer.
type Error struct {
	Text string
	Code string
}

func (er Error) Event() Event {
	data := map[string]any{"text": er.Text}
	if er.Code != "" {
		data["code"] = er.Code
	}
	return Event{Type: TypeError, Data: data}
}

// ErrorFromEvent reads an error event.
func ErrorFromEvent(e Event) Error {
	text, _ := e.StringField("text")
	code, _ := e.StringField("code")
	return Error{Text: text, Code: code}
}

// AudioFormat describes raw PCM audio.
type AudioFormat struct {
	Rate     int
	Width    int
	Channels int
}

func (f AudioFormat) data() map[string]any {
	return map[string]any{"rate": f.Rate, "width": f.Width, "channels": f.Channels}
}

func formatFromEvent(e Event) AudioFormat {
	rate, _ := e.IntField("rate")
	width, _ := e.IntField("width")
	channels, _ := e.IntField("channels")
	return AudioFormat{Rate: rate, Width: width, Channels: channels}
}

// AudioStart announces the format of the audio that follows.
type AudioStart struct {
	AudioFormat
}

func (a AudioStart) Event() Event {
	return Event{Type: TypeAudioStart, Data: a.data()}
}

// AudioStartFromEvent reads an audio-start event.
func AudioStartFromEvent(e Event) AudioStart {
	return AudioStart{AudioFormat: formatFromEvent(e)}
}

// AudioChunk carries a slice of PCM audio.
type AudioChunk struct {
	AudioFormat
	Audio []byte
}

func (a AudioChunk) Event() Event {
	return Event{Type: TypeAudioChunk, Data: a.data(), Payload: a.Audio}
}

// AudioChunkFromEvent reads an audio-chunk event.
func AudioChunkFromEvent(e Event) AudioChunk {
	return AudioChunk{AudioFormat: formatFromEvent(e), Audio: e.Payload}
}

// AudioStop ends an utterance.
type AudioStop struct{}

func (AudioStop) Event() Event {
	return Event{Type: TypeAudioStop}
}

// Describe asks the server for its Info.
type Describe struct{}

func (Describe) Event() Event {
	return Event{Type: TypeDescribe}
}
