package wyoming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame is returned when a header cannot be parsed or declares
// a section larger than the configured limits. The stream is no longer
// frame-aligned after it; callers should close the connection.
var ErrMalformedFrame = errors.New("malformed frame")

const (
	// DefaultMaxHeaderBytes bounds the header line and the data section.
	DefaultMaxHeaderBytes = 64 * 1024
	// DefaultMaxPayloadBytes bounds a single binary payload (~131s of 16kHz 16-bit mono).
	DefaultMaxPayloadBytes = 4 * 1024 * 1024
)

// Limits bounds the size of decoded frames.
type Limits struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

// DefaultLimits returns the default frame limits.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:  DefaultMaxHeaderBytes,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
	}
}

type header struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    *int           `json:"data_length,omitempty"`
	PayloadLength *int           `json:"payload_length,omitempty"`
	Version       string         `json:"version,omitempty"`
}

// Reader decodes events from a byte stream. Reads may deliver bytes in
// arbitrary chunk sizes; a frame is only returned once it is complete.
type Reader struct {
	r      *bufio.Reader
	limits Limits
}

// NewReader creates a Reader. Zero limits fall back to the defaults.
func NewReader(r io.Reader, limits Limits) *Reader {
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if limits.MaxPayloadBytes <= 0 {
		limits.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Reader{
		r:      bufio.NewReaderSize(r, limits.MaxHeaderBytes),
		limits: limits,
	}
}

// ReadEvent decodes the next event.
//
// It returns io.EOF when the stream ends cleanly between frames,
// io.ErrUnexpectedEOF when it ends inside a frame and an error wrapping
// ErrMalformedFrame when the frame itself is invalid.
func (r *Reader) ReadEvent() (Event, error) {
	line, err := r.r.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return Event{}, fmt.Errorf("%w: header exceeds %d bytes", ErrMalformedFrame, r.limits.MaxHeaderBytes)
		case errors.Is(err, io.EOF):
			if len(bytes.TrimSpace(line)) == 0 {
				return Event{}, io.EOF
			}
			return Event{}, io.ErrUnexpectedEOF
		default:
			return Event{}, err
		}
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, fmt.Errorf("%w: empty header", ErrMalformedFrame)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if h.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedFrame)
	}

	ev := Event{Type: Type(h.Type), Data: h.Data}

	if h.DataLength != nil {
		section, err := r.readSection(*h.DataLength, r.limits.MaxHeaderBytes, "data")
		if err != nil {
			return Event{}, err
		}
		var extra map[string]any
		if err := json.Unmarshal(section, &extra); err != nil {
			return Event{}, fmt.Errorf("%w: data section: %v", ErrMalformedFrame, err)
		}
		if ev.Data == nil {
			ev.Data = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			ev.Data[k] = v
		}
	}

	if h.PayloadLength != nil {
		payload, err := r.readSection(*h.PayloadLength, r.limits.MaxPayloadBytes, "payload")
		if err != nil {
			return Event{}, err
		}
		ev.Payload = payload
	} else if ev.Type == TypeAudioChunk {
		return Event{}, fmt.Errorf("%w: audio-chunk without payload", ErrMalformedFrame)
	}

	return ev, nil
}

func (r *Reader) readSection(n, limit int, name string) ([]byte, error) {
	if n < 0 || n > limit {
		return nil, fmt.Errorf("%w: %s length %d outside [0, %d]", ErrMalformedFrame, name, n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// Writer encodes events onto a byte stream. It is not safe for concurrent use.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteEvent writes one frame and flushes it.
func (w *Writer) WriteEvent(ev Event) error {
	h := header{
		Type:    string(ev.Type),
		Data:    ev.Data,
		Version: Version,
	}
	if len(ev.Payload) > 0 || ev.Type == TypeAudioChunk {
		n := len(ev.Payload)
		h.PayloadLength = &n
	}

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode %s header: %w", ev.Type, err)
	}
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if len(ev.Payload) > 0 {
		if _, err := w.w.Write(ev.Payload); err != nil {
			return err
		}
	}
	return w.w.Flush()
}
