// Package audio provides the Wyoming connection handler that buffers audio
// per utterance and forwards it to the STT adapter on audio-stop.
package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wyoming-stt-bridge/internal/models"
	"wyoming-stt-bridge/internal/observability/logging"
	"wyoming-stt-bridge/internal/observability/metrics"
	"wyoming-stt-bridge/internal/service/segment"
	"wyoming-stt-bridge/internal/service/stt"
	"wyoming-stt-bridge/internal/wyoming"
)

// CodeBufferOverflow is the error code sent when an utterance exceeds the size cap.
const CodeBufferOverflow = "buffer-overflow"

const publishTimeout = 5 * time.Second

// SegmentLimits defines per-utterance guardrails.
type SegmentLimits struct {
	MaxAudioBytes int // <= 0 disables the cap
	SampleRate    int // rate reported to the provider
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() SegmentLimits {
	return SegmentLimits{
		MaxAudioBytes: segment.DefaultMaxAudioBytes,
		SampleRate:    segment.DefaultSampleRate,
	}
}

// Publisher receives transcript events after the peer has been answered.
type Publisher interface {
	PublishFinal(ctx context.Context, event models.TranscriptFinal) error
	PublishFailed(ctx context.Context, event models.TranscriptFailed) error
}

// Options are shared by every connection handler.
type Options struct {
	Adapter    stt.Adapter
	Publisher  Publisher // optional
	Info       wyoming.Info
	Limits     SegmentLimits
	Codec      wyoming.Limits
	SegmentGen *segment.Generator
	Metrics    *metrics.Metrics

	// OnAuthFailure is called whenever the provider rejects the credential.
	OnAuthFailure func(error)
}

// Handler serves one Wyoming connection.
// Events are processed strictly in order on the caller's goroutine; a
// transcription blocks reading of the next event.
type Handler struct {
	connectionId string
	reader       *wyoming.Reader
	writer       *wyoming.Writer
	session      *segment.Session
	opts         Options
	logger       zerolog.Logger

	// publishes tracks event publishing running off the read loop.
	publishes sync.WaitGroup
}

// NewHandler creates a handler for a single connection.
func NewHandler(rw io.ReadWriter, connectionId, remote string, opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.SegmentGen == nil {
		opts.SegmentGen = segment.New()
	}
	return &Handler{
		connectionId: connectionId,
		reader:       wyoming.NewReader(rw, opts.Codec),
		writer:       wyoming.NewWriter(rw),
		session:      segment.NewSession(connectionId, opts.Limits.SampleRate, opts.Limits.MaxAudioBytes),
		opts:         opts,
		logger:       logging.WithConnection(connectionId, remote),
	}
}

// Session returns the connection's session state.
func (h *Handler) Session() *segment.Session {
	return h.session
}

// Run reads and dispatches events until the peer disconnects or an error
// ends the connection. A clean disconnect returns nil. Buffered audio that
// was never finalized is discarded.
func (h *Handler) Run(ctx context.Context) error {
	defer h.WaitPublished()
	defer func() {
		if n := h.session.Len(); n > 0 {
			h.logger.Info().Int("audioBytes", n).Msg("Connection ended mid-utterance, discarding audio")
		}
	}()

	for {
		ev, err := h.reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.logger.Debug().Msg("Peer closed connection")
				return nil
			}
			return err
		}
		if err := h.HandleEvent(ctx, ev); err != nil {
			return err
		}
	}
}

// HandleEvent dispatches a single inbound event. Only write failures are
// returned; provider and overflow failures are reported to the peer.
func (h *Handler) HandleEvent(ctx context.Context, ev wyoming.Event) error {
	h.opts.Metrics.RecordEvent(eventLabel(ev.Type))

	switch ev.Type {
	case wyoming.TypeDescribe:
		return h.writer.WriteEvent(h.opts.Info.Event())
	case wyoming.TypeAudioChunk:
		return h.handleChunk(ev)
	case wyoming.TypeAudioStop:
		return h.finalize(ctx)
	case wyoming.TypeAudioStart:
		start := wyoming.AudioStartFromEvent(ev)
		h.logger.Debug().
			Int("rate", start.Rate).
			Int("width", start.Width).
			Int("channels", start.Channels).
			Int("sessionRate", h.session.SampleRate()).
			Msg("Audio started")
		return nil
	case wyoming.TypeTranscribe:
		h.logger.Debug().Str("type", string(ev.Type)).Msg("Acknowledged event")
		return nil
	default:
		h.logger.Debug().Str("type", string(ev.Type)).Msg("Ignoring unsupported event")
		return nil
	}
}

func (h *Handler) handleChunk(ev wyoming.Event) error {
	err := h.session.Append(ev.Payload)
	if err == nil {
		h.opts.Metrics.RecordAudioReceived(len(ev.Payload))
		return nil
	}
	if !errors.Is(err, segment.ErrBufferOverflow) {
		return err
	}

	h.opts.Metrics.RecordBufferOverflow()
	if h.session.RejectedChunks() > 1 {
		return nil
	}
	h.logger.Warn().
		Err(err).
		Int("bufferedBytes", h.session.Len()).
		Msg("Utterance exceeds size cap, dropping further audio")
	return h.writer.WriteEvent(wyoming.Error{Text: err.Error(), Code: CodeBufferOverflow}.Event())
}

// finalize drains the session and answers with exactly one transcript or
// error event.
func (h *Handler) finalize(ctx context.Context) error {
	sampleRate := h.session.SampleRate()
	audio := h.session.TakeAndReset()

	if len(audio) == 0 {
		h.opts.Metrics.RecordFinalize(metrics.OutcomeEmpty, 0)
		h.logger.Debug().Msg("audio-stop without audio, sending empty transcript")
		return h.writer.WriteEvent(wyoming.Transcript{Text: ""}.Event())
	}

	provider := h.opts.Adapter.Name()
	utteranceId := h.opts.SegmentGen.Next(h.connectionId)
	logger := logging.WithUtterance(h.connectionId, utteranceId, provider)

	// Shutdown closes the socket but lets an in-flight request finish.
	start := time.Now()
	text, err := h.opts.Adapter.Transcribe(context.WithoutCancel(ctx), audio, sampleRate)
	latency := time.Since(start)

	if err != nil {
		kind := stt.Kind(err)
		h.opts.Metrics.RecordSTTRequest(provider, metrics.OutcomeError, latency.Seconds())
		h.opts.Metrics.RecordSTTError(provider, kind)
		h.opts.Metrics.RecordFinalize(metrics.OutcomeError, len(audio))

		evt := logger.Warn()
		if errors.Is(err, stt.ErrProviderAuthFailed) {
			evt = logger.Error()
			if h.opts.OnAuthFailure != nil {
				h.opts.OnAuthFailure(err)
			}
		}
		evt.Err(err).
			Str("kind", kind).
			Int("audioBytes", len(audio)).
			Dur("latency", latency).
			Msg("Transcription failed")

		if werr := h.writer.WriteEvent(wyoming.Error{Text: err.Error(), Code: kind}.Event()); werr != nil {
			return werr
		}
		h.publishFailed(ctx, models.TranscriptFailed{
			EventType:       models.EventTranscriptFailed,
			ConnectionID:    h.connectionId,
			UtteranceID:     utteranceId,
			Timestamp:       time.Now().UnixMilli(),
			ErrorCode:       kind,
			Error:           err.Error(),
			Provider:        provider,
			SampleRate:      sampleRate,
			AudioBytes:      len(audio),
			AudioDurationMs: models.AudioDurationMs(len(audio), sampleRate),
			LatencyMs:       latency.Milliseconds(),
		})
		return nil
	}

	h.opts.Metrics.RecordSTTRequest(provider, metrics.OutcomeTranscript, latency.Seconds())
	h.opts.Metrics.RecordFinalize(metrics.OutcomeTranscript, len(audio))
	logger.Info().
		Int("audioBytes", len(audio)).
		Dur("latency", latency).
		Int("textLength", len(text)).
		Msg("Transcription complete")

	if err := h.writer.WriteEvent(wyoming.Transcript{Text: text}.Event()); err != nil {
		return err
	}
	h.publishFinal(ctx, models.TranscriptFinal{
		EventType:       models.EventTranscriptFinal,
		ConnectionID:    h.connectionId,
		UtteranceID:     utteranceId,
		Timestamp:       time.Now().UnixMilli(),
		Text:            text,
		Provider:        provider,
		SampleRate:      sampleRate,
		AudioBytes:      len(audio),
		AudioDurationMs: models.AudioDurationMs(len(audio), sampleRate),
		LatencyMs:       latency.Milliseconds(),
	})
	return nil
}

// WaitPublished blocks until every queued event publish has finished.
func (h *Handler) WaitPublished() {
	h.publishes.Wait()
}

// publishFinal and publishFailed run off the read loop, each bounded by
// publishTimeout.
func (h *Handler) publishFinal(ctx context.Context, ev models.TranscriptFinal) {
	if h.opts.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	h.publishes.Add(1)
	go func() {
		defer h.publishes.Done()
		defer cancel()
		if err := h.opts.Publisher.PublishFinal(ctx, ev); err != nil {
			h.logger.Warn().Err(err).Str("utteranceId", ev.UtteranceID).Msg("Failed to publish final transcript")
		}
	}()
}

func (h *Handler) publishFailed(ctx context.Context, ev models.TranscriptFailed) {
	if h.opts.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	h.publishes.Add(1)
	go func() {
		defer h.publishes.Done()
		defer cancel()
		if err := h.opts.Publisher.PublishFailed(ctx, ev); err != nil {
			h.logger.Warn().Err(err).Str("utteranceId", ev.UtteranceID).Msg("Failed to publish transcript failure")
		}
	}()
}

// eventLabel bounds the metric label set to known event types.
func eventLabel(t wyoming.Type) string {
	switch t {
	case wyoming.TypeDescribe, wyoming.TypeInfo, wyoming.TypeAudioStart, wyoming.TypeAudioChunk,
		wyoming.TypeAudioStop, wyoming.TypeTranscribe, wyoming.TypeTranscript, wyoming.TypeError:
		return string(t)
	default:
		return "other"
	}
}
