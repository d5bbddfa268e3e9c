// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wyoming-stt-bridge/internal/service/stt"
)

// DefaultModel is the recognition model used when none is configured.
const DefaultModel = "latest_short"

// Config holds Google STT configuration.
type Config struct {
	Options         stt.Options
	CredentialsFile string // empty uses Application Default Credentials
}

// DefaultConfig returns default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		Options: stt.Options{
			Model:        DefaultModel,
			LanguageCode: stt.DefaultLanguageCode,
		},
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Adapter implements stt.Adapter using synchronous Recognize calls.
type Adapter struct {
	client    *speech.Client
	recognize recognizeFunc
	opts      stt.Options
}

// New creates a new Google STT adapter.
// Without a credentials file, GOOGLE_APPLICATION_CREDENTIALS or another
// Application Default Credentials source must be available.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	c, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	a := newAdapter(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	})
	a.client = c
	return a, nil
}

func newAdapter(cfg Config, recognize recognizeFunc) *Adapter {
	defaults := DefaultConfig()
	if cfg.Options.Model == "" {
		cfg.Options.Model = defaults.Options.Model
	}
	if cfg.Options.LanguageCode == "" {
		cfg.Options.LanguageCode = defaults.Options.LanguageCode
	}
	return &Adapter{recognize: recognize, opts: cfg.Options}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "google" }

// Model returns the configured model identifier.
func (a *Adapter) Model() string { return a.opts.Model }

// Transcribe sends the utterance as LINEAR16 mono audio and joins the
// top alternative of every result.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", stt.ErrProviderRejected)
	}

	resp, err := a.recognize(ctx, a.request(audio, sampleRate))
	if err != nil {
		return "", classify(err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (a *Adapter) request(audio []byte, sampleRate int) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			AudioChannelCount:          1,
			LanguageCode:               a.opts.LanguageCode,
			Model:                      a.opts.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

// Close releases the underlying gRPC connection.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// classify maps a gRPC error onto the stt error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: google speech: %w", stt.ErrProviderUnavailable, err)
	}

	var kind error
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		kind = stt.ErrProviderAuthFailed
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.NotFound:
		kind = stt.ErrProviderRejected
	default:
		kind = stt.ErrProviderUnavailable
	}
	return fmt.Errorf("%w: google speech: %w", kind, err)
}
