package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wyoming-stt-bridge/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Options.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.Options.LanguageCode)
	}
	if cfg.Options.Model != DefaultModel {
		t.Errorf("expected default model %s, got %s", DefaultModel, cfg.Options.Model)
	}
	if cfg.CredentialsFile != "" {
		t.Errorf("expected no credentials file by default, got %s", cfg.CredentialsFile)
	}
}

func TestAdapter_Request(t *testing.T) {
	var got *speechpb.RecognizeRequest
	a := newAdapter(Config{Options: stt.Options{LanguageCode: "es-ES"}}, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{}, nil
	})

	if _, err := a.Transcribe(context.Background(), []byte("abcd"), 22050); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := got.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("expected LINEAR16, got %v", cfg.GetEncoding())
	}
	if cfg.GetSampleRateHertz() != 22050 {
		t.Errorf("expected 22050 Hz, got %d", cfg.GetSampleRateHertz())
	}
	if cfg.GetAudioChannelCount() != 1 {
		t.Errorf("expected 1 channel, got %d", cfg.GetAudioChannelCount())
	}
	if cfg.GetLanguageCode() != "es-ES" {
		t.Errorf("expected 'es-ES', got %s", cfg.GetLanguageCode())
	}
	if cfg.GetModel() != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, cfg.GetModel())
	}
	if string(got.GetAudio().GetContent()) != "abcd" {
		t.Errorf("expected audio content 'abcd', got %q", got.GetAudio().GetContent())
	}
}

func TestAdapter_JoinsResults(t *testing.T) {
	a := newAdapter(DefaultConfig(), func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return &speechpb.RecognizeResponse{
			Results: []*speechpb.SpeechRecognitionResult{
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello"}, {Transcript: "yellow"}}},
				{Alternatives: nil},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " world "}}},
			},
		}, nil
	})

	text, err := a.Transcribe(context.Background(), []byte("abcd"), 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("expected 'hello world', got %q", text)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), stt.ErrProviderAuthFailed},
		{"permission denied", status.Error(codes.PermissionDenied, "no"), stt.ErrProviderAuthFailed},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad audio"), stt.ErrProviderRejected},
		{"out of range", status.Error(codes.OutOfRange, "too long"), stt.ErrProviderRejected},
		{"unavailable", status.Error(codes.Unavailable, "down"), stt.ErrProviderUnavailable},
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), stt.ErrProviderUnavailable},
		{"deadline", context.DeadlineExceeded, stt.ErrProviderUnavailable},
		{"plain error", errors.New("boom"), stt.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.expected) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.expected)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) should keep the original error", tt.err)
			}
		})
	}
}

func TestAdapter_ErrorIsClassified(t *testing.T) {
	a := newAdapter(DefaultConfig(), func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return nil, status.Error(codes.Unauthenticated, "bad key")
	})

	_, err := a.Transcribe(context.Background(), []byte("abcd"), 16000)
	if !errors.Is(err, stt.ErrProviderAuthFailed) {
		t.Fatalf("expected ErrProviderAuthFailed, got %v", err)
	}
}
