// Package deepgram provides a Deepgram pre-recorded transcription adapter.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wyoming-stt-bridge/internal/service/stt"
)

const (
	// DefaultEndpoint is the Deepgram API base URL.
	DefaultEndpoint = "https://api.deepgram.com"
	// DefaultModel is the Deepgram model used when none is configured.
	DefaultModel = "nova-3"
)

// maxErrorBody bounds how much of an error response ends up in logs.
const maxErrorBody = 512

// Config holds Deepgram adapter configuration.
type Config struct {
	APIKey   string
	Endpoint string
	Options  stt.Options
}

// Adapter implements stt.Adapter using Deepgram's /v1/listen REST endpoint.
type Adapter struct {
	apiKey   string
	endpoint string
	opts     stt.Options
	client   *http.Client
}

// response is the subset of the Deepgram listen response we read.
type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// New creates a new Deepgram adapter. An empty API key is accepted; every
// call then fails with stt.ErrProviderAuthFailed.
func New(cfg Config, client *http.Client) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Options.Model == "" {
		cfg.Options.Model = DefaultModel
	}
	if cfg.Options.LanguageCode == "" {
		cfg.Options.LanguageCode = stt.DefaultLanguageCode
	}
	return &Adapter{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		opts:     cfg.Options,
		client:   client,
	}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "deepgram" }

// Model returns the configured model identifier.
func (a *Adapter) Model() string { return a.opts.Model }

// Transcribe posts raw linear16 mono PCM to Deepgram and returns the first
// alternative of the first channel.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("%w: deepgram api key is not configured", stt.ErrProviderAuthFailed)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", stt.ErrProviderRejected)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.listenURL(sampleRate), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", stt.ErrProviderRejected, err)
	}
	req.Header.Set("Authorization", "Token "+a.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: deepgram request: %w", stt.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", stt.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, body)
	}

	var result response
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", stt.ErrProviderUnavailable, err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

func (a *Adapter) listenURL(sampleRate int) string {
	q := url.Values{}
	q.Set("model", a.opts.Model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("language", a.opts.LanguageCode)
	return a.endpoint + "/v1/listen?" + q.Encode()
}

// statusError maps a non-200 status onto the stt error taxonomy.
func statusError(status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = stt.ErrProviderAuthFailed
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		kind = stt.ErrProviderUnavailable
	case status >= 400:
		kind = stt.ErrProviderRejected
	default:
		kind = stt.ErrProviderUnavailable
	}
	return fmt.Errorf("%w: deepgram API error (status %d): %s", kind, status, string(body))
}
