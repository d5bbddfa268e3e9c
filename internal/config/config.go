// Package config loads service configuration from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the complete service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	SegmentLimits SegmentLimitsConfig
	Protocol      ProtocolConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service and its Wyoming listener.
type ServiceConfig struct {
	Principal string
	URI       string // tcp://host:port or unix:///path
}

// STTConfig selects and configures the transcription provider.
type STTConfig struct {
	Provider              string // deepgram, google, mock
	APIKey                string
	OptionsFile           string
	Endpoint              string
	Model                 string
	LanguageCode          string
	SampleRateHz          int
	Timeout               time.Duration
	MaxAttempts           int
	RetryBackoff          time.Duration
	GoogleCredentialsFile string
}

// SegmentLimitsConfig bounds per-utterance resource usage.
type SegmentLimitsConfig struct {
	MaxAudioBytes int
}

// ProtocolConfig bounds Wyoming frame sizes.
type ProtocolConfig struct {
	MaxHeaderBytes  int
	MaxPayloadBytes int
}

// KafkaConfig configures transcript event publishing.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicFinal  string
	TopicFailed string
	Principal   string
}

// ObservabilityConfig configures logging, metrics and the live feed.
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string
	MetricsEnabled  bool
	MetricsAddr     string
	LiveFeedEnabled bool
}

// Load reads the optional env file named by ENV_FILE (default .env) and
// then the process environment. Real environment variables win.
func Load() *Configuration {
	envFile := envOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("file", envFile).Msg("Could not load env file")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "wyoming-stt-bridge")
	optionsFile := envOrDefault("STT_OPTIONS_FILE", "/data/options.json")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			URI:       envOrDefault("WYOMING_URI", "tcp://0.0.0.0:10301"),
		},
		STT: STTConfig{
			Provider:              strings.ToLower(envOrDefault("STT_PROVIDER", "deepgram")),
			APIKey:                resolveAPIKey(optionsFile),
			OptionsFile:           optionsFile,
			Endpoint:              os.Getenv("STT_ENDPOINT"),
			Model:                 os.Getenv("STT_MODEL"),
			LanguageCode:          envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:          envOrDefaultPositiveInt("STT_SAMPLE_RATE_HZ", 16000),
			Timeout:               envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
			MaxAttempts:           envOrDefaultPositiveInt("STT_MAX_ATTEMPTS", 2),
			RetryBackoff:          envOrDefaultDuration("STT_RETRY_BACKOFF", 250*time.Millisecond),
			GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		SegmentLimits: SegmentLimitsConfig{
			MaxAudioBytes: envOrDefaultInt("SEGMENT_MAX_AUDIO_BYTES", 5*1024*1024),
		},
		Protocol: ProtocolConfig{
			MaxHeaderBytes:  envOrDefaultPositiveInt("PROTOCOL_MAX_HEADER_BYTES", 64*1024),
			MaxPayloadBytes: envOrDefaultPositiveInt("PROTOCOL_MAX_PAYLOAD_BYTES", 4*1024*1024),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			TopicFinal:  envOrDefault("KAFKA_TOPIC_FINAL", "stt.transcript.final"),
			TopicFailed: envOrDefault("KAFKA_TOPIC_FAILED", "stt.transcript.failed"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:        envOrDefault("LOG_LEVEL", "info"),
			LogFormat:       envOrDefault("LOG_FORMAT", "json"),
			MetricsEnabled:  envOrDefaultBool("METRICS_ENABLED", true),
			MetricsAddr:     envOrDefault("METRICS_ADDR", ":9090"),
			LiveFeedEnabled: envOrDefaultBool("LIVE_FEED_ENABLED", true),
		},
	}
}

// resolveAPIKey prefers DEEPGRAM_API_KEY and falls back to the api_key
// field of the add-on options file.
func resolveAPIKey(optionsFile string) string {
	if key := strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")); key != "" {
		return key
	}
	key, err := LoadAPIKey(optionsFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error().Err(err).Str("file", optionsFile).Msg("Error reading options file")
	}
	return key
}

// LoadAPIKey reads the api_key field from a JSON options file.
func LoadAPIKey(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var options struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(raw, &options); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return strings.TrimSpace(options.APIKey), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
		return def
	}
	return n
}

func envOrDefaultPositiveInt(key string, def int) int {
	if n := envOrDefaultInt(key, def); n > 0 {
		return n
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean, using default")
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
