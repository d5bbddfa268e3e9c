package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInit_JSONWithLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", TimeFormat: time.RFC3339, Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" {
		t.Errorf("expected 'shown', got %v", entry["message"])
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", Output: &buf})

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestWithConnection(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})

	logger := WithConnection("conn-1", "127.0.0.1:5555")
	logger.Info().Msg("hi")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry["connectionId"] != "conn-1" || entry["remote"] != "127.0.0.1:5555" {
		t.Errorf("missing connection fields: %v", entry)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcd1234", "abcd****"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
