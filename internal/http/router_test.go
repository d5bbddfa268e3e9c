package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wyoming-stt-bridge/internal/observability"
	"wyoming-stt-bridge/internal/observability/metrics"
	"wyoming-stt-bridge/internal/wyoming"
)

func testInfo() wyoming.Info {
	return wyoming.Info{
		Asr: []wyoming.AsrProgram{{
			Name:      "deepgram",
			Installed: true,
			Models: []wyoming.AsrModel{{
				Name:      "nova-3",
				Installed: true,
				Languages: []string{"en-US"},
			}},
		}},
	}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRouter_Health(t *testing.T) {
	health := observability.NewHealth()
	srv := httptest.NewServer(NewRouter(health, testInfo(), nil))
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready before listening")

	health.MarkListening()
	code, body = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body)

	health.MarkAuthFailed()
	code, body = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "authentication")
}

func TestRouter_Info(t *testing.T) {
	srv := httptest.NewServer(NewRouter(observability.NewHealth(), testInfo(), nil))
	defer srv.Close()

	code, body := get(t, srv, "/v1/info")
	require.Equal(t, http.StatusOK, code)

	var info wyoming.Info
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	require.Len(t, info.Asr, 1)
	assert.Equal(t, "deepgram", info.Asr[0].Name)
	assert.Equal(t, "nova-3", info.Asr[0].Models[0].Name)
}

func TestRouter_Metrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(observability.NewHealth(), testInfo(), nil))
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "go_goroutines")
}

func TestRouter_LiveDisabledWithoutHub(t *testing.T) {
	srv := httptest.NewServer(NewRouter(observability.NewHealth(), testInfo(), nil))
	defer srv.Close()

	code, _ := get(t, srv, "/v1/transcripts/live")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(metrics.NewMetricsWith(prometheus.NewRegistry()))
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(observability.NewHealth(), testInfo(), hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/transcripts/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens asynchronously after the upgrade.
	require.Eventually(t, func() bool {
		return hubSubscribers(hub) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("final", []byte(`{"text":"hello world"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg LiveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "final", msg.Type)
	assert.JSONEq(t, `{"text":"hello world"}`, string(msg.Event))
}

func TestHub_BroadcastDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(metrics.NewMetricsWith(prometheus.NewRegistry()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.Broadcast("final", []byte(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
}

func hubSubscribers(h *Hub) int {
	return int(testutil.ToFloat64(h.metrics.LiveSubscribers))
}
