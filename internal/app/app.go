// Package app wires configuration, the STT provider and the servers into a
// running process.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	tcpapi "wyoming-stt-bridge/internal/api/tcp"
	"wyoming-stt-bridge/internal/config"
	"wyoming-stt-bridge/internal/events"
	httpapi "wyoming-stt-bridge/internal/http"
	"wyoming-stt-bridge/internal/observability"
	"wyoming-stt-bridge/internal/observability/logging"
	"wyoming-stt-bridge/internal/observability/metrics"
	"wyoming-stt-bridge/internal/service/audio"
	"wyoming-stt-bridge/internal/service/segment"
	"wyoming-stt-bridge/internal/service/stt"
	"wyoming-stt-bridge/internal/service/stt/deepgram"
	"wyoming-stt-bridge/internal/service/stt/google"
	"wyoming-stt-bridge/internal/service/stt/mock"
	"wyoming-stt-bridge/internal/wyoming"
)

const serviceName = "wyoming-stt-bridge"

// Version is reported in the capability descriptor. Set with -ldflags.
var Version = "1.0.0"

const httpShutdownTimeout = 5 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Info      wyoming.Info
	Health    *observability.Health
	Metrics   *metrics.Metrics
	Adapter   stt.Adapter
	Publisher *events.Publisher
	Hub       *httpapi.Hub

	wyomingServer *tcpapi.Server
	httpServer    *observability.Server
	closeAdapter  func() error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:     cfg,
		Health:  observability.NewHealth(),
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	a.Logger.Info().
		Str("method", "New").
		Msg("Wyoming STT bridge application created")
	return a
}

func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      strings.ToLower(a.Cfg.Observability.LogLevel),
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = log.With().
		Str("service", serviceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start builds the provider, publisher and servers and binds the Wyoming
// listener. Nothing is served until Run.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().Str("method", "Start").Logger()
	a.StartupTime = time.Now().UTC()

	adapter, closer := NewTranscriber(ctx, a.Cfg.STT)
	a.Adapter = adapter
	a.closeAdapter = closer
	a.Info = ProviderInfo(a.Cfg.STT, adapter)

	a.Publisher = events.New(&events.Config{
		Enabled:     a.Cfg.Kafka.Enabled,
		Brokers:     a.Cfg.Kafka.Brokers,
		TopicFinal:  a.Cfg.Kafka.TopicFinal,
		TopicFailed: a.Cfg.Kafka.TopicFailed,
		Principal:   a.Cfg.Kafka.Principal,
	})
	if a.Cfg.Observability.MetricsEnabled && a.Cfg.Observability.LiveFeedEnabled {
		a.Hub = httpapi.NewHub(a.Metrics)
		a.Publisher.AddSink(a.Hub)
	}

	srv, err := tcpapi.New(a.Cfg.Service.URI, observability.ConnInterceptor(a.Metrics, a.serveConn()))
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	a.wyomingServer = srv
	a.Health.MarkListening()

	if a.Cfg.Observability.MetricsEnabled {
		a.httpServer = observability.NewServer(
			a.Cfg.Observability.MetricsAddr,
			httpapi.NewRouter(a.Health, a.Info, a.Hub),
		)
	}

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("uri", a.Cfg.Service.URI).
		Str("provider", adapter.Name()).
		Str("model", adapter.Model()).
		Int("sampleRate", a.Cfg.STT.SampleRateHz).
		Msg("Wyoming STT bridge starting")
	return nil
}

func (a *Application) serveConn() observability.ConnHandler {
	opts := audio.Options{
		Adapter:   a.Adapter,
		Publisher: a.Publisher,
		Info:      a.Info,
		Limits: audio.SegmentLimits{
			MaxAudioBytes: a.Cfg.SegmentLimits.MaxAudioBytes,
			SampleRate:    a.Cfg.STT.SampleRateHz,
		},
		Codec: wyoming.Limits{
			MaxHeaderBytes:  a.Cfg.Protocol.MaxHeaderBytes,
			MaxPayloadBytes: a.Cfg.Protocol.MaxPayloadBytes,
		},
		SegmentGen:    segment.New(),
		Metrics:       a.Metrics,
		OnAuthFailure: func(error) { a.Health.MarkAuthFailed() },
	}
	return func(ctx context.Context, conn net.Conn, connectionId string) error {
		return audio.NewHandler(conn, connectionId, observability.RemoteAddr(conn), opts).Run(ctx)
	}
}

// Addr returns the bound Wyoming address after Start.
func (a *Application) Addr() net.Addr {
	if a.wyomingServer == nil {
		return nil
	}
	return a.wyomingServer.Addr()
}

// Run serves until ctx is cancelled or a server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.wyomingServer == nil {
		return errors.New("app: Run called before Start")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.wyomingServer.Serve(ctx)
	})

	if a.Hub != nil {
		g.Go(func() error {
			a.Hub.Run(ctx)
			return nil
		})
	}

	if a.httpServer != nil {
		g.Go(a.httpServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer cancel()
			if err := a.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().Str("method", "Shutdown").Logger()

	if a.wyomingServer != nil {
		a.wyomingServer.Shutdown()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Error closing publisher")
		}
	}
	if a.closeAdapter != nil {
		if err := a.closeAdapter(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Error closing STT adapter")
		}
	}

	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Wyoming STT bridge shut down")
}

// NewTranscriber builds the configured provider wrapped with the retry
// policy. The returned closer releases provider resources.
// A provider that cannot be set up yields an adapter that fails every call
// with stt.ErrProviderAuthFailed so the server still starts.
func NewTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Adapter, func() error) {
	opts := stt.Options{Model: cfg.Model, LanguageCode: cfg.LanguageCode}
	closer := func() error { return nil }

	var adapter stt.Adapter
	switch cfg.Provider {
	case "google":
		g, err := google.New(ctx, google.Config{Options: opts, CredentialsFile: cfg.GoogleCredentialsFile})
		if err != nil {
			log.Error().Err(err).Msg("Google Speech client could not be created; transcription will fail")
			adapter = stt.Unconfigured{Provider: "google", Err: err}
		} else {
			adapter = g
			closer = g.Close
		}
	case "mock":
		adapter = mock.New()
	default:
		if cfg.Provider != "deepgram" {
			log.Warn().Str("provider", cfg.Provider).Msg("Unknown STT provider, using deepgram")
		}
		if cfg.APIKey == "" {
			log.Error().
				Str("optionsFile", cfg.OptionsFile).
				Msg("No Deepgram API key configured (DEEPGRAM_API_KEY or api_key in options file); transcription will fail")
		} else {
			log.Info().Str("apiKey", logging.MaskSecret(cfg.APIKey)).Msg("Deepgram API key loaded")
		}
		adapter = deepgram.New(deepgram.Config{APIKey: cfg.APIKey, Endpoint: cfg.Endpoint, Options: opts}, nil)
	}

	return stt.NewResilient(adapter, stt.Policy{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
	}), closer
}

// ProviderInfo builds the capability descriptor for adapter.
func ProviderInfo(cfg config.STTConfig, adapter stt.Adapter) wyoming.Info {
	attribution := wyoming.Attribution{Name: "Deepgram", URL: "https://deepgram.com"}
	program := "Deepgram"
	description := "Deepgram speech recognition"
	switch adapter.Name() {
	case "google":
		attribution = wyoming.Attribution{Name: "Google", URL: "https://cloud.google.com/speech-to-text"}
		program = "Google Cloud Speech-to-Text"
		description = "Google Cloud speech recognition"
	case "mock":
		attribution = wyoming.Attribution{Name: serviceName}
		program = "Mock"
		description = "Canned transcripts for testing"
	}

	return wyoming.Info{
		Asr: []wyoming.AsrProgram{{
			Name:        program,
			Description: description,
			Attribution: attribution,
			Installed:   true,
			Version:     Version,
			Models: []wyoming.AsrModel{{
				Name:        adapter.Model(),
				Description: description + " (" + adapter.Model() + ")",
				Attribution: attribution,
				Installed:   true,
				Languages:   []string{baseLanguage(cfg.LanguageCode)},
			}},
		}},
	}
}

// baseLanguage reduces a BCP-47 tag such as en-US to its language subtag.
func baseLanguage(code string) string {
	if code == "" {
		code = stt.DefaultLanguageCode
	}
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}
