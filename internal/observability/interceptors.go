// Package observability provides connection interceptors, health state and
// the HTTP server for metrics and monitoring.
package observability

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"wyoming-stt-bridge/internal/observability/metrics"
	"wyoming-stt-bridge/internal/wyoming"
)

// ConnHandler serves a single Wyoming connection until it ends.
type ConnHandler func(ctx context.Context, conn net.Conn, connectionId string) error

// ConnInterceptor wraps a ConnHandler with metrics and logging.
func ConnInterceptor(m *metrics.Metrics, next ConnHandler) ConnHandler {
	return func(ctx context.Context, conn net.Conn, connectionId string) error {
		start := time.Now()
		m.RecordConnectionStart()

		err := next(ctx, conn, connectionId)

		duration := time.Since(start)
		outcome := ConnOutcome(err)
		m.RecordConnectionEnd(outcome, duration.Seconds())
		if outcome == metrics.ConnMalformed {
			m.RecordMalformedFrame()
		}

		evt := log.Info()
		if outcome != metrics.ConnClosed {
			evt = log.Warn().Err(err)
		}
		evt.
			Str("connectionId", connectionId).
			Str("remote", RemoteAddr(conn)).
			Str("outcome", outcome).
			Dur("duration", duration).
			Msg("Wyoming connection completed")

		return err
	}
}

// ConnOutcome classifies the error a connection handler returned.
func ConnOutcome(err error) string {
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return metrics.ConnClosed
	case errors.Is(err, wyoming.ErrMalformedFrame):
		return metrics.ConnMalformed
	default:
		return metrics.ConnIOError
	}
}

// RemoteAddr returns the peer address of conn, or "" when it has none.
func RemoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
