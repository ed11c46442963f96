package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// EventSink receives normalized events produced by a stream connection.
// The call service's inbox implements this shape via a closure in wiring.
type EventSink func(ctx context.Context, ev NormalizedCallEvent) error

// StreamRunner maintains a continuous manager-stream connection for one
// tenant's PBX provider (webhook mode event_stream or both). It reconnects
// with backoff until its context is canceled.
type StreamRunner struct {
	Adapter *PBXAdapter
	Config  ProviderConfig
	Sink    EventSink
	Log     *slog.Logger

	// Dial is injectable for tests; defaults to a TCP net.Dialer.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
}

func (r *StreamRunner) Run(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	addr := r.Config.Config["stream_addr"]
	if addr == "" {
		return fmt.Errorf("telephony: stream_addr not configured for tenant %s", r.Config.TenantID)
	}

	dial := r.Dial
	if dial == nil {
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		}
	}

	backoff := time.Second
	for {
		conn, err := dial(ctx, addr)
		if err != nil {
			log.Warn("stream connect failed", "tenant", r.Config.TenantID, "addr", addr, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		log.Info("stream connected", "tenant", r.Config.TenantID, "addr", addr)
		r.consume(ctx, conn, log)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (r *StreamRunner) consume(ctx context.Context, conn net.Conn, log *slog.Logger) {
	// Close the connection when the context ends so the blocked reader exits.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	reader := NewFrameReader(conn)
	for {
		frame, ok := reader.Next()
		if !ok {
			return
		}
		if frame.IsResponse() {
			continue
		}

		ev, err := r.Adapter.NormalizeFrame(frame, "")
		if err != nil {
			// Unhandled frame types are routine on a shared manager stream.
			log.Debug("stream frame skipped", "tenant", r.Config.TenantID, "event", frame.Event(), "err", err)
			continue
		}
		if err := r.Sink(ctx, ev); err != nil {
			log.Warn("stream event rejected", "tenant", r.Config.TenantID, "call", ev.ExternalCallID, "err", err)
		}
	}
}
