package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the /metrics scrape endpoint for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// DiagnosticsServer serves m's Prometheus metrics over HTTP for operational
// monitoring. Starting one is optional: procconfig.MetricsAddr being empty
// means no server is started at all.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewDiagnosticsServer starts an HTTP server at addr serving m's metrics at
// /metrics.
func NewDiagnosticsServer(addr string, m *Metrics) (*DiagnosticsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("observability: listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("observability: diagnostics server stopped", "error", serveErr)
		}
	}()

	return &DiagnosticsServer{server: srv, listener: listener}, nil
}

// Addr returns the address the server is listening on.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close gracefully shuts down the diagnostics server.
func (d *DiagnosticsServer) Close() error {
	if err := d.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("observability: shutdown diagnostics server: %w", err)
	}

	return nil
}
