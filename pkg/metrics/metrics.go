// Package metrics exposes Prometheus metrics for the RESIGN server and an
// optional HTTP endpoint serving them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsAccepted counts accepted client connections.
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resign",
		Name:      "connections_accepted_total",
		Help:      "Total number of accepted client connections.",
	})

	// ActiveSessions tracks currently open sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "resign",
		Name:      "active_sessions",
		Help:      "Number of currently open client sessions.",
	})

	// ActionsTotal counts dispatched actions by action name and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resign",
		Name:      "actions_total",
		Help:      "Total number of dispatched actions by action and outcome.",
	}, []string{"action", "outcome"})

	// LoginFailures counts failed login attempts.
	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resign",
		Name:      "login_failures_total",
		Help:      "Total number of failed login attempts.",
	})

	// ProtocolErrors counts connections torn down due to protocol errors.
	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resign",
		Name:      "protocol_errors_total",
		Help:      "Total number of connections closed due to protocol errors.",
	})
)

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve runs the metrics HTTP server on the given address until the context
// is cancelled.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
