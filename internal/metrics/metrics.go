// Package metrics exposes capture lifecycle counters over Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "micgrab_sessions_started_total",
			Help: "Total number of capture sessions started",
		},
	)

	sessionsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micgrab_sessions_finalized_total",
			Help: "Total number of capture sessions finalized, by trigger",
		},
		[]string{"trigger"},
	)

	sessionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micgrab_session_failures_total",
			Help: "Total number of backend failures, by stage",
		},
		[]string{"stage"},
	)

	captureBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "micgrab_capture_bytes_total",
			Help: "Total number of PCM bytes captured across sessions",
		},
	)

	captureSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "micgrab_capture_duration_seconds",
			Help:    "Wall-clock duration of finalized capture sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)

// RecordSessionStart counts one successful Start.
func RecordSessionStart() {
	sessionsStartedTotal.Inc()
}

// RecordSessionFinalized counts one completed cycle. trigger is "caller" or
// "watchdog".
func RecordSessionFinalized(trigger string, bytes int64, elapsed time.Duration) {
	sessionsFinalizedTotal.WithLabelValues(trigger).Inc()
	captureBytesTotal.Add(float64(bytes))
	captureSeconds.Observe(elapsed.Seconds())
}

// RecordFailure counts one backend failure. stage is "acquire" or "finalize".
func RecordFailure(stage string) {
	sessionFailuresTotal.WithLabelValues(stage).Inc()
}

// Serve exposes /metrics on addr until context cancellation. A blank addr
// disables the listener.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
