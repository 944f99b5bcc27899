// Package metrics provides Prometheus instrumentation for zelador.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event routing metrics.
var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_events_total",
		Help: "Total number of provider events routed, by kind.",
	}, []string{"kind"})

	EventErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_event_errors_total",
		Help: "Total number of handler faults, by event kind.",
	}, []string{"kind"})

	MessageHandleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zelador_message_handle_seconds",
		Help:    "Inbound message handling duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Write queue metrics.
var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zelador_queue_depth",
		Help: "Number of writes waiting in the queue.",
	})

	QueueDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_queue_dropped_total",
		Help: "Total number of writes dropped, by reason.",
	}, []string{"reason"})

	QueueRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zelador_queue_retries_total",
		Help: "Total number of write retries after transient faults.",
	})
)

// Cache metrics.
var (
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zelador_cache_entries",
		Help: "Current number of entries, by cache.",
	}, []string{"cache"})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_cache_evictions_total",
		Help: "Total number of evicted entries, by cache and reason.",
	}, []string{"cache", "reason"})
)

// Connection metrics.
var (
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zelador_reconnects_total",
		Help: "Total number of reconnect attempts.",
	})

	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zelador_connection_state",
		Help: "Current supervisor state (0=init 1=connecting 2=open 3=closed 4=delay 5=shutdown).",
	})
)

// Storage and command metrics.
var (
	SlowQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zelador_slow_queries_total",
		Help: "Total number of queries above the slow-query threshold.",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_commands_total",
		Help: "Total number of dispatched commands, by name.",
	}, []string{"command"})
)

// Broadcast metrics.
var (
	BroadcastSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zelador_broadcast_sends_total",
		Help: "Total number of broadcast sends, by status.",
	}, []string{"status"})

	RateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zelador_rate_limit_hits_total",
		Help: "Total number of provider rate-limit responses.",
	})
)

// Server serves the scrape endpoint.
type Server struct {
	srv *http.Server
}

// NewServer builds the scrape listener; Start runs it in the background.
func NewServer(host string, port int, path string) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start begins serving; errors other than a clean close are reported on errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics listener: %w", err)
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
