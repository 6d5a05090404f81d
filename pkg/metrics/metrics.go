// Package metrics exposes the prometheus collectors for the empire-core
// client. Decode failures are only observable here; the reader loop
// drops bad frames without surfacing them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PacketsTotal counts decoded inbound packets by dialect and command
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "empire_packets_total",
			Help: "Decoded inbound packets by dialect and command",
		},
		[]string{"dialect", "command"},
	)

	// DecodeErrorsTotal counts malformed frames dropped by the reader loop
	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "empire_decode_errors_total",
			Help: "Malformed wire frames dropped by the reader loop",
		},
	)

	// FramesSentTotal counts outbound frames by dialect
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "empire_frames_sent_total",
			Help: "Outbound frames written to the socket by dialect",
		},
		[]string{"dialect"},
	)

	// ReconnectsTotal counts reconnect attempts by the session supervisor
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "empire_reconnects_total",
			Help: "Reconnect attempts made by the session supervisor",
		},
	)

	// WaitersActive tracks pending one-shot waiters in the dispatcher
	WaitersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "empire_waiters_active",
			Help: "Pending one-shot waiters registered with the dispatcher",
		},
	)

	// DispatchDuration tracks time spent dispatching a single packet
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "empire_dispatch_duration_seconds",
			Help:    "Time spent running subscribers and waiters for one packet",
			Buckets: prometheus.DefBuckets,
		},
	)

	// IncomingAttacks counts attack-class movements observed for the first time
	IncomingAttacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "empire_incoming_attacks_total",
			Help: "Attack-class movements observed for the first time",
		},
	)
)

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
