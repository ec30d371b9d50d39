// ABOUTME: Prometheus metrics for the playback pipeline
// ABOUTME: Publishes stream stats snapshots and serves the scrape endpoint
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmastream/dmastream-go/pkg/stream"
)

var (
	pushedFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "pushed_frames_total",
		Help:      "Total sample frames accepted into the ring",
	})

	pushedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "pushed_bytes_total",
		Help:      "Total host bytes accepted into the ring",
	})

	transfersSubmitted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "transfer",
		Name:      "submitted_total",
		Help:      "Total buffers handed to the transfer channel",
	})

	transfersCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "transfer",
		Name:      "completed_total",
		Help:      "Total transfer completions received",
	})

	unknownCompletions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "transfer",
		Name:      "unknown_completions_total",
		Help:      "Completions with no matching in-flight buffer",
	})

	transfersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "transfer",
		Name:      "in_flight",
		Help:      "Buffers currently owned by the transfer channel",
	})

	periodsElapsed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "periods_elapsed_total",
		Help:      "Total period boundaries crossed",
	})

	stalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "stalls_total",
		Help:      "Swaps stalled waiting for a standby buffer",
	})

	position = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "position_frames",
		Help:      "Current playback position within the ring",
	})

	state = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dmastream",
		Subsystem: "stream",
		Name:      "state",
		Help:      "Stream state as its numeric state machine value",
	})
)

// Update publishes one stats snapshot.
func Update(s stream.Stats, positionFrames int64) {
	pushedFrames.Set(float64(s.PushedFrames))
	pushedBytes.Set(float64(s.PushedBytes))
	transfersSubmitted.Set(float64(s.Submitted))
	transfersCompleted.Set(float64(s.Completed))
	unknownCompletions.Set(float64(s.UnknownCompletions))
	transfersInFlight.Set(float64(s.InFlight))
	periodsElapsed.Set(float64(s.PeriodsElapsed))
	stalls.Set(float64(s.Stalls))
	position.Set(float64(positionFrames))
	state.Set(float64(s.State))
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
