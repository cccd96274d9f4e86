// Package metrics exposes Prometheus collectors for generation, playback
// and export.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ttsgen"

var (
	// Generation
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Generation requests by mode and outcome",
	}, []string{"mode", "outcome"})

	ChunksDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_decoded_total",
		Help:      "Audio chunks decoded and appended to the queue",
	})

	StaleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_events_total",
		Help:      "Events discarded because their correlation id is not active",
	}, []string{"status"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Session errors by kind",
	}, []string{"kind"})

	// Synthesis
	SynthesisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_duration_seconds",
		Help:      "Time to synthesize one chunk",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunk_cache_lookups_total",
		Help:      "Chunk cache lookups by result",
	}, []string{"result"})

	// Playback and export
	TransportState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transport_state",
		Help:      "1 for the active transport state, 0 otherwise",
	}, []string{"state"})

	BufferedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffered_audio_seconds",
		Help:      "Total duration of the buffer queue",
	})

	Merges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merges_total",
		Help:      "Merged artifacts published",
	})

	ArtifactBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "artifact_bytes",
		Help:      "Size of the current merged artifact",
	})
)

// SetTransportState marks state as the only active transport state.
func SetTransportState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		TransportState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
