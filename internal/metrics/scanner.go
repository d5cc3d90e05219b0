// Package metrics provides Prometheus metrics for the decode engine, scan
// sessions and auto-probe.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode attempt results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

var (
	decodeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codescan",
		Name:      "decode_attempts_total",
		Help:      "Decode attempts per backend and result",
	}, []string{"backend", "result"})

	decodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codescan",
		Name:      "decode_duration_seconds",
		Help:      "Time spent in one backend attempt",
		Buckets:   []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2},
	}, []string{"backend"})

	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codescan",
		Name:      "sessions_total",
		Help:      "Scan sessions by terminal state",
	}, []string{"outcome"})

	probeCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codescan",
		Name:      "probe_candidates_total",
		Help:      "Auto-probe candidate trials by outcome",
	}, []string{"outcome"})

	// Local cache for the status API.
	cache   = Stats{Backends: make(map[string]BackendStats), Sessions: make(map[string]uint64)}
	cacheMu sync.RWMutex
)

// BackendStats holds per-backend counters.
type BackendStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Stats is a snapshot of the scanner counters.
type Stats struct {
	Backends map[string]BackendStats `json:"backends"`
	Sessions map[string]uint64       `json:"sessions"`
	Probes   uint64                  `json:"probes"`
}

// ObserveDecode records one backend attempt. Its signature matches
// decode.Observer.
func ObserveDecode(backend string, found bool, elapsed time.Duration) {
	result := ResultMiss
	if found {
		result = ResultHit
	}
	decodeAttempts.WithLabelValues(backend, result).Inc()
	decodeDuration.WithLabelValues(backend).Observe(elapsed.Seconds())

	cacheMu.Lock()
	defer cacheMu.Unlock()
	s := cache.Backends[backend]
	if found {
		s.Hits++
	} else {
		s.Misses++
	}
	cache.Backends[backend] = s
}

// SessionEnded records a session reaching a terminal state.
func SessionEnded(outcome string) {
	sessions.WithLabelValues(outcome).Inc()

	cacheMu.Lock()
	cache.Sessions[outcome]++
	cacheMu.Unlock()
}

// ProbeCandidate records one auto-probe trial.
func ProbeCandidate(outcome string) {
	probeCandidates.WithLabelValues(outcome).Inc()

	cacheMu.Lock()
	cache.Probes++
	cacheMu.Unlock()
}

// Snapshot returns a copy of the current counters.
func Snapshot() Stats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	out := Stats{
		Backends: make(map[string]BackendStats, len(cache.Backends)),
		Sessions: make(map[string]uint64, len(cache.Sessions)),
		Probes:   cache.Probes,
	}
	for k, v := range cache.Backends {
		out.Backends[k] = v
	}
	for k, v := range cache.Sessions {
		out.Sessions[k] = v
	}
	return out
}
