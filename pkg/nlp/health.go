package nlp

import (
	"fmt"
	"time"

	"github.com/karen-ai/nlpcore/pkg/embedding"
	"github.com/karen-ai/nlpcore/pkg/parsing"
)

// Thresholds are the alert limits applied to each service's health snapshot.
type Thresholds struct {
	// MaxErrorCount triggers an alert when a service's sticky error counter
	// exceeds it. Default: 10.
	MaxErrorCount int

	// MinCacheHitRate triggers an alert when a service's hit rate drops
	// below it (only once the cache has seen lookups). Default: 0.5.
	MinCacheHitRate float64

	// MaxAvgProcessingTime triggers an alert when a service's rolling
	// average call time exceeds it. Default: 5s.
	MaxAvgProcessingTime time.Duration
}

// DefaultThresholds returns the standard alert limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxErrorCount:        10,
		MinCacheHitRate:      0.5,
		MaxAvgProcessingTime: 5 * time.Second,
	}
}

// SystemHealth is a point-in-time snapshot of both services plus derived
// readiness and alerts. The monitor records one per tick; the facade returns
// one on demand.
type SystemHealth struct {
	Time      time.Time        `json:"time"`
	Parsing   parsing.Health   `json:"parsing"`
	Embedding embedding.Health `json:"embedding"`

	// Healthy means both services run on their real backends.
	Healthy bool `json:"healthy"`

	// Ready means both services are healthy, or both are in fallback mode.
	// A half-fallback system is reported not ready.
	Ready bool `json:"ready"`

	Alerts []string `json:"alerts,omitempty"`
}

// serviceView is the threshold-relevant slice of a service health snapshot,
// so alert derivation can treat both services uniformly.
type serviceView struct {
	name        string
	errorCount  int
	lookups     uint64
	hitRate     float64
	avgTime     time.Duration
	fallback    bool
	modelLoaded bool
}

func parsingView(h parsing.Health) serviceView {
	return serviceView{
		name:        "parsing",
		errorCount:  h.ErrorCount,
		lookups:     h.CacheHits + h.CacheMisses,
		hitRate:     h.CacheHitRate,
		avgTime:     h.AvgProcessingTime,
		fallback:    h.FallbackActive,
		modelLoaded: h.ModelLoaded,
	}
}

func embeddingView(h embedding.Health) serviceView {
	return serviceView{
		name:        "embedding",
		errorCount:  h.ErrorCount,
		lookups:     h.CacheHits + h.CacheMisses,
		hitRate:     h.CacheHitRate,
		avgTime:     h.AvgProcessingTime,
		fallback:    h.FallbackActive,
		modelLoaded: h.ModelLoaded,
	}
}

// deriveAlerts is a pure function of a service view and the thresholds — no
// side effects, so it is trivially testable with synthetic snapshots.
func deriveAlerts(v serviceView, t Thresholds) []string {
	var alerts []string
	if v.errorCount > t.MaxErrorCount {
		alerts = append(alerts, fmt.Sprintf("%s: error count %d exceeds %d",
			v.name, v.errorCount, t.MaxErrorCount))
	}
	if v.lookups > 0 && v.hitRate < t.MinCacheHitRate {
		alerts = append(alerts, fmt.Sprintf("%s: cache hit rate %.2f below %.2f",
			v.name, v.hitRate, t.MinCacheHitRate))
	}
	if v.avgTime > t.MaxAvgProcessingTime {
		alerts = append(alerts, fmt.Sprintf("%s: avg processing time %s exceeds %s",
			v.name, v.avgTime, t.MaxAvgProcessingTime))
	}
	if v.fallback {
		alerts = append(alerts, fmt.Sprintf("%s: operating in fallback mode", v.name))
	}
	if !v.modelLoaded {
		alerts = append(alerts, fmt.Sprintf("%s: model not loaded", v.name))
	}
	return alerts
}
