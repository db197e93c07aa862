package nlp

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/karen-ai/nlpcore/internal/observe"
)

// MonitorConfig holds the health monitor's tuning knobs.
type MonitorConfig struct {
	// Interval between health checks. Default: 60s.
	Interval time.Duration

	// FailureThreshold is the number of consecutive unhealthy ticks before
	// one recovery attempt fires. Default: 3.
	FailureThreshold int

	// HistorySize caps the retained snapshot history. Default: 1000.
	HistorySize int

	// Thresholds are the alert limits. Zero value uses [DefaultThresholds].
	Thresholds Thresholds
}

// Monitor periodically snapshots both services, derives alerts, and triggers
// automated recovery after repeated failures. One long-lived monitor runs
// per process; Start and Stop are idempotent.
type Monitor struct {
	manager *Manager

	interval         time.Duration
	failureThreshold int
	historySize      int
	thresholds       Thresholds
	metrics          *metricsAdapter

	mu          sync.Mutex
	history     []SystemHealth
	consecutive int
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// metricsAdapter bridges the observe instruments to the two calls the
// monitor makes, keeping gauge delta bookkeeping out of the tick path.
type metricsAdapter struct {
	m *observe.Metrics

	mu        sync.Mutex
	lastReady int64
	readySet  bool
}

func newMonitor(manager *Manager, cfg MonitorConfig, met *observe.Metrics) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Monitor{
		manager:          manager,
		interval:         cfg.Interval,
		failureThreshold: cfg.FailureThreshold,
		historySize:      cfg.HistorySize,
		thresholds:       cfg.Thresholds,
		metrics:          &metricsAdapter{m: met},
	}
}

func (a *metricsAdapter) recordRecovery(ctx context.Context) {
	a.m.RecoveryAttempts.Add(ctx, 1)
}

func (a *metricsAdapter) setReady(ctx context.Context, ready bool) {
	var v int64
	if ready {
		v = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readySet && v == a.lastReady {
		return
	}
	a.m.Ready.Add(ctx, v-a.lastReady)
	a.lastReady = v
	a.readySet = true
}

// Start launches the background monitoring loop. Starting an already-running
// monitor logs a warning and is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		slog.Warn("health monitor already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	done := m.done
	m.mu.Unlock()

	slog.Info("health monitor started", "interval", m.interval)
	go m.loop(ctx, done)
}

// Stop cancels the loop and waits for it to exit. Stopping a monitor that is
// not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
	slog.Info("health monitor stopped")
}

// Running reports whether the monitoring loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one monitoring iteration: snapshot, record, alert, and — after
// the configured number of consecutive unhealthy ticks — exactly one
// recovery attempt. The counter resets on the first healthy tick, re-arming
// recovery for the next failure streak.
func (m *Monitor) tick(ctx context.Context) {
	snap := m.manager.Health()
	m.metrics.setReady(ctx, snap.Ready)

	m.mu.Lock()
	m.history = append(m.history, snap)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}

	var triggerRecovery bool
	if snap.Healthy {
		m.consecutive = 0
	} else {
		m.consecutive++
		// == rather than >= so a persistent failure does not retrigger
		// recovery every tick.
		triggerRecovery = m.consecutive == m.failureThreshold
	}
	consecutive := m.consecutive
	m.mu.Unlock()

	if !snap.Healthy {
		slog.Warn("system unhealthy",
			"consecutive_failures", consecutive,
			"alerts", snap.Alerts)
	}
	if triggerRecovery {
		m.attemptRecovery(ctx)
	}
}

// attemptRecovery reloads whichever service left the real-backend path, then
// unconditionally clears both caches and resets both metric sets. Every step
// is individually best-effort: a failed reload is logged and the remaining
// steps still run.
func (m *Monitor) attemptRecovery(ctx context.Context) {
	slog.Warn("attempting automated recovery")
	m.metrics.recordRecovery(ctx)

	if !m.manager.parsing.Healthy() {
		if err := m.manager.parsing.Reload(ctx, ""); err != nil {
			slog.Error("recovery: parsing reload failed", "error", err)
		}
	}
	if !m.manager.embedding.Healthy() {
		if err := m.manager.embedding.Reload(ctx, ""); err != nil {
			slog.Error("recovery: embedding reload failed", "error", err)
		}
	}

	m.manager.ClearAllCaches()
	m.manager.ResetAllMetrics()
}

// TrendReport aggregates the retained snapshot history over a time window.
type TrendReport struct {
	Window            time.Duration `json:"window"`
	SampleCount       int           `json:"sample_count"`
	HealthyPercent    float64       `json:"healthy_percent"`
	ParsingFallback   float64       `json:"parsing_fallback_percent"`
	EmbeddingFallback float64       `json:"embedding_fallback_percent"`
	AvgParseTime      time.Duration `json:"avg_parse_time"`
	AvgEmbedTime      time.Duration `json:"avg_embed_time"`
	Alerts            []string      `json:"alerts,omitempty"`
}

// Trends aggregates the snapshots recorded in the last given number of
// hours: overall health percentage, per-service fallback percentage, average
// processing times, and the deduplicated union of alerts.
func (m *Monitor) Trends(hours int) TrendReport {
	if hours <= 0 {
		hours = 1
	}
	window := time.Duration(hours) * time.Hour
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	recent := make([]SystemHealth, 0, len(m.history))
	for _, snap := range m.history {
		if snap.Time.After(cutoff) {
			recent = append(recent, snap)
		}
	}
	m.mu.Unlock()

	report := TrendReport{Window: window, SampleCount: len(recent)}
	if len(recent) == 0 {
		return report
	}

	var healthy, parseFB, embedFB int
	var parseTime, embedTime time.Duration
	seen := make(map[string]struct{})
	for _, snap := range recent {
		if snap.Healthy {
			healthy++
		}
		if snap.Parsing.FallbackActive {
			parseFB++
		}
		if snap.Embedding.FallbackActive {
			embedFB++
		}
		parseTime += snap.Parsing.AvgProcessingTime
		embedTime += snap.Embedding.AvgProcessingTime
		for _, a := range snap.Alerts {
			if _, dup := seen[a]; !dup {
				seen[a] = struct{}{}
				report.Alerts = append(report.Alerts, a)
			}
		}
	}

	n := float64(len(recent))
	report.HealthyPercent = 100 * float64(healthy) / n
	report.ParsingFallback = 100 * float64(parseFB) / n
	report.EmbeddingFallback = 100 * float64(embedFB) / n
	report.AvgParseTime = parseTime / time.Duration(len(recent))
	report.AvgEmbedTime = embedTime / time.Duration(len(recent))
	return report
}

// DiagnosticCheck is the outcome of one smoke-test call.
type DiagnosticCheck struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// DiagnosticReport summarises a full smoke test run.
type DiagnosticReport struct {
	Checks []DiagnosticCheck `json:"checks"`
	Passed int               `json:"passed"`
	Failed int               `json:"failed"`
}

// RunDiagnostic executes one real parse, one real embedding and one batch
// embedding against the live services, recording pass/fail and timing for
// each. This is a synchronous smoke test, separate from the periodic loop.
func (m *Monitor) RunDiagnostic(ctx context.Context) DiagnosticReport {
	const sample = "The quick brown fox jumps over the lazy dog."

	var report DiagnosticReport
	run := func(name string, fn func() error) {
		start := time.Now()
		err := fn()
		check := DiagnosticCheck{
			Name:     name,
			Passed:   err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			check.Error = err.Error()
			report.Failed++
		} else {
			report.Passed++
		}
		report.Checks = append(report.Checks, check)
	}

	run("parse", func() error {
		_, err := m.manager.Parse(ctx, sample)
		return err
	})
	run("embed", func() error {
		_, err := m.manager.Embed(ctx, sample)
		return err
	})
	run("batch_embed", func() error {
		_, err := m.manager.BatchEmbed(ctx, strings.Fields(sample), 3)
		return err
	})
	return report
}
