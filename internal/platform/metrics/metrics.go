// Package metrics provides observability for the game server.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coup"

// Collector gathers table, transport and storage metrics.
type Collector struct {
	registry *prometheus.Registry
	start    time.Time

	// Sessions
	sessionsStarted  prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsFinished *prometheus.CounterVec // outcome

	// Rules
	actions    *prometheus.CounterVec // action
	challenges *prometheus.CounterVec // target, outcome
	blocks     *prometheus.CounterVec // role
	rejections *prometheus.CounterVec // code
	events     *prometheus.CounterVec // type

	// Event ledger
	eventWriteLatency prometheus.Histogram
	eventWriteErrors  prometheus.Counter

	// WebSocket
	wsConnections prometheus.Gauge
	wsMessages    *prometheus.CounterVec // direction
	wsErrors      prometheus.Counter
}

var (
	defaultOnce sync.Once
	collector   *Collector
)

// Get returns the process-wide collector.
func Get() *Collector {
	defaultOnce.Do(func() {
		collector = NewCollector()
		collector.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return collector
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),

		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_started_total", Help: "Tables created.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active", Help: "Tables currently running.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_finished_total", Help: "Tables finished by outcome.",
		}, []string{"outcome"}),

		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total", Help: "Accepted commands by kind.",
		}, []string{"command"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "challenges_total", Help: "Resolved challenges.",
		}, []string{"against", "outcome"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_total", Help: "Announced blocks by role.",
		}, []string{"role"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total", Help: "Rejected commands by error code.",
		}, []string{"code"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total", Help: "Outbound events by type.",
		}, []string{"type"}),

		eventWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "event_write_seconds", Help: "Event ledger write latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		eventWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "event_write_errors_total", Help: "Failed event ledger writes.",
		}),

		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections", Help: "Open WebSocket connections.",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_messages_total", Help: "WebSocket messages by direction.",
		}, []string{"direction"}),
		wsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_errors_total", Help: "WebSocket read and write errors.",
		}),
	}
	c.registry.MustRegister(
		c.sessionsStarted, c.sessionsActive, c.sessionsFinished,
		c.actions, c.challenges, c.blocks, c.rejections, c.events,
		c.eventWriteLatency, c.eventWriteErrors,
		c.wsConnections, c.wsMessages, c.wsErrors,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordSessionStarted counts a new table.
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
	c.sessionsActive.Inc()
}

// RecordSessionFinished counts a table ending. outcome is "won" or "aborted".
func (c *Collector) RecordSessionFinished(outcome string) {
	c.sessionsActive.Dec()
	c.sessionsFinished.WithLabelValues(outcome).Inc()
}

// RecordCommand counts an accepted command.
func (c *Collector) RecordCommand(command string) {
	c.actions.WithLabelValues(command).Inc()
}

// RecordChallenge counts a resolved challenge.
func (c *Collector) RecordChallenge(againstBlock, claimantWins bool) {
	against, outcome := "action", "bluff_caught"
	if againstBlock {
		against = "block"
	}
	if claimantWins {
		outcome = "claim_upheld"
	}
	c.challenges.WithLabelValues(against, outcome).Inc()
}

// RecordBlock counts an announced block.
func (c *Collector) RecordBlock(role string) {
	c.blocks.WithLabelValues(role).Inc()
}

// RecordRejection counts a rejected command.
func (c *Collector) RecordRejection(code string) {
	c.rejections.WithLabelValues(code).Inc()
}

// RecordEvent counts an outbound event.
func (c *Collector) RecordEvent(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	c.eventWriteLatency.Observe(latency.Seconds())
	if err != nil {
		c.eventWriteErrors.Inc()
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int) {
	c.wsConnections.Add(float64(delta))
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		c.wsMessages.WithLabelValues("in").Inc()
	} else {
		c.wsMessages.WithLabelValues("out").Inc()
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	c.wsErrors.Inc()
}

// Snapshot flattens the collector's own metric families into name -> value,
// summing across label sets. Histograms report their sample count.
func (c *Collector) Snapshot() map[string]float64 {
	out := map[string]float64{
		"uptime_seconds": time.Since(c.start).Seconds(),
	}
	families, err := c.registry.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// JSONHandler serves Snapshot as JSON.
func (c *Collector) JSONHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}
