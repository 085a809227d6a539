// Package metrics collects per-run prometheus metrics and exports them as a text file.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/fill"
	"github.com/v0xg/applypilot/internal/scanner"
	"go.uber.org/zap"
)

const namespace = "applypilot"

// Collector holds the metrics of one run on its own registry
type Collector struct {
	registry *prometheus.Registry

	fieldsFilled  *prometheus.CounterVec
	pages         *prometheus.CounterVec
	advances      prometheus.Counter
	agentCalls    *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector. budget, when non-nil, is exported as a gauge read at
// scrape time.
func NewCollector(runID string, budget automation.Budget, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"run": runID}, reg))

	c := &Collector{
		registry: reg,
		logger:   logger.Named("metrics"),
	}

	c.fieldsFilled = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_filled_total",
			Help:      "Fields filled, by the tier that filled them",
		},
		[]string{"tier"},
	)

	c.pages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages processed, by classified page type",
		},
		[]string{"page_type"},
	)

	c.advances = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_advances_total",
		Help:      "Proceed attempts after filling a page",
	})

	c.agentCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Model calls, by agent tier and outcome",
		},
		[]string{"agent", "outcome"},
	)

	c.agentDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_duration_seconds",
			Help:      "Model call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	if budget != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_remaining_dollars",
			Help:      "Remaining cost budget of the run",
		}, budget.RemainingBudget)
	}

	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// FieldFilled counts one filled field
func (c *Collector) FieldFilled(tier fill.Tier, _ *scanner.ScannedField) {
	c.fieldsFilled.WithLabelValues(string(tier)).Inc()
}

// BeforeAdvance counts one proceed attempt
func (c *Collector) BeforeAdvance(context.Context, string) {
	c.advances.Inc()
}

// ObservePage counts one classified page
func (c *Collector) ObservePage(pageType automation.PageType) {
	c.pages.WithLabelValues(string(pageType)).Inc()
}

// ObserveAgentCall records one model call
func (c *Collector) ObserveAgentCall(agent, outcome string, d time.Duration) {
	c.agentCalls.WithLabelValues(agent, outcome).Inc()
	c.agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// WriteToTextfile writes the registry in the text exposition format
func (c *Collector) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	c.logger.Info("metrics written", zap.String("path", path))
	return nil
}
