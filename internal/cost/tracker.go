// Package cost tracks dollar spend against a per-task budget.
package cost

import (
	"fmt"
	"strings"
	"sync"

	"github.com/v0xg/applypilot/internal/automation"
	"go.uber.org/zap"
)

// Pricing is dollars per million tokens for one model
type Pricing struct {
	Input  float64
	Output float64
}

// defaultPricing covers the models the agent tiers default to. Prefix match on model name.
var defaultPricing = map[string]Pricing{
	"claude-opus-4":    {Input: 15, Output: 75},
	"claude-sonnet-4":  {Input: 3, Output: 15},
	"claude-3-5-haiku": {Input: 0.8, Output: 4},
	"gpt-4o-mini":      {Input: 0.15, Output: 0.6},
	"gpt-4o":           {Input: 2.5, Output: 10},
	"gpt-4.1-mini":     {Input: 0.4, Output: 1.6},
	"gemini-2.5-pro":   {Input: 1.25, Output: 10},
	"gemini-2.5-flash": {Input: 0.3, Output: 2.5},
}

// fallbackPricing is used for unknown models so spend is never silently zero
var fallbackPricing = Pricing{Input: 3, Output: 15}

// Tracker holds the task budget and the running spend
type Tracker struct {
	mu         sync.Mutex
	taskBudget float64
	spent      float64
	pricing    map[string]Pricing
	logger     *zap.Logger
}

// NewTracker creates a tracker for one task. overrides replace entries of the built-in
// pricing table.
func NewTracker(taskBudget float64, overrides map[string]Pricing, logger *zap.Logger) *Tracker {
	pricing := make(map[string]Pricing, len(defaultPricing)+len(overrides))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	for k, v := range overrides {
		pricing[k] = v
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		taskBudget: taskBudget,
		pricing:    pricing,
		logger:     logger.Named("cost"),
	}
}

// TaskBudget returns the budget the task started with
func (t *Tracker) TaskBudget() float64 {
	return t.taskBudget
}

// RemainingBudget returns the unspent budget, never negative
func (t *Tracker) RemainingBudget() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.taskBudget - t.spent; r > 0 {
		return r
	}
	return 0
}

// Spent returns the cumulative spend
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// CanSpend returns ErrBudgetExceeded once nothing is left
func (t *Tracker) CanSpend() error {
	if t.RemainingBudget() <= 0 {
		return fmt.Errorf("%.4f of %.2f spent: %w", t.Spent(), t.taskBudget, automation.ErrBudgetExceeded)
	}
	return nil
}

// Estimate returns the dollar cost of a call without recording it
func (t *Tracker) Estimate(model string, inputTokens, outputTokens int) float64 {
	p := t.priceFor(model)
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1e6
}

// Charge records the cost of a completed call. The spend is always recorded; crossing the
// budget returns ErrBudgetExceeded.
func (t *Tracker) Charge(model string, inputTokens, outputTokens int) (float64, error) {
	amount := t.Estimate(model, inputTokens, outputTokens)

	t.mu.Lock()
	t.spent += amount
	spent := t.spent
	t.mu.Unlock()

	t.logger.Debug("charged",
		zap.String("model", model),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
		zap.Float64("amount", amount),
		zap.Float64("spent", spent))

	if spent > t.taskBudget {
		return amount, fmt.Errorf("%.4f of %.2f spent: %w", spent, t.taskBudget, automation.ErrBudgetExceeded)
	}
	return amount, nil
}

func (t *Tracker) priceFor(model string) Pricing {
	if p, ok := t.pricing[model]; ok {
		return p
	}
	best, bestLen := fallbackPricing, 0
	for prefix, p := range t.pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}
