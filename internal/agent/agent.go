package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Spender is the cost tracker as the agent uses it
type Spender interface {
	CanSpend() error
	Charge(model string, inputTokens, outputTokens int) (float64, error)
}

// Observer receives one event per model call. outcome is ok, error or rate_limited.
type Observer interface {
	ObserveAgentCall(agent, outcome string, d time.Duration)
}

// Config tunes one agent tier
type Config struct {
	Name             string // primary, cheap, escalation
	MaxActionsPerAct int
	ActionTimeout    time.Duration
	RateLimitBackoff time.Duration
	MaxPageTokens    int
	MaxElements      int
	ScreenshotWidth  uint
	ApplicantData    string
}

// ActionCounter enforces the lifetime action ceiling shared by every agent of a run
type ActionCounter struct {
	mu   sync.Mutex
	used int
	max  int
}

// NewActionCounter creates a counter allowing max actions. max <= 0 means unlimited.
func NewActionCounter(max int) *ActionCounter {
	return &ActionCounter{max: max}
}

// Use consumes one action or returns ErrActionLimit
func (c *ActionCounter) Use() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max > 0 && c.used >= c.max {
		return fmt.Errorf("%d actions used: %w", c.used, automation.ErrActionLimit)
	}
	c.used++
	return nil
}

// Check returns ErrActionLimit once the ceiling is reached
func (c *ActionCounter) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.max > 0 && c.used >= c.max {
		return fmt.Errorf("%d actions used: %w", c.used, automation.ErrActionLimit)
	}
	return nil
}

// Used returns the number of actions performed so far
func (c *ActionCounter) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// NewLimiter returns a limiter enforcing gap between consecutive model calls
func NewLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

// Agent implements automation.Agent over a browser surface and an LLM provider
type Agent struct {
	cfg      Config
	provider Provider
	surface  Surface
	spender  Spender
	limiter  *rate.Limiter
	actions  *ActionCounter
	observer Observer
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Deps are the run-scoped collaborators shared by every agent tier
type Deps struct {
	Surface  Surface
	Spender  Spender
	Limiter  *rate.Limiter
	Actions  *ActionCounter
	Observer Observer
	Logger   *zap.Logger
}

// New creates an agent tier
func New(cfg Config, provider Provider, deps Deps) *Agent {
	if cfg.MaxActionsPerAct <= 0 {
		cfg.MaxActionsPerAct = 12
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 60 * time.Second
	}
	if cfg.MaxElements <= 0 {
		cfg.MaxElements = 150
	}
	if deps.Limiter == nil {
		deps.Limiter = NewLimiter(0)
	}
	if deps.Actions == nil {
		deps.Actions = NewActionCounter(0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		cfg:      cfg,
		provider: provider,
		surface:  deps.Surface,
		spender:  deps.Spender,
		limiter:  deps.Limiter,
		actions:  deps.Actions,
		observer: deps.Observer,
		logger:   logger.Named("agent").With(zap.String("tier", cfg.Name), zap.String("model", provider.Model())),
		sleep:    sleepCtx,
	}
}

// Name returns the tier name
func (a *Agent) Name() string {
	return a.cfg.Name
}

// Act asks the model for actions toward instruction and performs them
func (a *Agent) Act(ctx context.Context, instruction string, opts automation.ActOptions) (automation.ActResult, error) {
	start := time.Now()
	result := func(success bool, msg string) automation.ActResult {
		return automation.ActResult{Success: success, Message: msg, Duration: time.Since(start)}
	}

	if err := a.gate(ctx); err != nil {
		if errors.Is(err, automation.ErrPageUnhealthy) {
			return result(false, "skipped: page unhealthy"), nil
		}
		return result(false, err.Error()), err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.cfg.ActionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxActions := opts.MaxActions
	if maxActions <= 0 {
		maxActions = a.cfg.MaxActionsPerAct
	}

	page, err := a.snapshot(ctx)
	if err != nil {
		return result(false, err.Error()), err
	}

	req := Request{
		System:    actSystemPrompt,
		Prompt:    buildActPrompt(page, a.cfg.ApplicantData, instruction, maxActions),
		MaxTokens: 1024,
	}
	if opts.Vision {
		if shot, err := a.surface.Screenshot(ctx); err != nil {
			a.logger.Debug("screenshot failed, continuing without vision", zap.Error(err))
		} else if img, err := downscalePNG(shot, a.cfg.ScreenshotWidth); err == nil {
			req.Image = img
		}
	}

	resp, err := a.complete(ctx, req)
	if err != nil {
		return result(false, err.Error()), err
	}

	actions, err := parseActionsJSON(resp.Text)
	if err != nil {
		a.logger.Debug("unparseable actions", zap.String("response", resp.Text), zap.Error(err))
		return result(false, "unparseable response"), nil
	}
	if len(actions) > maxActions {
		actions = actions[:maxActions]
	}

	performed, failed := 0, 0
	for i, action := range actions {
		if action.Type == "done" {
			break
		}
		if err := a.actions.Use(); err != nil {
			return result(performed > 0, err.Error()), err
		}
		if _, err := execute(ctx, a.surface, action); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result(performed > 0, "timed out"), nil
			}
			failed++
			a.logger.Debug("action failed",
				zap.Int("index", i),
				zap.String("action", action.String()),
				zap.Error(err))
			continue
		}
		performed++
		a.logger.Debug("action", zap.Int("index", i), zap.String("action", action.String()))
	}

	switch {
	case performed == 0 && failed == 0:
		return result(false, "no actions needed"), nil
	case performed == 0:
		return result(false, fmt.Sprintf("all %d actions failed", failed)), nil
	}
	return result(true, fmt.Sprintf("%d actions performed, %d failed", performed, failed)), nil
}

// Extract reads structured data off the page into out
func (a *Agent) Extract(ctx context.Context, instruction string, out any) error {
	if err := a.gate(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ActionTimeout)
	defer cancel()

	url, _ := a.surface.CurrentURL(ctx)
	title, _ := a.surface.Title(ctx)
	text, err := a.surface.PageText(ctx)
	if err != nil {
		return fmt.Errorf("read page text: %w", err)
	}
	var controls string
	if elements, err := a.surface.Elements(ctx, a.cfg.MaxElements); err == nil {
		controls = summarizeControls(elements, 60)
	}

	resp, err := a.complete(ctx, Request{
		System:    extractSystemPrompt,
		Prompt:    buildExtractPrompt(url, title, controls, truncateTokens(text, a.cfg.MaxPageTokens), instruction, shapeOf(out)),
		MaxTokens: 512,
	})
	if err != nil {
		return err
	}
	if err := parseObjectJSON(resp.Text, out); err != nil {
		return fmt.Errorf("malformed extraction: %w", err)
	}
	return nil
}

// gate runs the checks every model call must pass: action ceiling, budget and page health
func (a *Agent) gate(ctx context.Context) error {
	if err := a.actions.Check(); err != nil {
		return err
	}
	if a.spender != nil {
		if err := a.spender.CanSpend(); err != nil {
			return err
		}
	}
	if !a.healthy(ctx) {
		a.logger.Warn("page unhealthy, skipping agent call")
		return automation.ErrPageUnhealthy
	}
	return nil
}

func (a *Agent) snapshot(ctx context.Context) (actPage, error) {
	url, err := a.surface.CurrentURL(ctx)
	if err != nil {
		return actPage{}, err
	}
	title, _ := a.surface.Title(ctx)
	elements, err := a.surface.Elements(ctx, a.cfg.MaxElements)
	if err != nil {
		return actPage{}, err
	}
	return actPage{URL: url, Title: title, Elements: elements}, nil
}

// complete waits for the limiter, calls the provider and charges the cost. A rate-limit
// response is retried once after the backoff.
func (a *Agent) complete(ctx context.Context, req Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		start := time.Now()
		resp, err := a.provider.Complete(ctx, req)
		if err != nil {
			if IsRateLimited(err) && attempt == 0 {
				a.observe("rate_limited", start)
				a.logger.Warn("rate limited, backing off", zap.Duration("backoff", a.cfg.RateLimitBackoff))
				if err := a.sleep(ctx, a.cfg.RateLimitBackoff); err != nil {
					return nil, err
				}
				continue
			}
			a.observe("error", start)
			return nil, err
		}
		a.observe("ok", start)

		if a.spender != nil {
			if _, err := a.spender.Charge(a.provider.Model(), resp.InputTokens, resp.OutputTokens); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}
}

func (a *Agent) observe(outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveAgentCall(a.cfg.Name, outcome, time.Since(start))
	}
}

type healthSignals struct {
	ReadyState   string `json:"readyState"`
	Interactive  int    `json:"interactive"`
	TextLength   int    `json:"textLength"`
	LooksRaw     bool   `json:"looksRaw"`
	ErrorDocType bool   `json:"errorDocType"`
}

const healthJS = `() => {
	const body = document.body;
	const text = body ? (body.innerText || '') : '';
	const head = text.trimStart().slice(0, 200);
	const onlyPre = !!body && body.children.length === 1 && body.children[0].tagName === 'PRE';
	const rawMarkup = /^<(!doctype|html|\?xml)/i.test(head) || /^[\[{]\s*"/.test(head);
	return {
		readyState: document.readyState,
		interactive: document.querySelectorAll('input, select, textarea, button, a[href], [role="button"]').length,
		textLength: text.length,
		looksRaw: onlyPre || rawMarkup,
		errorDocType: document.contentType !== 'text/html' && document.contentType !== 'application/xhtml+xml'
	};
}`

// healthy distinguishes a rendered UI from a blank, raw-source or non-HTML document
func (a *Agent) healthy(ctx context.Context) bool {
	var h healthSignals
	if err := a.surface.Evaluate(ctx, healthJS, &h); err != nil {
		a.logger.Debug("health check failed", zap.Error(err))
		return false
	}
	return isHealthy(h)
}

func isHealthy(h healthSignals) bool {
	if h.LooksRaw || h.ErrorDocType {
		return false
	}
	if strings.EqualFold(h.ReadyState, "loading") && h.Interactive == 0 {
		return false
	}
	return h.Interactive > 0 || h.TextLength > 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
