// Package fill runs the cost-ascending fill cycles for one page and advances it.
package fill

import (
	"context"
	"fmt"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/matcher"
	"github.com/v0xg/applypilot/internal/scanner"
	"go.uber.org/zap"
)

// Outcome is how a page left the pipeline
type Outcome string

const (
	OutcomeNavigated Outcome = "navigated"
	OutcomeReview    Outcome = "review"
	OutcomeComplete  Outcome = "complete"
)

// Tier names the mechanism that filled a field
type Tier string

const (
	TierDOM        Tier = "dom"
	TierLLM        Tier = "llm"
	TierEscalation Tier = "agent"
)

// Report carries the outcome and fill counters for one page
type Report struct {
	Outcome     Outcome
	DOMFilled   int
	LLMFilled   int
	AgentFilled int
	TotalFields int
}

// Filled returns the total fields written on the page
func (r Report) Filled() int {
	return r.DOMFilled + r.LLMFilled + r.AgentFilled
}

func (r *Report) count(t Tier) {
	switch t {
	case TierDOM:
		r.DOMFilled++
	case TierLLM:
		r.LLMFilled++
	case TierEscalation:
		r.AgentFilled++
	}
}

// Document is the live page as the pipeline reads and writes it
type Document interface {
	scanner.Document
	CurrentURL(ctx context.Context) (string, error)
	Signals(ctx context.Context) (dom.Signals, error)
	SetFiles(ctx context.Context, selector string, paths []string) error
	SetValue(ctx context.Context, selector, value string) (dom.WriteResult, error)
	SelectOption(ctx context.Context, selector, option string) (dom.WriteResult, error)
	ClickOption(ctx context.Context, selector, option string) (dom.WriteResult, error)
	SetChecked(ctx context.Context, selector string, checked bool) (dom.WriteResult, error)
	OpenDropdown(ctx context.Context, selector string) ([]string, error)
	PickOption(ctx context.Context, option string) (bool, error)
	CloseDropdown(ctx context.Context) error
	ReadValue(ctx context.Context, selector, kind string) (string, error)
	CheckboxStates(ctx context.Context, selectors []string) (map[string]bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
	ScrollToBottom(ctx context.Context) (int, error)
	ScrollToContentEnd(ctx context.Context) (int, error)
	ClickProceed(ctx context.Context, labels, finalLabels []string, refuseSubmit bool) (dom.ProceedResult, error)
	ValidationError(ctx context.Context, selectors []string) (string, error)
	Settle(ctx context.Context) error
}

// Scanner produces a fresh field list for the current page
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Result, error)
}

// Recorder observes fills as they happen. Implementations must not block.
type Recorder interface {
	FieldFilled(tier Tier, field *scanner.ScannedField)
	BeforeAdvance(ctx context.Context, pageLabel string)
}

// Recorders fans events out to several recorders
type Recorders []Recorder

func (rs Recorders) FieldFilled(tier Tier, field *scanner.ScannedField) {
	for _, r := range rs {
		r.FieldFilled(tier, field)
	}
}

func (rs Recorders) BeforeAdvance(ctx context.Context, pageLabel string) {
	for _, r := range rs {
		r.BeforeAdvance(ctx, pageLabel)
	}
}

// Options bounds the pipeline
type Options struct {
	MaxCycles           int
	MaxConsecutiveNoops int
	CleanupAgentCalls   int
	EscalationSoftCap   float64
	MinRemainingBudget  float64
	BatchStepFraction   float64
	NavigationGrace     time.Duration
	MaxRefillDepth      int
	ResumePath          string
	CoverLetterPath     string

	ProceedLabels       []string
	FinalSubmitLabels   []string
	ValidationSelectors []string
}

func (o *Options) applyDefaults() {
	if o.MaxCycles <= 0 {
		o.MaxCycles = 5
	}
	if o.MaxConsecutiveNoops <= 0 {
		o.MaxConsecutiveNoops = 3
	}
	if o.CleanupAgentCalls < 0 {
		o.CleanupAgentCalls = 0
	}
	if o.EscalationSoftCap <= 0 || o.EscalationSoftCap > 1 {
		o.EscalationSoftCap = 0.25
	}
	if o.BatchStepFraction <= 0 || o.BatchStepFraction > 1 {
		o.BatchStepFraction = 0.9
	}
	if o.NavigationGrace <= 0 {
		o.NavigationGrace = 2 * time.Second
	}
	if o.MaxRefillDepth < 0 {
		o.MaxRefillDepth = 0
	}
}

// Agents are the three fill tiers. Cheap and Escalation are optional.
type Agents struct {
	Primary    automation.Agent
	Cheap      automation.Agent
	Escalation automation.Agent
}

// Deps are the run-scoped collaborators of the pipeline
type Deps struct {
	Document Document
	Scanner  Scanner
	Matcher  *matcher.Matcher
	Agents   Agents
	Budget   automation.Budget
	Progress automation.Progress
	Recorder Recorder
	Logger   *zap.Logger
}

// Pipeline fills and advances pages. One pipeline serves a whole run; the escalation
// switch it carries is run-scoped.
type Pipeline struct {
	doc      Document
	scanner  Scanner
	matcher  *matcher.Matcher
	agents   Agents
	budget   automation.Budget
	progress automation.Progress
	recorder Recorder
	opts     Options
	logger   *zap.Logger

	escalationOff bool
	pollInterval  time.Duration
}

// New creates a pipeline
func New(opts Options, deps Deps) (*Pipeline, error) {
	if deps.Document == nil || deps.Scanner == nil {
		return nil, fmt.Errorf("fill pipeline needs a document and a scanner")
	}
	if deps.Agents.Primary == nil {
		return nil, fmt.Errorf("fill pipeline needs a primary agent")
	}
	opts.applyDefaults()
	if len(opts.ProceedLabels) == 0 {
		opts.ProceedLabels = []string{"save and continue", "save & continue", "next", "continue", "review", "submit"}
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.Default()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{
		doc:          deps.Document,
		scanner:      deps.Scanner,
		matcher:      deps.Matcher,
		agents:       deps.Agents,
		budget:       deps.Budget,
		progress:     deps.Progress,
		recorder:     deps.Recorder,
		opts:         opts,
		logger:       deps.Logger.Named("fill"),
		pollInterval: 250 * time.Millisecond,
	}, nil
}

// EscalationDisabled reports whether the escalation tier has been switched off for the run
func (p *Pipeline) EscalationDisabled() bool {
	return p.escalationOff
}

// FillPage runs the fill cycles on the current page and then advances it
func (p *Pipeline) FillPage(ctx context.Context, pageLabel string, qa matcher.QAMap) (Report, error) {
	var rep Report
	outcome, err := p.fillPage(ctx, pageLabel, qa, p.newPageRun(), 0, &rep)
	rep.Outcome = outcome
	return rep, err
}

// Advance activates the proceed control of the current page without filling first.
// Validation errors still trigger a bounded re-fill.
func (p *Pipeline) Advance(ctx context.Context, pageLabel string, qa matcher.QAMap) (Report, error) {
	var rep Report
	outcome, err := p.advance(ctx, pageLabel, qa, p.newPageRun(), 0, &rep)
	rep.Outcome = outcome
	return rep, err
}

func (p *Pipeline) fillPage(ctx context.Context, pageLabel string, qa matcher.QAMap, st *pageRun, depth int, rep *Report) (Outcome, error) {
	p.step("filling " + pageLabel)
	if err := p.runCycles(ctx, pageLabel, qa, st, rep); err != nil {
		if automation.IsFatal(err) || ctx.Err() != nil {
			return OutcomeComplete, err
		}
		p.logger.Warn("fill cycles ended early", zap.String("page", pageLabel), zap.Error(err))
	}
	if p.recorder != nil {
		p.recorder.BeforeAdvance(ctx, pageLabel)
	}
	return p.advance(ctx, pageLabel, qa, st, depth, rep)
}

// runCycles repeats scan → upload → direct → agent → cleanup → escalation until a cycle
// fills nothing new
func (p *Pipeline) runCycles(ctx context.Context, pageLabel string, qa matcher.QAMap, st *pageRun, rep *Report) error {
	for cycle := 1; cycle <= p.opts.MaxCycles; cycle++ {
		res, err := p.scanner.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if len(res.Fields) > rep.TotalFields {
			rep.TotalFields = len(res.Fields)
		}
		p.attachAnswers(res, qa)

		unfilled := res.Unfilled()
		p.logger.Debug("fill cycle",
			zap.String("page", pageLabel),
			zap.Int("cycle", cycle),
			zap.Int("fields", len(res.Fields)),
			zap.Int("unfilled", len(unfilled)))
		if len(unfilled) == 0 {
			return nil
		}

		newly := 0
		phases := []func(context.Context, *scanner.Result, *pageRun, *Report) (int, error){
			p.uploadFiles,
			p.directFill,
			p.agentFill,
			p.cleanup,
			p.escalate,
		}
		for _, phase := range phases {
			n, err := phase(ctx, res, st, rep)
			newly += n
			if err != nil {
				return err
			}
		}

		if newly == 0 {
			p.logger.Debug("cycle filled nothing new", zap.Int("cycle", cycle))
			return nil
		}
	}
	return nil
}

// pageRun holds state that lives for one page, re-fills included
type pageRun struct {
	uploadTried bool

	// startBudget is the remaining budget when the page was first seen; the escalation
	// soft cap is a fraction of it
	startBudget     float64
	escalationSpent float64
}

func (p *Pipeline) newPageRun() *pageRun {
	return &pageRun{startBudget: p.remaining()}
}

func (p *Pipeline) attachAnswers(res *scanner.Result, qa matcher.QAMap) {
	for _, f := range res.Fields {
		if f.Kind == scanner.KindFile || f.Kind == scanner.KindUploadButton {
			continue
		}
		if answer, ok := p.matcher.FindBestAnswer(f.Label, qa); ok {
			f.MatchedAnswer = answer
		}
	}
}

// candidates are the unfilled fields an agent may be asked about: answered ones and
// required ones it must judge
func candidates(res *scanner.Result) []*scanner.ScannedField {
	var out []*scanner.ScannedField
	for _, f := range res.Fields {
		if f.Filled || f.Kind == scanner.KindFile || f.Kind == scanner.KindUploadButton {
			continue
		}
		if f.HasAnswer() || f.IsRequired {
			out = append(out, f)
		}
	}
	return out
}

func (p *Pipeline) markFilled(f *scanner.ScannedField, tier Tier, value string, rep *Report) {
	f.Filled = true
	if value != "" {
		f.CurrentValue = value
	}
	rep.count(tier)
	if p.recorder != nil {
		p.recorder.FieldFilled(tier, f)
	}
	p.logger.Debug("field filled",
		zap.String("tier", string(tier)),
		zap.String("label", f.Label),
		zap.String("kind", string(f.Kind)))
}

func (p *Pipeline) step(s string) {
	if p.progress != nil {
		p.progress.SetStep(s)
	}
}

// fillAgent is the agent for targeted per-field calls
func (p *Pipeline) fillAgent() automation.Agent {
	if p.agents.Cheap != nil {
		return p.agents.Cheap
	}
	return p.agents.Primary
}
