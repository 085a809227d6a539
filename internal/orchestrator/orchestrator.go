// Package orchestrator drives one application run: it classifies each page, dispatches it
// to the fill pipeline or a specialized procedure, and stops on a terminal page, a stuck
// page or the page cap.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/classifier"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/fill"
	"github.com/v0xg/applypilot/internal/matcher"
	"github.com/v0xg/applypilot/internal/profile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Document is the part of the live document the loop and its procedures use
type Document interface {
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Signals(ctx context.Context) (dom.Signals, error)
	ClickByText(ctx context.Context, patterns ...string) (string, error)
	Settle(ctx context.Context) error
}

// Classifier names the page currently shown
type Classifier interface {
	Classify(ctx context.Context, cc classifier.Context) (automation.PageState, error)
}

// tierReporter is implemented by classifiers that can say which detector decided
type tierReporter interface {
	LastTier() classifier.Tier
}

// Filler fills a form page and advances it
type Filler interface {
	FillPage(ctx context.Context, pageLabel string, qa matcher.QAMap) (fill.Report, error)
}

// PageObserver is told about every classified page
type PageObserver interface {
	ObservePage(pageType automation.PageType)
}

// Options bounds the loop
type Options struct {
	MaxPages         int
	StuckThreshold   int
	ChallengeTimeout time.Duration
	ChallengePoll    time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxPages <= 0 {
		o.MaxPages = 25
	}
	if o.StuckThreshold <= 1 {
		o.StuckThreshold = 3
	}
	if o.ChallengeTimeout <= 0 {
		o.ChallengeTimeout = 5 * time.Minute
	}
	if o.ChallengePoll <= 0 {
		o.ChallengePoll = 5 * time.Second
	}
}

// Deps are the collaborators of a run
type Deps struct {
	Document   Document
	Classifier Classifier
	Filler     Filler
	Agent      automation.Agent
	Profile    *profile.Profile
	QA         matcher.QAMap
	Progress   automation.Progress
	Observers  []PageObserver
	// FileChooser, when set, runs for the whole run and attaches the resume to any file
	// dialog the page opens. It must return once its context is done.
	FileChooser func(ctx context.Context) error
	Logger      *zap.Logger
}

// Result is the terminal outcome of a run
type Result struct {
	Success            bool                `json:"success"`
	PagesProcessed     int                 `json:"pages_processed"`
	DOMFilled          int                 `json:"dom_filled"`
	LLMFilled          int                 `json:"llm_filled"`
	AgentFilled        int                 `json:"agent_filled"`
	TotalFields        int                 `json:"total_fields"`
	AwaitingUserReview bool                `json:"awaiting_user_review"`
	FinalPage          automation.PageType `json:"final_page"`
	Stuck              bool                `json:"stuck"`
	Error              string              `json:"error,omitempty"`
}

// Orchestrator runs the page loop
type Orchestrator struct {
	deps Deps
	cfg  Options
	log  *zap.Logger
}

// New creates an orchestrator
func New(cfg Options, deps Deps) (*Orchestrator, error) {
	if deps.Document == nil || deps.Classifier == nil || deps.Filler == nil {
		return nil, errors.New("orchestrator needs a document, a classifier and a filler")
	}
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.QA == nil {
		deps.QA = matcher.QAMap{}
	}
	return &Orchestrator{deps: deps, cfg: cfg, log: deps.Logger.Named("orchestrator")}, nil
}

// runState owns every counter of one run
type runState struct {
	pages        int
	applyClicked bool
	lastKey      string
	repeats      int
	finalPage    automation.PageType
	totals       fill.Report
}

// seen records one observation of the page and reports whether the loop is stuck
func (s *runState) seen(url, fingerprint string, threshold int) bool {
	key := url + "\x00" + fingerprint
	if key == s.lastKey {
		s.repeats++
	} else {
		s.lastKey = key
		s.repeats = 1
	}
	return s.repeats >= threshold
}

func (s *runState) add(rep fill.Report) {
	s.totals.DOMFilled += rep.DOMFilled
	s.totals.LLMFilled += rep.LLMFilled
	s.totals.AgentFilled += rep.AgentFilled
	s.totals.TotalFields += rep.TotalFields
}

func (s *runState) result() *Result {
	return &Result{
		PagesProcessed: s.pages,
		DOMFilled:      s.totals.DOMFilled,
		LLMFilled:      s.totals.LLMFilled,
		AgentFilled:    s.totals.AgentFilled,
		TotalFields:    s.totals.TotalFields,
		FinalPage:      s.finalPage,
	}
}

// Run navigates to jobURL and processes pages until a terminal state. The returned
// result is never nil; the error is set for fatal, manual-intervention and context
// failures.
func (o *Orchestrator) Run(ctx context.Context, jobURL string) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if o.deps.FileChooser != nil {
		g.Go(func() error {
			if err := o.deps.FileChooser(gctx); err != nil && gctx.Err() == nil {
				o.log.Warn("file chooser listener stopped", zap.Error(err))
			}
			return nil
		})
	}

	var (
		res    *Result
		runErr error
	)
	g.Go(func() error {
		defer cancel()
		res, runErr = o.loop(gctx, jobURL)
		return nil
	})
	_ = g.Wait()
	return res, runErr
}

func (o *Orchestrator) loop(ctx context.Context, jobURL string) (*Result, error) {
	st := &runState{finalPage: automation.PageUnknown}
	o.step("navigating to job")
	if err := o.deps.Document.Navigate(ctx, jobURL); err != nil {
		return o.fail(st, fmt.Errorf("navigate to job: %w", err))
	}

	for {
		if err := ctx.Err(); err != nil {
			return o.fail(st, err)
		}
		if st.pages >= o.cfg.MaxPages {
			o.log.Warn("page cap reached, handing over for review", zap.Int("pages", st.pages))
			res := st.result()
			res.Success = true
			res.AwaitingUserReview = true
			return res, nil
		}

		url, err := o.deps.Document.CurrentURL(ctx)
		if err != nil {
			return o.fail(st, fmt.Errorf("current url: %w", err))
		}
		sig, err := o.deps.Document.Signals(ctx)
		if err != nil {
			o.log.Debug("signals unavailable for fingerprint", zap.Error(err))
		}
		if st.seen(url, sig.Fingerprint(), o.cfg.StuckThreshold) {
			o.log.Warn("page unchanged, stopping",
				zap.String("url", url),
				zap.String("fingerprint", sig.Fingerprint()),
				zap.Int("iterations", st.repeats))
			res := st.result()
			res.Stuck = true
			res.Error = fmt.Sprintf("stuck on %s after %d identical iterations", url, st.repeats)
			return res, nil
		}

		state, err := o.deps.Classifier.Classify(ctx, classifier.Context{ApplyClicked: st.applyClicked})
		if err != nil {
			return o.fail(st, fmt.Errorf("classify page: %w", err))
		}
		st.pages++
		st.finalPage = state.Type
		o.step(string(state.Type))
		for _, obs := range o.deps.Observers {
			obs.ObservePage(state.Type)
		}
		fields := []zap.Field{
			zap.Int("n", st.pages),
			zap.String("type", string(state.Type)),
			zap.String("title", state.Title),
			zap.String("url", url),
		}
		if tr, ok := o.deps.Classifier.(tierReporter); ok {
			fields = append(fields, zap.String("tier", string(tr.LastTier())))
		}
		o.log.Info("page", fields...)

		if state.HasCaptcha {
			return o.fail(st, automation.NeedsHuman("captcha detected", url))
		}

		done, res, err := o.dispatch(ctx, st, state, url)
		if done {
			return res, err
		}
		if err != nil {
			if automation.IsFatal(err) || ctx.Err() != nil {
				return o.fail(st, err)
			}
			o.log.Warn("page procedure failed, re-examining page",
				zap.String("type", string(state.Type)), zap.Error(err))
		}
	}
}

// dispatch handles one classified page. done reports a terminal state.
func (o *Orchestrator) dispatch(ctx context.Context, st *runState, state automation.PageState, url string) (bool, *Result, error) {
	switch state.Type {
	case automation.PageReview:
		return true, o.awaitingReview(st), nil

	case automation.PageConfirmation:
		o.log.Warn("reached a confirmation page: the application appears to be submitted already")
		res := st.result()
		res.Success = true
		return true, res, nil

	case automation.PageError:
		res := st.result()
		res.Error = "site error page"
		if state.ErrorMessage != "" {
			res.Error += ": " + state.ErrorMessage
		}
		return true, res, nil

	case automation.PageJobListing:
		return false, nil, o.startApplication(ctx, st)

	case automation.PageLogin, automation.PageSSOSignIn:
		return false, nil, o.signIn(ctx, state, url)

	case automation.PageVerificationCode, automation.PagePhone2FA:
		return false, nil, o.waitForChallenge(ctx, state, url)

	case automation.PageAccountCreation:
		return false, nil, o.createAccount(ctx, url)
	}
	if !state.Type.IsFormPage() {
		return false, nil, fmt.Errorf("no procedure for %s page", state.Type)
	}

	rep, err := o.deps.Filler.FillPage(ctx, string(state.Type), o.deps.QA)
	st.add(rep)
	if err != nil {
		return false, nil, err
	}
	o.log.Info("page filled",
		zap.String("outcome", string(rep.Outcome)),
		zap.Int("dom", rep.DOMFilled),
		zap.Int("llm", rep.LLMFilled),
		zap.Int("agent", rep.AgentFilled),
		zap.Int("fields", rep.TotalFields))
	if rep.Outcome == fill.OutcomeReview {
		st.finalPage = automation.PageReview
		return true, o.awaitingReview(st), nil
	}
	return false, nil, nil
}

func (o *Orchestrator) awaitingReview(st *runState) *Result {
	o.step("awaiting review")
	res := st.result()
	res.Success = true
	res.AwaitingUserReview = true
	res.FinalPage = automation.PageReview
	return res
}

func (o *Orchestrator) fail(st *runState, err error) (*Result, error) {
	res := st.result()
	res.Error = err.Error()
	return res, err
}

func (o *Orchestrator) step(s string) {
	if o.deps.Progress != nil {
		o.deps.Progress.SetStep(s)
	}
}
