// Package classifier decides which kind of page the application flow is showing, using
// detectors of increasing cost.
package classifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/platform"
	"go.uber.org/zap"
)

// Document is the part of the live document the classifier reads
type Document interface {
	CurrentURL(ctx context.Context) (string, error)
	Signals(ctx context.Context) (dom.Signals, error)
	HTML(ctx context.Context) (string, error)
}

// Context is what the loop knows about the flow so far
type Context struct {
	// ApplyClicked is set once an apply control has been activated on this flow
	ApplyClicked bool
}

// Tier names the detector that produced a classification
type Tier string

const (
	TierURL      Tier = "url"
	TierDOM      Tier = "dom"
	TierAgent    Tier = "agent"
	TierFallback Tier = "fallback"
)

// accountFieldLimit is the number of live editable controls at which a page is too big to
// be an account form
const accountFieldLimit = 5

// Classifier implements the tiered page classification
type Classifier struct {
	doc          Document
	agent        automation.Agent
	platform     platform.Platform
	logger       *zap.Logger
	liveEditable int

	lastTier Tier
}

// New creates a classifier. agent may be nil, in which case the agent tier is skipped.
func New(doc Document, agent automation.Agent, p platform.Platform, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		doc:          doc,
		agent:        agent,
		platform:     p,
		logger:       logger.Named("classifier"),
		liveEditable: accountFieldLimit,
	}
}

// LastTier returns the detector that decided the most recent classification
func (c *Classifier) LastTier() Tier {
	return c.lastTier
}

// Classify returns the page state of the current page. Only fatal errors and context
// cancellation are returned; every other failure falls through to a cheaper tier.
func (c *Classifier) Classify(ctx context.Context, cc Context) (automation.PageState, error) {
	rawURL, err := c.doc.CurrentURL(ctx)
	if err != nil {
		return automation.PageState{}, fmt.Errorf("current url: %w", err)
	}
	u, _ := url.Parse(rawURL)

	sig, sigErr := c.doc.Signals(ctx)
	if sigErr != nil {
		c.logger.Debug("page signals unavailable", zap.Error(sigErr))
	}
	var sp *dom.Signals
	if sigErr == nil {
		sp = &sig
	}

	// 1. URL rules
	if u != nil && c.platform != nil {
		if t, ok := c.platform.ClassifyURL(u); ok {
			return c.finish(ctx, automation.PageState{Type: t}, TierURL, sp, cc), nil
		}
	}

	// 2. cheap DOM signals
	if sp != nil {
		if t, ok := fromSignals(sig); ok {
			return c.finish(ctx, automation.PageState{Type: t}, TierDOM, sp, cc), nil
		}
	}

	// 3. agent classification
	if c.agent != nil {
		state, err := c.classifyWithAgent(ctx, u, sp)
		if err == nil {
			return c.finish(ctx, state, TierAgent, sp, cc), nil
		}
		if automation.IsFatal(err) || ctx.Err() != nil {
			return automation.PageState{}, err
		}
		c.logger.Warn("agent classification failed, using DOM fallback", zap.Error(err))
	}

	// 4. DOM fallback
	html, err := c.doc.HTML(ctx)
	if err != nil {
		c.logger.Warn("html snapshot failed", zap.Error(err))
	}
	state := automation.PageState{Type: classifyHTML(html, sp)}
	if sp == nil {
		state.HasCaptcha = hasVisibleChallenge(html)
	}
	return c.finish(ctx, state, TierFallback, sp, cc), nil
}

// fromSignals short-circuits the common cases that need no model
func fromSignals(s dom.Signals) (automation.PageType, bool) {
	switch {
	case s.ConfirmationText && s.LiveEditable == 0:
		return automation.PageConfirmation, true
	case s.AccountChooser:
		return automation.PageSSOSignIn, true
	case s.CodeInput && s.PasswordFields == 0 && s.LiveEditable <= 2:
		return automation.PageVerificationCode, true
	case s.PasswordFields >= 2 && s.LiveEditable < accountFieldLimit:
		return automation.PageAccountCreation, true
	case s.PasswordFields == 1 && s.CreateAccountText && !s.SignInText && s.LiveEditable < accountFieldLimit:
		return automation.PageAccountCreation, true
	case s.PasswordFields == 1 && s.LiveEditable <= 3:
		return automation.PageLogin, true
	case s.PasswordFields == 0 && s.SSOButton && s.LiveEditable <= 1:
		return automation.PageSSOSignIn, true
	}
	return "", false
}

// reviewCheck is the shape of the review verification call
type reviewCheck struct {
	PendingSections bool   `json:"pending_sections"`
	TerminalSubmit  bool   `json:"terminal_submit"`
	NothingLeft     bool   `json:"nothing_left_to_do"`
	Reason          string `json:"reason"`
}

func (c *Classifier) classifyWithAgent(ctx context.Context, u *url.URL, sig *dom.Signals) (automation.PageState, error) {
	var state automation.PageState
	if err := c.agent.Extract(ctx, c.instruction(u), &state); err != nil {
		return automation.PageState{}, err
	}
	state.Type = automation.ParsePageType(string(state.Type))

	switch state.Type {
	case automation.PageAccountCreation:
		if sig != nil && sig.LiveEditable >= c.liveEditable {
			c.logger.Info("account_creation with many editable fields, treating as questions",
				zap.Int("editable", sig.LiveEditable))
			state.Type = automation.PageQuestions
		}
	case automation.PageReview:
		if sig != nil && sig.ReviewBlockers > 0 {
			state.Type = automation.PageQuestions
			break
		}
		ok, err := c.verifyReview(ctx)
		if err != nil {
			return automation.PageState{}, err
		}
		if !ok {
			state.Type = automation.PageQuestions
		}
	}
	return state, nil
}

// verifyReview challenges a review classification against explicit criteria
func (c *Classifier) verifyReview(ctx context.Context) (bool, error) {
	var check reviewCheck
	err := c.agent.Extract(ctx, reviewInstruction, &check)
	if err != nil {
		if automation.IsFatal(err) || ctx.Err() != nil {
			return false, err
		}
		c.logger.Warn("review verification failed, rejecting review", zap.Error(err))
		return false, nil
	}
	ok := !check.PendingSections && check.TerminalSubmit && check.NothingLeft
	c.logger.Info("review verification", zap.Bool("accepted", ok), zap.String("reason", check.Reason))
	return ok, nil
}

// finish applies the overrides that hold for every tier and fills in the DOM hints
func (c *Classifier) finish(ctx context.Context, state automation.PageState, tier Tier, sig *dom.Signals, cc Context) automation.PageState {
	if !state.Type.Valid() {
		state.Type = automation.PageUnknown
	}

	if cc.ApplyClicked && state.Type == automation.PageJobListing {
		c.logger.Info("job_listing after apply was clicked, treating as inline questions")
		state.Type = automation.PageQuestions
	}

	if state.Type == automation.PageReview && !c.reviewCorroborated(ctx, sig) {
		c.logger.Info("review downgraded: editable controls remain", zap.String("tier", string(tier)))
		state.Type = automation.PageQuestions
	}

	if sig != nil {
		state.HasApplyButton = state.HasApplyButton || sig.ApplyButton
		state.HasNextButton = state.HasNextButton || sig.NextButton
		state.HasSubmitButton = state.HasSubmitButton || sig.SubmitButton
		state.HasSSOButton = state.HasSSOButton || sig.SSOButton
		state.HasCaptcha = state.HasCaptcha || sig.Captcha
		if state.Title == "" {
			state.Title = sig.Heading()
		}
	}

	c.lastTier = tier
	c.logger.Debug("classified",
		zap.String("page_type", string(state.Type)),
		zap.String("tier", string(tier)),
		zap.String("title", state.Title))
	return state
}

// reviewCorroborated checks the structural review gate: no editable text input, no
// unselected dropdown, no unchecked required checkbox
func (c *Classifier) reviewCorroborated(ctx context.Context, sig *dom.Signals) bool {
	if sig != nil {
		return sig.ReviewBlockers == 0
	}
	html, err := c.doc.HTML(ctx)
	if err != nil {
		return false
	}
	return countBlockers(html) == 0
}

func (c *Classifier) instruction(u *url.URL) string {
	var b strings.Builder
	b.WriteString("Classify the current page of a job application flow.\n")
	b.WriteString("page_type must be exactly one of: ")
	names := make([]string, 0, len(automation.AllPageTypes))
	for _, t := range automation.AllPageTypes {
		names = append(names, string(t))
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\n")
	b.WriteString(`Definitions:
- job_listing: a job description with an Apply control, no application form yet.
- login / sso_signin: sign in with a password or with a third-party identity provider.
- verification_code / phone_2fa: the site asks for a code sent by email, SMS or an authenticator.
- account_creation: a short form to create a candidate account (email, password, confirm password).
- personal_info, experience, resume_upload, questions, voluntary_disclosure, self_identify: steps of the application form.
- review: a read-only summary of everything entered with a final submit control and nothing left to fill.
- confirmation: the application was already submitted.
- error: the site shows an error page.
Use review only when no field on the page can still be edited.
`)
	if u != nil && c.platform != nil {
		if hints := c.platform.ClassificationHints(u); hints != "" {
			b.WriteString("Site notes: ")
			b.WriteString(hints)
			b.WriteString("\n")
		}
	}
	b.WriteString("Also report whether apply, next, submit and single-sign-on buttons or a CAPTCHA are visible, and any error message shown.")
	return b.String()
}

const reviewInstruction = `This page was classified as the final review page of a job application. Check it strictly:
- pending_sections: true if any section still shows empty required answers, "incomplete", "missing" or an edit prompt that must be completed.
- terminal_submit: true if the main action on the page submits the whole application.
- nothing_left_to_do: true if the applicant only needs to read and submit.
Give a one-sentence reason.`
