package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
	"go.uber.org/zap"
)

var (
	applyPatterns = []string{
		`^apply now\b`, `^apply for this (job|position|role)`, `^easy apply\b`,
		`^start (your )?application`, `^apply\b`, `\bi'?m interested\b`,
	}
	emailSignInPatterns = []string{
		`(continue|sign in|log in) with (email|e-mail|password)`, `use (your )?email`,
	}
)

// startApplication activates the apply control of a job listing
func (o *Orchestrator) startApplication(ctx context.Context, st *runState) error {
	o.step("starting application")
	clicked, err := o.deps.Document.ClickByText(ctx, applyPatterns...)
	if err != nil {
		o.log.Debug("apply click failed", zap.Error(err))
	}
	if clicked == "" {
		if o.deps.Agent == nil {
			return errors.New("no apply control found")
		}
		res, err := o.deps.Agent.Act(ctx,
			"Click the button or link that starts the application for this job (usually labelled Apply). Do not fill anything.",
			automation.ActOptions{MaxActions: 2})
		if err != nil {
			return fmt.Errorf("apply via agent: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("apply via agent: %s", res.Message)
		}
		clicked = "agent"
	}
	st.applyClicked = true
	o.log.Info("apply clicked", zap.String("control", clicked))
	return o.deps.Document.Settle(ctx)
}

// signIn handles login and single-sign-on pages
func (o *Orchestrator) signIn(ctx context.Context, state automation.PageState, url string) error {
	o.step("signing in")
	sig, err := o.deps.Document.Signals(ctx)
	if err != nil {
		o.log.Debug("signals unavailable", zap.Error(err))
	}
	p := o.deps.Profile

	if sig.AccountChooser {
		if p != nil && p.LoginEmail() != "" {
			clicked, err := o.deps.Document.ClickByText(ctx, regexp.QuoteMeta(p.LoginEmail()))
			if err == nil && clicked != "" {
				return o.deps.Document.Settle(ctx)
			}
		}
		return automation.NeedsHuman("account chooser lists no matching account", url)
	}

	if state.Type == automation.PageSSOSignIn {
		clicked, err := o.deps.Document.ClickByText(ctx, emailSignInPatterns...)
		if err == nil && clicked != "" {
			o.log.Info("switched to email sign-in", zap.String("control", clicked))
			return o.deps.Document.Settle(ctx)
		}
	}

	if p == nil || !p.HasCredentials() {
		return automation.NeedsHuman("sign-in required and no account credentials are configured", url)
	}
	if o.deps.Agent == nil {
		return automation.NeedsHuman("sign-in required and no agent is configured", url)
	}
	instruction := fmt.Sprintf(
		"Sign in to this site. Enter the email %q and the password %q in their fields, then click the sign-in button. If only the email field is visible, enter it and click Next or Continue.",
		p.LoginEmail(), p.Account.Password)
	res, err := o.deps.Agent.Act(ctx, instruction, automation.ActOptions{MaxActions: 4})
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("sign in: %s", res.Message)
	}
	return o.deps.Document.Settle(ctx)
}

// createAccount fills a short account-creation form
func (o *Orchestrator) createAccount(ctx context.Context, url string) error {
	o.step("creating account")
	p := o.deps.Profile
	if p == nil || !p.HasCredentials() {
		return automation.NeedsHuman("account creation required and no account credentials are configured", url)
	}
	if o.deps.Agent == nil {
		return automation.NeedsHuman("account creation required and no agent is configured", url)
	}
	instruction := fmt.Sprintf(
		"Create a candidate account. Enter the email %q, the password %q and the same password in any confirm-password field. Check the required terms or privacy checkbox if there is one, then click the button that creates the account.",
		p.LoginEmail(), p.Account.Password)
	res, err := o.deps.Agent.Act(ctx, instruction, automation.ActOptions{MaxActions: 6})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("create account: %s", res.Message)
	}
	return o.deps.Document.Settle(ctx)
}

// waitForChallenge polls until a human clears the verification challenge. The page counts
// as cleared once its URL or fingerprint changes. Timing out is terminal.
func (o *Orchestrator) waitForChallenge(ctx context.Context, state automation.PageState, url string) error {
	o.step("waiting for verification")
	start, _ := o.deps.Document.Signals(ctx)
	startFP := start.Fingerprint()
	o.log.Warn("verification challenge: complete it in the browser window",
		zap.String("type", string(state.Type)),
		zap.Duration("timeout", o.cfg.ChallengeTimeout))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ChallengeTimeout)
	defer cancel()
	ticker := time.NewTicker(o.cfg.ChallengePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return automation.NeedsHuman(
					fmt.Sprintf("%s challenge not cleared within %s", state.Type, o.cfg.ChallengeTimeout), url)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		now, err := o.deps.Document.CurrentURL(ctx)
		if err != nil {
			continue
		}
		if now != url {
			o.log.Info("verification cleared", zap.String("url", now))
			return nil
		}
		sig, err := o.deps.Document.Signals(ctx)
		if err == nil && sig.Fingerprint() != startFP {
			o.log.Info("verification cleared", zap.String("heading", sig.Heading()))
			return nil
		}
	}
}
