package fill

import (
	"context"
	"errors"
	"strings"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/matcher"
	"github.com/v0xg/applypilot/internal/scanner"
	"go.uber.org/zap"
)

var errNoOption = errors.New("no matching option")

// uploadFiles attaches the resume (and cover letter) to raw file inputs. When the page
// only offers an upload button, one agent call opens the picker and the run's
// file-chooser listener attaches the file.
func (p *Pipeline) uploadFiles(ctx context.Context, res *scanner.Result, st *pageRun, rep *Report) (int, error) {
	if p.opts.ResumePath == "" {
		return 0, nil
	}

	n := 0
	hasInput := false
	for _, f := range res.Fields {
		if f.Kind != scanner.KindFile {
			continue
		}
		hasInput = true
		if f.Filled {
			continue
		}
		path := p.opts.ResumePath
		if strings.Contains(strings.ToLower(f.Label), "cover") {
			if p.opts.CoverLetterPath == "" {
				continue
			}
			path = p.opts.CoverLetterPath
		}
		if err := p.doc.SetFiles(ctx, f.Selector, []string{path}); err != nil {
			p.logger.Warn("attach file failed", zap.String("label", f.Label), zap.Error(err))
			continue
		}
		p.markFilled(f, TierDOM, path, rep)
		n++
	}
	if hasInput || st.uploadTried {
		return n, nil
	}

	for _, f := range res.Fields {
		if f.Kind != scanner.KindUploadButton || f.Filled {
			continue
		}
		st.uploadTried = true
		result, err := p.fillAgent().Act(ctx, uploadInstruction(f), automation.ActOptions{MaxActions: 1})
		if err != nil {
			if automation.IsFatal(err) {
				return n, err
			}
			p.logger.Warn("upload button agent call failed", zap.Error(err))
			return n, nil
		}
		if result.Success {
			p.markFilled(f, TierLLM, p.opts.ResumePath, rep)
			n++
		}
		return n, nil
	}
	return n, nil
}

// directFill writes every answered field through the control's native mechanism
func (p *Pipeline) directFill(ctx context.Context, res *scanner.Result, _ *pageRun, rep *Report) (int, error) {
	n := 0
	for _, f := range res.Fields {
		if f.Filled || !f.HasAnswer() || f.Kind == scanner.KindFile || f.Kind == scanner.KindUploadButton {
			continue
		}
		wrote, settled, err := p.writeDirect(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			p.logger.Debug("direct fill failed", zap.String("label", f.Label), zap.Error(err))
			continue
		}
		switch {
		case wrote:
			p.markFilled(f, TierDOM, f.MatchedAnswer, rep)
			n++
		case settled:
			// already in the wanted state, nothing for later tiers to do
			f.Filled = true
		}
	}
	return n, nil
}

// writeDirect performs one native write. settled reports a field that needs no write.
func (p *Pipeline) writeDirect(ctx context.Context, f *scanner.ScannedField) (wrote, settled bool, err error) {
	answer := f.MatchedAnswer
	switch f.Kind {
	case scanner.KindText, scanner.KindDate, scanner.KindContentEdit:
		r, err := p.doc.SetValue(ctx, f.Selector, answer)
		if err != nil {
			return false, false, err
		}
		return r.OK, false, nil

	case scanner.KindSelect:
		option, ok := matcher.BestOption(answer, f.Options)
		if !ok {
			return false, false, errNoOption
		}
		r, err := p.doc.SelectOption(ctx, f.Selector, option)
		if err != nil {
			return false, false, err
		}
		return r.OK, false, nil

	case scanner.KindRadio, scanner.KindARIARadio:
		option, ok := matcher.BestOption(answer, f.Options)
		if !ok {
			return false, false, errNoOption
		}
		r, err := p.doc.ClickOption(ctx, f.Selector, option)
		if err != nil {
			return false, false, err
		}
		return r.OK, false, nil

	case scanner.KindCheckbox:
		want := truthy(answer)
		r, err := p.doc.SetChecked(ctx, f.Selector, want)
		if err != nil {
			return false, false, err
		}
		if !r.OK && r.Reason == "unchanged" {
			return false, !want, nil
		}
		return r.OK, false, nil

	case scanner.KindCustomDropdown:
		return p.pickFromDropdown(ctx, f)
	}
	return false, false, nil
}

func (p *Pipeline) pickFromDropdown(ctx context.Context, f *scanner.ScannedField) (bool, bool, error) {
	options, err := p.doc.OpenDropdown(ctx, f.Selector)
	if err != nil {
		return false, false, err
	}
	option, ok := matcher.BestOption(f.MatchedAnswer, options)
	if !ok {
		_ = p.doc.CloseDropdown(ctx)
		return false, false, errNoOption
	}
	picked, err := p.doc.PickOption(ctx, option)
	if err != nil || !picked {
		_ = p.doc.CloseDropdown(ctx)
		return false, false, err
	}
	if err := p.doc.Settle(ctx); err != nil {
		return false, false, err
	}
	value, err := p.doc.ReadValue(ctx, f.Selector, string(f.Kind))
	if err != nil {
		return false, false, err
	}
	return value != "", false, nil
}

// agentFill hands the remaining fields to the agent, per field when a cheap agent is
// configured and as a viewport walk otherwise
func (p *Pipeline) agentFill(ctx context.Context, res *scanner.Result, _ *pageRun, rep *Report) (int, error) {
	if len(candidates(res)) == 0 {
		return 0, nil
	}
	if p.agents.Cheap != nil {
		return p.perFieldFill(ctx, res, rep)
	}
	return p.batchFill(ctx, res, rep)
}

func (p *Pipeline) perFieldFill(ctx context.Context, res *scanner.Result, rep *Report) (int, error) {
	n, noops := 0, 0
	done := map[string]bool{}
	for _, f := range candidates(res) {
		if f.Filled {
			continue
		}
		key := string(f.Kind) + "|" + matcher.Normalize(f.Label)
		if done[key] {
			f.Filled = true
			continue
		}

		filled, err := p.agentFillField(ctx, p.agents.Cheap, f, automation.ActOptions{MaxActions: actionsFor(f, 1)})
		if err != nil {
			return n, err
		}
		if !filled {
			noops++
			if noops >= p.opts.MaxConsecutiveNoops {
				p.logger.Info("per-field fill stalled, deferring to escalation",
					zap.Int("noops", noops))
				return n, nil
			}
			continue
		}
		noops = 0
		done[key] = true
		p.markFilled(f, TierLLM, "", rep)
		n++
	}
	return n, nil
}

// agentFillField runs one targeted agent call and reports whether the field value changed
func (p *Pipeline) agentFillField(ctx context.Context, agent automation.Agent, f *scanner.ScannedField, opts automation.ActOptions) (bool, error) {
	if err := p.doc.ScrollIntoView(ctx, f.Selector); err != nil {
		p.logger.Debug("scroll into view failed", zap.String("label", f.Label), zap.Error(err))
	}
	before, err := p.doc.ReadValue(ctx, f.Selector, string(f.Kind))
	if err != nil {
		p.logger.Debug("read value failed", zap.String("label", f.Label), zap.Error(err))
	}

	result, err := agent.Act(ctx, fieldInstruction(f), opts)
	if err != nil {
		if automation.IsFatal(err) || ctx.Err() != nil {
			return false, err
		}
		p.logger.Debug("agent fill failed", zap.String("label", f.Label), zap.Error(err))
		return false, nil
	}
	if !result.Success {
		p.logger.Debug("agent fill unsuccessful", zap.String("label", f.Label), zap.String("message", result.Message))
	}

	after, err := p.doc.ReadValue(ctx, f.Selector, string(f.Kind))
	if err != nil {
		return false, nil
	}
	if after != "" && after != before {
		f.CurrentValue = after
		return true, nil
	}
	return false, nil
}

// batchFill walks the page in large steps and asks the agent to fill every visible
// field at each stop
func (p *Pipeline) batchFill(ctx context.Context, res *scanner.Result, rep *Report) (int, error) {
	vh := res.ViewportHeight
	if vh <= 0 {
		vh = 800
	}
	step := int(float64(vh) * p.opts.BatchStepFraction)
	if step < 100 {
		step = 100
	}

	var checkboxes []string
	byCheckbox := map[string]*scanner.ScannedField{}
	for _, f := range res.Fields {
		if f.Kind == scanner.KindCheckbox {
			checkboxes = append(checkboxes, f.Selector)
			byCheckbox[f.Selector] = f
		}
	}

	n := 0
	for y, stops := 0, 0; stops < 40; y, stops = y+step, stops+1 {
		top, err := p.doc.ScrollTo(ctx, y)
		if err != nil {
			return n, err
		}

		var visible []*scanner.ScannedField
		for _, f := range candidates(res) {
			if f.AbsoluteY >= float64(top) && f.AbsoluteY < float64(top+vh) {
				visible = append(visible, f)
			}
		}

		if len(visible) > 0 {
			filled, err := p.batchStop(ctx, visible, checkboxes, byCheckbox, rep)
			n += filled
			if err != nil {
				return n, err
			}
		}

		if top+vh >= res.ScrollHeight || (stops > 0 && top < y) {
			break
		}
	}
	return n, nil
}

func (p *Pipeline) batchStop(ctx context.Context, visible []*scanner.ScannedField, checkboxes []string,
	byCheckbox map[string]*scanner.ScannedField, rep *Report) (int, error) {

	before := make(map[string]string, len(visible))
	for _, f := range visible {
		v, _ := p.doc.ReadValue(ctx, f.Selector, string(f.Kind))
		before[f.Selector] = v
	}
	checkedBefore, err := p.doc.CheckboxStates(ctx, checkboxes)
	if err != nil {
		p.logger.Debug("checkbox snapshot failed", zap.Error(err))
	}

	result, err := p.agents.Primary.Act(ctx, batchInstruction(visible), automation.ActOptions{MaxActions: 2*len(visible) + 2})
	if err != nil {
		if automation.IsFatal(err) || ctx.Err() != nil {
			return 0, err
		}
		p.logger.Warn("batch agent call failed", zap.Int("fields", len(visible)), zap.Error(err))
	} else {
		p.logger.Debug("batch agent call", zap.Int("fields", len(visible)), zap.String("message", result.Message))
	}

	n := 0
	for _, f := range visible {
		after, err := p.doc.ReadValue(ctx, f.Selector, string(f.Kind))
		if err != nil || after == "" || after == before[f.Selector] {
			continue
		}
		f.CurrentValue = after
		p.markFilled(f, TierLLM, "", rep)
		n++
	}

	p.restoreCheckboxes(ctx, checkedBefore, byCheckbox)
	return n, nil
}

// restoreCheckboxes re-checks boxes the agent unchecked. A box that cannot be restored
// loses its filled mark.
func (p *Pipeline) restoreCheckboxes(ctx context.Context, before map[string]bool, fields map[string]*scanner.ScannedField) {
	if len(before) == 0 {
		return
	}
	selectors := make([]string, 0, len(before))
	for sel := range before {
		selectors = append(selectors, sel)
	}
	after, err := p.doc.CheckboxStates(ctx, selectors)
	if err != nil {
		return
	}
	for sel, was := range before {
		if !was || after[sel] {
			continue
		}
		r, err := p.doc.SetChecked(ctx, sel, true)
		if err == nil && r.OK {
			p.logger.Info("restored checkbox unchecked by agent", zap.String("selector", sel))
			continue
		}
		if f := fields[sel]; f != nil {
			f.Filled = false
		}
	}
}

// cleanup retries direct fill and then spends a few more targeted agent calls
func (p *Pipeline) cleanup(ctx context.Context, res *scanner.Result, st *pageRun, rep *Report) (int, error) {
	n, err := p.directFill(ctx, res, st, rep)
	if err != nil {
		return n, err
	}

	calls := 0
	for _, f := range candidates(res) {
		if calls >= p.opts.CleanupAgentCalls {
			break
		}
		calls++
		filled, err := p.agentFillField(ctx, p.fillAgent(), f, automation.ActOptions{MaxActions: actionsFor(f, 2)})
		if err != nil {
			return n, err
		}
		if filled {
			p.markFilled(f, TierLLM, "", rep)
			n++
		}
	}
	return n, nil
}

// escalate hands each remaining field to the vision-capable agent while the page's
// escalation spend is under the soft cap and the run-wide budget floor allows it
func (p *Pipeline) escalate(ctx context.Context, res *scanner.Result, st *pageRun, rep *Report) (int, error) {
	if p.agents.Escalation == nil || p.escalationOff {
		return 0, nil
	}
	pending := candidates(res)
	if len(pending) == 0 {
		return 0, nil
	}

	pageCap := p.opts.EscalationSoftCap * st.startBudget
	n := 0
	for _, f := range pending {
		remaining := p.remaining()
		if p.budget != nil && remaining < p.opts.MinRemainingBudget {
			p.escalationOff = true
			p.logger.Warn("remaining budget below minimum, escalation disabled for the run",
				zap.Float64("remaining", remaining),
				zap.Float64("minimum", p.opts.MinRemainingBudget))
			break
		}
		if p.budget != nil && st.escalationSpent >= pageCap {
			p.logger.Info("escalation soft cap reached for page",
				zap.Float64("spent", st.escalationSpent),
				zap.Float64("cap", pageCap))
			break
		}

		filled, err := p.agentFillField(ctx, p.agents.Escalation, f, automation.ActOptions{MaxActions: actionsFor(f, 3), Vision: true})
		if p.budget != nil {
			st.escalationSpent += remaining - p.remaining()
		}
		if err != nil {
			return n, err
		}
		if filled {
			p.markFilled(f, TierEscalation, "", rep)
			n++
		}
	}
	return n, nil
}

func (p *Pipeline) remaining() float64 {
	if p.budget == nil {
		return 0
	}
	return p.budget.RemainingBudget()
}

// actionsFor gives dropdowns the extra action needed to open them
func actionsFor(f *scanner.ScannedField, base int) int {
	if f.Kind == scanner.KindCustomDropdown && base < 2 {
		return 2
	}
	return base
}

func truthy(answer string) bool {
	switch matcher.Normalize(answer) {
	case "yes", "y", "true", "checked", "agree", "i agree", "accept", "1", "on":
		return true
	}
	return false
}
