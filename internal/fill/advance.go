package fill

import (
	"context"
	"time"

	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/matcher"
	"go.uber.org/zap"
)

// advance clicks the proceed control and decides what happened. depth counts validation
// re-fills already performed for this page.
func (p *Pipeline) advance(ctx context.Context, pageLabel string, qa matcher.QAMap, st *pageRun, depth int, rep *Report) (Outcome, error) {
	p.step("advancing " + pageLabel)

	before, err := p.doc.Signals(ctx)
	if err != nil {
		p.logger.Warn("page signals failed before advance", zap.Error(err))
	}
	urlBefore, _ := p.doc.CurrentURL(ctx)

	scrollY, err := p.doc.ScrollToBottom(ctx)
	if err != nil {
		return OutcomeComplete, err
	}

	refuse := before.ReviewLike()
	res, err := p.doc.ClickProceed(ctx, p.opts.ProceedLabels, p.opts.FinalSubmitLabels, refuse)
	if err != nil {
		return OutcomeComplete, err
	}
	if !res.Found {
		if scrollY, err = p.doc.ScrollToContentEnd(ctx); err != nil {
			p.logger.Debug("scroll to content end failed", zap.Error(err))
		}
		if res, err = p.doc.ClickProceed(ctx, p.opts.ProceedLabels, p.opts.FinalSubmitLabels, refuse); err != nil {
			return OutcomeComplete, err
		}
	}

	switch {
	case !res.Found:
		p.logger.Info("no proceed control found", zap.String("page", pageLabel))
		return OutcomeComplete, nil
	case res.Terminal:
		p.logger.Info("terminal submit control reached, not clicking",
			zap.String("page", pageLabel),
			zap.String("control", res.Label))
		return OutcomeReview, nil
	}
	p.logger.Info("clicked proceed", zap.String("page", pageLabel), zap.String("control", res.Label))

	if err := p.doc.Settle(ctx); err != nil {
		return OutcomeComplete, err
	}

	if msg, err := p.doc.ValidationError(ctx, p.opts.ValidationSelectors); err == nil && msg != "" {
		p.logger.Warn("site reported validation error", zap.String("page", pageLabel), zap.String("error", msg))
		return p.refill(ctx, pageLabel, qa, st, depth, rep)
	}

	changed, after := p.waitForChange(ctx, urlBefore, before.Fingerprint())
	if changed {
		return OutcomeNavigated, nil
	}
	if after.ScrollY != scrollY {
		p.logger.Info("page did not change but scrolled, likely inline validation", zap.String("page", pageLabel))
		return p.refill(ctx, pageLabel, qa, st, depth, rep)
	}
	return OutcomeComplete, nil
}

func (p *Pipeline) refill(ctx context.Context, pageLabel string, qa matcher.QAMap, st *pageRun, depth int, rep *Report) (Outcome, error) {
	if depth >= p.opts.MaxRefillDepth {
		p.logger.Info("re-fill depth exhausted, leaving page to the outer loop", zap.Int("depth", depth))
		return OutcomeComplete, nil
	}
	return p.fillPage(ctx, pageLabel, qa, st, depth+1, rep)
}

// waitForChange polls the URL and fingerprint for the navigation grace period
func (p *Pipeline) waitForChange(ctx context.Context, urlBefore, fpBefore string) (bool, dom.Signals) {
	deadline := time.Now().Add(p.opts.NavigationGrace)
	var last dom.Signals
	for {
		if url, err := p.doc.CurrentURL(ctx); err == nil && url != urlBefore {
			return true, last
		}
		if s, err := p.doc.Signals(ctx); err == nil {
			last = s
			if s.Fingerprint() != fpBefore {
				return true, s
			}
		}
		if time.Now().After(deadline) {
			return false, last
		}
		t := time.NewTimer(p.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, last
		case <-t.C:
		}
	}
}
