package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/browser"
)

type fakeSurface struct {
	health  healthSignals
	clicks  []string
	typed   map[string]string
	failSel string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		health: healthSignals{ReadyState: "complete", Interactive: 4, TextLength: 100},
		typed:  map[string]string{},
	}
}

func (f *fakeSurface) CurrentURL(context.Context) (string, error)     { return "https://jobs.example/apply", nil }
func (f *fakeSurface) Navigate(context.Context, string) error           { return nil }
func (f *fakeSurface) SetFiles(context.Context, string, []string) error { return nil }
func (f *fakeSurface) Evaluate(_ context.Context, js string, out any, _ ...any) error {
	if js == healthJS {
		*out.(*healthSignals) = f.health
		return nil
	}
	return fmt.Errorf("unexpected script")
}
func (f *fakeSurface) Title(context.Context) (string, error) { return "Apply", nil }
func (f *fakeSurface) Elements(context.Context, int) ([]browser.Element, error) {
	return []browser.Element{
		{Selector: "#first", Type: "text", Label: "First Name"},
		{Selector: "#next", Type: "button", Text: "Next"},
	}, nil
}
func (f *fakeSurface) PageText(context.Context) (string, error)   { return "My Information\nFirst Name", nil }
func (f *fakeSurface) Screenshot(context.Context) ([]byte, error) { return nil, errors.New("no screen") }
func (f *fakeSurface) Click(_ context.Context, sel string) error {
	if sel == f.failSel {
		return errors.New("element not found: " + sel)
	}
	f.clicks = append(f.clicks, sel)
	return nil
}
func (f *fakeSurface) Type(_ context.Context, sel, text string) error {
	f.typed[sel] = text
	return nil
}
func (f *fakeSurface) SelectOption(context.Context, string, string) error { return nil }
func (f *fakeSurface) Hover(context.Context, string) error                { return nil }
func (f *fakeSurface) Scroll(context.Context, int) error                  { return nil }
func (f *fakeSurface) PressKey(context.Context, string) error             { return nil }
func (f *fakeSurface) Wait(context.Context, time.Duration) error          { return nil }

type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "gpt-4o-mini" }
func (p *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	text := "[]"
	if i < len(p.replies) {
		text = p.replies[i]
	}
	return &Response{Text: text, InputTokens: 1000, OutputTokens: 100}, nil
}

type fakeSpender struct {
	exhausted bool
	charged   int
}

func (s *fakeSpender) CanSpend() error {
	if s.exhausted {
		return automation.ErrBudgetExceeded
	}
	return nil
}

func (s *fakeSpender) Charge(string, int, int) (float64, error) {
	s.charged++
	return 0.001, nil
}

func newTestAgent(p Provider, s *fakeSurface, sp *fakeSpender, actions *ActionCounter) *Agent {
	a := New(Config{Name: "cheap", MaxActionsPerAct: 3}, p, Deps{
		Surface: s,
		Spender: sp,
		Actions: actions,
	})
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestActExecutesActions(t *testing.T) {
	s := newFakeSurface()
	sp := &fakeSpender{}
	p := &fakeProvider{replies: []string{`Sure:
[{"action": "type", "selector": "#first", "text": "Ada"}, {"action": "click", "selector": "#next"}]`}}
	a := newTestAgent(p, s, sp, nil)

	res, err := a.Act(context.Background(), "fill first name", automation.ActOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Ada", s.typed["#first"])
	assert.Equal(t, []string{"#next"}, s.clicks)
	assert.Equal(t, 1, sp.charged)
}

func TestActRespectsMaxActions(t *testing.T) {
	s := newFakeSurface()
	p := &fakeProvider{replies: []string{`[{"action":"click","selector":"#a"},{"action":"click","selector":"#b"}]`}}
	a := newTestAgent(p, s, &fakeSpender{}, nil)

	res, err := a.Act(context.Background(), "click", automation.ActOptions{MaxActions: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"#a"}, s.clicks)
}

func TestActRetriesRateLimitOnce(t *testing.T) {
	s := newFakeSurface()
	p := &fakeProvider{
		errs:    []error{errors.New("status 429: rate limit exceeded")},
		replies: []string{"", `[{"action":"click","selector":"#next"}]`},
	}
	a := newTestAgent(p, s, &fakeSpender{}, nil)

	res, err := a.Act(context.Background(), "next", automation.ActOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, p.calls)
}

func TestActSecondRateLimitIsAnError(t *testing.T) {
	rl := errors.New("429 Too Many Requests")
	p := &fakeProvider{errs: []error{rl, rl}}
	a := newTestAgent(p, newFakeSurface(), &fakeSpender{}, nil)

	_, err := a.Act(context.Background(), "next", automation.ActOptions{})
	require.Error(t, err)
	assert.False(t, automation.IsFatal(err))
	assert.Equal(t, 2, p.calls)
}

func TestActBudgetExhaustedIsFatal(t *testing.T) {
	p := &fakeProvider{}
	a := newTestAgent(p, newFakeSurface(), &fakeSpender{exhausted: true}, nil)

	_, err := a.Act(context.Background(), "next", automation.ActOptions{})
	require.Error(t, err)
	assert.True(t, automation.IsFatal(err))
	assert.Zero(t, p.calls)
}

func TestActActionCeiling(t *testing.T) {
	s := newFakeSurface()
	p := &fakeProvider{replies: []string{`[{"action":"click","selector":"#a"},{"action":"click","selector":"#b"}]`}}
	a := newTestAgent(p, s, &fakeSpender{}, NewActionCounter(1))

	_, err := a.Act(context.Background(), "click both", automation.ActOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrActionLimit)
	assert.Equal(t, []string{"#a"}, s.clicks)

	// the next call fails before spending anything
	_, err = a.Act(context.Background(), "again", automation.ActOptions{})
	assert.ErrorIs(t, err, automation.ErrActionLimit)
	assert.Equal(t, 1, p.calls)
}

func TestActSkipsUnhealthyPage(t *testing.T) {
	s := newFakeSurface()
	s.health.LooksRaw = true
	p := &fakeProvider{}
	a := newTestAgent(p, s, &fakeSpender{}, nil)

	res, err := a.Act(context.Background(), "next", automation.ActOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, p.calls)
}

func TestActReportsFailedActions(t *testing.T) {
	s := newFakeSurface()
	s.failSel = "#missing"
	p := &fakeProvider{replies: []string{`[{"action":"click","selector":"#missing"}]`}}
	a := newTestAgent(p, s, &fakeSpender{}, nil)

	res, err := a.Act(context.Background(), "click", automation.ActOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "failed")
}

func TestExtract(t *testing.T) {
	p := &fakeProvider{replies: []string{"Here you go: {\"page_type\": \"personal_info\", \"page_title\": \"My {Information}\", \"has_next_button\": true}"}}
	a := newTestAgent(p, newFakeSurface(), &fakeSpender{}, nil)

	var state automation.PageState
	require.NoError(t, a.Extract(context.Background(), "classify", &state))
	assert.Equal(t, automation.PagePersonalInfo, state.Type)
	assert.Equal(t, "My {Information}", state.Title)
	assert.True(t, state.HasNextButton)
}

func TestExtractMalformed(t *testing.T) {
	p := &fakeProvider{replies: []string{"I cannot tell"}}
	a := newTestAgent(p, newFakeSurface(), &fakeSpender{}, nil)

	var state automation.PageState
	err := a.Extract(context.Background(), "classify", &state)
	require.Error(t, err)
	assert.False(t, automation.IsFatal(err))
}

func TestExtractUnhealthy(t *testing.T) {
	s := newFakeSurface()
	s.health = healthSignals{ReadyState: "complete"}
	a := newTestAgent(&fakeProvider{}, s, &fakeSpender{}, nil)

	var state automation.PageState
	assert.ErrorIs(t, a.Extract(context.Background(), "classify", &state), automation.ErrPageUnhealthy)
}

func TestParseActionsJSON(t *testing.T) {
	actions, err := parseActionsJSON("```json\n[{\"action\":\"type\",\"selector\":\"#q\",\"text\":\"a ] b\"}]\n```")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "a ] b", actions[0].Text)

	_, err = parseActionsJSON("no json here")
	assert.Error(t, err)

	_, err = parseActionsJSON("[{\"action\":\"click\"")
	assert.Error(t, err)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(fmt.Errorf("wrapped: %w", errors.New("RESOURCE_EXHAUSTED"))))
	assert.False(t, IsRateLimited(errors.New("connection reset")))
	assert.False(t, IsRateLimited(nil))
}

func TestIsHealthy(t *testing.T) {
	assert.True(t, isHealthy(healthSignals{ReadyState: "complete", Interactive: 3}))
	assert.False(t, isHealthy(healthSignals{ReadyState: "complete"}))
	assert.False(t, isHealthy(healthSignals{ReadyState: "complete", Interactive: 3, LooksRaw: true}))
	assert.False(t, isHealthy(healthSignals{ReadyState: "loading"}))
}

func TestTruncateTokensShortText(t *testing.T) {
	assert.Equal(t, "short", truncateTokens("short", 0))
	assert.Equal(t, "short", truncateTokens("short", 100))
}
