package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/platform"
)

type fakeDoc struct {
	url     string
	signals dom.Signals
	sigErr  error
	html    string
}

func (d *fakeDoc) CurrentURL(context.Context) (string, error) { return d.url, nil }
func (d *fakeDoc) Signals(context.Context) (dom.Signals, error) {
	return d.signals, d.sigErr
}
func (d *fakeDoc) HTML(context.Context) (string, error) { return d.html, nil }

type fakeAgent struct {
	replies      []any
	errs         []error
	instructions []string
}

func (a *fakeAgent) Act(context.Context, string, automation.ActOptions) (automation.ActResult, error) {
	return automation.ActResult{}, errors.New("not supported")
}

func (a *fakeAgent) Extract(_ context.Context, instruction string, out any) error {
	i := len(a.instructions)
	a.instructions = append(a.instructions, instruction)
	if i < len(a.errs) && a.errs[i] != nil {
		return a.errs[i]
	}
	if i >= len(a.replies) {
		return errors.New("no reply scripted")
	}
	data, err := json.Marshal(a.replies[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func newClassifier(t *testing.T, doc *fakeDoc, agent *fakeAgent) *Classifier {
	p, err := platform.Resolve(platform.Generic)
	require.NoError(t, err)
	var a automation.Agent
	if agent != nil {
		a = agent
	}
	return New(doc, a, p, nil)
}

func pageType(t string) map[string]any {
	return map[string]any{"page_type": t, "page_title": "Step"}
}

func TestAccountCreationWithManyFieldsIsQuestions(t *testing.T) {
	doc := &fakeDoc{
		url:     "https://careers.example/apply",
		signals: dom.Signals{LiveEditable: 6, PasswordFields: 2, ReviewBlockers: 6},
	}
	agent := &fakeAgent{replies: []any{pageType("account_creation")}}

	state, err := newClassifier(t, doc, agent).Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageQuestions, state.Type)
}

func TestReviewWithEditableControlsIsQuestions(t *testing.T) {
	doc := &fakeDoc{
		url:     "https://careers.example/apply/review",
		signals: dom.Signals{ReviewBlockers: 1, SubmitButton: true},
	}
	agent := &fakeAgent{replies: []any{pageType("review")}}
	c := newClassifier(t, doc, agent)

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageQuestions, state.Type)
	assert.Len(t, agent.instructions, 1, "no verification call when the DOM already vetoes review")
}

func TestReviewVerification(t *testing.T) {
	tests := []struct {
		name  string
		check map[string]any
		want  automation.PageType
	}{
		{"accepted", map[string]any{"terminal_submit": true, "nothing_left_to_do": true}, automation.PageReview},
		{"pending sections", map[string]any{"pending_sections": true, "terminal_submit": true, "nothing_left_to_do": true}, automation.PageQuestions},
		{"no terminal submit", map[string]any{"nothing_left_to_do": true}, automation.PageQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &fakeDoc{url: "https://careers.example/apply", signals: dom.Signals{SubmitButton: true}}
			agent := &fakeAgent{replies: []any{pageType("review"), tt.check}}

			state, err := newClassifier(t, doc, agent).Classify(context.Background(), Context{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Type)
			assert.Len(t, agent.instructions, 2)
		})
	}
}

func TestURLTierSkipsAgent(t *testing.T) {
	doc := &fakeDoc{url: "https://accounts.google.com/v3/signin/challenge/pwd"}
	agent := &fakeAgent{}
	c := newClassifier(t, doc, agent)

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageVerificationCode, state.Type)
	assert.Equal(t, TierURL, c.LastTier())
	assert.Empty(t, agent.instructions)
}

func TestDOMTier(t *testing.T) {
	tests := []struct {
		name    string
		signals dom.Signals
		want    automation.PageType
	}{
		{"sign in", dom.Signals{PasswordFields: 1, LiveEditable: 2, SignInText: true}, automation.PageLogin},
		{"create account", dom.Signals{PasswordFields: 2, LiveEditable: 3}, automation.PageAccountCreation},
		{"create account at the field limit", dom.Signals{PasswordFields: 2, LiveEditable: 4}, automation.PageAccountCreation},
		{"confirmation", dom.Signals{ConfirmationText: true}, automation.PageConfirmation},
		{"code", dom.Signals{CodeInput: true, LiveEditable: 1}, automation.PageVerificationCode},
		{"sso only", dom.Signals{SSOButton: true}, automation.PageSSOSignIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &fakeAgent{}
			c := newClassifier(t, &fakeDoc{url: "https://careers.example/x", signals: tt.signals}, agent)

			state, err := c.Classify(context.Background(), Context{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Type)
			assert.Equal(t, TierDOM, c.LastTier())
			assert.Empty(t, agent.instructions)
		})
	}
}

func TestAccountFieldLimitAgreesAcrossTiers(t *testing.T) {
	sig := dom.Signals{PasswordFields: 2, LiveEditable: accountFieldLimit}
	_, decided := fromSignals(sig)
	assert.False(t, decided, "DOM tier leaves a page at the limit to the agent")

	agent := &fakeAgent{replies: []any{pageType("account_creation")}}
	c := newClassifier(t, &fakeDoc{url: "https://careers.example/register", signals: sig}, agent)

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, TierAgent, c.LastTier())
	assert.Equal(t, automation.PageQuestions, state.Type)
}

func TestSPAOverride(t *testing.T) {
	doc := &fakeDoc{url: "https://careers.example/jobs/42", signals: dom.Signals{ApplyButton: true, LiveEditable: 8}}
	agent := &fakeAgent{replies: []any{pageType("job_listing"), pageType("job_listing")}}
	c := newClassifier(t, doc, agent)

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageJobListing, state.Type)
	assert.True(t, state.HasApplyButton)

	state, err = c.Classify(context.Background(), Context{ApplyClicked: true})
	require.NoError(t, err)
	assert.Equal(t, automation.PageQuestions, state.Type)
}

func TestAgentFailureFallsBackToDOM(t *testing.T) {
	doc := &fakeDoc{
		url:     "https://careers.example/apply",
		signals: dom.Signals{SubmitButton: true},
		html:    `<html><body><h1>Review your application</h1><p>Ada Lovelace</p><button>Submit application</button></body></html>`,
	}
	agent := &fakeAgent{errs: []error{errors.New("malformed extraction")}}
	c := newClassifier(t, doc, agent)

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageReview, state.Type)
	assert.Equal(t, TierFallback, c.LastTier())
}

func TestFallbackReviewStillGated(t *testing.T) {
	doc := &fakeDoc{
		url:     "https://careers.example/apply",
		signals: dom.Signals{SubmitButton: true, ReviewBlockers: 1},
		html:    `<html><body><h1>Almost done</h1><button>Submit</button></body></html>`,
	}
	c := newClassifier(t, doc, &fakeAgent{errs: []error{errors.New("timeout")}})

	state, err := c.Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageQuestions, state.Type)
}

func TestFatalAgentErrorPropagates(t *testing.T) {
	doc := &fakeDoc{url: "https://careers.example/apply", signals: dom.Signals{LiveEditable: 7}}
	agent := &fakeAgent{errs: []error{fmt.Errorf("extract: %w", automation.ErrBudgetExceeded)}}

	_, err := newClassifier(t, doc, agent).Classify(context.Background(), Context{})
	assert.ErrorIs(t, err, automation.ErrBudgetExceeded)
}

func TestUnknownAgentTypeBecomesUnknown(t *testing.T) {
	doc := &fakeDoc{url: "https://careers.example/apply", signals: dom.Signals{LiveEditable: 7}}
	agent := &fakeAgent{replies: []any{pageType("Contact Details Page")}}

	state, err := newClassifier(t, doc, agent).Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PageUnknown, state.Type)
}

func TestClassifyHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want automation.PageType
	}{
		{"empty", "", automation.PageUnknown},
		{"listing", `<h1>Senior Engineer</h1><p>About the role</p><a href="/apply">Apply now</a>`, automation.PageJobListing},
		{"review", `<h2>Review</h2><dl><dt>Name</dt><dd>Ada</dd></dl><button>Submit</button>`, automation.PageReview},
		{"login", `<form><input type="email"><input type="password"><button>Sign in</button></form>`, automation.PageLogin},
		{"create account", `<form><input type="email"><input type="password"><input type="password"></form>`, automation.PageAccountCreation},
		{"confirmation", `<h1>Thank you for applying!</h1>`, automation.PageConfirmation},
		{"voluntary", `<h2>Voluntary Disclosures</h2><select><option value="">Select</option></select><button>Next</button>`, automation.PageVoluntaryDisclosure},
		{"experience", `<h2>My Experience</h2><input type="text"><button>Next</button>`, automation.PageExperience},
		{"generic form", `<h2>Tell us more</h2><textarea></textarea><button>Next</button>`, automation.PageQuestions},
		{"error", `<title>Oops</title><h1>Page not found</h1>`, automation.PageError},
		{"disabled inputs do not count", `<h2>Summary</h2><input type="text" disabled value="Ada"><button>Submit</button>`, automation.PageReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyHTML(tt.html, nil))
		})
	}
}

func TestCountBlockers(t *testing.T) {
	assert.Equal(t, 0, countBlockers(`<input type="text" readonly value="x"><select><option value="us" selected>US</option></select>`))
	assert.Equal(t, 1, countBlockers(`<select><option value="">Select</option><option value="us">US</option></select>`))
	assert.Equal(t, 1, countBlockers(`<input type="checkbox" required>`))
	assert.Equal(t, 0, countBlockers(`<input type="checkbox" required checked>`))
	assert.Equal(t, 2, countBlockers(`<input type="email"><textarea></textarea>`))
}

func TestCountBlockersCustomDropdowns(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{"workday select one", `<button aria-haspopup="listbox" data-automation-id="selectWidget">Select One</button>`, 1},
		{"chosen option", `<button aria-haspopup="listbox">United Kingdom</button>`, 0},
		{"react select placeholder", `<div class="select__control"><div class="select__placeholder">Select...</div><input role="combobox" type="text"></div>`, 1},
		{"react select chosen", `<div class="select__control"><div class="select__single-value">Yes</div><input role="combobox" type="text"></div>`, 0},
		{"hidden", `<div style="display:none"><button aria-haspopup="listbox">Select One</button></div>`, 0},
		{"inside page header", `<header><input type="email"></header>`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countBlockers(tt.html))
		})
	}
}

func TestHasVisibleChallenge(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"invisible badge", `<div class="grecaptcha-badge"><iframe src="https://www.google.com/recaptcha/api2/anchor?k=x&size=invisible"></iframe></div>`, false},
		{"invisible widget", `<div class="g-recaptcha" data-sitekey="x" data-size="invisible"></div>`, false},
		{"hidden challenge frame", `<div style="visibility: hidden"><iframe src="https://www.google.com/recaptcha/api2/bframe?k=x"></iframe></div>`, false},
		{"checkbox widget", `<div class="g-recaptcha" data-sitekey="x"></div>`, true},
		{"hcaptcha", `<iframe src="https://newassets.hcaptcha.com/captcha/v1/x"></iframe>`, true},
		{"none", `<form><input type="email"></form>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasVisibleChallenge(tt.html))
		})
	}
}

func TestFallbackReportsOnlyVisibleCaptcha(t *testing.T) {
	form := `<html><body><h1>My Information</h1><label>Email<input type="email"></label>%s<button>Next</button></body></html>`
	badge := `<div class="grecaptcha-badge"><iframe src="https://www.google.com/recaptcha/api2/anchor?size=invisible"></iframe></div>`

	doc := &fakeDoc{url: "https://boards.example/apply", sigErr: errors.New("eval failed"), html: fmt.Sprintf(form, badge)}
	state, err := newClassifier(t, doc, nil).Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.Equal(t, automation.PagePersonalInfo, state.Type)
	assert.False(t, state.HasCaptcha)

	doc.html = fmt.Sprintf(form, `<div class="h-captcha" data-sitekey="x"></div>`)
	state, err = newClassifier(t, doc, nil).Classify(context.Background(), Context{})
	require.NoError(t, err)
	assert.True(t, state.HasCaptcha)
}
