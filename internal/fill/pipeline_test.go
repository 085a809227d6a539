package fill

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/matcher"
	"github.com/v0xg/applypilot/internal/scanner"
	"pgregory.net/rapid"
)

func newTestPipeline(t require.TestingT, doc *fakeDoc, agents Agents, budget automation.Budget, opts Options) (*Pipeline, *fakeRecorder) {
	if opts.NavigationGrace == 0 {
		opts.NavigationGrace = 10 * time.Millisecond
	}
	rec := &fakeRecorder{}
	p, err := New(opts, Deps{
		Document: doc,
		Scanner:  scanner.New(doc, 0.7, nil),
		Agents:   agents,
		Budget:   budget,
		Recorder: rec,
	})
	require.NoError(t, err)
	p.pollInterval = time.Millisecond
	return p, rec
}

func qaOf(pairs ...string) matcher.QAMap {
	qa := matcher.QAMap{}
	for i := 0; i+1 < len(pairs); i += 2 {
		qa.Set(pairs[i], pairs[i+1])
	}
	return qa
}

func TestFillPageDirectOnly(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#first", Kind: "text", Label: "First Name *", AbsY: 100, Required: true},
		dom.RawField{Selector: "#last", Kind: "text", Label: "Last Name", AbsY: 150},
		dom.RawField{Selector: "#country", Kind: "select", Label: "Country", Options: []string{"United States", "Canada"}, AbsY: 200},
		dom.RawField{Selector: "#sponsor", Kind: "radio", Label: "Will you require visa sponsorship?", Options: []string{"Yes", "No"}, AbsY: 250},
		dom.RawField{Selector: "#terms", Kind: "checkbox", Label: "I agree to the terms", AbsY: 300, Required: true},
		dom.RawField{Selector: "#resume", Kind: "file", Label: "Resume/CV", AbsY: 350},
	)
	primary := &fakeAgent{doc: doc, fills: true}
	p, rec := newTestPipeline(t, doc, Agents{Primary: primary}, nil, Options{ResumePath: "/tmp/resume.pdf"})

	qa := qaOf(
		"First Name", "Ada",
		"Last Name", "Lovelace",
		"Country", "United States",
		"Will you require visa sponsorship?", "No",
		"I agree to the terms", "Yes",
	)
	rep, err := p.FillPage(context.Background(), "personal_info", qa)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNavigated, rep.Outcome)
	assert.Equal(t, 6, rep.DOMFilled)
	assert.Zero(t, rep.LLMFilled)
	assert.Zero(t, rep.AgentFilled)
	assert.Equal(t, 6, rep.TotalFields)
	assert.Zero(t, primary.calls)

	assert.Equal(t, "Ada", doc.fields["#first"].value)
	assert.Equal(t, "No", doc.fields["#sponsor"].value)
	assert.True(t, doc.fields["#terms"].checked)
	assert.Equal(t, []string{"/tmp/resume.pdf"}, doc.attached["#resume"])
	assert.Equal(t, []string{"personal_info"}, rec.advances)
}

func TestFillPageNeverOverwrites(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#email", Kind: "text", Label: "Email", Value: "keep@example.com", AbsY: 100},
	)
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}}, nil, Options{})

	rep, err := p.FillPage(context.Background(), "personal_info", qaOf("Email", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "keep@example.com", doc.fields["#email"].value)
	assert.Zero(t, rep.Filled())
}

func TestPerFieldModeUsesCheapAgent(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#first", Kind: "text", Label: "First Name", AbsY: 100},
		dom.RawField{Selector: "#why", Kind: "text", Label: "Why do you want to join us?", AbsY: 200, Required: true},
		dom.RawField{Selector: "#blog", Kind: "text", Label: "Personal blog", AbsY: 300},
	)
	primary := &fakeAgent{doc: doc, fills: true}
	cheap := &fakeAgent{doc: doc, fills: true}
	p, rec := newTestPipeline(t, doc, Agents{Primary: primary, Cheap: cheap}, nil, Options{})

	rep, err := p.FillPage(context.Background(), "questions", qaOf("First Name", "Ada"))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.DOMFilled)
	assert.Equal(t, 1, rep.LLMFilled)
	assert.Equal(t, 1, cheap.calls)
	assert.Equal(t, 1, cheap.lastOpts.MaxActions)
	assert.Zero(t, primary.calls)
	assert.Empty(t, doc.fields["#blog"].value, "optional unmatched fields are left alone")
	assert.Equal(t, []string{"Why do you want to join us?"}, rec.labels(TierLLM))
}

func TestPerFieldNoopsDeferToEscalation(t *testing.T) {
	doc := newFakeDoc()
	for i, label := range []string{"Alpha essay", "Bravo essay", "Charlie essay", "Delta essay"} {
		doc.add(dom.RawField{Selector: fmt.Sprintf("#q%d", i), Kind: "text", Label: label, AbsY: float64(100 * (i + 1)), Required: true})
	}
	cheap := &fakeAgent{doc: doc}
	escalation := &fakeAgent{doc: doc, fills: true}
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}, Cheap: cheap, Escalation: escalation}, nil, Options{})

	rep, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)

	assert.Equal(t, 3, cheap.calls, "three consecutive no-ops end the per-field phase")
	assert.Equal(t, 4, escalation.calls)
	assert.True(t, escalation.lastOpts.Vision)
	assert.Equal(t, 4, rep.AgentFilled)
	assert.Equal(t, OutcomeNavigated, rep.Outcome)
}

func TestEscalationDisabledOnceBudgetBelowMinimum(t *testing.T) {
	doc := newFakeDoc()
	for i := 0; i < 5; i++ {
		doc.add(dom.RawField{Selector: fmt.Sprintf("#q%d", i), Kind: "text", Label: fmt.Sprintf("Essay %c", 'A'+i), AbsY: float64(100 * (i + 1)), Required: true})
	}
	budget := &fakeBudget{remaining: 0.10}
	escalation := &fakeAgent{doc: doc, onAct: func(string) { budget.remaining -= 0.03 }}
	p, _ := newTestPipeline(t, doc,
		Agents{Primary: &fakeAgent{doc: doc}, Escalation: escalation},
		budget,
		Options{EscalationSoftCap: 1, MinRemainingBudget: 0.05})

	_, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, 2, escalation.calls)
	assert.True(t, p.EscalationDisabled())

	// the switch is run-scoped: later pages never reach the escalation tier
	budget.remaining = 1
	_, err = p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, 2, escalation.calls)
}

func TestEscalationSoftCap(t *testing.T) {
	doc := newFakeDoc()
	for i := 0; i < 4; i++ {
		doc.add(dom.RawField{Selector: fmt.Sprintf("#q%d", i), Kind: "text", Label: fmt.Sprintf("Essay %c", 'A'+i), AbsY: float64(100 * (i + 1)), Required: true})
	}
	budget := &fakeBudget{remaining: 1}
	escalation := &fakeAgent{doc: doc, onAct: func(string) { budget.remaining -= 0.2 }}
	p, _ := newTestPipeline(t, doc,
		Agents{Primary: &fakeAgent{doc: doc}, Escalation: escalation},
		budget,
		Options{EscalationSoftCap: 0.25, MinRemainingBudget: 0.05})

	_, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, 2, escalation.calls)
	assert.False(t, p.EscalationDisabled())
}

func TestEscalationSoftCapHoldsAcrossCycles(t *testing.T) {
	doc := newFakeDoc()
	for i := 0; i < 4; i++ {
		doc.add(dom.RawField{Selector: fmt.Sprintf("#q%d", i), Kind: "text", Label: fmt.Sprintf("Essay %c", 'A'+i), AbsY: float64(100 * (i + 1)), Required: true})
	}
	budget := &fakeBudget{remaining: 1}
	escalation := &fakeAgent{doc: doc, fills: true, charge: func() { budget.remaining -= 0.2 }}
	p, _ := newTestPipeline(t, doc,
		Agents{Primary: &fakeAgent{doc: doc}, Escalation: escalation},
		budget,
		Options{EscalationSoftCap: 0.25, MinRemainingBudget: 0.05})

	rep, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)

	// every call fills, so the cycles keep going; the cap still counts the whole page
	assert.Equal(t, 2, escalation.calls)
	assert.Equal(t, 2, rep.AgentFilled)
	assert.InDelta(t, 0.6, budget.remaining, 1e-9)
	assert.False(t, p.EscalationDisabled())
}

func TestBudgetExhaustionIsFatal(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#why", Kind: "text", Label: "Why us?", AbsY: 100, Required: true},
	)
	primary := &fakeAgent{doc: doc, err: fmt.Errorf("charge: %w", automation.ErrBudgetExceeded)}
	p, _ := newTestPipeline(t, doc, Agents{Primary: primary}, nil, Options{})

	_, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrBudgetExceeded)
	assert.Empty(t, doc.proceedCalls, "no navigation after a fatal error")
}

func TestBatchModeRestoresUncheckedBoxes(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#terms", Kind: "checkbox", Label: "I agree", AbsY: 100},
		dom.RawField{Selector: "#city", Kind: "text", Label: "City of residence", AbsY: 200, Required: true},
	)
	doc.fields["#terms"].checked = true
	primary := &fakeAgent{doc: doc, onAct: func(string) {
		doc.fields["#terms"].checked = false
		doc.fields["#city"].value = "London"
	}}
	p, _ := newTestPipeline(t, doc, Agents{Primary: primary}, nil, Options{})

	rep, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.True(t, doc.fields["#terms"].checked)
	assert.Equal(t, 1, rep.LLMFilled)
	assert.Equal(t, 1, primary.calls)
}

func TestAdvanceRefusesSubmitOnReviewPage(t *testing.T) {
	doc := newFakeDoc()
	doc.signals = dom.Signals{SubmitButton: true}
	doc.proceed = dom.ProceedResult{Found: true, Terminal: true, Label: "submit"}
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}}, nil, Options{})

	rep, err := p.FillPage(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, rep.Outcome)
	assert.Equal(t, []bool{true}, doc.proceedCalls)
}

func TestAdvanceRefillsOnValidationError(t *testing.T) {
	doc := newFakeDoc(
		dom.RawField{Selector: "#first", Kind: "text", Label: "First Name", AbsY: 100},
	)
	doc.validations = []string{"Please complete all required fields", "Still missing"}
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}}, nil, Options{MaxRefillDepth: 1})

	rep, err := p.FillPage(context.Background(), "personal_info", qaOf("First Name", "Ada"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, rep.Outcome)
	assert.Len(t, doc.proceedCalls, 2)
	assert.Equal(t, 1, rep.DOMFilled)
}

func TestAdvanceRefillsWhenPageOnlyScrolled(t *testing.T) {
	doc := newFakeDoc()
	doc.height = 2000
	doc.navigates = false
	doc.autoScroll = true
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}}, nil, Options{MaxRefillDepth: 1})

	rep, err := p.Advance(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, rep.Outcome)
	assert.Len(t, doc.proceedCalls, 2)
}

func TestAdvanceRetriesOnceAfterScrollingToContentEnd(t *testing.T) {
	doc := newFakeDoc()
	doc.notFound = 1
	p, _ := newTestPipeline(t, doc, Agents{Primary: &fakeAgent{doc: doc}}, nil, Options{})

	rep, err := p.Advance(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNavigated, rep.Outcome)

	doc.notFound = 2
	rep, err = p.Advance(context.Background(), "questions", matcher.QAMap{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, rep.Outcome)
	assert.Len(t, doc.proceedCalls, 4)
}

func TestFilledCountIsMonotonicProperty(t *testing.T) {
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot"}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, len(names)).Draw(t, "fields")
		doc := newFakeDoc()
		qa := matcher.QAMap{}
		var sels []string
		for i := 0; i < n; i++ {
			kind := "text"
			if rapid.Bool().Draw(t, "checkbox") {
				kind = "checkbox"
			}
			label := names[i] + " question"
			sel := fmt.Sprintf("#f%d", i)
			f := doc.add(dom.RawField{Selector: sel, Kind: kind, Label: label, AbsY: float64(60 * i), Required: rapid.Bool().Draw(t, "required")})
			if rapid.Bool().Draw(t, "prefilled") {
				f.value, f.checked = "prefilled", true
			}
			if rapid.Bool().Draw(t, "answered") {
				qa.Set(label, "Yes")
			}
			sels = append(sels, sel)
		}

		script := rapid.SliceOfN(rapid.IntRange(-n, n), 0, 20).Draw(t, "agent")
		act := func(instruction string) {
			if len(script) == 0 {
				return
			}
			k := script[0]
			script = script[1:]
			switch {
			case k > 0:
				f := doc.fields[sels[k-1]]
				if f.current() == "" {
					f.value, f.checked = "agent", true
				}
			case k < 0 && strings.HasPrefix(instruction, "Fill these form fields"):
				doc.fields[sels[-k-1]].checked = false
			}
		}
		agent := &fakeAgent{doc: doc, onAct: act}
		p, _ := newTestPipeline(t, doc, Agents{Primary: agent, Escalation: agent}, nil, Options{CleanupAgentCalls: 2})

		_, err := p.FillPage(context.Background(), "questions", qa)
		if err != nil {
			t.Fatalf("fill: %v", err)
		}
		for i := 1; i < len(doc.collects); i++ {
			if doc.collects[i] < doc.collects[i-1] {
				t.Fatalf("filled count dropped between cycles: %v", doc.collects)
			}
		}
	})
}
