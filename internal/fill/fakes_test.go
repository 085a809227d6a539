package fill

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/scanner"
)

type fakeField struct {
	raw     dom.RawField
	value   string
	checked bool
}

func (f *fakeField) current() string {
	if f.raw.Kind == "checkbox" {
		if f.checked {
			return "checked"
		}
		return ""
	}
	return f.value
}

// fakeDoc simulates one page: a set of controls, a proceed button and optional
// validation banners
type fakeDoc struct {
	fields   map[string]*fakeField
	order    []string
	height   int
	viewport int
	scrollY  int
	url      string
	heading  string
	openSel  string

	signals     dom.Signals
	proceed     dom.ProceedResult
	notFound    int // ClickProceed calls that find nothing before proceed applies
	navigates   bool
	autoScroll  bool
	validations []string

	proceedCalls []bool
	attached     map[string][]string
	collects     []int
}

func newFakeDoc(fields ...dom.RawField) *fakeDoc {
	d := &fakeDoc{
		fields:    map[string]*fakeField{},
		height:    700,
		viewport:  800,
		url:       "https://jobs.example/apply/step1",
		heading:   "My Information",
		proceed:   dom.ProceedResult{Found: true, Clicked: true, Label: "next"},
		navigates: true,
		attached:  map[string][]string{},
	}
	for _, f := range fields {
		d.add(f)
	}
	return d
}

func (d *fakeDoc) add(raw dom.RawField) *fakeField {
	f := &fakeField{raw: raw, value: raw.Value}
	d.fields[raw.Selector] = f
	d.order = append(d.order, raw.Selector)
	return f
}

func (d *fakeDoc) filledCount() int {
	n := 0
	for _, f := range d.fields {
		if f.current() != "" {
			n++
		}
	}
	return n
}

func (d *fakeDoc) Collect(context.Context) (*dom.Viewport, error) {
	d.collects = append(d.collects, d.filledCount())
	vp := &dom.Viewport{ScrollY: d.scrollY, ScrollHeight: d.height, ViewportHeight: d.viewport}
	for _, sel := range d.order {
		f := d.fields[sel]
		if f.raw.AbsY < float64(d.scrollY) || f.raw.AbsY > float64(d.scrollY+d.viewport) {
			continue
		}
		raw := f.raw
		raw.Value = f.current()
		vp.Fields = append(vp.Fields, raw)
	}
	return vp, nil
}

func (d *fakeDoc) clamp(y int) int {
	max := d.height - d.viewport
	if y > max {
		y = max
	}
	if y < 0 {
		y = 0
	}
	return y
}

func (d *fakeDoc) ScrollTo(_ context.Context, y int) (int, error) {
	d.scrollY = d.clamp(y)
	return d.scrollY, nil
}

func (d *fakeDoc) ScrollToBottom(ctx context.Context) (int, error) { return d.ScrollTo(ctx, d.height) }
func (d *fakeDoc) ScrollToContentEnd(ctx context.Context) (int, error) {
	return d.ScrollTo(ctx, d.height)
}
func (d *fakeDoc) ScrollIntoView(context.Context, string) error { return nil }
func (d *fakeDoc) Settle(context.Context) error                 { return nil }
func (d *fakeDoc) CurrentURL(context.Context) (string, error)   { return d.url, nil }

func (d *fakeDoc) Signals(context.Context) (dom.Signals, error) {
	s := d.signals
	s.Headings = []string{d.heading}
	s.InteractiveCount = len(d.fields) + 1
	s.ScrollY = d.scrollY
	return s, nil
}

func (d *fakeDoc) SetFiles(_ context.Context, sel string, paths []string) error {
	f, ok := d.fields[sel]
	if !ok {
		return fmt.Errorf("no %s", sel)
	}
	d.attached[sel] = paths
	f.value = paths[0]
	return nil
}

func (d *fakeDoc) SetValue(_ context.Context, sel, value string) (dom.WriteResult, error) {
	f, ok := d.fields[sel]
	if !ok {
		return dom.WriteResult{Reason: "not found"}, nil
	}
	if f.value != "" {
		return dom.WriteResult{Reason: "already filled"}, nil
	}
	f.value = value
	return dom.WriteResult{OK: true}, nil
}

func (d *fakeDoc) choose(sel, option string) (dom.WriteResult, error) {
	f, ok := d.fields[sel]
	if !ok {
		return dom.WriteResult{Reason: "not found"}, nil
	}
	if f.value != "" {
		return dom.WriteResult{Reason: "already selected"}, nil
	}
	for _, o := range f.raw.Options {
		if o == option {
			f.value = option
			return dom.WriteResult{OK: true}, nil
		}
	}
	return dom.WriteResult{Reason: "option not found"}, nil
}

func (d *fakeDoc) SelectOption(_ context.Context, sel, option string) (dom.WriteResult, error) {
	return d.choose(sel, option)
}

func (d *fakeDoc) ClickOption(_ context.Context, sel, option string) (dom.WriteResult, error) {
	return d.choose(sel, option)
}

func (d *fakeDoc) SetChecked(_ context.Context, sel string, checked bool) (dom.WriteResult, error) {
	f, ok := d.fields[sel]
	if !ok {
		return dom.WriteResult{Reason: "not found"}, nil
	}
	if f.checked == checked {
		return dom.WriteResult{Reason: "unchanged"}, nil
	}
	f.checked = checked
	return dom.WriteResult{OK: true}, nil
}

func (d *fakeDoc) OpenDropdown(_ context.Context, sel string) ([]string, error) {
	f, ok := d.fields[sel]
	if !ok {
		return nil, fmt.Errorf("no %s", sel)
	}
	d.openSel = sel
	return f.raw.Options, nil
}

func (d *fakeDoc) PickOption(_ context.Context, option string) (bool, error) {
	if d.openSel == "" {
		return false, nil
	}
	r, _ := d.choose(d.openSel, option)
	d.openSel = ""
	return r.OK, nil
}

func (d *fakeDoc) CloseDropdown(context.Context) error {
	d.openSel = ""
	return nil
}

func (d *fakeDoc) ReadValue(_ context.Context, sel, _ string) (string, error) {
	f, ok := d.fields[sel]
	if !ok {
		return "", fmt.Errorf("no %s", sel)
	}
	return f.current(), nil
}

func (d *fakeDoc) CheckboxStates(_ context.Context, sels []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, s := range sels {
		if f, ok := d.fields[s]; ok {
			out[s] = f.checked
		}
	}
	return out, nil
}

func (d *fakeDoc) ClickProceed(_ context.Context, _, _ []string, refuseSubmit bool) (dom.ProceedResult, error) {
	d.proceedCalls = append(d.proceedCalls, refuseSubmit)
	if d.notFound > 0 {
		d.notFound--
		return dom.ProceedResult{}, nil
	}
	res := d.proceed
	if res.Clicked && d.navigates {
		d.url += "/next"
	}
	if res.Clicked && d.autoScroll {
		d.scrollY = 100
	}
	return res, nil
}

func (d *fakeDoc) ValidationError(context.Context, []string) (string, error) {
	if len(d.validations) == 0 {
		return "", nil
	}
	msg := d.validations[0]
	d.validations = d.validations[1:]
	return msg, nil
}

// fakeAgent fills the field named in a single-field instruction unless told otherwise
type fakeAgent struct {
	mu       sync.Mutex
	doc      *fakeDoc
	calls    int
	fills    bool
	err      error
	onAct    func(instruction string)
	charge   func()
	lastOpts automation.ActOptions
}

func (a *fakeAgent) Act(_ context.Context, instruction string, opts automation.ActOptions) (automation.ActResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.lastOpts = opts
	if a.charge != nil {
		a.charge()
	}
	if a.err != nil {
		return automation.ActResult{}, a.err
	}
	if a.onAct != nil {
		a.onAct(instruction)
		return automation.ActResult{Success: true}, nil
	}
	if !a.fills {
		return automation.ActResult{Success: false, Message: "no actions needed"}, nil
	}
	for sel, f := range a.doc.fields {
		if strings.Contains(instruction, "(selector "+sel+")") && f.current() == "" {
			if f.raw.Kind == "checkbox" {
				f.checked = true
			} else if len(f.raw.Options) > 0 {
				f.value = f.raw.Options[0]
			} else {
				f.value = "agent answer"
			}
		}
	}
	return automation.ActResult{Success: true}, nil
}

func (a *fakeAgent) Extract(context.Context, string, any) error {
	return fmt.Errorf("not supported")
}

type fakeBudget struct {
	remaining float64
}

func (b *fakeBudget) RemainingBudget() float64 { return b.remaining }
func (b *fakeBudget) TaskBudget() float64      { return 1 }

type recorded struct {
	tier  Tier
	label string
}

type fakeRecorder struct {
	fills    []recorded
	advances []string
}

func (r *fakeRecorder) FieldFilled(tier Tier, f *scanner.ScannedField) {
	r.fills = append(r.fills, recorded{tier, f.Label})
}

func (r *fakeRecorder) BeforeAdvance(_ context.Context, label string) {
	r.advances = append(r.advances, label)
}

func (r *fakeRecorder) labels(t Tier) []string {
	var out []string
	for _, f := range r.fills {
		if f.tier == t {
			out = append(out, f.label)
		}
	}
	sort.Strings(out)
	return out
}
