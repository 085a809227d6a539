// Package dom is the live document handle: every read or mutation of the page the core
// performs without an agent goes through a Document.
package dom

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
)

// RawField is one control as seen from a single viewport stop
type RawField struct {
	Selector string   `json:"selector"`
	Kind     string   `json:"kind"`
	Label    string   `json:"label"`
	Value    string   `json:"value"`
	Options  []string `json:"options"`
	AbsY     float64  `json:"absY"`
	Required bool     `json:"required"`
}

// Viewport is the result of one collection pass
type Viewport struct {
	Fields         []RawField `json:"fields"`
	ScrollY        int        `json:"scrollY"`
	ScrollHeight   int        `json:"scrollHeight"`
	ViewportHeight int        `json:"viewportHeight"`
}

// Signals is a cheap, whole-page inspection used by the classifier, the advancer and
// the stuck detector
type Signals struct {
	Title             string   `json:"title"`
	Headings          []string `json:"headings"`
	PasswordFields    int      `json:"passwordFields"`
	LiveEditable      int      `json:"liveEditable"`
	ReviewBlockers    int      `json:"reviewBlockers"`
	ConfirmationText  bool     `json:"confirmationText"`
	Captcha           bool     `json:"captcha"`
	ApplyButton       bool     `json:"applyButton"`
	SubmitButton      bool     `json:"submitButton"`
	NextButton        bool     `json:"nextButton"`
	SSOButton         bool     `json:"ssoButton"`
	SignInText        bool     `json:"signInText"`
	CreateAccountText bool     `json:"createAccountText"`
	CodeInput         bool     `json:"codeInput"`
	AccountChooser    bool     `json:"accountChooser"`
	StepIndicator     string   `json:"stepIndicator"`
	InteractiveCount  int      `json:"interactiveCount"`
	TextLength        int      `json:"textLength"`
	ScrollY           int      `json:"scrollY"`
	ScrollHeight      int      `json:"scrollHeight"`
	ViewportHeight    int      `json:"viewportHeight"`
}

// Heading returns the leading visible heading, or the title when there is none
func (s Signals) Heading() string {
	if len(s.Headings) > 0 {
		return s.Headings[0]
	}
	return s.Title
}

// Fingerprint summarizes the page for non-progress detection
func (s Signals) Fingerprint() string {
	return strings.ToLower(strings.TrimSpace(s.Heading())) + "|" +
		strconv.Itoa(s.InteractiveCount) + "|" +
		strings.ToLower(strings.TrimSpace(s.StepIndicator))
}

// ReviewLike reports whether the structure matches a terminal, read-only review page
func (s Signals) ReviewLike() bool {
	return s.ReviewBlockers == 0 && s.SubmitButton
}

// WriteResult reports whether a direct write changed the page
type WriteResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// ProceedResult is the outcome of a proceed-control search
type ProceedResult struct {
	Found    bool   `json:"found"`
	Clicked  bool   `json:"clicked"`
	Terminal bool   `json:"terminal"`
	Label    string `json:"label"`
}

// Rect is an element box in CSS pixels relative to the viewport
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Boxes are the on-screen boxes of a set of selectors
type Boxes struct {
	ViewportWidth int             `json:"width"`
	Rects         map[string]Rect `json:"rects"`
}

// Document wraps the automation page with the in-page procedures
type Document struct {
	page         automation.Page
	placeholders []string
	settle       time.Duration
}

// New creates a document handle. placeholders are the dropdown texts that mean nothing
// has been chosen yet.
func New(page automation.Page, placeholders []string, settle time.Duration) *Document {
	if placeholders == nil {
		placeholders = []string{}
	}
	return &Document{page: page, placeholders: placeholders, settle: settle}
}

// Page returns the underlying automation page
func (d *Document) Page() automation.Page {
	return d.page
}

// CurrentURL returns the page URL
func (d *Document) CurrentURL(ctx context.Context) (string, error) {
	return d.page.CurrentURL(ctx)
}

// Navigate loads url in the page
func (d *Document) Navigate(ctx context.Context, url string) error {
	return d.page.Navigate(ctx, url)
}

// SetFiles attaches local files to a file input
func (d *Document) SetFiles(ctx context.Context, selector string, paths []string) error {
	return d.page.SetFiles(ctx, selector, paths)
}

// Collect gathers the fillable controls visible in the current viewport
func (d *Document) Collect(ctx context.Context) (*Viewport, error) {
	var vp Viewport
	if err := d.page.Evaluate(ctx, collectJS, &vp, d.placeholders); err != nil {
		return nil, fmt.Errorf("collect fields: %w", err)
	}
	return &vp, nil
}

// Signals inspects the whole page once. The placeholders decide whether a dropdown still
// needs a choice.
func (d *Document) Signals(ctx context.Context) (Signals, error) {
	var s Signals
	if err := d.page.Evaluate(ctx, signalsJS, &s, d.placeholders); err != nil {
		return Signals{}, fmt.Errorf("page signals: %w", err)
	}
	return s, nil
}

// Fingerprint returns the heading/control-count/step summary of the page
func (d *Document) Fingerprint(ctx context.Context) (string, error) {
	s, err := d.Signals(ctx)
	if err != nil {
		return "", err
	}
	return s.Fingerprint(), nil
}

// SetValue assigns value to an empty text-like control with native input events
func (d *Document) SetValue(ctx context.Context, selector, value string) (WriteResult, error) {
	return d.write(ctx, setValueJS, selector, value)
}

// SelectOption chooses the option with the given text on a native select that has
// nothing chosen
func (d *Document) SelectOption(ctx context.Context, selector, option string) (WriteResult, error) {
	return d.write(ctx, selectOptionJS, selector, option, d.placeholders)
}

// ClickOption clicks the radio labelled option in an unanswered radio group
func (d *Document) ClickOption(ctx context.Context, selector, option string) (WriteResult, error) {
	return d.write(ctx, clickOptionJS, selector, option)
}

// SetChecked clicks a checkbox when its state differs from checked
func (d *Document) SetChecked(ctx context.Context, selector string, checked bool) (WriteResult, error) {
	return d.write(ctx, setCheckedJS, selector, checked)
}

func (d *Document) write(ctx context.Context, js string, args ...any) (WriteResult, error) {
	var res WriteResult
	if err := d.page.Evaluate(ctx, js, &res, args...); err != nil {
		return WriteResult{}, err
	}
	return res, nil
}

// OpenDropdown clicks a custom dropdown and returns the options it exposes
func (d *Document) OpenDropdown(ctx context.Context, selector string) ([]string, error) {
	var opened bool
	if err := d.page.Evaluate(ctx, openDropdownJS, &opened, selector); err != nil {
		return nil, fmt.Errorf("open dropdown: %w", err)
	}
	if !opened {
		return nil, fmt.Errorf("dropdown %s not found", selector)
	}
	if err := sleep(ctx, d.settle); err != nil {
		return nil, err
	}
	var options []string
	if err := d.page.Evaluate(ctx, listOptionsJS, &options); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return options, nil
}

// PickOption clicks the visible dropdown option with the given text
func (d *Document) PickOption(ctx context.Context, option string) (bool, error) {
	var ok bool
	if err := d.page.Evaluate(ctx, pickOptionJS, &ok, option); err != nil {
		return false, fmt.Errorf("pick option: %w", err)
	}
	return ok, nil
}

// CloseDropdown dismisses an open popup
func (d *Document) CloseDropdown(ctx context.Context) error {
	return d.page.Evaluate(ctx, closeDropdownJS, nil)
}

// ReadValue returns the current value of a field as the scanner would record it
func (d *Document) ReadValue(ctx context.Context, selector, kind string) (string, error) {
	var v string
	if err := d.page.Evaluate(ctx, readValueJS, &v, selector, kind, d.placeholders); err != nil {
		return "", fmt.Errorf("read value: %w", err)
	}
	return v, nil
}

// CheckboxStates snapshots the checked state of the given checkboxes
func (d *Document) CheckboxStates(ctx context.Context, selectors []string) (map[string]bool, error) {
	states := map[string]bool{}
	if len(selectors) == 0 {
		return states, nil
	}
	if err := d.page.Evaluate(ctx, checkboxStatesJS, &states, selectors); err != nil {
		return nil, fmt.Errorf("checkbox states: %w", err)
	}
	return states, nil
}

// ClickProceed clicks the first visible control matching labels in priority order.
// A control matching finalLabels is never clicked; neither is a plain "submit" when
// refuseSubmit is set. Both report Terminal instead.
func (d *Document) ClickProceed(ctx context.Context, labels, finalLabels []string, refuseSubmit bool) (ProceedResult, error) {
	var res ProceedResult
	if finalLabels == nil {
		finalLabels = []string{}
	}
	if err := d.page.Evaluate(ctx, clickProceedJS, &res, labels, finalLabels, refuseSubmit); err != nil {
		return ProceedResult{}, fmt.Errorf("click proceed: %w", err)
	}
	return res, nil
}

// ClickByText clicks the first visible control whose text matches one of the
// case-insensitive patterns, tried in order. It returns the clicked text.
func (d *Document) ClickByText(ctx context.Context, patterns ...string) (string, error) {
	var text string
	if err := d.page.Evaluate(ctx, clickByTextJS, &text, patterns); err != nil {
		return "", fmt.Errorf("click by text: %w", err)
	}
	return text, nil
}

// ValidationError returns the first visible site-reported validation message
func (d *Document) ValidationError(ctx context.Context, selectors []string) (string, error) {
	var msg string
	if selectors == nil {
		selectors = []string{}
	}
	if err := d.page.Evaluate(ctx, validationErrorJS, &msg, selectors); err != nil {
		return "", fmt.Errorf("validation check: %w", err)
	}
	return msg, nil
}

// ScrollTo scrolls the window to y and returns the resulting offset
func (d *Document) ScrollTo(ctx context.Context, y int) (int, error) {
	var got int
	if err := d.page.Evaluate(ctx, scrollToJS, &got, y); err != nil {
		return 0, fmt.Errorf("scroll: %w", err)
	}
	return got, nil
}

// ScrollToBottom scrolls to the end of the document
func (d *Document) ScrollToBottom(ctx context.Context) (int, error) {
	return d.ScrollTo(ctx, 1<<30)
}

// ScrollToContentEnd scrolls so the last real control sits near the bottom of the viewport
func (d *Document) ScrollToContentEnd(ctx context.Context) (int, error) {
	var got int
	if err := d.page.Evaluate(ctx, scrollToContentEndJS, &got); err != nil {
		return 0, fmt.Errorf("scroll to content end: %w", err)
	}
	return got, nil
}

// ScrollIntoView centers the element in the viewport
func (d *Document) ScrollIntoView(ctx context.Context, selector string) error {
	var ok bool
	if err := d.page.Evaluate(ctx, scrollIntoViewJS, &ok, selector); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	if !ok {
		return fmt.Errorf("element %s not found", selector)
	}
	return nil
}

// HTML returns a snapshot of the serialized document
func (d *Document) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.page.Evaluate(ctx, htmlJS, &html); err != nil {
		return "", fmt.Errorf("html snapshot: %w", err)
	}
	return html, nil
}

// Boxes returns the viewport boxes of the selectors currently on screen
func (d *Document) Boxes(ctx context.Context, selectors []string) (Boxes, error) {
	var out Boxes
	if len(selectors) == 0 {
		return out, nil
	}
	if err := d.page.Evaluate(ctx, boxesJS, &out, selectors); err != nil {
		return Boxes{}, fmt.Errorf("element boxes: %w", err)
	}
	return out, nil
}

// Settle waits the configured settle delay
func (d *Document) Settle(ctx context.Context) error {
	return sleep(ctx, d.settle)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
