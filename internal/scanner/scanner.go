// Package scanner walks the rendered page viewport by viewport and returns every
// fillable control in document order.
package scanner

import (
	"context"
	"sort"

	"github.com/v0xg/applypilot/internal/dom"
	"go.uber.org/zap"
)

// Kind is the control family of a scanned field
type Kind string

const (
	KindText           Kind = "text"
	KindSelect         Kind = "select"
	KindCustomDropdown Kind = "custom_dropdown"
	KindRadio          Kind = "radio"
	KindARIARadio      Kind = "aria_radio"
	KindCheckbox       Kind = "checkbox"
	KindDate           Kind = "date"
	KindFile           Kind = "file"
	KindUploadButton   Kind = "upload_button"
	KindContentEdit    Kind = "contenteditable"
)

// FillStrategy is how the direct-fill phase writes a kind
type FillStrategy string

const (
	StrategyValue        FillStrategy = "value"
	StrategySelectOption FillStrategy = "select_option"
	StrategyClickOption  FillStrategy = "click_option"
	StrategyClick        FillStrategy = "click"
	StrategyUpload       FillStrategy = "upload"
)

// StrategyFor maps a kind to its fill strategy
func StrategyFor(k Kind) FillStrategy {
	switch k {
	case KindSelect:
		return StrategySelectOption
	case KindRadio, KindARIARadio, KindCustomDropdown:
		return StrategyClickOption
	case KindCheckbox:
		return StrategyClick
	case KindFile, KindUploadButton:
		return StrategyUpload
	}
	return StrategyValue
}

// ScannedField is one fillable control. It belongs to a single Result and is mutated in
// place as fill phases succeed.
type ScannedField struct {
	ID            int
	Kind          Kind
	FillStrategy  FillStrategy
	Selector      string
	Label         string
	CurrentValue  string
	Options       []string
	AbsoluteY     float64
	IsRequired    bool
	MatchedAnswer string
	Filled        bool
}

// HasAnswer reports whether the matcher found an answer for the field
func (f *ScannedField) HasAnswer() bool {
	return f.MatchedAnswer != ""
}

// Result is one full scan of a page, sorted by absolute Y
type Result struct {
	Fields         []*ScannedField
	ScrollHeight   int
	ViewportHeight int
}

// Unfilled returns the fields not yet marked filled
func (r *Result) Unfilled() []*ScannedField {
	var out []*ScannedField
	for _, f := range r.Fields {
		if !f.Filled {
			out = append(out, f)
		}
	}
	return out
}

// FilledCount returns the number of fields marked filled
func (r *Result) FilledCount() int {
	n := 0
	for _, f := range r.Fields {
		if f.Filled {
			n++
		}
	}
	return n
}

// Document is the part of the live document the scanner needs
type Document interface {
	Collect(ctx context.Context) (*dom.Viewport, error)
	ScrollTo(ctx context.Context, y int) (int, error)
}

// Scanner performs full-page scans
type Scanner struct {
	doc          Document
	stepFraction float64
	maxStops     int
	logger       *zap.Logger
}

// New creates a scanner stepping stepFraction of the viewport height per stop
func New(doc Document, stepFraction float64, logger *zap.Logger) *Scanner {
	if stepFraction <= 0 || stepFraction > 1 {
		stepFraction = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		doc:          doc,
		stepFraction: stepFraction,
		maxStops:     60,
		logger:       logger.Named("scanner"),
	}
}

// Scan scrolls from the top to the bottom of the page in overlapping steps and returns
// the merged field list. The page is left scrolled to the top.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if _, err := s.doc.ScrollTo(ctx, 0); err != nil {
		return nil, err
	}

	merged := map[string]dom.RawField{}
	order := map[string]int{}
	var last *dom.Viewport

	y := 0
	for stop := 0; stop < s.maxStops; stop++ {
		vp, err := s.doc.Collect(ctx)
		if err != nil {
			return nil, err
		}
		last = vp

		for _, f := range vp.Fields {
			prev, seen := merged[f.Selector]
			if !seen {
				order[f.Selector] = len(order)
				merged[f.Selector] = f
				continue
			}
			// keep first position and label, refresh the value
			prev.Value = f.Value
			if len(f.Options) > len(prev.Options) {
				prev.Options = f.Options
			}
			merged[f.Selector] = prev
		}

		step := int(float64(vp.ViewportHeight) * s.stepFraction)
		if step < 50 {
			step = 50
		}
		if vp.ScrollY+vp.ViewportHeight >= vp.ScrollHeight {
			break
		}
		y += step
		got, err := s.doc.ScrollTo(ctx, y)
		if err != nil {
			return nil, err
		}
		if got <= vp.ScrollY {
			// the page refused to scroll further
			break
		}
		y = got
	}

	if _, err := s.doc.ScrollTo(ctx, 0); err != nil {
		s.logger.Debug("scroll back to top failed", zap.Error(err))
	}

	res := &Result{Fields: make([]*ScannedField, 0, len(merged))}
	if last != nil {
		res.ScrollHeight = last.ScrollHeight
		res.ViewportHeight = last.ViewportHeight
	}
	for _, f := range merged {
		kind := Kind(f.Kind)
		res.Fields = append(res.Fields, &ScannedField{
			Kind:         kind,
			FillStrategy: StrategyFor(kind),
			Selector:     f.Selector,
			Label:        f.Label,
			CurrentValue: f.Value,
			Options:      f.Options,
			AbsoluteY:    f.AbsY,
			IsRequired:   f.Required,
			Filled:       f.Value != "",
		})
	}
	sort.SliceStable(res.Fields, func(i, j int) bool {
		a, b := res.Fields[i], res.Fields[j]
		if a.AbsoluteY != b.AbsoluteY {
			return a.AbsoluteY < b.AbsoluteY
		}
		return order[a.Selector] < order[b.Selector]
	})
	for i, f := range res.Fields {
		f.ID = i + 1
	}

	s.logger.Debug("scan complete",
		zap.Int("fields", len(res.Fields)),
		zap.Int("filled", res.FilledCount()),
		zap.Int("scroll_height", res.ScrollHeight))
	return res, nil
}
