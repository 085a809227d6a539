// Package trail keeps one annotated screenshot per processed page so the reviewer can see
// what was filled, and by which tier, before submitting.
package trail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/v0xg/applypilot/internal/dom"
	"github.com/v0xg/applypilot/internal/fill"
	"github.com/v0xg/applypilot/internal/scanner"
	"go.uber.org/zap"
)

// Camera captures the viewport as an encoded image
type Camera interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Locator resolves selectors to on-screen boxes
type Locator interface {
	Boxes(ctx context.Context, selectors []string) (dom.Boxes, error)
}

// Options configures the trail
type Options struct {
	Dir        string
	MaxWidth   uint
	FrameDelay time.Duration
}

// Frame is one annotated page
type Frame struct {
	Page   string
	Fields int
	Image  image.Image
}

type mark struct {
	selector string
	tier     fill.Tier
}

// Recorder collects fills per page and snapshots the page before it is advanced
type Recorder struct {
	camera  Camera
	locator Locator
	runID   string
	opts    Options
	logger  *zap.Logger

	mu      sync.Mutex
	pending []mark
	frames  []Frame
}

// NewRecorder creates a trail recorder for one run
func NewRecorder(camera Camera, locator Locator, runID string, opts Options, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.FrameDelay <= 0 {
		opts.FrameDelay = 2 * time.Second
	}
	return &Recorder{
		camera:  camera,
		locator: locator,
		runID:   runID,
		opts:    opts,
		logger:  logger.Named("trail"),
	}
}

// FieldFilled remembers a field filled on the current page
func (r *Recorder) FieldFilled(tier fill.Tier, field *scanner.ScannedField) {
	if field == nil || field.Selector == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, mark{selector: field.Selector, tier: tier})
}

// BeforeAdvance captures the page with the fields filled since the last capture outlined.
// Failures are logged; the trail never interrupts a run.
func (r *Recorder) BeforeAdvance(ctx context.Context, pageLabel string) {
	r.mu.Lock()
	marks := r.pending
	r.pending = nil
	r.mu.Unlock()

	data, err := r.camera.Screenshot(ctx)
	if err != nil {
		r.logger.Warn("trail screenshot failed", zap.String("page", pageLabel), zap.Error(err))
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		r.logger.Warn("trail screenshot unreadable", zap.Error(err))
		return
	}

	boxes := r.locate(ctx, img, marks)
	frame := Frame{Page: pageLabel, Fields: len(marks), Image: annotate(img, boxes)}

	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	r.logger.Debug("trail frame", zap.String("page", pageLabel), zap.Int("fields", len(marks)), zap.Int("boxes", len(boxes)))
}

// locate maps marks to image pixels. Screenshots may be taken at a device scale factor
// other than 1, so boxes are scaled by image width over viewport width.
func (r *Recorder) locate(ctx context.Context, img image.Image, marks []mark) []box {
	if len(marks) == 0 || r.locator == nil {
		return nil
	}
	selectors := make([]string, 0, len(marks))
	for _, m := range marks {
		selectors = append(selectors, m.selector)
	}
	found, err := r.locator.Boxes(ctx, selectors)
	if err != nil {
		r.logger.Debug("trail boxes unavailable", zap.Error(err))
		return nil
	}
	scale := 1.0
	if found.ViewportWidth > 0 {
		scale = float64(img.Bounds().Dx()) / float64(found.ViewportWidth)
	}

	origin := img.Bounds().Min
	var out []box
	for _, m := range marks {
		rc, ok := found.Rects[m.selector]
		if !ok {
			continue
		}
		out = append(out, box{
			rect: image.Rect(
				origin.X+int(rc.X*scale), origin.Y+int(rc.Y*scale),
				origin.X+int((rc.X+rc.W)*scale), origin.Y+int((rc.Y+rc.H)*scale),
			),
			tier: m.tier,
		})
	}
	return out
}

// Frames returns the captured frames
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Path is where Write puts the trail
func (r *Recorder) Path() string {
	return filepath.Join(r.opts.Dir, fmt.Sprintf("review-%s.gif", r.runID))
}

// Write encodes the frames as review-<run>.gif. It returns "" when nothing was captured.
func (r *Recorder) Write() (string, int64, error) {
	frames := r.Frames()
	if len(frames) == 0 {
		return "", 0, nil
	}
	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create trail dir: %w", err)
	}
	images := make([]image.Image, len(frames))
	for i, f := range frames {
		images[i] = f.Image
	}
	path := r.Path()
	size, err := encodeGIF(images, path, r.opts.MaxWidth, int(r.opts.FrameDelay/(10*time.Millisecond)))
	if err != nil {
		return "", 0, err
	}
	r.logger.Info("review trail written", zap.String("path", path), zap.Int("frames", len(frames)))
	return path, size, nil
}
