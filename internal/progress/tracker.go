// Package progress records coarse lifecycle steps of an application run.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Step is one recorded lifecycle step
type Step struct {
	Name string
	At   time.Time
}

// Tracker logs steps and keeps their history. SetStep never blocks the caller: the
// optional callback runs on the caller's goroutine but panics inside it are swallowed.
type Tracker struct {
	mu      sync.Mutex
	steps   []Step
	logger  *zap.Logger
	onStep  func(string)
	nowFunc func() time.Time
}

// NewTracker creates a progress tracker. onStep may be nil.
func NewTracker(logger *zap.Logger, onStep func(string)) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:  logger.Named("progress"),
		onStep:  onStep,
		nowFunc: time.Now,
	}
}

// SetStep records a step. Repeating the current step is a no-op.
func (t *Tracker) SetStep(step string) {
	t.mu.Lock()
	if n := len(t.steps); n > 0 && t.steps[n-1].Name == step {
		t.mu.Unlock()
		return
	}
	t.steps = append(t.steps, Step{Name: step, At: t.nowFunc()})
	t.mu.Unlock()

	t.logger.Info("step", zap.String("step", step))
	if t.onStep != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Warn("progress callback panicked", zap.Any("panic", r))
				}
			}()
			t.onStep(step)
		}()
	}
}

// Steps returns a copy of the recorded history
func (t *Tracker) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Current returns the latest step, or "" before the first one
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.steps) == 0 {
		return ""
	}
	return t.steps[len(t.steps)-1].Name
}
