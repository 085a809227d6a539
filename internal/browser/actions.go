package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Click scrolls the element into view and clicks it
func (b *Browser) Click(ctx context.Context, selector string) error {
	el, err := b.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Type replaces the content of an input with text
func (b *Browser) Type(ctx context.Context, selector, text string) error {
	el, err := b.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		// not every typeable element supports selection; typing still works
		b.logger.Debug("select all text failed", zap.String("selector", selector), zap.Error(err))
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

// SelectOption picks the option of a native select whose text matches option
func (b *Browser) SelectOption(ctx context.Context, selector, option string) error {
	el, err := b.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{option}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select %q in %s: %w", option, selector, err)
	}
	return nil
}

// Hover moves the mouse over the element
func (b *Browser) Hover(ctx context.Context, selector string) error {
	el, err := b.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Hover(); err != nil {
		return fmt.Errorf("hover %s: %w", selector, err)
	}
	return nil
}

// Scroll scrolls the page by dy pixels with the mouse wheel
func (b *Browser) Scroll(ctx context.Context, dy int) error {
	if err := b.page.Context(ctx).Mouse.Scroll(0, float64(dy), 5); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// PressKey sends a named key (Enter, Tab, Escape, ArrowDown, ArrowUp, Space)
func (b *Browser) PressKey(ctx context.Context, name string) error {
	key, ok := namedKeys[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unsupported key %q", name)
	}
	if err := b.page.Context(ctx).Keyboard.Type(key); err != nil {
		return fmt.Errorf("press %s: %w", name, err)
	}
	return nil
}

// Wait pauses for d or until ctx is done
func (b *Browser) Wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var namedKeys = map[string]input.Key{
	"enter":     input.Enter,
	"tab":       input.Tab,
	"escape":    input.Escape,
	"esc":       input.Escape,
	"arrowdown": input.ArrowDown,
	"arrowup":   input.ArrowUp,
	"space":     input.Space,
	"backspace": input.Backspace,
}

// ElementCenter returns the viewport center of the element matched by selector
func (b *Browser) ElementCenter(ctx context.Context, selector string) (x, y int, err error) {
	el, err := b.find(ctx, selector)
	if err != nil {
		return 0, 0, err
	}
	box, err := el.Shape()
	if err != nil {
		return 0, 0, err
	}
	if len(box.Quads) == 0 {
		return 0, 0, fmt.Errorf("element has no shape: %s", selector)
	}
	x, y = quadCenter(box.Quads[0])
	return x, y, nil
}

func quadCenter(quad proto.DOMQuad) (int, int) {
	if len(quad) < 8 {
		return 0, 0
	}
	return int((quad[0] + quad[2] + quad[4] + quad[6]) / 4), int((quad[1] + quad[3] + quad[5] + quad[7]) / 4)
}
