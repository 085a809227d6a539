package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/browser"
)

// Surface is the browser session the agent reads and acts on
type Surface interface {
	automation.Page
	Title(ctx context.Context) (string, error)
	Elements(ctx context.Context, max int) ([]browser.Element, error)
	PageText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, option string) error
	Hover(ctx context.Context, selector string) error
	Scroll(ctx context.Context, dy int) error
	PressKey(ctx context.Context, key string) error
	Wait(ctx context.Context, d time.Duration) error
}

const maxActionWait = 3 * time.Second

// execute performs one action. A "done" action is a no-op that reports done=true.
func execute(ctx context.Context, s Surface, action Action) (done bool, err error) {
	switch action.Type {
	case "click":
		err = s.Click(ctx, action.Selector)
	case "type":
		err = s.Type(ctx, action.Selector, action.Text)
	case "select":
		err = s.SelectOption(ctx, action.Selector, action.Text)
	case "hover":
		err = s.Hover(ctx, action.Selector)
	case "scroll":
		dy := action.Y
		if dy == 0 {
			dy = 400
		}
		err = s.Scroll(ctx, dy)
	case "press":
		err = s.PressKey(ctx, action.Key)
	case "wait":
		// the pause itself happens below
	case "done":
		return true, nil
	default:
		return false, fmt.Errorf("unknown action type: %s", action.Type)
	}
	if err != nil {
		return false, err
	}

	if action.Duration > 0 {
		wait := time.Duration(action.Duration) * time.Millisecond
		if wait > maxActionWait {
			wait = maxActionWait
		}
		if err := s.Wait(ctx, wait); err != nil {
			return false, err
		}
	}
	return false, nil
}
