package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetExceeded is returned when a cost-incurring call would exceed the task budget
	ErrBudgetExceeded = errors.New("cost budget exceeded")
	// ErrActionLimit is returned when the agent action ceiling for the run is reached
	ErrActionLimit = errors.New("agent action limit reached")
	// ErrPageUnhealthy means the page is not rendered UI (blank, raw source, crashed tab)
	ErrPageUnhealthy = errors.New("page is not healthy")
)

// ManualInterventionError marks a page a human has to resolve (CAPTCHA, unsupported 2FA,
// account chooser). The run stops and leaves the browser open.
type ManualInterventionError struct {
	Reason string
	URL    string
}

func (e *ManualInterventionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("manual intervention required: %s", e.Reason)
	}
	return fmt.Sprintf("manual intervention required: %s (%s)", e.Reason, e.URL)
}

// NeedsHuman wraps a reason into a ManualInterventionError
func NeedsHuman(reason, url string) error {
	return &ManualInterventionError{Reason: reason, URL: url}
}

// IsManualIntervention reports whether err asks for a human takeover
func IsManualIntervention(err error) bool {
	var mi *ManualInterventionError
	return errors.As(err, &mi)
}

// IsFatal reports whether err must propagate through every layer without retry
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrActionLimit) ||
		IsManualIntervention(err)
}
