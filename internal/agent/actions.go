package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action represents a single browser action proposed by the model
type Action struct {
	Type     string `json:"action"`             // click, type, select, scroll, hover, press, wait, done
	Selector string `json:"selector,omitempty"` // CSS selector for the target element
	Text     string `json:"text,omitempty"`     // Text to type (type) or option text (select)
	Key      string `json:"key,omitempty"`      // Key name for press
	Y        int    `json:"y,omitempty"`        // Pixels to scroll
	Duration int    `json:"wait,omitempty"`     // Wait duration in ms after action
	Reason   string `json:"reason,omitempty"`
}

func (a Action) String() string {
	switch a.Type {
	case "type", "select":
		return fmt.Sprintf("%s %s %q", a.Type, a.Selector, a.Text)
	case "press":
		return "press " + a.Key
	case "scroll":
		return fmt.Sprintf("scroll %d", a.Y)
	case "done":
		return "done"
	}
	return a.Type + " " + a.Selector
}

// parseActionsJSON extracts and parses a JSON array from a response that may contain surrounding text
func parseActionsJSON(response string) ([]Action, error) {
	// First try direct parsing
	var actions []Action
	if err := json.Unmarshal([]byte(response), &actions); err == nil {
		return actions, nil
	}

	jsonStr, err := extractBalanced(response, '[', ']')
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &actions); err != nil {
		return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return actions, nil
}

// parseObjectJSON decodes the first JSON object of a response into out
func parseObjectJSON(response string, out any) error {
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), out); err == nil {
		return nil
	}
	jsonStr, err := extractBalanced(response, '{', '}')
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return nil
}

// extractBalanced returns the first open...close span with balanced nesting. Brackets
// inside JSON strings are skipped.
func extractBalanced(response string, open, close byte) (string, error) {
	start := strings.IndexByte(response, open)
	if start == -1 {
		return "", fmt.Errorf("no JSON %c found in response", open)
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no matching closing bracket found")
}
