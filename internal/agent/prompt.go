package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/v0xg/applypilot/internal/browser"
)

const actSystemPrompt = `You operate a web browser to fill in a job application for the applicant.

You will receive:
1. The current URL and title
2. The interactive elements currently on the page, each with a CSS selector
3. Applicant data
4. An instruction describing what to do now

Output a JSON array of actions. Each action has:
- "action": one of "click", "type", "select", "scroll", "hover", "press", "wait", "done"
- "selector": CSS selector from the element list (required for click, type, select, hover)
- "text": text to type (type) or the visible option text to choose (select, native <select> only)
- "key": key name for press (Enter, Tab, Escape, ArrowDown, ArrowUp, Space)
- "y": pixels to scroll for scroll (positive is down)
- "wait": milliseconds to wait after the action (optional)

Rules:
- Use only selectors from the provided element list
- Custom dropdowns: click the control, then click the option (the option may need a short wait to render)
- Never click a control that would submit the application
- Never change a field that already holds a correct value
- If the instruction is already satisfied, return [{"action": "done"}]

Respond ONLY with the JSON array, no explanation or markdown.`

const extractSystemPrompt = `You read web pages and answer with structured data.

You will receive the page URL, title, a summary of its controls, its visible text, and an
instruction. Reply with ONE JSON object with exactly the keys of the requested shape.
Respond ONLY with the JSON object, no explanation or markdown.`

// actPage is the page context sent with an act instruction
type actPage struct {
	URL      string            `json:"url"`
	Title    string            `json:"title"`
	Elements []browser.Element `json:"elements"`
}

func buildActPrompt(page actPage, applicantData, instruction string, maxActions int) string {
	pageJSON, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		pageJSON = []byte(fmt.Sprintf(`{"url": %q}`, page.URL))
	}

	var sb strings.Builder
	sb.WriteString("Page:\n")
	sb.Write(pageJSON)
	if applicantData != "" {
		sb.WriteString("\n\nApplicant data:\n")
		sb.WriteString(applicantData)
	}
	fmt.Fprintf(&sb, "\n\nInstruction: %s\n\nUse at most %d actions.", instruction, maxActions)
	return sb.String()
}

func buildExtractPrompt(url, title, controls, text, instruction, shape string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nTitle: %s\n\n", url, title)
	if controls != "" {
		sb.WriteString("Controls:\n")
		sb.WriteString(controls)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Visible text:\n")
	sb.WriteString(text)
	fmt.Fprintf(&sb, "\n\nInstruction: %s\n\nShape:\n%s", instruction, shape)
	return sb.String()
}

// summarizeControls renders buttons and inputs as short lines for extraction prompts
func summarizeControls(elements []browser.Element, limit int) string {
	var sb strings.Builder
	n := 0
	for _, el := range elements {
		if n >= limit {
			break
		}
		if el.Type == "link" {
			continue
		}
		name := el.Text
		if el.Label != "" {
			name = el.Label
		}
		if name == "" {
			name = el.Placeholder
		}
		fmt.Fprintf(&sb, "- %s %q", el.Type, name)
		if el.Value != "" {
			fmt.Fprintf(&sb, " value=%q", el.Value)
		}
		if el.Required {
			sb.WriteString(" required")
		}
		sb.WriteByte('\n')
		n++
	}
	return sb.String()
}

// shapeOf renders the JSON shape of out's type from its zero value
func shapeOf(out any) string {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
