package fill

import (
	"fmt"
	"strings"

	"github.com/v0xg/applypilot/internal/scanner"
)

var kindNames = map[scanner.Kind]string{
	scanner.KindText:           "text field",
	scanner.KindSelect:         "dropdown",
	scanner.KindCustomDropdown: "dropdown (click it to open, then click the option)",
	scanner.KindRadio:          "radio button question",
	scanner.KindARIARadio:      "radio button question",
	scanner.KindCheckbox:       "checkbox",
	scanner.KindDate:           "date field",
	scanner.KindContentEdit:    "text area",
}

func describe(f *scanner.ScannedField) string {
	name, ok := kindNames[f.Kind]
	if !ok {
		name = "field"
	}
	return fmt.Sprintf("the %s labelled %q (selector %s)", name, strings.TrimSpace(f.Label), f.Selector)
}

func target(f *scanner.ScannedField) string {
	if f.HasAnswer() {
		if f.Kind == scanner.KindCheckbox {
			if truthy(f.MatchedAnswer) {
				return "make sure it is checked"
			}
			return "leave it unchecked"
		}
		return fmt.Sprintf("set it to %q", f.MatchedAnswer)
	}
	return "this field is required: use your best judgment from the applicant data and choose the most reasonable answer for a job applicant"
}

func options(f *scanner.ScannedField) string {
	if len(f.Options) == 0 {
		return ""
	}
	opts := f.Options
	if len(opts) > 25 {
		opts = opts[:25]
	}
	return fmt.Sprintf(" Available options: %s.", strings.Join(opts, " | "))
}

// fieldInstruction is the focused single-field prompt
func fieldInstruction(f *scanner.ScannedField) string {
	return fmt.Sprintf("Fill %s: %s.%s Only touch this field. Do not click next, continue or submit.",
		describe(f), target(f), options(f))
}

// batchInstruction bundles every field visible at one viewport stop
func batchInstruction(fields []*scanner.ScannedField) string {
	var b strings.Builder
	b.WriteString("Fill these form fields that are visible on screen:\n")
	for i, f := range fields {
		fmt.Fprintf(&b, "%d. %s: %s.%s\n", i+1, describe(f), target(f), options(f))
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Never skip a required field.\n")
	b.WriteString("- Make exactly one attempt per field; if it fails, move on.\n")
	b.WriteString("- Do not scroll, do not uncheck anything that is already checked.\n")
	b.WriteString("- Do not click next, continue, review or submit.\n")
	return b.String()
}

func uploadInstruction(f *scanner.ScannedField) string {
	return fmt.Sprintf("Click the %q button (selector %s) once to open the file picker for the resume upload. Do nothing else.",
		strings.TrimSpace(f.Label), f.Selector)
}
