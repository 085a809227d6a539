package matcher

import "strings"

var affirmative = setOf("yes", "y", "true")
var negative = setOf("no", "n", "false")

// BestOption picks the option of a closed-choice field that best expresses answer.
// It returns the option text as displayed, so the caller can select it verbatim.
func BestOption(answer string, options []string) (string, bool) {
	norm := Normalize(answer)
	if norm == "" || len(options) == 0 {
		return "", false
	}

	normalized := make([]string, len(options))
	for i, o := range options {
		normalized[i] = Normalize(o)
	}

	for i, o := range normalized {
		if o == norm {
			return options[i], true
		}
	}

	if affirmative[norm] || negative[norm] {
		want := "yes"
		if negative[norm] {
			want = "no"
		}
		for i, o := range normalized {
			if o == want || strings.HasPrefix(o, want+" ") {
				return options[i], true
			}
		}
	}

	// option contains the answer: "United States" -> "United States of America"
	best := -1
	for i, o := range normalized {
		if strings.Contains(" "+o+" ", " "+norm+" ") && (best < 0 || len(o) < len(normalized[best])) {
			best = i
		}
	}
	if best >= 0 {
		return options[best], true
	}

	// answer contains the option: "Bachelor's degree in CS" -> "Bachelor"
	for i, o := range normalized {
		if len(o) < 2 {
			continue
		}
		if strings.Contains(" "+norm+" ", " "+o+" ") && (best < 0 || len(o) > len(normalized[best])) {
			best = i
		}
	}
	if best >= 0 {
		return options[best], true
	}
	return "", false
}
