package classifier

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/dom"
)

var (
	reConfirmation = regexp.MustCompile(`(?i)thank you for (applying|your application)|application (has been |was )?(submitted|received)`)
	reApply        = regexp.MustCompile(`(?i)^(apply|apply now|apply for this (job|position|role)|easy apply|start (your )?application)\b`)
	reSubmit       = regexp.MustCompile(`(?i)^submit\b`)
	reNext         = regexp.MustCompile(`(?i)^(next|continue|save and continue|save & continue)\b`)
	reErrorPage    = regexp.MustCompile(`(?i)\b(404|page not found|something went wrong|an error occurred|access denied)\b`)
	rePlaceholder  = regexp.MustCompile(`(?i)^(select|choose|please select)\b`)
	reHiddenStyle  = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)
	reInvisibleSrc = regexp.MustCompile(`(?i)[?&]size=invisible\b`)
)

const (
	dropdownSelector  = `[role=combobox], [aria-haspopup=listbox], [class*=select__control], [data-automation-id=selectWidget]`
	challengeSelector = `iframe[src*=recaptcha], iframe[src*=hcaptcha], iframe[src*="challenges.cloudflare"], .g-recaptcha, .h-captcha, #captcha, [data-sitekey]`
)

// headingRules map heading keywords to form steps, checked in order
var headingRules = []struct {
	re   *regexp.Regexp
	page automation.PageType
}{
	{regexp.MustCompile(`(?i)voluntary|disclosure`), automation.PageVoluntaryDisclosure},
	{regexp.MustCompile(`(?i)self[- ]?identif|disability`), automation.PageSelfIdentify},
	{regexp.MustCompile(`(?i)\bexperience\b|work history|employment`), automation.PageExperience},
	{regexp.MustCompile(`(?i)resume|\bcv\b|upload`), automation.PageResumeUpload},
	{regexp.MustCompile(`(?i)personal|my information|contact (info|details)`), automation.PagePersonalInfo},
	{regexp.MustCompile(`(?i)question|additional information|application questions`), automation.PageQuestions},
	{regexp.MustCompile(`(?i)\breview\b|summary`), automation.PageReview},
}

// classifyHTML is the model-free fallback over a serialized document. sig, when known,
// supplies the visibility-aware counts the HTML alone cannot.
func classifyHTML(html string, sig *dom.Signals) automation.PageType {
	if strings.TrimSpace(html) == "" {
		return automation.PageUnknown
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return automation.PageUnknown
	}

	editable := countEditable(doc)
	if sig != nil {
		editable = sig.LiveEditable
	}

	var hasApply, hasSubmit, hasNext bool
	doc.Find("button, input[type=submit], input[type=button], a[role=button], [role=button], a").Each(func(_ int, s *goquery.Selection) {
		text := controlText(s)
		switch {
		case reApply.MatchString(text):
			hasApply = true
		case reSubmit.MatchString(text):
			hasSubmit = true
		case reNext.MatchString(text):
			hasNext = true
		}
	})

	body := doc.Find("body").Text()
	headings := strings.ToLower(strings.Join(doc.Find("h1, h2, h3, legend").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	}), " | "))

	switch {
	case reConfirmation.MatchString(body) && editable == 0:
		return automation.PageConfirmation
	case hasSubmit && !hasNext && editable == 0:
		return automation.PageReview
	case hasApply && editable == 0:
		return automation.PageJobListing
	case doc.Find("input[type=password]").Length() > 0:
		if doc.Find("input[type=password]").Length() >= 2 {
			return automation.PageAccountCreation
		}
		return automation.PageLogin
	case editable == 0 && reErrorPage.MatchString(headings+" "+doc.Find("title").Text()):
		return automation.PageError
	}

	for _, r := range headingRules {
		if r.page == automation.PageReview && editable > 0 {
			continue
		}
		if r.re.MatchString(headings) {
			return r.page
		}
	}
	if hasApply {
		return automation.PageJobListing
	}
	if editable > 0 {
		return automation.PageQuestions
	}
	return automation.PageUnknown
}

func controlText(s *goquery.Selection) string {
	text := strings.TrimSpace(s.Text())
	if text == "" {
		text, _ = s.Attr("value")
	}
	if text == "" {
		text, _ = s.Attr("aria-label")
	}
	return strings.Join(strings.Fields(text), " ")
}

func usable(s *goquery.Selection) bool {
	_, disabled := s.Attr("disabled")
	_, readonly := s.Attr("readonly")
	hidden, _ := s.Attr("aria-hidden")
	return !disabled && !readonly && hidden != "true"
}

// countEditable counts enabled text-like inputs, textareas and selects
func countEditable(doc *goquery.Document) int {
	n := 0
	doc.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		if !usable(s) {
			return
		}
		if goquery.NodeName(s) == "input" {
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "hidden", "submit", "button", "reset", "image", "file", "checkbox", "radio", "search":
				return
			}
		}
		n++
	})
	return n
}

// hiddenInTree reports an element hidden by itself or an ancestor
func hiddenInTree(s *goquery.Selection) bool {
	hidden := false
	s.Parents().AddSelection(s).EachWithBreak(func(_ int, n *goquery.Selection) bool {
		_, attr := n.Attr("hidden")
		if attr || n.AttrOr("aria-hidden", "") == "true" || reHiddenStyle.MatchString(n.AttrOr("style", "")) {
			hidden = true
			return false
		}
		return true
	})
	return hidden
}

// hasVisibleChallenge reports a CAPTCHA the applicant has to solve. Invisible reCAPTCHA
// badges score in the background and do not count.
func hasVisibleChallenge(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	found := false
	doc.Find(challengeSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch {
		case s.Closest(".grecaptcha-badge").Length() > 0:
		case strings.EqualFold(s.AttrOr("data-size", ""), "invisible"):
		case reInvisibleSrc.MatchString(s.AttrOr("src", "")):
		case hiddenInTree(s):
		default:
			found = true
			return false
		}
		return true
	})
	return found
}

// within reports whether inner is outer or one of its descendants
func within(outer, inner *goquery.Selection) bool {
	return len(inner.Nodes) > 0 && (outer.IsSelection(inner) || outer.Contains(inner.Nodes[0]))
}

// dropdownUnselected reports a custom dropdown that still shows its placeholder
func dropdownUnselected(s *goquery.Selection) bool {
	text := strings.Join(strings.Fields(s.Text()), " ")
	if text == "" && goquery.NodeName(s) == "input" {
		text = strings.TrimSpace(s.AttrOr("value", ""))
	}
	return text == "" || (rePlaceholder.MatchString(text) && len(text) < 30)
}

// countBlockers counts what forbids a review classification: editable text-like inputs,
// selects and custom dropdowns with nothing chosen and unchecked required checkboxes
func countBlockers(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}
	n := 0
	var dropdowns []*goquery.Selection
	inDropdown := func(s *goquery.Selection) bool {
		for _, d := range dropdowns {
			if within(d, s) || within(s, d) {
				return true
			}
		}
		return false
	}
	doc.Find(dropdownSelector).Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "select" || !usable(s) || hiddenInTree(s) || inDropdown(s) {
			return
		}
		dropdowns = append(dropdowns, s)
		if dropdownUnselected(s) {
			n++
		}
	})
	doc.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		if !usable(s) || inDropdown(s) {
			return
		}
		switch goquery.NodeName(s) {
		case "textarea":
			n++
		case "select":
			chosen := s.Find("option[selected]")
			if chosen.Length() == 0 || chosen.AttrOr("value", "") == "" {
				n++
			}
		case "input":
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "text", "email", "tel", "number", "url", "date", "password":
				n++
			case "checkbox":
				_, required := s.Attr("required")
				_, checked := s.Attr("checked")
				if required && !checked {
					n++
				}
			}
		}
	})
	return n
}
