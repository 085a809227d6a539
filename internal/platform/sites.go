package platform

import "github.com/v0xg/applypilot/internal/automation"

func newWorkday() *base {
	b := newGeneric()
	b.name = "workday"
	b.rules = []urlRule{
		{host: "myworkdayjobs.com", fragment: "/login", page: automation.PageLogin},
		{host: "myworkdayjobs.com", fragment: "/createaccount", page: automation.PageAccountCreation},
		{host: "myworkdayjobs.com", fragment: "/verify", page: automation.PageVerificationCode},
	}
	b.hints = "Workday application. Step names map to page types: 'My Information' is " +
		"personal_info, 'My Experience' is experience, 'Application Questions' is questions, " +
		"'Voluntary Disclosures' is voluntary_disclosure, 'Self Identify' is self_identify, " +
		"'Review' is review. A 'Sign In' or 'Create Account' modal over a job posting is login " +
		"or account_creation."
	b.proceedLabels = []string{"save and continue", "next", "continue", "review", "submit"}
	b.validationSelectors = append([]string{
		"[data-automation-id=\"errorBanner\"]",
		"[data-automation-id=\"errorMessage\"]",
		"[data-automation-id=\"inputAlert\"]",
	}, b.validationSelectors...)
	b.dropdownPlaceholders = append(b.dropdownPlaceholders, "select one", "no items.")
	b.dataNotes = "Workday phone fields ask for a device type; use Mobile. " +
		"'How did you hear about us' is a searchable list; pick the closest source."
	return b
}

func newGreenhouse() *base {
	b := newGeneric()
	b.name = "greenhouse"
	b.rules = []urlRule{
		{host: "greenhouse.io", fragment: "/confirmation", page: automation.PageConfirmation},
		{host: "greenhouse.io", fragment: "#app", page: automation.PageQuestions},
	}
	b.hints = "Greenhouse renders the job description and the whole application form on one " +
		"page. If the form is visible the page is questions, even though the posting text is " +
		"also shown."
	b.validationSelectors = append([]string{
		"#error_message", ".field-error-msg", ".helper-text--error",
	}, b.validationSelectors...)
	b.finalSubmitLabels = append(b.finalSubmitLabels, "submit")
	b.dataNotes = "Greenhouse location fields autocomplete; type the city and choose the first suggestion."
	return b
}

func newLever() *base {
	b := newGeneric()
	b.name = "lever"
	b.rules = []urlRule{
		{host: "lever.co", fragment: "/apply", page: automation.PageQuestions},
		{host: "lever.co", fragment: "/thanks", page: automation.PageConfirmation},
	}
	b.hints = "Lever application. The posting page has an 'Apply for this job' button; the " +
		"/apply page holds the full single-page form."
	b.proceedLabels = []string{"next", "continue"}
	b.validationSelectors = append([]string{
		".application-error", ".error-message",
	}, b.validationSelectors...)
	b.finalSubmitLabels = append(b.finalSubmitLabels, "submit")
	b.dataNotes = "Lever asks for a single 'Full name' field."
	return b
}
