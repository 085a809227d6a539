package automation

import (
	"context"
	"strings"
	"time"
)

// PageType is the semantic kind of page currently shown in the application flow
type PageType string

const (
	PageJobListing          PageType = "job_listing"
	PageLogin               PageType = "login"
	PageSSOSignIn           PageType = "sso_signin"
	PageVerificationCode    PageType = "verification_code"
	PagePhone2FA            PageType = "phone_2fa"
	PageAccountCreation     PageType = "account_creation"
	PagePersonalInfo        PageType = "personal_info"
	PageExperience          PageType = "experience"
	PageResumeUpload        PageType = "resume_upload"
	PageQuestions           PageType = "questions"
	PageVoluntaryDisclosure PageType = "voluntary_disclosure"
	PageSelfIdentify        PageType = "self_identify"
	PageReview              PageType = "review"
	PageConfirmation        PageType = "confirmation"
	PageError               PageType = "error"
	PageUnknown             PageType = "unknown"
)

// AllPageTypes lists every page type in a stable order
var AllPageTypes = []PageType{
	PageJobListing, PageLogin, PageSSOSignIn, PageVerificationCode, PagePhone2FA,
	PageAccountCreation, PagePersonalInfo, PageExperience, PageResumeUpload, PageQuestions,
	PageVoluntaryDisclosure, PageSelfIdentify, PageReview, PageConfirmation, PageError,
	PageUnknown,
}

// Valid reports whether t is one of the known page types
func (t PageType) Valid() bool {
	for _, known := range AllPageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsFormPage reports whether the page is a generic form page handled by the fill pipeline
func (t PageType) IsFormPage() bool {
	switch t {
	case PagePersonalInfo, PageExperience, PageResumeUpload, PageQuestions,
		PageVoluntaryDisclosure, PageSelfIdentify, PageUnknown:
		return true
	}
	return false
}

// ParsePageType normalizes free text (as returned by a model) into a PageType.
// Unrecognized values map to PageUnknown.
func ParsePageType(s string) PageType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	t := PageType(s)
	if t.Valid() {
		return t
	}
	return PageUnknown
}

// PageState is the classification of the current page. It is produced fresh on every
// loop iteration and never persisted.
type PageState struct {
	Type            PageType `json:"page_type"`
	Title           string   `json:"page_title"`
	HasApplyButton  bool     `json:"has_apply_button"`
	HasNextButton   bool     `json:"has_next_button"`
	HasSubmitButton bool     `json:"has_submit_button"`
	HasSSOButton    bool     `json:"has_sso_button"`
	HasCaptcha      bool     `json:"has_captcha"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// ActOptions tunes a single agent "act" call
type ActOptions struct {
	Timeout    time.Duration
	MaxActions int  // 0 uses the agent default
	Vision     bool // attach a screenshot to the instruction
}

// ActResult is the outcome of an agent "act" call
type ActResult struct {
	Success  bool
	Message  string
	Duration time.Duration
}

// Page is the browser-control surface the core drives
type Page interface {
	CurrentURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JS function expression in the page and decodes its result into out.
	// out may be nil when the result is not needed.
	Evaluate(ctx context.Context, js string, out any, args ...any) error
	SetFiles(ctx context.Context, selector string, paths []string) error
}

// Agent interprets natural-language instructions against the current page
type Agent interface {
	Act(ctx context.Context, instruction string, opts ActOptions) (ActResult, error)
	// Extract reads structured data off the page into out (a pointer to a JSON-taggable value)
	Extract(ctx context.Context, instruction string, out any) error
}

// Budget is the read-only view of the task's cost tracker
type Budget interface {
	RemainingBudget() float64
	TaskBudget() float64
}

// Progress records coarse lifecycle steps for external observers. Implementations must
// not block or fail.
type Progress interface {
	SetStep(step string)
}
