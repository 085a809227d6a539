package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/profile"
)

// urlRule classifies a URL when the host suffix and path fragment both match. Empty
// fields match anything.
type urlRule struct {
	host     string
	fragment string
	page     automation.PageType
}

func (r urlRule) match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if r.host != "" && host != r.host && !strings.HasSuffix(host, "."+r.host) {
		return false
	}
	if r.fragment != "" {
		path := strings.ToLower(u.EscapedPath())
		if u.Fragment != "" {
			path += "#" + strings.ToLower(u.Fragment)
		}
		if !strings.Contains(path, r.fragment) {
			return false
		}
	}
	return true
}

// authRules apply to every platform after its own rules
var authRules = []urlRule{
	{host: "accounts.google.com", fragment: "/challenge", page: automation.PageVerificationCode},
	{host: "accounts.google.com", page: automation.PageSSOSignIn},
	{host: "login.microsoftonline.com", page: automation.PageSSOSignIn},
	{host: "login.live.com", page: automation.PageSSOSignIn},
	{host: "appleid.apple.com", page: automation.PageSSOSignIn},
	{fragment: "/challenge", page: automation.PageVerificationCode},
	{fragment: "/verify", page: automation.PageVerificationCode},
	{fragment: "/mfa", page: automation.PageVerificationCode},
	{fragment: "/2fa", page: automation.PagePhone2FA},
}

// base is the generic platform. Site variants embed it and override what differs.
type base struct {
	name                 string
	rules                []urlRule
	hints                string
	proceedLabels        []string
	finalSubmitLabels    []string
	validationSelectors  []string
	dropdownPlaceholders []string
	dataNotes            string
}

func newGeneric() *base {
	return &base{
		name: Generic,
		proceedLabels: []string{
			"save and continue", "save & continue", "next", "continue", "review", "submit",
		},
		finalSubmitLabels: []string{
			"submit application", "submit your application", "send application",
			"finish and submit", "confirm and submit",
		},
		validationSelectors: []string{
			"[role=\"alert\"]", ".error-message", ".field-error", ".invalid-feedback",
			".form-error", "[aria-live=\"assertive\"]",
		},
		dropdownPlaceholders: []string{
			"select", "select...", "select one", "select an option", "please select",
			"choose", "choose...", "choose one", "--", "none selected",
		},
	}
}

func (b *base) Name() string { return b.name }

func (b *base) ClassifyURL(u *url.URL) (automation.PageType, bool) {
	if u == nil {
		return "", false
	}
	for _, r := range b.rules {
		if r.match(u) {
			return r.page, true
		}
	}
	for _, r := range authRules {
		if r.match(u) {
			return r.page, true
		}
	}
	return "", false
}

func (b *base) ClassificationHints(u *url.URL) string {
	if u == nil {
		return b.hints
	}
	host := u.Hostname()
	if b.hints == "" {
		return "Site: " + host
	}
	return "Site: " + host + ". " + b.hints
}

func (b *base) ProceedLabels() []string            { return b.proceedLabels }
func (b *base) FinalSubmitLabels() []string        { return b.finalSubmitLabels }
func (b *base) ValidationErrorSelectors() []string { return b.validationSelectors }
func (b *base) DropdownPlaceholders() []string     { return b.dropdownPlaceholders }

// FormatApplicantData renders the profile as "Label: value" lines, skipping empty values
func (b *base) FormatApplicantData(p *profile.Profile) string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&sb, "%s: %s\n", label, value)
		}
	}

	line("Full name", p.FullName())
	line("First name", p.Personal.FirstName)
	line("Last name", p.Personal.LastName)
	line("Preferred name", p.Personal.PreferredName)
	line("Email", p.Personal.Email)
	line("Phone", p.Personal.Phone)
	line("Address", p.Personal.Address)
	line("City", p.Personal.City)
	line("State", p.Personal.State)
	line("Zip code", p.Personal.ZipCode)
	line("Country", p.Personal.Country)
	line("LinkedIn", p.Links.LinkedIn)
	line("GitHub", p.Links.GitHub)
	line("Portfolio", p.Links.Portfolio)
	line("Current company", p.Work.CurrentCompany)
	line("Current title", p.Work.CurrentTitle)
	if p.Work.YearsOfExperience > 0 {
		line("Years of experience", strconv.Itoa(p.Work.YearsOfExperience))
	}
	line("Authorized to work", yesNo(p.Work.AuthorizedToWork))
	line("Requires sponsorship", yesNo(p.Work.RequiresSponsorship))
	line("Willing to relocate", yesNo(p.Work.WillingToRelocate))
	line("Salary expectation", p.Work.SalaryExpectation)
	line("Available start date", p.Work.AvailableStartDate)
	line("School", p.Education.School)
	line("Degree", p.Education.Degree)
	line("Major", p.Education.Major)
	line("Gender", p.EEO.Gender)
	line("Ethnicity", p.EEO.Ethnicity)
	line("Veteran status", p.EEO.VeteranStatus)
	line("Disability status", p.EEO.DisabilityStatus)

	if len(p.Answers) > 0 {
		questions := make([]string, 0, len(p.Answers))
		for q := range p.Answers {
			questions = append(questions, q)
		}
		sort.Strings(questions)
		sb.WriteString("\nAdditional answers:\n")
		for _, q := range questions {
			fmt.Fprintf(&sb, "- %s: %s\n", q, p.Answers[q])
		}
	}
	if b.dataNotes != "" {
		sb.WriteString("\nNotes: " + b.dataNotes + "\n")
	}
	return sb.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
