// Package platform holds the per-site knobs the orchestrator is generic over: URL rules,
// classification hints, proceed-button priority, validation-error markup and how applicant
// data is phrased for the agent.
package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/v0xg/applypilot/internal/automation"
	"github.com/v0xg/applypilot/internal/profile"
)

// Platform is one supported application site
type Platform interface {
	Name() string
	// ClassifyURL returns a page type when the URL alone is conclusive
	ClassifyURL(u *url.URL) (automation.PageType, bool)
	// ClassificationHints is extra context for agent classification of u
	ClassificationHints(u *url.URL) string
	// FormatApplicantData renders the profile as the agent should see it
	FormatApplicantData(p *profile.Profile) string
	// ProceedLabels lists proceed-control texts in priority order
	ProceedLabels() []string
	// FinalSubmitLabels are control texts that would submit the application. They are
	// never clicked.
	FinalSubmitLabels() []string
	ValidationErrorSelectors() []string
	DropdownPlaceholders() []string
}

// Generic is the id of the default platform
const Generic = "generic"

var registry = map[string]func() Platform{
	Generic:      func() Platform { return newGeneric() },
	"workday":    func() Platform { return newWorkday() },
	"greenhouse": func() Platform { return newGreenhouse() },
	"lever":      func() Platform { return newLever() },
}

// hostRules map hostname suffixes to platform ids
var hostRules = []struct {
	suffix string
	id     string
}{
	{"myworkdayjobs.com", "workday"},
	{"myworkdaysite.com", "workday"},
	{"workday.com", "workday"},
	{"greenhouse.io", "greenhouse"},
	{"lever.co", "lever"},
}

// Resolve returns the platform registered under id. An empty id resolves to the generic
// platform.
func Resolve(id string) (Platform, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = Generic
	}
	ctor, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q (known: %s)", id, strings.Join(IDs(), ", "))
	}
	return ctor(), nil
}

// Detect maps a job URL to a platform id, falling back to generic
func Detect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Generic
	}
	host := strings.ToLower(u.Hostname())
	for _, r := range hostRules {
		if host == r.suffix || strings.HasSuffix(host, "."+r.suffix) {
			return r.id
		}
	}
	return Generic
}

// IDs lists the registered platform ids
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
