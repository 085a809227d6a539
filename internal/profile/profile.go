// Package profile loads the applicant profile and derives the question-answer map from it.
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the applicant data used to answer application forms
type Profile struct {
	Personal    Personal          `yaml:"personal"`
	Links       Links             `yaml:"links"`
	Work        Work              `yaml:"work"`
	Education   Education         `yaml:"education"`
	EEO         EEO               `yaml:"eeo"`
	Answers     map[string]string `yaml:"answers"`
	Account     Account           `yaml:"account"`
	Resume      string            `yaml:"resume"`
	CoverLetter string            `yaml:"cover_letter"`
}

// Personal holds contact details
type Personal struct {
	FirstName     string `yaml:"first_name"`
	LastName      string `yaml:"last_name"`
	PreferredName string `yaml:"preferred_name"`
	Pronouns      string `yaml:"pronouns"`
	Email         string `yaml:"email"`
	Phone         string `yaml:"phone"`
	Address       string `yaml:"address"`
	City          string `yaml:"city"`
	State         string `yaml:"state"`
	ZipCode       string `yaml:"zip_code"`
	Country       string `yaml:"country"`
}

// Links holds public profile URLs
type Links struct {
	LinkedIn  string `yaml:"linkedin"`
	GitHub    string `yaml:"github"`
	Portfolio string `yaml:"portfolio"`
	Website   string `yaml:"website"`
}

// Work holds employment and eligibility answers
type Work struct {
	CurrentCompany      string `yaml:"current_company"`
	CurrentTitle        string `yaml:"current_title"`
	YearsOfExperience   int    `yaml:"years_of_experience"`
	AuthorizedToWork    bool   `yaml:"authorized_to_work"`
	RequiresSponsorship bool   `yaml:"requires_sponsorship"`
	WillingToRelocate   bool   `yaml:"willing_to_relocate"`
	SalaryExpectation   string `yaml:"salary_expectation"`
	AvailableStartDate  string `yaml:"available_start_date"`
	NoticePeriod        string `yaml:"notice_period"`
	HowDidYouHear       string `yaml:"how_did_you_hear"`
}

// Education holds the most recent degree
type Education struct {
	School         string `yaml:"school"`
	Degree         string `yaml:"degree"`
	Major          string `yaml:"major"`
	GraduationYear int    `yaml:"graduation_year"`
}

// EEO holds voluntary self-identification answers
type EEO struct {
	Gender           string `yaml:"gender"`
	Ethnicity        string `yaml:"ethnicity"`
	HispanicLatino   string `yaml:"hispanic_latino"`
	VeteranStatus    string `yaml:"veteran_status"`
	DisabilityStatus string `yaml:"disability_status"`
}

// Account holds credentials for sites that require sign-in or account creation
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads and validates a profile file
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates profile YAML
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the fields every application asks for
func (p *Profile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Personal.FirstName) == "" {
		missing = append(missing, "personal.first_name")
	}
	if strings.TrimSpace(p.Personal.LastName) == "" {
		missing = append(missing, "personal.last_name")
	}
	if strings.TrimSpace(p.Personal.Email) == "" {
		missing = append(missing, "personal.email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("profile is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// FullName joins first and last name
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.Personal.FirstName + " " + p.Personal.LastName)
}

// LoginEmail returns the account email, falling back to the contact email
func (p *Profile) LoginEmail() string {
	if p.Account.Email != "" {
		return p.Account.Email
	}
	return p.Personal.Email
}

// HasCredentials reports whether sign-in can be automated
func (p *Profile) HasCredentials() bool {
	return p.LoginEmail() != "" && p.Account.Password != ""
}
