package profile

import (
	"strconv"

	"github.com/v0xg/applypilot/internal/matcher"
)

// BuildQAMap derives the question-answer map for a run. Each profile value is stored under
// the label variants forms commonly use; explicit answers take precedence over all of them.
func BuildQAMap(p *Profile) matcher.QAMap {
	qa := matcher.QAMap{}
	add := func(answer string, labels ...string) {
		for _, l := range labels {
			qa.Set(l, answer)
		}
	}

	per := p.Personal
	add(per.FirstName, "First Name", "Given Name", "Legal First Name")
	add(per.LastName, "Last Name", "Family Name", "Surname", "Legal Last Name")
	add(p.FullName(), "Full Name", "Legal Name", "Your Name", "Name")
	add(per.PreferredName, "Preferred Name", "Preferred First Name", "Nickname")
	add(per.Pronouns, "Pronouns")
	add(per.Email, "Email", "Email Address", "E-mail", "E-mail Address")
	add(per.Phone, "Phone", "Phone Number", "Mobile Phone", "Mobile Phone Number", "Telephone")
	add(per.Address, "Address", "Street Address", "Address Line 1")
	add(per.City, "City", "Town")
	add(per.State, "State", "Province", "State Province", "Region")
	add(per.ZipCode, "Zip", "Zip Code", "Postal Code", "Postcode")
	add(per.Country, "Country", "Country of Residence")
	if per.City != "" && per.State != "" {
		add(per.City+", "+per.State, "Location", "Current Location", "Where are you located")
	}

	l := p.Links
	add(l.LinkedIn, "LinkedIn", "LinkedIn Profile", "LinkedIn URL", "LinkedIn Profile URL")
	add(l.GitHub, "GitHub", "GitHub URL", "GitHub Profile")
	add(l.Portfolio, "Portfolio", "Portfolio URL")
	add(l.Website, "Website", "Personal Website", "Other Website")

	w := p.Work
	add(w.CurrentCompany, "Current Company", "Current Employer", "Most Recent Employer")
	add(w.CurrentTitle, "Current Title", "Current Job Title", "Job Title", "Current Role")
	if w.YearsOfExperience > 0 {
		add(strconv.Itoa(w.YearsOfExperience), "Years of Experience", "Years Experience",
			"How many years of experience do you have")
	}
	add(yesNo(w.AuthorizedToWork), "Work Authorization", "Authorized to Work",
		"Are you legally authorized to work", "Legally authorized to work in the United States")
	add(yesNo(w.RequiresSponsorship), "Sponsorship", "Require Sponsorship",
		"Will you now or in the future require sponsorship", "Visa Sponsorship")
	add(yesNo(w.WillingToRelocate), "Relocation", "Willing to Relocate", "Open to Relocation")
	add(w.SalaryExpectation, "Salary Expectation", "Salary Expectations", "Desired Salary",
		"Expected Salary", "Compensation Expectations")
	add(w.AvailableStartDate, "Start Date", "Available Start Date", "Earliest Start Date",
		"When can you start")
	add(w.NoticePeriod, "Notice Period")
	add(w.HowDidYouHear, "How did you hear about us", "How did you hear about this job",
		"Referral Source")

	e := p.Education
	add(e.School, "School", "University", "College", "Institution", "School Name")
	add(e.Degree, "Highest Degree", "Level of Education", "Highest Level of Education")
	add(e.Major, "Major", "Field of Study", "Discipline")
	if e.GraduationYear > 0 {
		add(strconv.Itoa(e.GraduationYear), "Graduation Year", "Year of Graduation")
	}

	eeo := p.EEO
	add(eeo.Gender, "Gender", "Gender Identity", "Sex")
	add(eeo.Ethnicity, "Ethnicity", "Race", "Race Ethnicity")
	add(eeo.HispanicLatino, "Hispanic Latino", "Are you Hispanic or Latino")
	add(eeo.VeteranStatus, "Veteran Status", "Protected Veteran", "Are you a protected veteran")
	add(eeo.DisabilityStatus, "Disability Status", "Do you have a disability")

	overrides := matcher.QAMap{}
	for q, a := range p.Answers {
		overrides.Set(q, a)
	}
	qa.Merge(overrides)
	return qa
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
