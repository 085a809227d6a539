package matcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func sampleQA() QAMap {
	qa := QAMap{}
	qa.Set("First Name", "Ada")
	qa.Set("Last Name", "Lovelace")
	qa.Set("Email", "ada@example.com")
	qa.Set("Gender", "X")
	qa.Set("Work Authorization", "Yes")
	qa.Set("Go years experience", "7")
	qa.Set("Expected salary USD", "180000")
	return qa
}

func TestFindBestAnswer(t *testing.T) {
	qa := sampleQA()

	tests := []struct {
		name   string
		label  string
		want   string
		wantOK bool
	}{
		{"exact after normalization", "First Name *", "Ada", true},
		{"label contains key", "Legal First Name (Required)", "Ada", true},
		{"short key in question", "What is your gender?", "X", true},
		{"word overlap", "Years experience with Go", "7", true},
		{"stem overlap", "Are you authorized to work?", "Yes", true},
		{"stem overlap plural", "Salary expectations (USD)", "180000", true},
		{"distinguishing word missing", "Middle Name", "", false},
		{"generic key never matches alone", "Emergency contact name", "", false},
		{"empty label", "  *  ", "", false},
		{"unrelated", "Describe your favorite project", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindBestAnswer(tt.label, qa)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindBestAnswerPrefersLongestContainedKey(t *testing.T) {
	qa := QAMap{}
	qa.Set("phone number", "555-0100")
	qa.Set("mobile phone number", "555-0199")

	got, ok := FindBestAnswer("Mobile Phone Number*", qa)
	assert.True(t, ok)
	assert.Equal(t, "555-0199", got)
}

func TestFindBestAnswerThresholds(t *testing.T) {
	qa := QAMap{}
	qa.Set("go years experience", "7")

	strict := &Matcher{MinWordOverlap: 4, MinStemOverlap: 4, ShortKeyMaxWords: 1}
	_, ok := strict.FindBestAnswer("Years experience with Go", qa)
	assert.False(t, ok)

	_, ok = Default().FindBestAnswer("Years experience with Go", qa)
	assert.True(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "first name", Normalize("  First   Name * "))
	assert.Equal(t, "e mail address", Normalize("E-mail Address:"))
	assert.Equal(t, "", Normalize("*?!"))
}

func TestQAMapSetIgnoresEmpty(t *testing.T) {
	qa := QAMap{}
	qa.Set("", "x")
	qa.Set("Question", "  ")
	assert.Empty(t, qa)

	qa.Set("Question?", "answer")
	other := QAMap{"question": "override"}
	qa.Merge(other)
	assert.Equal(t, "override", qa["question"])
	assert.Equal(t, []string{"question"}, qa.Keys())
}

func TestNormalizeIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once))
		assert.Equal(t, strings.TrimSpace(once), once)
	})
}

func TestDecoratedKeyAlwaysMatchesProperty(t *testing.T) {
	word := rapid.StringMatching(`[a-z]{3,8}`)
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(word, 1, 4).Draw(t, "words")
		answer := rapid.StringMatching(`[A-Za-z0-9]{1,12}`).Draw(t, "answer")

		qa := QAMap{}
		qa.Set(strings.Join(words, " "), answer)

		label := strings.ToUpper(strings.Join(words, " ")) + " *"
		got, ok := FindBestAnswer(label, qa)
		if !ok || got != answer {
			t.Fatalf("label %q: got (%q, %v), want %q", label, got, ok, answer)
		}
	})
}

func TestBestOption(t *testing.T) {
	tests := []struct {
		answer  string
		options []string
		want    string
		wantOK  bool
	}{
		{"Yes", []string{"Select...", "Yes", "No"}, "Yes", true},
		{"true", []string{"No, I am not", "Yes, I am authorized"}, "Yes, I am authorized", true},
		{"no", []string{"Yes", "No, I will not require sponsorship"}, "No, I will not require sponsorship", true},
		{"United States", []string{"Canada", "United States of America", "United States Minor Outlying Islands"}, "United States of America", true},
		{"Bachelor's degree in Mathematics", []string{"High School", "Bachelor", "Master"}, "Bachelor", true},
		{"Martian", []string{"Yes", "No"}, "", false},
		{"", []string{"Yes"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := BestOption(tt.answer, tt.options)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
