// Package matcher maps form-field labels to known answers.
//
// Matching runs five passes from strict to loose and returns the first hit:
//
//  1. exact match of the normalized label and key
//  2. the label contains a multi-word key ("First Name *" -> "first name")
//  3. the label contains a short, non-generic key ("What is your gender?" -> "gender")
//  4. word overlap, where every distinguishing label word must appear in the key
//  5. the same overlap rule over suffix-stripped words
//
// The distinguishing-word rule in passes 4 and 5 is what keeps "Middle Name" from
// borrowing the answer for "First Name".
package matcher

import (
	"sort"
	"strings"
	"unicode"
)

// QAMap maps normalized question text to an answer. Read-only during a run.
type QAMap map[string]string

// Set stores an answer under the normalized question. Empty questions or answers are ignored.
func (m QAMap) Set(question, answer string) {
	key := Normalize(question)
	answer = strings.TrimSpace(answer)
	if key == "" || answer == "" {
		return
	}
	m[key] = answer
}

// Merge copies every entry of other into m, overwriting existing keys
func (m QAMap) Merge(other QAMap) {
	for k, v := range other {
		m[k] = v
	}
}

// Keys returns the normalized keys in sorted order
func (m QAMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matcher holds the heuristic thresholds of the overlap passes
type Matcher struct {
	MinWordOverlap   int
	MinStemOverlap   int
	ShortKeyMaxWords int
}

// Default returns a matcher with the tuned thresholds
func Default() *Matcher {
	return &Matcher{MinWordOverlap: 2, MinStemOverlap: 2, ShortKeyMaxWords: 1}
}

// FindBestAnswer matches label against qa with the default thresholds
func FindBestAnswer(label string, qa QAMap) (string, bool) {
	return Default().FindBestAnswer(label, qa)
}

// FindBestAnswer returns the answer whose key best matches label, or false when nothing
// matches confidently
func (m *Matcher) FindBestAnswer(label string, qa QAMap) (string, bool) {
	norm := Normalize(label)
	if norm == "" || len(qa) == 0 {
		return "", false
	}

	// 1. exact
	if answer, ok := qa[norm]; ok {
		return answer, true
	}

	keys := qa.Keys()
	padded := " " + norm + " "

	// 2. label contains a longer key
	if key, ok := longestContained(padded, keys, func(k string) bool {
		return wordCount(k) > m.ShortKeyMaxWords
	}); ok {
		return qa[key], true
	}

	// 3. label contains a short key that is not a generic word
	if key, ok := longestContained(padded, keys, func(k string) bool {
		return wordCount(k) <= m.ShortKeyMaxWords && len(k) >= 3 && !isGenericKey(k)
	}); ok {
		return qa[key], true
	}

	labelWords := contentWords(norm)
	if len(labelWords) == 0 {
		return "", false
	}

	// 4. word overlap
	if key, ok := bestOverlap(labelWords, keys, m.MinWordOverlap, identity); ok {
		return qa[key], true
	}

	// 5. stemmed overlap
	if key, ok := bestOverlap(labelWords, keys, m.MinStemOverlap, Stem); ok {
		return qa[key], true
	}

	return "", false
}

// Normalize lower-cases s, replaces every run of non-alphanumeric characters with a
// single space and trims the result
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

func longestContained(padded string, keys []string, eligible func(string) bool) (string, bool) {
	best := ""
	for _, k := range keys {
		if !eligible(k) {
			continue
		}
		if strings.Contains(padded, " "+k+" ") && len(k) > len(best) {
			best = k
		}
	}
	return best, best != ""
}

func bestOverlap(labelWords []string, keys []string, minOverlap int, transform func(string) string) (string, bool) {
	label := make(map[string]bool, len(labelWords))
	var distinguishing []string
	for _, w := range labelWords {
		t := transform(w)
		label[t] = true
		if !genericWords[w] {
			distinguishing = append(distinguishing, t)
		}
	}

	bestKey, bestScore, bestExtra := "", 0, 0
	for _, k := range keys {
		keyWords := make(map[string]bool)
		for _, w := range contentWords(k) {
			keyWords[transform(w)] = true
		}

		missing := false
		for _, d := range distinguishing {
			if !keyWords[d] {
				missing = true
				break
			}
		}
		if missing {
			continue
		}

		overlap := 0
		for w := range label {
			if keyWords[w] {
				overlap++
			}
		}
		if overlap < minOverlap {
			continue
		}

		extra := len(keyWords) - overlap
		if overlap > bestScore || (overlap == bestScore && extra < bestExtra) {
			bestKey, bestScore, bestExtra = k, overlap, extra
		}
	}
	return bestKey, bestKey != ""
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func identity(s string) string { return s }

func isGenericKey(k string) bool {
	return genericWords[k] || fillerWords[k]
}

// contentWords splits a normalized string into words, dropping filler words
func contentWords(norm string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		if fillerWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Stem strips common English suffixes. It only needs to make "authorized" and
// "authorization" meet, not to be linguistically correct.
func Stem(w string) string {
	for _, suffix := range stemSuffixes {
		if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 3 {
			return w[:len(w)-len(suffix)]
		}
	}
	return w
}

var stemSuffixes = []string{
	"izations", "ization", "ations", "ation", "ments", "ment", "ities", "ity",
	"ized", "izes", "ize", "ing", "ies", "ed", "es", "ly", "al", "s",
}

// fillerWords carry no meaning for matching and are dropped entirely
var fillerWords = setOf(
	"a", "an", "the", "of", "to", "in", "on", "for", "and", "or", "is", "are", "do",
	"does", "you", "your", "we", "our", "be", "will", "with", "at", "by", "as", "this",
	"that", "what", "which", "please", "if", "any", "have", "has", "been", "i", "me", "my",
	"can", "currently", "select", "enter", "provide",
)

// genericWords count toward overlap but never distinguish one question from another
var genericWords = setOf(
	"name", "date", "address", "number", "phone", "email", "city", "state", "country",
	"code", "zip", "postal", "type", "full", "mobile", "line", "street", "required",
	"optional", "information", "info", "details", "field", "question", "answer",
)

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
