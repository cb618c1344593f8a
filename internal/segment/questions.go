package segment

import (
	"regexp"
	"strings"
)

// maxQuestionLen drops over-long segments from the unstructured policies;
// those are usually prose the model added, not questions.
const maxQuestionLen = 200

// QuestionPolicy extracts questions from a questions section. It reports
// matched=false when its pattern does not apply, letting the next policy in
// the chain try.
type QuestionPolicy func(section string) (questions []string, matched bool)

var (
	labelWithColon = regexp.MustCompile(`(?i)question\s*\d+\s*:`)
	labelLoose     = regexp.MustCompile(`(?i)(?:#{3}\s*)?question\s*\d+(?:\s*#{3})?`)
)

// DefaultPolicies returns the extraction chain in precedence order. An
// empty secondaryMarker skips the marker policy.
func DefaultPolicies(secondaryMarker string) []QuestionPolicy {
	policies := []QuestionPolicy{LabeledWithColon, Labeled}
	if secondaryMarker != "" {
		policies = append(policies, MarkerSplit(secondaryMarker))
	}
	return append(policies, LineSplit)
}

// ExtractQuestions runs policies in order; the first one that matches wins
// even if it yields nothing. The result is capped at MaxQuestions.
func ExtractQuestions(section string, policies []QuestionPolicy) []string {
	for _, p := range policies {
		if qs, ok := p(section); ok {
			return capped(qs, MaxQuestions)
		}
	}
	return nil
}

// LabeledWithColon matches "Question 1: ..." labels and returns the text
// after each label up to the next one.
func LabeledWithColon(section string) ([]string, bool) {
	return betweenLabels(section, labelWithColon)
}

// Labeled matches "Question 1" labels without a colon, optionally wrapped
// as "### Question 1 ###".
func Labeled(section string) ([]string, bool) {
	qs, ok := betweenLabels(section, labelLoose)
	if !ok {
		return nil, false
	}
	for i, q := range qs {
		qs[i] = strings.TrimSpace(strings.TrimLeft(q, "-.:)#"))
	}
	return nonEmpty(qs, 0), true
}

// MarkerSplit returns a policy splitting on a literal marker token.
func MarkerSplit(marker string) QuestionPolicy {
	return func(section string) ([]string, bool) {
		if !strings.Contains(section, marker) {
			return nil, false
		}
		return nonEmpty(strings.Split(section, marker), maxQuestionLen), true
	}
}

// LineSplit treats every short non-empty line as a question. It always
// matches.
func LineSplit(section string) ([]string, bool) {
	lines := strings.FieldsFunc(section, func(r rune) bool { return r == '\n' || r == '\r' })
	return nonEmpty(lines, maxQuestionLen), true
}

func betweenLabels(section string, label *regexp.Regexp) ([]string, bool) {
	locs := label.FindAllStringIndex(section, -1)
	if len(locs) == 0 {
		return nil, false
	}
	pieces := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(section)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pieces = append(pieces, section[loc[1]:end])
	}
	return nonEmpty(pieces, 0), true
}
