package segment

import "strings"

// DefaultMaxItems caps the item list when Options.MaxItems is not set.
const DefaultMaxItems = 5

// MaxQuestions caps the brainstorming question list.
const MaxQuestions = 3

// FallbackItem is the sole item returned when nothing usable was generated.
const FallbackItem = "Could not generate a response. Please try again."

// FallbackQuestions is substituted whenever no question could be extracted.
var FallbackQuestions = []string{
	"What is the main point you want to get across?",
	"Who is the audience you are writing for?",
	"What reaction do you hope to get from readers?",
}

// Options carries the sentinels the prompt asked the model to use.
type Options struct {
	// ItemSeparator splits the items section. Empty means the whole
	// section is a single item.
	ItemSeparator string
	// QuestionSeparator divides items from questions. Must not be empty.
	QuestionSeparator string
	// SecondaryMarker, if set, separates individual questions.
	SecondaryMarker string
	// MaxItems caps the number of items; <= 0 means DefaultMaxItems.
	MaxItems int
}

// Result is a completion split into candidate texts and guiding questions.
// Items and Questions are never empty.
type Result struct {
	Items     []string `json:"items"`
	Questions []string `json:"questions"`
}

// Segment splits a raw model completion into items and questions. It never
// fails: malformed or empty input degrades to the fallback values.
func Segment(raw string, opts Options) Result {
	if strings.TrimSpace(raw) == "" {
		return fallback()
	}

	itemsSection := raw
	var questions []string
	if opts.QuestionSeparator != "" && strings.Contains(raw, opts.QuestionSeparator) {
		parts := strings.SplitN(raw, opts.QuestionSeparator, 2)
		itemsSection = parts[0]
		questions = ExtractQuestions(strings.TrimSpace(parts[1]), DefaultPolicies(opts.SecondaryMarker))
	}

	items := splitItems(itemsSection, opts.ItemSeparator, maxItems(opts))
	if len(items) == 0 {
		items = []string{FallbackItem}
	}
	if len(questions) == 0 {
		questions = fallbackQuestions()
	}
	return Result{Items: items, Questions: questions}
}

func splitItems(section, sep string, limit int) []string {
	if sep == "" || !strings.Contains(section, sep) {
		if s := strings.TrimSpace(section); s != "" {
			return []string{s}
		}
		return nil
	}
	return capped(nonEmpty(strings.Split(section, sep), 0), limit)
}

func maxItems(opts Options) int {
	if opts.MaxItems <= 0 {
		return DefaultMaxItems
	}
	return opts.MaxItems
}

// nonEmpty trims every piece and drops the empty ones. When maxLen > 0,
// pieces of maxLen characters or more are dropped too.
func nonEmpty(pieces []string, maxLen int) []string {
	var out []string
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if maxLen > 0 && len([]rune(p)) >= maxLen {
			continue
		}
		out = append(out, p)
	}
	return out
}

func capped(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func fallback() Result {
	return Result{Items: []string{FallbackItem}, Questions: fallbackQuestions()}
}

func fallbackQuestions() []string {
	out := make([]string, len(FallbackQuestions))
	copy(out, FallbackQuestions)
	return out
}
