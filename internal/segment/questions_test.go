package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestLabeledWithColon_CaseInsensitiveMultiline(t *testing.T) {
	section := "QUESTION 1: What angle\nworks best?\nquestion 2 : Who cares?"

	got, ok := LabeledWithColon(section)
	if !ok {
		t.Fatal("expected match")
	}
	want := []string{"What angle\nworks best?", "Who cares?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLabeledWithColon_NoMatch(t *testing.T) {
	if _, ok := LabeledWithColon("Question 1 - no colon"); ok {
		t.Error("expected no match without a colon")
	}
}

func TestLabeled_WithoutColon(t *testing.T) {
	got, ok := Labeled("Question 1 - Is it clear?\nQuestion 2 Does it land?")
	if !ok {
		t.Fatal("expected match")
	}
	want := []string{"Is it clear?", "Does it land?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLabeled_HashDelimited(t *testing.T) {
	got, ok := Labeled("### Question 1 ###\nWhat now?\n###Question 2###\nWhat next?")
	if !ok {
		t.Fatal("expected match")
	}
	want := []string{"What now?", "What next?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMarkerSplit_DropsLongSegments(t *testing.T) {
	long := strings.Repeat("x", maxQuestionLen)
	policy := MarkerSplit("||")

	got, ok := policy("short?||" + long + "|| also short? ")
	if !ok {
		t.Fatal("expected match")
	}
	want := []string{"short?", "also short?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok := policy("no marker here"); ok {
		t.Error("expected no match without marker")
	}
}

func TestLineSplit(t *testing.T) {
	got, ok := LineSplit("first?\r\n\n  second?  \n" + strings.Repeat("y", 250))
	if !ok {
		t.Fatal("LineSplit must always match")
	}
	want := []string{"first?", "second?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractQuestions_FirstMatchWins(t *testing.T) {
	section := "Question 1: a?\nb?---Q---c?"

	got := ExtractQuestions(section, DefaultPolicies("---Q---"))
	if !reflect.DeepEqual(got, []string{"a?\nb?---Q---c?"}) {
		t.Errorf("got %q", got)
	}
}

func TestExtractQuestions_CustomChain(t *testing.T) {
	never := func(string) ([]string, bool) { return nil, false }
	always := func(string) ([]string, bool) { return []string{"1", "2", "3", "4"}, true }

	got := ExtractQuestions("anything", []QuestionPolicy{never, always, LineSplit})
	if !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("got %q", got)
	}
}
