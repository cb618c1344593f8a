package composer

import (
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/draftr/internal/segment"
	"github.com/kalambet/draftr/internal/settings"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"reply": KindReply, " Post ": KindPost, "IDEAS": KindIdeas} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("thread"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestCompose_Reply(t *testing.T) {
	c := New(0)
	p, err := c.Compose(Input{
		Kind:     KindReply,
		Text:     "Hot take: tabs are better.",
		Count:    3,
		Settings: settings.Settings{Persona: "a compiler engineer", Tone: "dry"},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if !strings.Contains(p.User, "Write 3 distinct replies") || !strings.Contains(p.User, "tabs are better") {
		t.Errorf("User = %q", p.User)
	}
	for _, want := range []string{"compiler engineer", "dry tone", ItemSeparator, QuestionSeparator, QuestionMarker} {
		if !strings.Contains(p.System, want) {
			t.Errorf("System missing %q:\n%s", want, p.System)
		}
	}

	want := segment.Options{ItemSeparator: ItemSeparator, QuestionSeparator: QuestionSeparator, SecondaryMarker: QuestionMarker, MaxItems: 3}
	if p.Options != want {
		t.Errorf("Options = %+v, want %+v", p.Options, want)
	}
}

func TestCompose_ToneOverride(t *testing.T) {
	p, err := New(0).Compose(Input{Kind: KindPost, Text: "x", Count: 1, Tone: "playful", Settings: settings.Settings{Tone: "dry"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.System, "playful tone") || strings.Contains(p.System, "dry tone") {
		t.Errorf("System = %q", p.System)
	}
}

func TestCompose_IdeasWithoutTextUsesInterests(t *testing.T) {
	p, err := New(0).Compose(Input{Kind: KindIdeas, Count: 5, Settings: settings.Settings{Interests: []string{"go", "sqlite"}}})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(p.User, "go, sqlite") {
		t.Errorf("User = %q", p.User)
	}
}

func TestCompose_Validation(t *testing.T) {
	c := New(0)
	if _, err := c.Compose(Input{Kind: KindReply, Count: 3}); err == nil {
		t.Error("reply without text should fail")
	}
	if _, err := c.Compose(Input{Kind: KindPost, Text: "x"}); err == nil {
		t.Error("zero count should fail")
	}
	if _, err := c.Compose(Input{Kind: "thread", Text: "x", Count: 1}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestCompose_SamplesWithinBudget(t *testing.T) {
	c := New(200)
	big := strings.Repeat("long sample ", 100)
	p, err := c.Compose(Input{
		Kind:    KindPost,
		Text:    "draft",
		Count:   2,
		Samples: []string{"newest sample", big, "", "older sample"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(p.System, "Sample 1:\nnewest sample") {
		t.Errorf("newest sample missing or misnumbered:\n%s", p.System)
	}
	if !strings.Contains(p.System, "Sample 2:\nolder sample") {
		t.Errorf("older sample missing after skipping oversized one:\n%s", p.System)
	}
	if strings.Contains(p.System, "long sample long sample") {
		t.Error("oversized sample should have been skipped")
	}
}

func TestCompose_NoSamplesNoSection(t *testing.T) {
	p, _ := New(0).Compose(Input{Kind: KindPost, Text: "x", Count: 1})
	if strings.Contains(p.System, "[Writing Samples]") {
		t.Error("samples section present without samples")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}
