package composer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/draftr/internal/segment"
	"github.com/kalambet/draftr/internal/settings"
)

// Sentinels the model is asked to place in its answer. The segmenter splits
// on exactly these strings.
const (
	ItemSeparator     = "###SEP###"
	QuestionSeparator = "###QUESTIONS###"
	QuestionMarker    = "###Q###"
)

const defaultMaxSampleTokens = 1500

// Kind is the kind of draft being requested.
type Kind string

const (
	KindReply Kind = "reply" // replies to someone else's post
	KindPost  Kind = "post"  // variations of the user's own draft or topic
	KindIdeas Kind = "ideas" // fresh post ideas
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown draft kind")

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindReply, KindPost, KindIdeas:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Input is everything a prompt is built from.
type Input struct {
	Kind     Kind
	Text     string // the post being replied to, the draft, or a topic
	Count    int
	Tone     string // overrides Settings.Tone when set
	Settings settings.Settings
	Samples  []string // the user's own writing, newest first
}

// Prompt is a composed request plus the segmenter options that match it.
type Prompt struct {
	System  string
	User    string
	Options segment.Options
}

// Composer builds prompts. Writing samples are injected as style references
// within MaxSampleTokens.
type Composer struct {
	MaxSampleTokens int
}

// New creates a Composer with the given token budget for writing samples.
// If maxSampleTokens <= 0, the default (1500) is used.
func New(maxSampleTokens int) *Composer {
	if maxSampleTokens <= 0 {
		maxSampleTokens = defaultMaxSampleTokens
	}
	return &Composer{MaxSampleTokens: maxSampleTokens}
}

// Compose builds the system and user prompts for in.
func (c *Composer) Compose(in Input) (Prompt, error) {
	if in.Count <= 0 {
		return Prompt{}, fmt.Errorf("count must be positive, got %d", in.Count)
	}
	if in.Kind != KindIdeas && strings.TrimSpace(in.Text) == "" {
		return Prompt{}, fmt.Errorf("%s needs input text", in.Kind)
	}

	s := in.Settings
	if in.Tone != "" {
		s.Tone = in.Tone
	}

	var task string
	switch in.Kind {
	case KindReply:
		task = fmt.Sprintf("Write %d distinct replies to the post below.", in.Count)
	case KindPost:
		task = fmt.Sprintf("Write %d variations of the post below. Keep the core message and vary the hook, structure and length.", in.Count)
	case KindIdeas:
		task = fmt.Sprintf("Suggest %d ideas for new posts, each written as a ready-to-post first draft.", in.Count)
	default:
		return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}

	var sys strings.Builder
	sys.WriteString("You help a person draft short social media posts in their own voice.")
	if summary := s.Summary(); summary != "" {
		sys.WriteString("\n\n[Author]\n")
		sys.WriteString(summary)
	}
	if samples := c.buildSamples(in.Samples, EstimateTokens(sys.String())); samples != "" {
		sys.WriteString("\n\n[Writing Samples]\nMatch the voice of these posts by the author. Do not copy them.\n\n")
		sys.WriteString(samples)
	}
	sys.WriteString("\n\n[Format]\n")
	fmt.Fprintf(&sys, "Output only the texts, separated by %s. Do not number them or wrap them in quotes.\n", ItemSeparator)
	fmt.Fprintf(&sys, "After the last text write %s followed by three short questions that would help the author make the texts more personal, separated by %s.", QuestionSeparator, QuestionMarker)

	var user strings.Builder
	user.WriteString(task)
	if text := strings.TrimSpace(in.Text); text != "" {
		label := "Post"
		if in.Kind == KindIdeas {
			label = "Topic"
		}
		fmt.Fprintf(&user, "\n\n%s:\n%s", label, text)
	} else if len(s.Interests) > 0 {
		fmt.Fprintf(&user, "\n\nDraw on these topics: %s.", strings.Join(s.Interests, ", "))
	}

	return Prompt{
		System: sys.String(),
		User:   user.String(),
		Options: segment.Options{
			ItemSeparator:     ItemSeparator,
			QuestionSeparator: QuestionSeparator,
			SecondaryMarker:   QuestionMarker,
			MaxItems:          in.Count,
		},
	}, nil
}

// buildSamples keeps samples in order, skipping any that would push the
// total past the budget.
func (c *Composer) buildSamples(samples []string, usedTokens int) string {
	remaining := c.MaxSampleTokens - usedTokens
	var sb strings.Builder
	n := 0
	for _, sample := range samples {
		sample = strings.TrimSpace(sample)
		if sample == "" {
			continue
		}
		entry := fmt.Sprintf("Sample %d:\n%s\n\n", n+1, sample)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
		n++
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
