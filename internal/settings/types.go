package settings

import (
	"errors"
	"fmt"
)

// Settings are the user-facing drafting preferences. Process configuration
// such as ports and API keys lives in internal/config instead.
type Settings struct {
	Model          string   `json:"model"`
	Temperature    float64  `json:"temperature"`
	Tone           string   `json:"tone"`    // e.g. "dry, a little self-deprecating"
	Persona        string   `json:"persona"` // e.g. "backend engineer at a small startup"
	Language       string   `json:"language"`
	Interests      []string `json:"interests"`
	ReplyCount     int      `json:"reply_count"`
	VariationCount int      `json:"variation_count"`
	IdeaCount      int      `json:"idea_count"`
}

// maxCount matches the segmenter's default item cap; asking the model for
// more would only produce items that get dropped.
const maxCount = 5

var (
	// ErrUnknownField is returned by SetField for keys Settings does not have.
	ErrUnknownField = errors.New("unknown settings field")
	// ErrInvalid wraps validation failures from Update and SetField.
	ErrInvalid = errors.New("invalid settings")
)

// Defaults returns the settings used before the user changes anything.
func Defaults() Settings {
	return Settings{
		Temperature:    0.8,
		Language:       "English",
		ReplyCount:     3,
		VariationCount: 3,
		IdeaCount:      5,
	}
}

// Validate reports the first out-of-range value.
func (s Settings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", s.Temperature)
	}
	for name, n := range map[string]int{
		"reply_count":     s.ReplyCount,
		"variation_count": s.VariationCount,
		"idea_count":      s.IdeaCount,
	} {
		if n < 1 || n > maxCount {
			return fmt.Errorf("%s %d out of range [1, %d]", name, n, maxCount)
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	cp := s
	if s.Interests != nil {
		cp.Interests = make([]string, len(s.Interests))
		copy(cp.Interests, s.Interests)
	}
	return cp
}
