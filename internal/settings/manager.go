// Package settings holds the drafting preferences in a single-writer
// observable container persisted to the key/value store.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// Key is the KV key the settings document is stored under.
const Key = "settings"

// KV is the persistence the Manager needs. Implemented by storage.Store and
// redisstore.Store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Manager owns the current Settings. All mutation goes through Update;
// subscribers are told about every successful change.
type Manager struct {
	kv     KV
	logger *slog.Logger

	writeMu sync.Mutex // serializes Update

	mu      sync.RWMutex
	current Settings
	subs    map[int]func(Settings)
	nextSub int
}

// NewManager creates a Manager seeded with defaults. Call Load to overlay the
// persisted document.
func NewManager(kv KV, defaults Settings) *Manager {
	return &Manager{
		kv:      kv,
		logger:  slog.Default(),
		current: defaults.clone(),
		subs:    make(map[int]func(Settings)),
	}
}

// Load reads the persisted settings once at start. Fields missing from the
// stored document keep their defaults; a malformed document is logged and
// ignored.
func (m *Manager) Load(ctx context.Context) error {
	data, ok, err := m.kv.Get(ctx, Key)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.clone()
	if err := json.Unmarshal(data, &next); err != nil {
		m.logger.Warn("malformed settings document, using defaults", "error", err)
		return nil
	}
	if err := next.Validate(); err != nil {
		m.logger.Warn("stored settings invalid, using defaults", "error", err)
		return nil
	}
	m.current = next
	return nil
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Update applies fn to a copy of the current settings, validates and
// persists the result, then publishes it. If fn, validation or persistence
// fails the current settings are unchanged.
func (m *Manager) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.Get()
	if err := fn(&next); err != nil {
		return Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	data, err := json.Marshal(next)
	if err != nil {
		return Settings{}, fmt.Errorf("encoding settings: %w", err)
	}
	if err := m.kv.Set(ctx, Key, data); err != nil {
		return Settings{}, fmt.Errorf("persisting settings: %w", err)
	}

	m.mu.Lock()
	m.current = next
	subs := make([]func(Settings), 0, len(m.subs))
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, m.subs[id])
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
	return next.clone(), nil
}

// Subscribe registers fn to receive every committed Settings value, in
// subscription order. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Settings)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Fields lists the keys SetField accepts.
func Fields() []string {
	return []string{"model", "temperature", "tone", "persona", "language", "interests", "reply_count", "variation_count", "idea_count"}
}

// SetField parses a string value for a single key and commits it through
// Update. interests takes a comma-separated list.
func (m *Manager) SetField(ctx context.Context, key, value string) (Settings, error) {
	return m.Update(ctx, func(s *Settings) error {
		return assign(s, key, value)
	})
}

func assign(s *Settings, key, value string) error {
	switch key {
	case "model":
		s.Model = value
	case "tone":
		s.Tone = value
	case "persona":
		s.Persona = value
	case "language":
		s.Language = value
	case "interests":
		s.Interests = nil
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				s.Interests = append(s.Interests, v)
			}
		}
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: temperature %q: %v", ErrInvalid, value, err)
		}
		s.Temperature = f
	case "reply_count", "variation_count", "idea_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, value, err)
		}
		switch key {
		case "reply_count":
			s.ReplyCount = n
		case "variation_count":
			s.VariationCount = n
		default:
			s.IdeaCount = n
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	return nil
}

// maxSummaryChars caps the summary to stay under ~250 tokens (4 chars/token).
const maxSummaryChars = 1000

// Summary renders the voice-related settings as a short paragraph for a
// system prompt.
func (s Settings) Summary() string {
	var parts []string
	if s.Persona != "" {
		parts = append(parts, fmt.Sprintf("The author is %s.", s.Persona))
	}
	if s.Tone != "" {
		parts = append(parts, fmt.Sprintf("Write in a %s tone.", s.Tone))
	}
	if len(s.Interests) > 0 {
		parts = append(parts, fmt.Sprintf("They usually write about %s.", strings.Join(s.Interests, ", ")))
	}
	if s.Language != "" {
		parts = append(parts, fmt.Sprintf("Write in %s.", s.Language))
	}
	if len(parts) == 0 {
		return ""
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
