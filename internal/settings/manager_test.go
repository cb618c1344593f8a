package settings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// --- Mock store ---

type mockKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet bool
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("write failed")
	}
	m.data[key] = value
	return nil
}

// --- Tests ---

func TestGet_DefaultsBeforeLoad(t *testing.T) {
	mgr := NewManager(newMockKV(), Defaults())

	got := mgr.Get()
	if got.ReplyCount != 3 || got.Language != "English" {
		t.Errorf("Get() = %+v, want defaults", got)
	}
}

func TestLoad_OverlaysStoredFields(t *testing.T) {
	kv := newMockKV()
	kv.data[Key] = []byte(`{"tone":"dry","reply_count":2}`)
	mgr := NewManager(kv, Defaults())

	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := mgr.Get()
	if got.Tone != "dry" || got.ReplyCount != 2 {
		t.Errorf("Get() = %+v", got)
	}
	if got.VariationCount != 3 {
		t.Errorf("VariationCount = %d, want default 3", got.VariationCount)
	}
}

func TestLoad_MalformedKeepsDefaults(t *testing.T) {
	kv := newMockKV()
	kv.data[Key] = []byte(`{not json`)
	mgr := NewManager(kv, Defaults())

	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := mgr.Get(); got.ReplyCount != 3 {
		t.Errorf("ReplyCount = %d, want default", got.ReplyCount)
	}
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	kv := newMockKV()
	mgr := NewManager(kv, Defaults())

	var seen []Settings
	cancel := mgr.Subscribe(func(s Settings) { seen = append(seen, s) })
	defer cancel()

	got, err := mgr.Update(context.Background(), func(s *Settings) error {
		s.Tone = "earnest"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Tone != "earnest" {
		t.Errorf("returned Tone = %q", got.Tone)
	}
	if len(seen) != 1 || seen[0].Tone != "earnest" {
		t.Errorf("subscriber saw %+v", seen)
	}
	if !strings.Contains(string(kv.data[Key]), `"tone":"earnest"`) {
		t.Errorf("stored = %s", kv.data[Key])
	}
}

func TestUpdate_FailureLeavesStateUnchanged(t *testing.T) {
	kv := newMockKV()
	kv.failSet = true
	mgr := NewManager(kv, Defaults())

	notified := false
	mgr.Subscribe(func(Settings) { notified = true })

	_, err := mgr.Update(context.Background(), func(s *Settings) error {
		s.Tone = "lost"
		return nil
	})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if mgr.Get().Tone != "" {
		t.Errorf("Tone = %q after failed update", mgr.Get().Tone)
	}
	if notified {
		t.Error("subscriber notified of a failed update")
	}
}

func TestUpdate_ValidationRejected(t *testing.T) {
	mgr := NewManager(newMockKV(), Defaults())

	_, err := mgr.Update(context.Background(), func(s *Settings) error {
		s.ReplyCount = 9
		return nil
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if mgr.Get().ReplyCount != 3 {
		t.Errorf("ReplyCount changed to %d", mgr.Get().ReplyCount)
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	mgr := NewManager(newMockKV(), Defaults())

	calls := 0
	cancel := mgr.Subscribe(func(Settings) { calls++ })
	cancel()
	cancel()

	_, _ = mgr.SetField(context.Background(), "tone", "calm")
	if calls != 0 {
		t.Errorf("cancelled subscriber called %d times", calls)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	mgr := NewManager(newMockKV(), Defaults())
	_, _ = mgr.SetField(context.Background(), "interests", "go, databases ,")

	s := mgr.Get()
	if len(s.Interests) != 2 || s.Interests[1] != "databases" {
		t.Fatalf("Interests = %q", s.Interests)
	}
	s.Interests[0] = "mutated"
	if mgr.Get().Interests[0] != "go" {
		t.Error("mutating a copy changed the container")
	}
}

func TestSetField(t *testing.T) {
	mgr := NewManager(newMockKV(), Defaults())
	ctx := context.Background()

	if _, err := mgr.SetField(ctx, "temperature", "0.3"); err != nil {
		t.Fatalf("SetField temperature: %v", err)
	}
	if _, err := mgr.SetField(ctx, "variation_count", "5"); err != nil {
		t.Fatalf("SetField variation_count: %v", err)
	}
	got := mgr.Get()
	if got.Temperature != 0.3 || got.VariationCount != 5 {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := mgr.SetField(ctx, "reply_count", "many"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := mgr.SetField(ctx, "colour", "blue"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
}

func TestSummary(t *testing.T) {
	if got := (Settings{}).Summary(); got != "" {
		t.Errorf("empty Summary = %q", got)
	}

	s := Settings{Persona: "a platform engineer", Tone: "dry", Language: "English", Interests: []string{"go", "sre"}}
	got := s.Summary()
	for _, want := range []string{"platform engineer", "dry tone", "go, sre", "Write in English."} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}

	long := Settings{Persona: strings.Repeat("word ", 400)}
	if n := len(long.Summary()); n > maxSummaryChars {
		t.Errorf("Summary length %d exceeds %d", n, maxSummaryChars)
	}
}
