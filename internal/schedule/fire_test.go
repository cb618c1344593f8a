package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/draftr/internal/alarm"
	"github.com/kalambet/draftr/internal/schedule"
)

type syncKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *syncKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *syncKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type countingPublisher struct {
	mu    sync.Mutex
	calls []string
}

func (p *countingPublisher) Publish(_ context.Context, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, content)
	return nil
}

func (p *countingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// TestScheduledPostFiresThroughAlarmClock runs a scheduler on a real cron
// backed clock, wired the way the server wires it.
func TestScheduledPostFiresThroughAlarmClock(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &countingPublisher{}

	var s *schedule.Scheduler
	clock := alarm.New(func(id string) {
		if err := s.OnFire(ctx, id); err != nil {
			t.Errorf("OnFire(%s): %v", id, err)
		}
	}, logger)
	s = schedule.New(schedule.Deps{
		KV:        &syncKV{data: make(map[string][]byte)},
		Alarms:    clock,
		Publisher: pub,
		Logger:    logger,
	})
	clock.Start()
	defer clock.Stop()

	if _, err := s.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	p, err := s.Schedule(ctx, "Hello world", time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var got schedule.Post
	for time.Now().Before(deadline) {
		posts, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(posts) == 1 && posts[0].Status == schedule.StatusPosted {
			got = posts[0]
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got.AlarmID != p.AlarmID || got.PostedTime == nil {
		t.Fatalf("post not marked posted before deadline: %+v", got)
	}
	if calls := pub.published(); len(calls) != 1 || calls[0] != "Hello world" {
		t.Errorf("publish calls = %q, want exactly one", calls)
	}
	if clock.Armed() != 0 {
		t.Errorf("armed alarms = %d, want 0 after firing", clock.Armed())
	}

	// Nothing else fires for the same post.
	time.Sleep(100 * time.Millisecond)
	if calls := pub.published(); len(calls) != 1 {
		t.Errorf("publish calls after settle = %d, want 1", len(calls))
	}
}
