package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPublishTimeout = 30 * time.Second

type entryState int

const (
	// statePending is a pending post with no alarm owned by this process.
	statePending entryState = iota
	stateArmed
	stateMissed
	// stateFiring is held while the publisher runs outside the lock.
	stateFiring
	stateDone
)

type entry struct {
	post  Post
	state entryState
}

// Metrics receives scheduler events. A nil Metrics in Deps is replaced by a
// no-op implementation.
type Metrics interface {
	PostScheduled()
	PostPublished(ok bool)
	PostsMissed(n int)
}

type nopMetrics struct{}

func (nopMetrics) PostScheduled()     {}
func (nopMetrics) PostPublished(bool) {}
func (nopMetrics) PostsMissed(int)    {}

// Deps holds the collaborators of a Scheduler.
type Deps struct {
	KV             KV
	Alarms         Alarms
	Publisher      Publisher
	Clock          Clock         // optional; defaults to wall clock
	Metrics        Metrics       // optional
	Logger         *slog.Logger  // optional; defaults to slog.Default()
	PublishTimeout time.Duration // optional; defaults to 30s
}

// Scheduler owns the persisted collection of scheduled posts and the alarm
// armed for each pending one. State changes run under a single mutex. A fire
// claims its entry under the lock, publishes without it, then records the
// outcome under the lock again, so a slow publisher never holds up other
// fires or API calls.
type Scheduler struct {
	kv             KV
	alarms         Alarms
	publisher      Publisher
	clock          Clock
	metrics        Metrics
	logger         *slog.Logger
	publishTimeout time.Duration

	mu      sync.Mutex
	loaded  bool
	order   []string
	entries map[string]*entry
}

// New creates a Scheduler. Call Recover once at process start before
// serving requests.
func New(deps Deps) *Scheduler {
	s := &Scheduler{
		kv:             deps.KV,
		alarms:         deps.Alarms,
		publisher:      deps.Publisher,
		clock:          deps.Clock,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		publishTimeout: deps.PublishTimeout,
		entries:        make(map[string]*entry),
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = defaultPublishTimeout
	}
	return s
}

// Schedule persists a new pending post and arms its alarm. The collection is
// written before the alarm is armed; if either step fails the call leaves no
// trace.
func (s *Scheduler) Schedule(ctx context.Context, content string, fireAt time.Time) (Post, error) {
	if strings.TrimSpace(content) == "" {
		return Post{}, fmt.Errorf("%w: content is empty", ErrInvalidSchedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !fireAt.After(now) {
		return Post{}, fmt.Errorf("%w: fire time %s is not in the future", ErrInvalidSchedule, fireAt.UTC().Format(time.RFC3339))
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return Post{}, err
	}

	p := Post{
		AlarmID:       s.newID(now),
		Content:       content,
		ScheduledTime: fireAt.UTC(),
		Status:        StatusPending,
	}
	if err := s.persist(ctx, append(s.snapshot(), p)); err != nil {
		return Post{}, err
	}

	if err := s.alarms.Arm(p.AlarmID, p.ScheduledTime); err != nil {
		if rbErr := s.persist(ctx, s.snapshot()); rbErr != nil {
			s.logger.Error("rolling back unarmed scheduled post failed", "alarm_id", p.AlarmID, "error", rbErr)
		}
		return Post{}, fmt.Errorf("arming alarm %s: %w", p.AlarmID, err)
	}

	s.order = append(s.order, p.AlarmID)
	s.entries[p.AlarmID] = &entry{post: p, state: stateArmed}
	s.metrics.PostScheduled()
	s.logger.Info("post scheduled", "alarm_id", p.AlarmID, "scheduled_time", p.ScheduledTime.Format(time.RFC3339))
	return p, nil
}

// Recover rebuilds alarms from the persisted collection. Stale alarms are
// cleared first. Pending posts whose time already passed are reported as
// missed and left pending; they are never fired retroactively.
func (s *Scheduler) Recover(ctx context.Context) (RecoveryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report RecoveryReport
	if err := s.alarms.ClearAll(); err != nil {
		return report, fmt.Errorf("clearing alarms: %w", err)
	}

	s.loaded = false
	if err := s.ensureLoaded(ctx); err != nil {
		return report, err
	}

	now := s.clock.Now()
	for _, id := range s.order {
		e := s.entries[id]
		if e.post.Status != StatusPending {
			continue
		}
		if !e.post.ScheduledTime.After(now) {
			e.state = stateMissed
			report.Missed = append(report.Missed, e.post)
			s.logger.Warn("skipping missed scheduled post", "alarm_id", id, "scheduled_time", e.post.ScheduledTime.Format(time.RFC3339))
			continue
		}
		if err := s.alarms.Arm(id, e.post.ScheduledTime); err != nil {
			s.logger.Error("re-arming scheduled post failed", "alarm_id", id, "error", err)
			continue
		}
		e.state = stateArmed
		report.Rearmed = append(report.Rearmed, e.post)
	}

	s.metrics.PostsMissed(len(report.Missed))
	s.logger.Info("scheduled posts recovered", "rearmed", len(report.Rearmed), "missed", len(report.Missed))
	return report, nil
}

// OnFire handles a matured alarm. Unknown ids are ignored and a post that
// is already posted or being published is left alone, so duplicate fires
// publish at most once. A publish failure still marks the post posted; a
// persistence failure is logged and the in-memory state keeps the post
// posted.
func (s *Scheduler) OnFire(ctx context.Context, alarmID string) error {
	content, ok, err := s.claim(ctx, alarmID)
	if err != nil || !ok {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	pubErr := s.publisher.Publish(pubCtx, content)
	cancel()
	s.metrics.PostPublished(pubErr == nil)
	if pubErr != nil {
		s.logger.Error("publishing scheduled post failed", "alarm_id", alarmID, "error", pubErr)
		pubErr = fmt.Errorf("%w: %s: %w", ErrPublishFailed, alarmID, pubErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[alarmID]
	if !ok {
		s.logger.Warn("scheduled post disappeared while publishing", "alarm_id", alarmID)
		return pubErr
	}
	postedAt := s.clock.Now().UTC()
	e.post.Status = StatusPosted
	e.post.PostedTime = &postedAt
	e.state = stateDone

	if err := s.persist(ctx, s.snapshot()); err != nil {
		s.logger.Error("persisting posted status failed", "alarm_id", alarmID, "error", err)
		if pubErr != nil {
			return fmt.Errorf("%w; %w", pubErr, err)
		}
		return err
	}
	s.logger.Info("scheduled post fired", "alarm_id", alarmID, "published", pubErr == nil)
	return pubErr
}

// claim moves a pending entry to stateFiring and returns its content. ok is
// false when there is nothing to publish.
func (s *Scheduler) claim(ctx context.Context, alarmID string) (content string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		s.logger.Error("loading scheduled posts on fire failed", "alarm_id", alarmID, "error", err)
		return "", false, err
	}

	e, found := s.entries[alarmID]
	if !found {
		s.logger.Warn("alarm fired for unknown scheduled post", "alarm_id", alarmID)
		return "", false, nil
	}
	if e.post.Status == StatusPosted || e.state == stateFiring {
		s.logger.Debug("duplicate alarm fire ignored", "alarm_id", alarmID)
		return "", false, nil
	}
	e.state = stateFiring
	return e.post.Content, true, nil
}

// Cancel removes a pending post and clears its alarm.
func (s *Scheduler) Cancel(ctx context.Context, alarmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	e, ok := s.entries[alarmID]
	if !ok {
		return ErrNotFound
	}
	if e.post.Status == StatusPosted || e.state == stateFiring {
		return ErrAlreadyPosted
	}
	wasMissed := e.state == stateMissed

	kept := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if id != alarmID {
			kept = append(kept, id)
		}
	}
	posts := make([]Post, 0, len(kept))
	for _, id := range kept {
		posts = append(posts, s.entries[id].post)
	}
	if err := s.persist(ctx, posts); err != nil {
		return err
	}

	if err := s.alarms.Clear(alarmID); err != nil {
		s.logger.Warn("clearing alarm for cancelled post failed", "alarm_id", alarmID, "error", err)
	}
	s.order = kept
	delete(s.entries, alarmID)
	if wasMissed {
		s.metrics.PostsMissed(s.missedCount())
	}
	s.logger.Info("scheduled post cancelled", "alarm_id", alarmID)
	return nil
}

// List returns all scheduled posts in creation order.
func (s *Scheduler) List(ctx context.Context) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// Missed returns the pending posts that Recover skipped because their fire
// time had passed while the process was down.
func (s *Scheduler) Missed(ctx context.Context) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	var out []Post
	for _, id := range s.order {
		if e := s.entries[id]; e.state == stateMissed {
			out = append(out, e.post)
		}
	}
	return out, nil
}

func (s *Scheduler) missedCount() int {
	n := 0
	for _, e := range s.entries {
		if e.state == stateMissed {
			n++
		}
	}
	return n
}

// ensureLoaded reads the persisted collection once. Caller holds s.mu.
func (s *Scheduler) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	data, ok, err := s.kv.Get(ctx, CollectionKey)
	if err != nil {
		return &StorageError{Op: "get", Err: err}
	}

	var posts []Post
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &posts); err != nil {
			return &StorageError{Op: "decode", Err: err}
		}
	}

	s.order = make([]string, 0, len(posts))
	s.entries = make(map[string]*entry, len(posts))
	for _, p := range posts {
		if _, dup := s.entries[p.AlarmID]; dup {
			s.logger.Warn("duplicate scheduled post id in store, keeping first", "alarm_id", p.AlarmID)
			continue
		}
		st := statePending
		if p.Status == StatusPosted {
			st = stateDone
		}
		s.order = append(s.order, p.AlarmID)
		s.entries[p.AlarmID] = &entry{post: p, state: st}
	}
	s.loaded = true
	return nil
}

func (s *Scheduler) persist(ctx context.Context, posts []Post) error {
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := s.kv.Set(ctx, CollectionKey, data); err != nil {
		return &StorageError{Op: "set", Err: err}
	}
	return nil
}

func (s *Scheduler) snapshot() []Post {
	out := make([]Post, 0, len(s.order))
	for _, id := range s.order {
		p := s.entries[id].post
		if p.PostedTime != nil {
			t := *p.PostedTime
			p.PostedTime = &t
		}
		out = append(out, p)
	}
	return out
}

func (s *Scheduler) newID(now time.Time) string {
	id := fmt.Sprintf("scheduledPost_%d", now.UnixMilli())
	if _, taken := s.entries[id]; taken {
		id += "_" + uuid.NewString()[:8]
	}
	return id
}
