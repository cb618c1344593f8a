package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CollectionKey is the KV key holding the ordered list of scheduled posts.
const CollectionKey = "scheduled_posts"

// Status is the lifecycle state of a scheduled post.
type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
)

// Post is a persisted scheduled post.
type Post struct {
	AlarmID       string     `json:"alarmId"`
	Content       string     `json:"content"`
	ScheduledTime time.Time  `json:"scheduledTimeUtc"`
	Status        Status     `json:"status"`
	PostedTime    *time.Time `json:"postedTimeUtc,omitempty"`
}

// ErrInvalidSchedule is returned when content is empty or the fire time is
// not in the future. Nothing is persisted or armed.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ErrPublishFailed marks a publish attempt that the publisher rejected. The
// post is still marked posted.
var ErrPublishFailed = errors.New("publish failed")

// ErrNotFound is returned by Cancel for an unknown alarm id.
var ErrNotFound = errors.New("scheduled post not found")

// ErrAlreadyPosted is returned by Cancel for a post that already fired or
// is being published.
var ErrAlreadyPosted = errors.New("scheduled post already posted")

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KV is the persistence collaborator.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Alarms arms one-shot timers keyed by id. The implementation delivers
// fire notifications by calling Scheduler.OnFire.
type Alarms interface {
	Arm(id string, at time.Time) error
	Clear(id string) error
	ClearAll() error
}

// Publisher hands post content to whatever actually publishes it.
type Publisher interface {
	Publish(ctx context.Context, content string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RecoveryReport summarizes a Recover pass.
type RecoveryReport struct {
	Rearmed []Post
	Missed  []Post
}
