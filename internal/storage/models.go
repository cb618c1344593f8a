package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Draft is one generation: the segmented items and brainstorming questions
// produced for a request.
type Draft struct {
	ID        string
	CreatedAt time.Time
	Kind      string // "reply", "post", "ideas"
	Input     string
	Tone      string
	Model     string
	Items     []string
	Questions []string
	RawOutput string
}

// Sample is a piece of the user's own writing used as a style reference.
type Sample struct {
	ID          string
	CreatedAt   time.Time
	Source      string
	ContentType string // "text" or "html"
	Raw         string
	Content     string // plain text; empty until normalized for html samples
	Normalized  bool
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
