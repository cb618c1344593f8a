// Package alarm provides named one-shot timers on top of a cron runner.
package alarm

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// FireFunc is invoked on a cron goroutine when an alarm matures.
type FireFunc func(id string)

// once is a cron.Schedule that activates exactly once. The runner asks for
// the next activation when the entry is added and again after each run; the
// second answer is the zero time, which the runner treats as "never again".
// An instant already in the past activates immediately.
type once struct {
	at   time.Time
	used bool
}

func (o *once) Next(t time.Time) time.Time {
	if o.used {
		return time.Time{}
	}
	o.used = true
	if t.Before(o.at) {
		return o.at
	}
	return t
}

// Clock arms alarms by id. Arming an id that is already armed replaces it.
type Clock struct {
	cron   *cron.Cron
	fire   FireFunc
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]armed
}

type armed struct {
	entry cron.EntryID
	sched *once
}

// New creates a Clock that calls fire for each matured alarm. The cron
// runner is not started until Start.
func New(fire FireFunc, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		fire:    fire,
		logger:  logger,
		entries: make(map[string]armed),
	}
}

// Start runs the cron scheduler in its own goroutine.
func (c *Clock) Start() { c.cron.Start() }

// Stop halts the scheduler and waits for running fire callbacks to return.
func (c *Clock) Stop() {
	<-c.cron.Stop().Done()
}

// Arm schedules id to fire at the given instant.
func (c *Clock) Arm(id string, at time.Time) error {
	if id == "" {
		return fmt.Errorf("alarm id is empty")
	}
	at = at.UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[id]; ok {
		c.cron.Remove(prev.entry)
	}
	sched := &once{at: at}
	entry := c.cron.Schedule(sched, cron.FuncJob(func() { c.run(id, sched) }))
	c.entries[id] = armed{entry: entry, sched: sched}
	c.logger.Debug("alarm armed", "id", id, "at", at.Format(time.RFC3339))
	return nil
}

// Clear disarms id. Clearing an unknown id is not an error.
func (c *Clock) Clear(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.entries[id]; ok {
		c.cron.Remove(a.entry)
		delete(c.entries, id)
	}
	return nil
}

// ClearAll disarms every alarm.
func (c *Clock) ClearAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, a := range c.entries {
		c.cron.Remove(a.entry)
		delete(c.entries, id)
	}
	return nil
}

// Armed reports the number of alarms still waiting to fire.
func (c *Clock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Clock) run(id string, sched *once) {
	c.mu.Lock()
	a, ok := c.entries[id]
	current := ok && a.sched == sched
	if current {
		c.cron.Remove(a.entry)
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if !current {
		// Cleared or re-armed between maturing and running.
		return
	}
	c.logger.Debug("alarm fired", "id", id)
	c.fire(id)
}
