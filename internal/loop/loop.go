// internal/loop/loop.go
package loop

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one polled collaborator. Poll must not block for long: the
// whole loop shares one goroutine.
type Task interface {
	Poll()
}

// TaskFunc adapts a function to Task.
type TaskFunc func()

func (f TaskFunc) Poll() { f() }

// Kicker is fed once per pass.
type Kicker interface {
	Kick()
}

// Config is the immutable loop setup.
type Config struct {
	Interval time.Duration
	Kicker   Kicker // optional
	Log      logrus.FieldLogger
}

// Loop is the cooperative main loop: every tick it runs each task once,
// in registration order.
type Loop struct {
	cfg   Config
	names []string
	tasks []Task
	slow  time.Duration
}

// New creates a loop with no tasks.
func New(cfg Config) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("loop: interval must be > 0")
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Loop{cfg: cfg, slow: 10 * cfg.Interval}, nil
}

// Add appends a task. Not safe once Run has started.
func (l *Loop) Add(name string, t Task) {
	l.names = append(l.names, name)
	l.tasks = append(l.tasks, t)
}

// RunOnce performs exactly one pass.
func (l *Loop) RunOnce() {
	start := time.Now()
	for _, t := range l.tasks {
		t.Poll()
	}
	if l.cfg.Kicker != nil {
		l.cfg.Kicker.Kick()
	}
	if d := time.Since(start); d > l.slow {
		l.cfg.Log.WithField("took", d.String()).Warn("main loop pass overran")
	}
}

// Run ticks until ctx is done. Passes never overlap.
func (l *Loop) Run(ctx context.Context) error {
	l.cfg.Log.WithField("tasks", l.names).Info("main loop started")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.RunOnce()
		}
	}
}
