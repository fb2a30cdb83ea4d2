// internal/watchdog/watchdog.go
package watchdog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Watchdog is a software stand-in for the hardware watchdog. The main
// loop and long flash operations Kick it; if nobody kicks for Timeout
// the OnExpire hook runs once per expiry.
type Watchdog struct {
	timeout  time.Duration
	log      logrus.FieldLogger
	onExpire func()

	last    atomic.Int64 // unix nanos of the last kick
	expired atomic.Bool
	resets  atomic.Uint32
}

// New returns an armed watchdog. onExpire may be nil.
func New(timeout time.Duration, log logrus.FieldLogger, onExpire func()) *Watchdog {
	w := &Watchdog{timeout: timeout, log: log, onExpire: onExpire}
	w.Kick()
	return w
}

// Kick restarts the countdown.
func (w *Watchdog) Kick() {
	w.last.Store(time.Now().UnixNano())
	w.expired.Store(false)
}

// Resets reports how many times the watchdog has fired.
func (w *Watchdog) Resets() uint32 {
	return w.resets.Load()
}

// Check fires the watchdog if the last kick is older than the timeout.
func (w *Watchdog) Check(now time.Time) bool {
	idle := now.Sub(time.Unix(0, w.last.Load()))
	if idle < w.timeout {
		return false
	}
	if !w.expired.CompareAndSwap(false, true) {
		return false
	}

	w.resets.Add(1)
	w.log.WithField("idle", idle.String()).Error("watchdog expired")
	if w.onExpire != nil {
		w.onExpire()
	}
	return true
}

// Run polls Check at a quarter of the timeout until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.timeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}
