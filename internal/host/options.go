// internal/host/options.go
package host

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the client and programmer settings.
type Config struct {
	// Timeout bounds every wait for BUSY to clear.
	Timeout time.Duration

	// EraseTimeout bounds the wait after UPGRADE_START (whole-device erase).
	EraseTimeout time.Duration

	// PollInterval is the GET_STATUS polling period.
	PollInterval time.Duration

	// Retries is the number of resends after a PEC failure.
	Retries int

	// Progress is called during programming (optional).
	Progress ProgressCallback

	Log logrus.FieldLogger
}

func defaultConfig() Config {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return Config{
		Timeout:      2 * time.Second,
		EraseTimeout: 60 * time.Second,
		PollInterval: 5 * time.Millisecond,
		Retries:      3,
		Log:          log,
	}
}

// Option configures a Client.
type Option func(*Config)

// WithTimeout sets the BUSY wait timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithEraseTimeout sets the wait after UPGRADE_START.
func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.EraseTimeout = d
		}
	}
}

// WithPollInterval sets the GET_STATUS polling period.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithRetries sets how often a frame is resent after PEC_ERROR.
func WithRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Retries = n
		}
	}
}

// WithProgress sets the programming progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(c *Config) { c.Progress = cb }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Log = l
		}
	}
}
