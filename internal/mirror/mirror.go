// internal/mirror/mirror.go
package mirror

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Mirror periodically publishes a Source into a register memory.
// It owns the seconds-in-error counter: +1 per second while any sticky
// error bit is set, reset on recovery, saturating at 65535.
type Mirror struct {
	src      Source
	status   *statusWriter
	regs     *registerWriter
	interval time.Duration
	log      logrus.FieldLogger

	secondsInError uint16
}

// New builds a mirror writing through cli.
func New(plan Plan, cli endpointClient, src Source, interval time.Duration, log logrus.FieldLogger) (*Mirror, error) {
	if cli == nil {
		return nil, errors.New("mirror: client required")
	}
	if src == nil {
		return nil, errors.New("mirror: source required")
	}
	if interval <= 0 {
		return nil, errors.New("mirror: interval must be > 0")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Mirror{
		src:      src,
		status:   newStatusWriter(plan, cli),
		regs:     newRegisterWriter(plan, cli),
		interval: interval,
		log:      log.WithField("endpoint", plan.Endpoint),
	}, nil
}

// PublishOnce writes the current snapshot and register file.
func (m *Mirror) PublishOnce() error {
	snap := m.src.Snapshot()
	snap.SecondsInError = m.secondsInError

	var errs []string
	if err := m.status.WriteStatus(snap); err != nil {
		errs = append(errs, err.Error())
	}
	if err := m.regs.WriteRegisters(m.src.Registers().Snapshot()); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// tickSecond advances the seconds-in-error counter.
func (m *Mirror) tickSecond() {
	if !m.src.Snapshot().Errored() {
		m.secondsInError = 0
		return
	}
	if m.secondsInError < 65535 {
		m.secondsInError++
	}
}

// Run publishes every interval until ctx is done. Delivery failures are
// logged and retried on the next tick.
func (m *Mirror) Run(ctx context.Context) error {
	pub := time.NewTicker(m.interval)
	defer pub.Stop()
	sec := time.NewTicker(time.Second)
	defer sec.Stop()

	// identity re-assert on start
	if err := m.PublishOnce(); err != nil {
		m.log.WithError(err).Warn("mirror publish failed on start")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sec.C:
			m.tickSecond()
		case <-pub.C:
			if err := m.PublishOnce(); err != nil {
				m.log.WithError(err).Warn("mirror publish failed")
			}
		}
	}
}

// SecondsInError returns the current counter.
func (m *Mirror) SecondsInError() uint16 { return m.secondsInError }

