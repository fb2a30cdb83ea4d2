// internal/host/programmer.go
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/ihex"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
	"github.com/cherryCheese/HouWu-CMM/internal/upgrade"
)

// Programming phases reported through Progress.
const (
	PhaseErasing    = "erasing"
	PhaseSending    = "sending"
	PhaseActivating = "activating"
	PhaseComplete   = "complete"
)

// Progress describes how far a programming run has come.
type Progress struct {
	Phase       string
	Record      int
	Records     int
	Bytes       int
	Percentage  float64
	ElapsedTime time.Duration
}

// ProgressCallback receives Progress updates. It must return quickly.
type ProgressCallback func(Progress)

// RecordError reports a record the device refused.
type RecordError struct {
	Index  int
	Record ihex.Record
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.Record, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Program streams recs into the device and schedules activation:
//  1. UPGRADE_START, wait for the erase
//  2. one UPGRADE_SEND_DATA per record, resent on PEC_ERROR
//  3. UPGRADE_ACTIVATE and confirm the device verified the image
//
// The last record must be the end-of-file record.
func (c *Client) Program(ctx context.Context, recs []ihex.Record) error {
	if len(recs) == 0 || recs[len(recs)-1].Type != ihex.TypeEOF {
		return errors.New("host: record list must end with an EOF record")
	}

	started := time.Now()
	log := c.cfg.Log.WithField("device", c.String())

	// Phase 1: erase
	c.report(Progress{Phase: PhaseErasing, Records: len(recs)})
	if err := c.startUpgrade(ctx); err != nil {
		return fmt.Errorf("upgrade start: %w", err)
	}
	log.Debug("flash erased")

	// Phase 2: records
	sent := 0
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		if err := c.sendRecord(ctx, rec); err != nil {
			return &RecordError{Index: i, Record: rec, Err: err}
		}
		sent += len(rec.Data)
		c.report(Progress{
			Phase:       PhaseSending,
			Record:      i + 1,
			Records:     len(recs),
			Bytes:       sent,
			Percentage:  5 + float64(i+1)/float64(len(recs))*90,
			ElapsedTime: time.Since(started),
		})
	}

	// Phase 3: activate
	c.report(Progress{Phase: PhaseActivating, Record: len(recs), Records: len(recs), Bytes: sent, Percentage: 96})
	if err := c.Activate(ctx); err != nil {
		return fmt.Errorf("upgrade activate: %w", err)
	}

	c.report(Progress{
		Phase:       PhaseComplete,
		Record:      len(recs),
		Records:     len(recs),
		Bytes:       sent,
		Percentage:  100,
		ElapsedTime: time.Since(started),
	})
	log.WithFields(logrus.Fields{
		"records": len(recs),
		"bytes":   sent,
		"elapsed": time.Since(started).String(),
	}).Info("upgrade scheduled")
	return nil
}

// Activate sends UPGRADE_ACTIVATE and checks the device reached SCHEDULED.
func (c *Client) Activate(ctx context.Context) error {
	if err := c.retry(ctx, regmap.CmdUpgradeActivate); err != nil {
		return err
	}
	st, err := c.UpgradeState()
	if err != nil {
		return err
	}
	if st != upgrade.Scheduled && st != upgrade.Activated {
		return fmt.Errorf("host: device in state %s after activate", st)
	}
	return nil
}

// WaitActivated polls UPGRADE_STATE until the header has been written.
func (c *Client) WaitActivated(ctx context.Context) error {
	for {
		st, err := c.UpgradeState()
		if err == nil {
			switch st {
			case upgrade.Activated:
				return nil
			case upgrade.Failed:
				return errors.New("host: activation failed on device")
			}
		}
		select {
		case <-ctx.Done():
			return ErrTimeout
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func (c *Client) startUpgrade(ctx context.Context) error {
	if _, err := c.WaitIdle(ctx); err != nil {
		return err
	}
	if err := c.Send(regmap.CmdUpgradeStart); err != nil {
		return err
	}

	erase := *c
	erase.cfg.Timeout = c.cfg.EraseTimeout
	st, err := erase.WaitIdle(ctx)
	if err != nil {
		return err
	}
	if st&(status.PECError|status.UpgradeError) != 0 {
		return &StatusError{Cmd: byte(regmap.CmdUpgradeStart), Status: st}
	}
	return nil
}

func (c *Client) sendRecord(ctx context.Context, rec ihex.Record) error {
	raw := rec.Bytes()
	return c.retry(ctx, regmap.CmdUpgradeSendData, append([]byte{byte(len(raw))}, raw...)...)
}

// retry resends a frame the device rejected with PEC_ERROR. UPGRADE_ERROR
// is final.
func (c *Client) retry(ctx context.Context, cmd regmap.Register, payload ...byte) error {
	var err error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		err = c.exec(ctx, status.PECError|status.UpgradeError, cmd, payload...)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || se.UpgradeFailed() {
			return err
		}
		c.cfg.Log.WithFields(logrus.Fields{
			"cmd":     fmt.Sprintf("0x%02x", byte(cmd)),
			"attempt": attempt + 1,
		}).Warn("device reported PEC error, resending")
	}
	return err
}

func (c *Client) report(p Progress) {
	if c.cfg.Progress != nil {
		c.cfg.Progress(p)
	}
}
