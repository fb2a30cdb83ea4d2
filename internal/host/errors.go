// internal/host/errors.go
package host

import (
	"errors"
	"fmt"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

var (
	// ErrTimeout is returned when the device stays BUSY past the deadline.
	ErrTimeout = errors.New("host: timed out waiting for device")
	// ErrNack is returned when the device refuses a read.
	ErrNack = errors.New("host: read not acknowledged")
)

// PECError reports a read reply whose PEC byte does not match.
type PECError struct {
	Cmd  uint8
	Got  uint8
	Want uint8
}

func (e *PECError) Error() string {
	return fmt.Sprintf("host: PEC mismatch on 0x%02x: got 0x%02x, want 0x%02x", e.Cmd, e.Got, e.Want)
}

// StatusError reports error bits raised by the device after a write.
type StatusError struct {
	Cmd    uint8
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host: command 0x%02x left status 0x%02x (%s)", e.Cmd, e.Status, describe(e.Status))
}

// PECFailed reports whether the device rejected the frame integrity.
func (e *StatusError) PECFailed() bool { return e.Status&status.PECError != 0 }

// UpgradeFailed reports whether the device rejected an upgrade step.
func (e *StatusError) UpgradeFailed() bool { return e.Status&status.UpgradeError != 0 }

func describe(s uint8) string {
	var out string
	add := func(bit uint8, name string) {
		if s&bit == 0 {
			return
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	add(status.Busy, "busy")
	add(status.PECError, "pec")
	add(status.UpgradeError, "upgrade")
	add(status.BusError, "bus")
	if out == "" {
		return "ok"
	}
	return out
}
