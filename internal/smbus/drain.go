// internal/smbus/drain.go
package smbus

import (
	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/crc"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// Poll is the engine's main-loop step: the deferred activation check,
// then at most one pending write command.
func (e *Engine) Poll() {
	now := e.clock.Now()

	if written, err := e.up.Poll(now); err != nil {
		e.log.WithError(err).Error("upgrade activation failed")
		e.status.Set(status.UpgradeError)
	} else if written {
		e.log.Info("upgrade header written")
	}

	if !e.status.Has(status.Busy) {
		return
	}

	frame := e.mail.buf[:e.mail.n]
	e.dispatch(frame, e.mail.seed, now)

	e.status.Clear(status.Busy)
}

func (e *Engine) dispatch(frame []byte, seed uint8, now uint32) {
	cmd := regmap.Register(frame[0])

	w, known := e.writes[cmd]

	valid := crc.PECCheck(seed, frame)
	declared := 0
	if known {
		n, ok := w.length(frame)
		declared = n
		valid = valid && ok && len(frame) == n+1
	}

	if !valid {
		e.status.Set(status.PECError)
		e.log.WithFields(logrus.Fields{
			"cmd": hexByte(frame[0]),
			"len": len(frame),
		}).Warn("smbus PEC mismatch")
		return
	}
	e.status.Clear(status.PECError)

	if !known {
		e.log.WithField("cmd", hexByte(frame[0])).Debug("smbus unknown write ignored")
		return
	}
	w.apply(e, frame[1:declared], now)
}
