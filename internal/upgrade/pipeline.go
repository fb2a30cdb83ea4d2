// internal/upgrade/pipeline.go
package upgrade

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/clock"
	"github.com/cherryCheese/HouWu-CMM/internal/crc"
	"github.com/cherryCheese/HouWu-CMM/internal/flash"
	"github.com/cherryCheese/HouWu-CMM/internal/ihex"
)

// ---- DEFAULTS ----

// DefaultFirmwareStart is the link address of the application image.
const DefaultFirmwareStart uint32 = 0x4000

// DefaultActivationDelay is the time between a successful verify and
// the header write, in milliseconds.
const DefaultActivationDelay uint32 = 3000

const verifyChunk = 256

// Options configures a Pipeline.
type Options struct {
	FirmwareStart   uint32
	ActivationDelay uint32
	Kicker          flash.Kicker
	Log             logrus.FieldLogger
}

// Pipeline stages an IHEX stream into flash, verifies it and schedules
// the header write.
//
// Start, SendData, Activate and Poll run on the main loop only.
// State and ImageSize may be read from any goroutine.
type Pipeline struct {
	flash flash.Flash
	opts  Options

	state    atomic.Uint32
	lastAddr atomic.Uint32

	stage       uint32
	upper       uint32
	eof         bool
	scheduled   bool
	scheduledAt uint32
}

// New returns an idle pipeline.
func New(f flash.Flash, opts Options) *Pipeline {
	if opts.ActivationDelay == 0 {
		opts.ActivationDelay = DefaultActivationDelay
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Pipeline{
		flash: f,
		opts:  opts,
		stage: f.BlockSize(),
	}
}

// State returns the current upgrade state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// ImageSize returns the highest offset written so far (image + CRC).
func (p *Pipeline) ImageSize() uint32 {
	return p.lastAddr.Load()
}

func (p *Pipeline) setState(s State) {
	p.state.Store(uint32(s))
}

func (p *Pipeline) fail(err error) error {
	p.setState(Failed)
	p.scheduled = false
	return err
}

// Start erases the whole device, which also drops any header written by
// an earlier activation, and resets the parser.
func (p *Pipeline) Start() error {
	p.setState(Erasing)
	p.lastAddr.Store(0)
	p.upper = 0
	p.eof = false
	p.scheduled = false
	p.stage = p.flash.BlockSize()

	p.opts.Log.Info("upgrade start, erasing flash")

	if err := p.flash.Erase(0, flash.EraseAll); err != nil {
		return p.fail(errors.Wrap(err, "upgrade: erase"))
	}
	return nil
}

// SendData consumes one binary IHEX record. It reports whether the
// record was the EOF record.
//
// A record that fails validation is rejected without touching flash or
// the upgrade state, so the host can retransmit it.
func (p *Pipeline) SendData(raw []byte) (bool, error) {
	switch p.State() {
	case Erasing, Receiving:
	default:
		return false, errors.Wrapf(ErrState, "send data in %s", p.State())
	}

	rec, err := ihex.Decode(raw)
	if err != nil {
		return false, err
	}

	switch rec.Type {
	case ihex.TypeData:
		abs := p.upper | uint32(rec.Address)
		if abs < p.opts.FirmwareStart {
			return false, errors.Wrapf(ErrAddress, "addr=0x%x", abs)
		}
		off := abs - p.opts.FirmwareStart

		if err := p.flash.Program(p.stage+off, rec.Data); err != nil {
			return false, p.fail(errors.Wrapf(err, "upgrade: program offset 0x%x", off))
		}
		if end := off + uint32(len(rec.Data)); end > p.lastAddr.Load() {
			p.lastAddr.Store(end)
		}

	case ihex.TypeEOF:
		p.eof = true

	case ihex.TypeExtLinAddr:
		upper, err := rec.UpperAddress()
		if err != nil {
			return false, err
		}
		p.upper = upper
	}

	p.setState(Receiving)
	return rec.Type == ihex.TypeEOF, nil
}

// Activate verifies the staged image and, on success, schedules the
// header write ActivationDelay milliseconds after now.
//
// A repeated ACTIVATE while scheduled re-verifies and restarts the delay.
// Once the header is written it is a no-op.
func (p *Pipeline) Activate(now uint32) error {
	switch st := p.State(); st {
	case Receiving, Scheduled:
	case Activated:
		p.opts.Log.Debug("upgrade already activated, activate ignored")
		return nil
	default:
		return errors.Wrapf(ErrState, "activate in %s", st)
	}
	if !p.eof {
		return ErrNoEOF
	}

	p.setState(Verifying)
	if err := p.Verify(); err != nil {
		return p.fail(err)
	}

	p.scheduled = true
	p.scheduledAt = now
	p.setState(Scheduled)

	p.opts.Log.WithFields(logrus.Fields{
		"size":     p.lastAddr.Load(),
		"delay_ms": p.opts.ActivationDelay,
	}).Info("upgrade verified, activation scheduled")
	return nil
}

// Verify streams the staged image through the CRC and compares it with
// the two trailing bytes, stored little-endian.
func (p *Pipeline) Verify() error {
	size := p.lastAddr.Load()
	if size < 2 {
		return errors.Wrapf(ErrImageTooSmall, "size=%d", size)
	}

	end := p.stage + size - 2
	sum := crc.SeedImage
	buf := make([]byte, verifyChunk)

	if end == p.stage {
		sum = crc.CRC16(sum, nil, crc.PolyCCITT, true)
	}

	for addr := p.stage; addr < end; {
		if p.opts.Kicker != nil {
			p.opts.Kicker.Kick()
		}

		n := end - addr
		if n > verifyChunk {
			n = verifyChunk
		}
		if err := p.flash.Read(addr, buf[:n]); err != nil {
			return errors.Wrapf(err, "upgrade: read 0x%x", addr)
		}

		addr += n
		sum = crc.CRC16(sum, buf[:n], crc.PolyCCITT, addr >= end)
	}

	var stored [2]byte
	if err := p.flash.Read(end, stored[:]); err != nil {
		return errors.Wrap(err, "upgrade: read stored checksum")
	}
	want := uint16(stored[0]) | uint16(stored[1])<<8

	if sum != want {
		return &VerifyError{Computed: sum, Stored: want}
	}
	return nil
}

// Poll performs the deferred header write once the activation delay
// has elapsed. It reports whether the header was written by this call.
func (p *Pipeline) Poll(now uint32) (bool, error) {
	if !p.scheduled || clock.Since(now, p.scheduledAt) < p.opts.ActivationDelay {
		return false, nil
	}
	p.scheduled = false

	hdr, _ := Header{Magic: Magic, Size: p.lastAddr.Load()}.MarshalBinary()
	if err := p.flash.Program(0, hdr); err != nil {
		return false, p.fail(errors.Wrap(err, "upgrade: write header"))
	}

	p.setState(Activated)
	p.opts.Log.WithField("size", p.lastAddr.Load()).Info("upgrade activated, power cycle to install")
	return true, nil
}
