// internal/bridge/bridge.go
package bridge

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/clock"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
)

// Downstream addresses (7-bit).
const (
	TriggerBridgeBase uint16 = 0x20 // four bridges at 0x20..0x23
	ClockModule       uint16 = 0x54
)

const triggerBridges = 4

// Trigger bridge (port expander) registers.
const (
	tbOutput0 byte = 2
	tbOutput1 byte = 3
	tbConfig0 byte = 6
	tbConfig1 byte = 7
)

// Clock module registers.
const (
	cmFirmware byte = 0
	cmSync100  byte = 4
	cmPLLAddr  byte = 8
	cmPLLData  byte = 12
)

const (
	DefaultInterval uint32 = 1000
	DefaultTimeout         = 50 * time.Millisecond
)

type Options struct {
	Interval uint32 // ms between write-outs
	Timeout  time.Duration
	Log      logrus.FieldLogger
}

// Bridge mirrors register-file values to the trigger bridges and the
// clock module and reads their identification back. It runs from the
// main loop; every transfer is bounded by Options.Timeout.
type Bridge struct {
	m    Master
	regs *regmap.File
	clk  clock.Clock
	opts Options
	log  logrus.FieldLogger

	scan      bool
	present   uint8
	lastWrite uint32
	lastSync  uint8
}

// New returns a bridge that scans on its first Poll. SYNC100_DIV
// starts at 1.
func New(m Master, regs *regmap.File, clk clock.Clock, opts Options) *Bridge {
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	regs.Set(regmap.Sync100Div, 1)

	return &Bridge{
		m:         m,
		regs:      regs,
		clk:       clk,
		opts:      opts,
		log:       opts.Log,
		scan:      true,
		lastWrite: clk.Now(),
	}
}

// Rescan requests presence detection on the next Poll.
func (b *Bridge) Rescan() { b.scan = true }

// Present returns the trigger bridge presence mask.
func (b *Bridge) Present() uint8 { return b.present }

// Poll is the main-loop step.
func (b *Bridge) Poll() {
	if b.scan {
		b.scan = false
		b.scanTriggerBridges()
		b.readClockModule()
	}

	now := b.clk.Now()
	if clock.Since(now, b.lastWrite) < b.opts.Interval {
		return
	}
	b.lastWrite = now

	b.writeTriggerBridges()
	b.writeClockModule()
}

// ---- trigger bridges ----

func (b *Bridge) scanTriggerBridges() {
	var mask uint8
	for i := 0; i < triggerBridges; i++ {
		if b.probe(TriggerBridgeBase + uint16(i)) {
			mask |= 1 << i
		}
	}
	b.present = mask
	b.regs.Set(regmap.TBPres, mask)
	b.log.WithField("present", mask).Debug("trigger bridges scanned")
}

// writeTriggerBridges drives both expander ports: the enable mask selects
// outputs (config bit 0 = output) and the direction mask is driven
// complementary on port 0 and straight on port 1.
func (b *Bridge) writeTriggerBridges() {
	for i := 0; i < triggerBridges; i++ {
		if b.present&(1<<i) == 0 {
			continue
		}
		en, dir := regmap.TriggerBridgeRegs(i)
		enV, dirV := b.regs.Get(en), b.regs.Get(dir)
		addr := TriggerBridgeBase + uint16(i)

		b.write(addr, tbConfig0, ^enV)
		b.write(addr, tbConfig1, ^enV)
		b.write(addr, tbOutput0, ^dirV)
		b.write(addr, tbOutput1, dirV)
	}
}

// ---- clock module ----

func (b *Bridge) readClockModule() {
	present := b.probe(ClockModule)
	if !present {
		b.regs.Set(regmap.ClockModulPresent, 0)
		return
	}
	b.regs.Set(regmap.ClockModulPresent, 1)

	fw := make([]byte, regmap.ClockModuleFWLen)
	if res := b.m.Transfer(ClockModule, []byte{cmFirmware}, fw, b.opts.Timeout); res != OK {
		b.log.WithField("result", res).Warn("clock module firmware read failed")
		return
	}
	b.regs.SetBytes(regmap.ClockModuleFW1, fw)
}

func (b *Bridge) writeClockModule() {
	if b.regs.Get(regmap.WriteData) == 1 {
		b.regs.Set(regmap.WriteData, 0)
		hi, lo := b.regs.Get(regmap.AddHigh), b.regs.Get(regmap.AddLow)
		b.transfer(ClockModule, []byte{cmPLLAddr, hi, lo})
		b.write(ClockModule, cmPLLData, b.regs.Get(regmap.Data))
	}

	if v := b.regs.Get(regmap.Sync100Div); v != b.lastSync {
		b.write(ClockModule, cmSync100, v)
		b.lastSync = v
	}
}

// ---- helpers ----

func (b *Bridge) probe(addr uint16) bool {
	return b.m.Transfer(addr, []byte{0}, nil, b.opts.Timeout) == OK
}

func (b *Bridge) write(addr uint16, reg, v byte) {
	b.transfer(addr, []byte{reg, v})
}

func (b *Bridge) transfer(addr uint16, w []byte) {
	if res := b.m.Transfer(addr, w, nil, b.opts.Timeout); res != OK {
		b.log.WithFields(logrus.Fields{
			"addr":   addr,
			"reg":    w[0],
			"result": res,
		}).Debug("bridge write failed")
	}
}
