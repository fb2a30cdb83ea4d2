// internal/smbus/engine.go
package smbus

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/clock"
	"github.com/cherryCheese/HouWu-CMM/internal/crc"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
	"github.com/cherryCheese/HouWu-CMM/internal/store"
	"github.com/cherryCheese/HouWu-CMM/internal/upgrade"
)

// DefaultAddress is the 8-bit (write) slave address.
const DefaultAddress uint8 = 0x58

// MaxFrame is the size of the receive buffer.
const MaxFrame = 256

// BusFlags are the error conditions reported with an error event.
type BusFlags uint32

const (
	FlagSCLLowTimeout BusFlags = 1 << iota
	FlagBusError
	FlagArbitrationLost
)

// Peripheral is the slave hardware as seen from the error handler.
type Peripheral interface {
	ClearStatus(flags BusFlags)
}

// Options configures an Engine.
type Options struct {
	Address         uint8
	FirmwareNumber  string
	FirmwareVersion uint8
	DIPSwitches     uint8
	Peripheral      Peripheral
	Log             logrus.FieldLogger
}

// pending is the single-slot mailbox between the bus handlers and the
// main loop. It is written only by the handler that raised BUSY and
// read only by the main loop before it clears BUSY.
type pending struct {
	buf  [MaxFrame]byte
	n    int
	seed uint8 // PEC accumulator at the end of the address phase
}

// Engine is the SMBus slave protocol engine.
//
// On*-methods run in bus-event context: they are serialized by isrMu,
// never block on flash and only copy bytes and flip status bits.
// Poll runs on the main loop and does all dispatch and flash work.
type Engine struct {
	regs   *regmap.File
	status *status.Register
	up     *upgrade.Pipeline
	env    store.Store
	clock  clock.Clock
	opts   Options
	log    logrus.FieldLogger

	isrMu sync.Mutex
	acc   uint8
	tx    []byte

	mail    pending
	dropped atomic.Uint32

	reads  map[regmap.Register]readFunc
	writes map[regmap.Register]writeCmd
}

// New wires an engine and loads the persistent registers.
func New(regs *regmap.File, up *upgrade.Pipeline, env store.Store, clk clock.Clock, opts Options) *Engine {
	if opts.Address == 0 {
		opts.Address = DefaultAddress
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	e := &Engine{
		regs:   regs,
		status: &status.Register{},
		up:     up,
		env:    env,
		clock:  clk,
		opts:   opts,
		log:    opts.Log,
	}
	e.reads = readTable()
	e.writes = writeTable()
	e.loadRegisters()
	return e
}

func (e *Engine) loadRegisters() {
	for _, p := range persistent {
		e.regs.Set(p.reg, byte(e.env.Get(p.key)))
	}

	fw := make([]byte, regmap.CMMFWLen)
	copy(fw, e.opts.FirmwareNumber)
	e.regs.SetBytes(regmap.CMMFW1, fw)
	e.regs.Set(regmap.CMMVersion, e.opts.FirmwareVersion)
	e.regs.Set(regmap.Config, e.opts.DIPSwitches&0x0F)
}

// Registers returns the register file the engine serves.
func (e *Engine) Registers() *regmap.File { return e.regs }

// Status returns the StatusByte.
func (e *Engine) Status() uint8 { return e.status.Load() }

// Dropped returns the number of writes discarded while BUSY.
func (e *Engine) Dropped() uint32 { return e.dropped.Load() }

// Snapshot returns the mirror view of the engine.
func (e *Engine) Snapshot() status.Snapshot {
	d := e.dropped.Load()
	if d > 0xFFFF {
		d = 0xFFFF
	}
	return status.Snapshot{
		Status:        e.status.Load(),
		UpgradeState:  uint8(e.up.State()),
		ImageSize:     e.up.ImageSize(),
		DroppedWrites: uint16(d),
	}
}

// ---- BUS EVENTS ----

// OnWriteRequest handles an address match with the write bit: the PEC
// accumulator restarts from the slave address.
func (e *Engine) OnWriteRequest() {
	e.isrMu.Lock()
	e.acc = crc.PECSeed(e.opts.Address)
	e.isrMu.Unlock()
}

// OnWriteComplete handles the end of the write phase. With a repeated
// start the bytes are a read command, answered immediately; otherwise
// they are a write command, queued for the main loop unless one is
// already pending.
func (e *Engine) OnWriteComplete(rx []byte, repeatedStart bool) {
	e.isrMu.Lock()
	defer e.isrMu.Unlock()

	if len(rx) == 0 {
		return
	}
	e.status.Clear(status.BusError)

	if repeatedStart {
		e.stageReply(regmap.Register(rx[0]))
		return
	}

	if len(rx) > MaxFrame {
		e.log.WithField("len", len(rx)).Warn("smbus frame overflow, dropped")
		return
	}

	// Only the main loop clears BUSY, so a clear bit stays clear until
	// the Set below publishes the mailbox.
	if e.status.Has(status.Busy) {
		e.dropped.Add(1)
		e.log.WithField("cmd", hexByte(rx[0])).Debug("smbus busy, write dropped")
		return
	}
	e.mail.n = copy(e.mail.buf[:], rx)
	e.mail.seed = e.acc
	e.status.Set(status.Busy)
}

// OnReadRequest returns the staged reply. An empty reply must be NACKed
// by the peripheral.
func (e *Engine) OnReadRequest() []byte {
	e.isrMu.Lock()
	defer e.isrMu.Unlock()

	out := e.tx
	e.tx = nil
	return out
}

// OnError handles a bus fault. The bus releases itself; the master retries.
func (e *Engine) OnError(flags BusFlags) {
	if flags&FlagSCLLowTimeout != 0 {
		e.log.Warn("smbus SCL low timeout")
	} else {
		e.log.WithField("flags", flags).Warn("smbus unknown bus error")
	}
	e.status.Set(status.BusError)
	if e.opts.Peripheral != nil {
		e.opts.Peripheral.ClearStatus(flags)
	}
}

// stageReply runs with isrMu held.
func (e *Engine) stageReply(cmd regmap.Register) {
	fn, ok := e.reads[cmd]
	if !ok {
		e.tx = nil
		return
	}
	reply := fn(e)
	if len(reply) == 0 {
		e.tx = nil
		return
	}

	acc := crc.CRC8(e.acc, []byte{byte(cmd), e.opts.Address | 1}, crc.PolyPEC, false)
	e.tx = append(reply, crc.PEC(acc, reply))
}
