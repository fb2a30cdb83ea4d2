// internal/smbus/commands.go
package smbus

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
	"github.com/cherryCheese/HouWu-CMM/internal/store"
)

type readFunc func(e *Engine) []byte

// writeCmd describes one write command. length returns the declared
// frame length (command byte included, PEC excluded); apply receives
// the payload between the command byte and the PEC.
type writeCmd struct {
	length func(frame []byte) (int, bool)
	apply  func(e *Engine, payload []byte, now uint32)
}

// ---- PERSISTENT REGISTERS ----

type persistentReg struct {
	reg regmap.Register
	key string
}

var persistent = func() []persistentReg {
	regs := []persistentReg{{regmap.FanCurve, store.KeyFanCurve}}
	for n := 0; n < 4; n++ {
		en, dir := regmap.TriggerBridgeRegs(n)
		kEn, kDir := store.TriggerBridgeKeys(n)
		regs = append(regs, persistentReg{en, kEn}, persistentReg{dir, kDir})
	}
	return regs
}()

// ---- READ TABLE ----

var singleRegs = []regmap.Register{
	regmap.SelSSPSOn, regmap.SSPSOnIn, regmap.ExtPSOnIn,
	regmap.PSOnOut1, regmap.PSOnOut2, regmap.PSOnOut3, regmap.PSOnOut4,
	regmap.ACOK, regmap.PwrOK, regmap.Remote,
	regmap.SetFan, regmap.FanCurve, regmap.FanUnitReady, regmap.FanFail,
	regmap.FanSpeed, regmap.MaxSpeed,
	regmap.TempAirInlet, regmap.TempAirOutlet1, regmap.TempAirOutlet2,
	regmap.TempAirOutlet3, regmap.TempAirOutlet4, regmap.TempFail,
	regmap.TBPres,
	regmap.TB1En, regmap.TB1Dir, regmap.TB2En, regmap.TB2Dir,
	regmap.TB3En, regmap.TB3Dir, regmap.TB4En, regmap.TB4Dir,
	regmap.Data, regmap.WriteData, regmap.ClockModulPresent, regmap.Sync100Div,
	regmap.Config, regmap.CMMVersion,
}

var pairRegs = []regmap.Register{
	regmap.V5AuxLow, regmap.V3V3Low, regmap.V5Low, regmap.V12Low, regmap.VM12Low,
	regmap.FanTacho1Low, regmap.FanTacho2Low, regmap.FanTacho3Low,
	regmap.FanTacho4Low, regmap.FanTacho5Low, regmap.FanTacho6Low,
	regmap.AddLow,
	regmap.PDBPower3V3Low, regmap.PDBMaxPower3V3Low,
	regmap.PDBPower5VLow, regmap.PDBMaxPower5VLow,
	regmap.PDBPower12VLow, regmap.PDBMaxPower12VLow,
	regmap.PDBMaxPowerTotalLow,
}

var blockRegs = map[regmap.Register]int{
	regmap.ClockModuleFW1: regmap.ClockModuleFWLen,
	regmap.CMMFW1:         regmap.CMMFWLen,
	regmap.PDBProductNum1: regmap.PDBProductNumLen,
	regmap.PDBSerialNum1:  regmap.PDBSerialNumLen,
}

func readTable() map[regmap.Register]readFunc {
	t := make(map[regmap.Register]readFunc)

	t[regmap.CmdGetStatus] = func(e *Engine) []byte {
		return []byte{e.status.Load()}
	}
	t[regmap.CmdUpgradeState] = func(e *Engine) []byte {
		return []byte{byte(e.up.State())}
	}

	for _, r := range singleRegs {
		r := r
		t[r] = func(e *Engine) []byte {
			return []byte{e.regs.Get(r)}
		}
	}
	for _, r := range pairRegs {
		r := r
		t[r] = func(e *Engine) []byte {
			return []byte{e.regs.Get(r), e.regs.Get(r + 1)}
		}
	}
	for r, n := range blockRegs {
		r, n := r, n
		t[r] = func(e *Engine) []byte {
			return append([]byte{byte(n)}, e.regs.GetBytes(r, n)...)
		}
	}
	return t
}

// ---- WRITE TABLE ----

func fixed(n int) func([]byte) (int, bool) {
	return func([]byte) (int, bool) { return n, true }
}

// blockLength declares [cmd, count, count bytes].
func blockLength(frame []byte) (int, bool) {
	if len(frame) < 2 {
		return 0, false
	}
	return int(frame[1]) + 2, true
}

func setReg(r regmap.Register) func(*Engine, []byte, uint32) {
	return func(e *Engine, p []byte, _ uint32) {
		e.regs.Set(r, p[0])
	}
}

func setPersistent(r regmap.Register, key string) func(*Engine, []byte, uint32) {
	return func(e *Engine, p []byte, _ uint32) {
		e.regs.Set(r, p[0])
		if err := e.env.Set(key, uint32(p[0])); err != nil {
			e.log.WithError(err).WithField("key", key).Warn("persist register failed")
		}
	}
}

func writeTable() map[regmap.Register]writeCmd {
	t := map[regmap.Register]writeCmd{
		regmap.CmdUpgradeStart:    {fixed(1), (*Engine).upgradeStart},
		regmap.CmdUpgradeSendData: {blockLength, (*Engine).upgradeSendData},
		regmap.CmdUpgradeActivate: {fixed(1), (*Engine).upgradeActivate},

		regmap.AddLow: {fixed(3), func(e *Engine, p []byte, _ uint32) {
			e.regs.Set(regmap.AddLow, p[0])
			e.regs.Set(regmap.AddHigh, p[1])
		}},
	}

	for _, r := range []regmap.Register{
		regmap.Remote, regmap.SetFan, regmap.Data, regmap.WriteData, regmap.Sync100Div,
	} {
		t[r] = writeCmd{fixed(2), setReg(r)}
	}
	for _, p := range persistent {
		t[p.reg] = writeCmd{fixed(2), setPersistent(p.reg, p.key)}
	}
	return t
}

// ---- UPGRADE COMMANDS ----

func (e *Engine) upgradeStart(_ []byte, _ uint32) {
	if err := e.up.Start(); err != nil {
		e.log.WithError(err).Error("upgrade flash erase failed")
		e.status.Set(status.UpgradeError)
		return
	}
	e.log.Info("upgrade flash erased")
	e.status.Clear(status.UpgradeError)
}

func (e *Engine) upgradeSendData(p []byte, _ uint32) {
	// p = [count, record...]
	eof, err := e.up.SendData(p[1:])
	if err != nil {
		e.log.WithError(err).WithField("state", e.up.State()).Warn("upgrade record rejected")
		e.status.Set(status.UpgradeError)
		return
	}
	if eof {
		e.log.WithField("size", e.up.ImageSize()).Info("upgrade end of file")
	}
	e.status.Clear(status.UpgradeError)
}

func (e *Engine) upgradeActivate(_ []byte, now uint32) {
	e.log.Info("upgrade activate, verifying image")
	if err := e.up.Activate(now); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"state": e.up.State(),
			"size":  e.up.ImageSize(),
		}).Error("upgrade verification failed")
		e.status.Set(status.UpgradeError)
		return
	}
	e.status.Clear(status.UpgradeError)
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02x", b)
}
