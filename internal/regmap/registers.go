// internal/regmap/registers.go
package regmap

// Register indexes one byte of the register file.
// Numbering is the wire contract with the host driver and MUST NOT change.
type Register uint8

// ---- VOLTAGES (low, high) ----

const (
	V5AuxLow  Register = 0x01
	V5AuxHigh Register = 0x02
	V3V3Low   Register = 0x03
	V3V3High  Register = 0x04
	V5Low     Register = 0x05
	V5High    Register = 0x06
	V12Low    Register = 0x07
	V12High   Register = 0x08
	VM12Low   Register = 0x09
	VM12High  Register = 0x0A
)

// ---- POWER SEQUENCING ----

const (
	SelSSPSOn Register = 0x10
	SSPSOnIn  Register = 0x11
	ExtPSOnIn Register = 0x12
	PSOnOut1  Register = 0x13
	PSOnOut2  Register = 0x14
	PSOnOut3  Register = 0x15
	PSOnOut4  Register = 0x16
	ACOK      Register = 0x17
	PwrOK     Register = 0x18
	Remote    Register = 0x19
)

// ---- FANS ----

const (
	SetFan        Register = 0x20
	FanCurve      Register = 0x21
	FanTacho1Low  Register = 0x22
	FanTacho1High Register = 0x23
	FanTacho2Low  Register = 0x24
	FanTacho2High Register = 0x25
	FanTacho3Low  Register = 0x26
	FanTacho3High Register = 0x27
	FanTacho4Low  Register = 0x28
	FanTacho4High Register = 0x29
	FanTacho5Low  Register = 0x2A
	FanTacho5High Register = 0x2B
	FanTacho6Low  Register = 0x2C
	FanTacho6High Register = 0x2D
	FanUnitReady  Register = 0x2E
	FanFail       Register = 0x2F
	FanSpeed      Register = 0x30
	MaxSpeed      Register = 0x31
)

// ---- TEMPERATURES ----

const (
	TempAirInlet   Register = 0x38
	TempAirOutlet1 Register = 0x39
	TempAirOutlet2 Register = 0x3A
	TempAirOutlet3 Register = 0x3B
	TempAirOutlet4 Register = 0x3C
	TempFail       Register = 0x3D
)

// ---- TRIGGER BRIDGES ----

const (
	TBPres Register = 0x40
	TB1En  Register = 0x41
	TB1Dir Register = 0x42
	TB2En  Register = 0x43
	TB2Dir Register = 0x44
	TB3En  Register = 0x45
	TB3Dir Register = 0x46
	TB4En  Register = 0x47
	TB4Dir Register = 0x48
)

// ---- CLOCK MODULE PASS-THROUGH ----

const (
	AddLow            Register = 0x50
	AddHigh           Register = 0x51
	Data              Register = 0x52
	WriteData         Register = 0x53
	ClockModulPresent Register = 0x54
	Sync100Div        Register = 0x55
	ClockModuleFW1    Register = 0x56 // ..0x5F
)

// ClockModuleFWLen is the length of the clock module firmware string.
const ClockModuleFWLen = 10

// ---- IDENTIFICATION ----

const (
	Config     Register = 0x60
	CMMVersion Register = 0x61
	CMMFW1     Register = 0x62 // ..0x6B
)

// CMMFWLen is the length of the CMM firmware number string.
const CMMFWLen = 10

// ---- POWER DISTRIBUTION BOARD ----

const (
	PDBPower3V3Low       Register = 0x70
	PDBPower3V3High      Register = 0x71
	PDBMaxPower3V3Low    Register = 0x72
	PDBMaxPower3V3High   Register = 0x73
	PDBPower5VLow        Register = 0x74
	PDBPower5VHigh       Register = 0x75
	PDBMaxPower5VLow     Register = 0x76
	PDBMaxPower5VHigh    Register = 0x77
	PDBPower12VLow       Register = 0x78
	PDBPower12VHigh      Register = 0x79
	PDBMaxPower12VLow    Register = 0x7A
	PDBMaxPower12VHigh   Register = 0x7B
	PDBMaxPowerTotalLow  Register = 0x7C
	PDBMaxPowerTotalHigh Register = 0x7D
	PDBProductNum1       Register = 0x80 // ..0x87
	PDBSerialNum1        Register = 0x88 // ..0x93
)

const (
	PDBProductNumLen = 8
	PDBSerialNumLen  = 12
)

// ---- COMMANDS ----
// Command codes share the byte space with registers. A command that
// names a register reads (and where allowed writes) that register.

const (
	CmdGetStatus       Register = 0xD0
	CmdUpgradeStart    Register = 0xD1
	CmdUpgradeSendData Register = 0xD2
	CmdUpgradeActivate Register = 0xD3
	CmdUpgradeState    Register = 0xD4
)

// TriggerBridgeRegs returns the (enable, direction) registers of bridge n (0..3).
func TriggerBridgeRegs(n int) (en, dir Register) {
	en = TB1En + Register(2*n)
	return en, en + 1
}
