// internal/status/encode.go
package status

import "encoding/binary"

// Encode converts a Snapshot into the live part of the status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotStatusByte] = uint16(s.Status)
	regs[SlotUpgradeState] = uint16(s.UpgradeState)
	regs[SlotImageSizeLow] = uint16(s.ImageSize)
	regs[SlotImageSizeHigh] = uint16(s.ImageSize >> 16)
	regs[SlotDroppedWrites] = s.DroppedWrites
	regs[SlotSecondsInError] = s.SecondsInError

	return regs
}

// EncodeFirmware packs up to FirmwareMaxChars ASCII characters into
// SlotFirmwareSlots registers, two bytes per register, big-endian.
func EncodeFirmware(name string) []uint16 {
	out := make([]uint16, SlotFirmwareSlots)

	b := []byte(name)
	if len(b) > FirmwareMaxChars {
		b = b[:FirmwareMaxChars]
	}

	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < FirmwareMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}

// EncodeRegisters packs the register file two bytes per slot,
// even register in the high byte.
func EncodeRegisters(regs [256]byte) []uint16 {
	out := make([]uint16, RegisterFileSlots)
	for i := range out {
		out[i] = uint16(regs[2*i])<<8 | uint16(regs[2*i+1])
	}
	return out
}

// Pack lays slots out in Modbus memory order (big-endian).
func Pack(regs []uint16) []byte {
	out := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		out = binary.BigEndian.AppendUint16(out, r)
	}
	return out
}
