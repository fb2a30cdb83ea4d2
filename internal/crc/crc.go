// internal/crc/crc.go
package crc

// Bit-serial CRC helpers shared by the SMBus PEC, the staged image check
// and the persistent store checksum.
//
// All variants shift message bits in at the bottom of the register,
// MSB first, and XOR the polynomial whenever a bit falls off the top.
// Padding appends zero bytes so that the register holds the remainder
// of message*x^n, which is what gets transmitted or stored.

// ---- POLYNOMIALS ----

// PolyPEC is the SMBus packet error code polynomial (x^8 + x^2 + x + 1).
const PolyPEC uint8 = 0x07

// PolyCCITT is the CRC-16 polynomial used for image verification.
const PolyCCITT uint16 = 0x1021

// SeedImage is the initial register value for image verification.
const SeedImage uint16 = 0xFFFF

// CRC8 folds buf into seed. When pad is set one zero byte is processed
// after buf.
func CRC8(seed uint8, buf []byte, poly uint8, pad bool) uint8 {
	crc := seed
	for _, c := range buf {
		crc = step8(crc, c, poly)
	}
	if pad {
		crc = step8(crc, 0, poly)
	}
	return crc
}

// CRC16 folds buf into seed. When pad is set two zero bytes are processed
// after buf.
func CRC16(seed uint16, buf []byte, poly uint16, pad bool) uint16 {
	crc := seed
	for _, c := range buf {
		crc = step16(crc, c, poly)
	}
	if pad {
		crc = step16(crc, 0, poly)
		crc = step16(crc, 0, poly)
	}
	return crc
}

// CRC16Env is the unpadded CRC-16 used to protect persisted key/value
// data. It is identical to CRC16 with pad=false.
func CRC16Env(seed uint16, buf []byte, poly uint16) uint16 {
	return CRC16(seed, buf, poly, false)
}

func step8(crc uint8, c byte, poly uint8) uint8 {
	for i := 0; i < 8; i++ {
		top := crc&0x80 != 0
		crc <<= 1
		if c&0x80 != 0 {
			crc |= 1
		}
		if top {
			crc ^= poly
		}
		c <<= 1
	}
	return crc
}

func step16(crc uint16, c byte, poly uint16) uint16 {
	for i := 0; i < 8; i++ {
		top := crc&0x8000 != 0
		crc <<= 1
		if c&0x80 != 0 {
			crc |= 1
		}
		if top {
			crc ^= poly
		}
		c <<= 1
	}
	return crc
}
