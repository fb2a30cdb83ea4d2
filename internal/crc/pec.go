// internal/crc/pec.go
package crc

// PECSeed returns the packet error code accumulator after the 8-bit
// (write) slave address has been shifted in.
func PECSeed(addr8 uint8) uint8 {
	return CRC8(0xFF, []byte{addr8}, PolyPEC, false)
}

// PEC closes an accumulator over msg and returns the byte to append.
func PEC(acc uint8, msg []byte) uint8 {
	return CRC8(acc, msg, PolyPEC, true)
}

// PECCheck folds msg, whose last byte is the received PEC, into acc.
// The frame is intact when the result is zero.
func PECCheck(acc uint8, msg []byte) bool {
	return CRC8(acc, msg, PolyPEC, true) == 0
}
