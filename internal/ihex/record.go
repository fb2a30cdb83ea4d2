// internal/ihex/record.go
package ihex

import (
	"errors"
	"fmt"
)

// Record types handled by the upgrade pipeline.
const (
	TypeData       = 0x00
	TypeEOF        = 0x01
	TypeExtLinAddr = 0x04
	MaxDataLength  = 252
	recordOverhead = 5 // len + addr(2) + type + checksum
)

var (
	// ErrChecksum reports a record whose byte sum is not zero.
	ErrChecksum = errors.New("ihex: bad record checksum")
	// ErrLength reports a bogus length byte or a truncated record.
	ErrLength = errors.New("ihex: bad record length")
)

// Record is one decoded Intel-HEX record.
type Record struct {
	Type    byte
	Address uint16
	Data    []byte
}

// Decode validates one binary record
// [len, addrHi, addrLo, type, data..., checksum].
// The returned Data aliases b.
func Decode(b []byte) (Record, error) {
	if len(b) < recordOverhead {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrLength, len(b))
	}
	n := int(b[0])
	if n > MaxDataLength {
		return Record{}, fmt.Errorf("%w: length byte %d", ErrLength, n)
	}
	if len(b) != n+recordOverhead {
		return Record{}, fmt.Errorf("%w: length byte %d, have %d bytes", ErrLength, n, len(b))
	}

	var sum byte
	for _, c := range b {
		sum += c
	}
	if sum != 0 {
		return Record{}, ErrChecksum
	}

	return Record{
		Type:    b[3],
		Address: uint16(b[1])<<8 | uint16(b[2]),
		Data:    b[4 : 4+n],
	}, nil
}

// Bytes encodes the record in binary form with its checksum.
func (r Record) Bytes() []byte {
	out := make([]byte, 0, len(r.Data)+recordOverhead)
	out = append(out, byte(len(r.Data)), byte(r.Address>>8), byte(r.Address), r.Type)
	out = append(out, r.Data...)

	var sum byte
	for _, c := range out {
		sum += c
	}
	return append(out, -sum)
}

// UpperAddress returns the latched upper 16 address bits of a type 4 record.
func (r Record) UpperAddress() (uint32, error) {
	if r.Type != TypeExtLinAddr || len(r.Data) < 2 {
		return 0, fmt.Errorf("%w: extended linear address needs 2 bytes", ErrLength)
	}
	return (uint32(r.Data[0])<<8 | uint32(r.Data[1])) << 16, nil
}
