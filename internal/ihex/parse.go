// internal/ihex/parse.go
package ihex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFile reads a .hex file.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader reads ':'-prefixed text records until EOF. Every record is
// checksum-verified; an EOF record must be present.
func ParseReader(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)

	var (
		recs    []Record
		lineNum int
		sawEOF  bool
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}
		if line[0] != ':' {
			return nil, fmt.Errorf("line %d: missing ':' start code", lineNum)
		}

		raw, err := hex.DecodeString(line[1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex data: %w", lineNum, err)
		}

		rec, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		// Decode aliases raw; keep records independent of the scanner.
		rec.Data = append([]byte(nil), rec.Data...)
		recs = append(recs, rec)

		if rec.Type == TypeEOF {
			sawEOF = true
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sawEOF {
		return nil, fmt.Errorf("no end-of-file record")
	}

	return recs, nil
}

// Image flattens data records into a contiguous image starting at base.
// Gaps are filled with 0xFF.
func Image(recs []Record, base uint32) ([]byte, error) {
	var (
		upper uint32
		img   []byte
	)

	for i, rec := range recs {
		switch rec.Type {
		case TypeExtLinAddr:
			u, err := rec.UpperAddress()
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			upper = u
		case TypeData:
			abs := upper | uint32(rec.Address)
			if abs < base {
				return nil, fmt.Errorf("record %d: address 0x%x below image base 0x%x", i, abs, base)
			}
			off := int(abs - base)
			if end := off + len(rec.Data); end > len(img) {
				grown := make([]byte, end)
				for j := len(img); j < end; j++ {
					grown[j] = 0xFF
				}
				copy(grown, img)
				img = grown
			}
			copy(img[off:], rec.Data)
		}
	}
	return img, nil
}

// FromImage encodes img (linked at base) into records of at most chunk
// data bytes, with extended linear address records at every 64 KiB
// boundary and a trailing EOF record.
func FromImage(img []byte, base uint32, chunk int) []Record {
	if chunk <= 0 || chunk > MaxDataLength {
		chunk = 16
	}

	var (
		recs  []Record
		upper = ^uint32(0)
	)

	for off := 0; off < len(img); {
		abs := base + uint32(off)
		if hi := abs &^ 0xFFFF; hi != upper {
			upper = hi
			recs = append(recs, Record{
				Type: TypeExtLinAddr,
				Data: []byte{byte(hi >> 24), byte(hi >> 16)},
			})
		}

		n := chunk
		if rem := len(img) - off; n > rem {
			n = rem
		}
		// never cross a 64 KiB boundary inside one record
		if room := int(0x10000 - abs&0xFFFF); n > room {
			n = room
		}

		recs = append(recs, Record{
			Type:    TypeData,
			Address: uint16(abs),
			Data:    append([]byte(nil), img[off:off+n]...),
		})
		off += n
	}

	return append(recs, Record{Type: TypeEOF})
}

// String renders the record as a text line.
func (r Record) String() string {
	return ":" + strings.ToUpper(hex.EncodeToString(r.Bytes()))
}
