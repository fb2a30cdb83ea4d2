// internal/mirror/ingest/client.go
package ingest

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// ---- Raw Ingest v1 wire format (LOCKED) ----
//
//	0-1  "RI"
//	2    version
//	3    area (3 = holding registers)
//	4-5  unit id   (BE)
//	6-7  address   (BE)
//	8-9  count     (BE)
//	10+  registers (BE)
//
// The receiver answers with one status byte and closes.

const (
	version      = 0x01
	areaHolding  = 3
	headerLen    = 10
	respOK       = 0x00
	respRejected = 0x01

	defaultTimeout = 2 * time.Second
)

var magic = [2]byte{'R', 'I'}

// ErrRejected is returned when the receiver refuses a packet.
var ErrRejected = errors.New("mirror ingest: rejected")

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// EndpointClient pushes register blocks to a raw-ingest receiver.
// Stateless: every packet travels on its own connection.
type EndpointClient struct {
	cfg Config
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mirror ingest: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &EndpointClient{cfg: cfg}, nil
}

// Close is a no-op; there is no connection to release between packets.
func (c *EndpointClient) Close() error { return nil }

// WriteRegisters sends one holding-register block and waits for the ack.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	pkt := encode(unitID, addr, regs)

	conn, err := net.DialTimeout("tcp", c.cfg.Endpoint, c.cfg.Timeout)
	if err != nil {
		return errors.Wrap(err, "mirror ingest: dial")
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return errors.Wrap(err, "mirror ingest: deadline")
	}
	if _, err := conn.Write(pkt); err != nil {
		return errors.Wrap(err, "mirror ingest: send")
	}

	var ack [1]byte
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		return errors.Wrap(err, "mirror ingest: ack")
	}

	switch ack[0] {
	case respOK:
		return nil
	case respRejected:
		return ErrRejected
	}
	return errors.Errorf("mirror ingest: ack 0x%02x", ack[0])
}

func encode(unitID uint8, addr uint16, regs []uint16) []byte {
	pkt := make([]byte, 0, headerLen+2*len(regs))
	pkt = append(pkt, magic[0], magic[1], version, areaHolding)
	pkt = binary.BigEndian.AppendUint16(pkt, uint16(unitID))
	pkt = binary.BigEndian.AppendUint16(pkt, addr)
	pkt = binary.BigEndian.AppendUint16(pkt, uint16(len(regs)))
	return append(pkt, status.Pack(regs)...)
}
