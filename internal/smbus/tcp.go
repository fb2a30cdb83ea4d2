// internal/smbus/tcp.go
package smbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Bus-over-TCP lets host tooling reach an emulated slave as if it were
// on a local I2C bus. One transaction = one connection.
//
// Request (9-byte header, then w):
// 0-1  Magic "SB"
// 2    Version (0x01)
// 3-4  Address (7-bit)
// 5-6  Write length
// 7-8  Read length
//
// Response: one status byte, then the read bytes when status is OK.

const (
	tcpMagicHi byte = 0x53 // 'S'
	tcpMagicLo byte = 0x42 // 'B'
	tcpVersion byte = 0x01

	tcpHeaderLen = 9

	tcpOK          byte = 0x00
	tcpAddressNack byte = 0x01
	tcpDataNack    byte = 0x02
	tcpBusError    byte = 0x03

	tcpMaxTransfer = 1024
)

// ---- server ----

// Serve answers Bus-over-TCP requests on ln with bus until ctx is done.
func Serve(ctx context.Context, ln net.Listener, bus i2c.Bus, log logrus.FieldLogger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("smbus tcp: accept: %w", err)
		}
		go func() {
			defer conn.Close()
			if err := serveOne(conn, bus); err != nil {
				log.WithError(err).WithField("peer", conn.RemoteAddr().String()).Debug("smbus tcp request failed")
			}
		}()
	}
}

func serveOne(conn net.Conn, bus i2c.Bus) error {
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var hdr [tcpHeaderLen]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if hdr[0] != tcpMagicHi || hdr[1] != tcpMagicLo || hdr[2] != tcpVersion {
		return errors.New("bad magic or version")
	}

	addr := getU16(hdr[3:5])
	wlen := int(getU16(hdr[5:7]))
	rlen := int(getU16(hdr[7:9]))
	if wlen > tcpMaxTransfer || rlen > tcpMaxTransfer {
		return fmt.Errorf("transfer too large: w=%d r=%d", wlen, rlen)
	}

	w := make([]byte, wlen)
	if _, err := io.ReadFull(conn, w); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	r := make([]byte, rlen)

	var code byte
	switch err := bus.Tx(addr, w, r); {
	case err == nil:
		code = tcpOK
	case errors.Is(err, ErrAddressNack):
		code = tcpAddressNack
	case errors.Is(err, ErrDataNack):
		code = tcpDataNack
	default:
		code = tcpBusError
	}

	out := []byte{code}
	if code == tcpOK {
		out = append(out, r...)
	}
	_, err := conn.Write(out)
	return err
}

// ---- client ----

// TCPBus is an i2c.Bus that forwards transactions to Serve.
type TCPBus struct {
	endpoint string
	timeout  time.Duration
}

// DialTCP returns a bus for endpoint. No connection is made until Tx.
func DialTCP(endpoint string, timeout time.Duration) (*TCPBus, error) {
	if endpoint == "" {
		return nil, errors.New("smbus tcp: endpoint required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPBus{endpoint: endpoint, timeout: timeout}, nil
}

func (b *TCPBus) String() string { return "tcp(" + b.endpoint + ")" }

func (b *TCPBus) SetSpeed(physic.Frequency) error { return nil }

func (b *TCPBus) Close() error { return nil }

func (b *TCPBus) Tx(addr uint16, w, r []byte) error {
	if len(w) > tcpMaxTransfer || len(r) > tcpMaxTransfer {
		return fmt.Errorf("smbus tcp: transfer too large")
	}

	pkt := make([]byte, tcpHeaderLen, tcpHeaderLen+len(w))
	pkt[0] = tcpMagicHi
	pkt[1] = tcpMagicLo
	pkt[2] = tcpVersion
	putU16(pkt[3:5], addr)
	putU16(pkt[5:7], uint16(len(w)))
	putU16(pkt[7:9], uint16(len(r)))
	pkt = append(pkt, w...)

	conn, err := net.DialTimeout("tcp", b.endpoint, b.timeout)
	if err != nil {
		return fmt.Errorf("smbus tcp: dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(b.timeout))
	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("smbus tcp: write: %w", err)
	}

	var code [1]byte
	if _, err := io.ReadFull(conn, code[:]); err != nil {
		return fmt.Errorf("smbus tcp: read status: %w", err)
	}

	switch code[0] {
	case tcpOK:
		if _, err := io.ReadFull(conn, r); err != nil {
			return fmt.Errorf("smbus tcp: read data: %w", err)
		}
		return nil
	case tcpAddressNack:
		return ErrAddressNack
	case tcpDataNack:
		return ErrDataNack
	default:
		return fmt.Errorf("smbus tcp: remote bus error 0x%02x", code[0])
	}
}

func putU16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

func getU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
