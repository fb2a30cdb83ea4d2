// internal/host/client.go
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/cherryCheese/HouWu-CMM/internal/crc"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/smbus"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
	"github.com/cherryCheese/HouWu-CMM/internal/upgrade"
)

// DefaultAddress is the CMM's 7-bit slave address.
const DefaultAddress uint16 = 0x2C

// Client is an SMBus master talking to one CMM. Every frame carries a
// PEC byte; writes are confirmed by polling GET_STATUS until BUSY clears.
type Client struct {
	dev   *i2c.Dev
	addr8 uint8
	cfg   Config
}

// NewClient returns a client for the device at addr (7-bit) on bus.
func NewClient(bus i2c.Bus, addr uint16, opts ...Option) (*Client, error) {
	if bus == nil {
		return nil, errors.New("host: bus required")
	}
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("host: invalid 7-bit address 0x%02x", addr)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		dev:   &i2c.Dev{Bus: bus, Addr: addr},
		addr8: uint8(addr << 1),
		cfg:   cfg,
	}, nil
}

func (c *Client) String() string { return c.dev.String() }

// ---- reads ----

// Read issues a read command and returns n reply bytes after checking
// the trailing PEC.
func (c *Client) Read(cmd regmap.Register, n int) ([]byte, error) {
	r := make([]byte, n+1)
	if err := c.tx([]byte{byte(cmd)}, r); err != nil {
		return nil, err
	}
	if err := c.checkPEC(cmd, r[:n], r[n]); err != nil {
		return nil, err
	}
	return r[:n], nil
}

// ReadByte reads a single-byte register.
func (c *Client) ReadByte(cmd regmap.Register) (uint8, error) {
	b, err := c.Read(cmd, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadWord reads a (low, high) register pair.
func (c *Client) ReadWord(cmd regmap.Register) (uint16, error) {
	b, err := c.Read(cmd, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadBlock reads a count-prefixed block of at most max bytes.
func (c *Client) ReadBlock(cmd regmap.Register, max int) ([]byte, error) {
	r := make([]byte, max+2)
	if err := c.tx([]byte{byte(cmd)}, r); err != nil {
		return nil, err
	}
	n := int(r[0])
	if n > max {
		return nil, fmt.Errorf("host: block 0x%02x count %d exceeds %d", byte(cmd), n, max)
	}
	if err := c.checkPEC(cmd, r[:n+1], r[n+1]); err != nil {
		return nil, err
	}
	return r[1 : n+1], nil
}

// Status reads GET_STATUS.
func (c *Client) Status() (uint8, error) {
	return c.ReadByte(regmap.CmdGetStatus)
}

// UpgradeState reads UPGRADE_STATE.
func (c *Client) UpgradeState() (upgrade.State, error) {
	b, err := c.ReadByte(regmap.CmdUpgradeState)
	return upgrade.State(b), err
}

// ---- writes ----

// Send writes cmd and payload followed by the PEC without waiting.
func (c *Client) Send(cmd regmap.Register, payload ...byte) error {
	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, byte(cmd))
	frame = append(frame, payload...)
	frame = append(frame, crc.PEC(crc.PECSeed(c.addr8), frame))
	return c.tx(frame, nil)
}

// Write sends a command and waits for the device to process it.
// PEC_ERROR after the command is reported as *StatusError.
func (c *Client) Write(ctx context.Context, cmd regmap.Register, payload ...byte) error {
	return c.exec(ctx, status.PECError, cmd, payload...)
}

// WriteBlock sends a count-prefixed block command.
func (c *Client) WriteBlock(ctx context.Context, cmd regmap.Register, data []byte) error {
	return c.exec(ctx, status.PECError, cmd, append([]byte{byte(len(data))}, data...)...)
}

func (c *Client) exec(ctx context.Context, mask uint8, cmd regmap.Register, payload ...byte) error {
	if _, err := c.WaitIdle(ctx); err != nil {
		return err
	}
	if err := c.Send(cmd, payload...); err != nil {
		return err
	}
	st, err := c.WaitIdle(ctx)
	if err != nil {
		return err
	}
	if st&mask != 0 {
		return &StatusError{Cmd: byte(cmd), Status: st}
	}
	return nil
}

// WaitIdle polls GET_STATUS until BUSY is clear and returns the last
// status byte. Transient read failures are retried until the deadline.
func (c *Client) WaitIdle(ctx context.Context) (uint8, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	for {
		st, err := c.Status()
		if err == nil && st&status.Busy == 0 {
			return st, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return 0, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
			}
			return 0, ErrTimeout
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// ---- helpers ----

func (c *Client) tx(w, r []byte) error {
	err := c.dev.Tx(w, r)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, smbus.ErrDataNack):
		return ErrNack
	default:
		return fmt.Errorf("host: %s: %w", c.dev, err)
	}
}

func (c *Client) checkPEC(cmd regmap.Register, reply []byte, got uint8) error {
	acc := crc.CRC8(crc.PECSeed(c.addr8), []byte{byte(cmd), c.addr8 | 1}, crc.PolyPEC, false)
	if want := crc.PEC(acc, reply); want != got {
		c.cfg.Log.WithFields(logrus.Fields{
			"cmd":  fmt.Sprintf("0x%02x", byte(cmd)),
			"got":  got,
			"want": want,
		}).Debug("host PEC mismatch")
		return &PECError{Cmd: byte(cmd), Got: got, Want: want}
	}
	return nil
}
