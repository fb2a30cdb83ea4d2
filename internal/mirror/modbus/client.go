// internal/mirror/modbus/client.go
package modbus

import (
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// EndpointClient writes holding registers to one Modbus TCP memory.
// SlaveId lives on the shared handler, so writes are serialized.
type EndpointClient struct {
	mu sync.Mutex
	h  *modbus.TCPClientHandler
	mb modbus.Client
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mirror modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	if err := h.Connect(); err != nil {
		return nil, errors.Wrapf(err, "mirror modbus: connect %s", cfg.Endpoint)
	}

	return &EndpointClient{h: h, mb: modbus.NewClient(h)}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.h.Close()
}

// WriteRegisters issues FC16 for the block. A dropped connection is
// re-dialled by the handler on the next request.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.h.SlaveId = unitID
	if _, err := c.mb.WriteMultipleRegisters(addr, uint16(len(regs)), status.Pack(regs)); err != nil {
		return errors.Wrapf(err, "mirror modbus: write %d@%d", len(regs), addr)
	}
	return nil
}
