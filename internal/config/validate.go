// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values mean "use the default" and always pass.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	if d.Address&0x01 != 0 {
		return fmt.Errorf("device.address 0x%02x: must be an 8-bit write address (bit 0 clear)", d.Address)
	}
	if d.DIPSwitches > 0x0F {
		return fmt.Errorf("device.dip_switches 0x%02x: only 4 switches exist", d.DIPSwitches)
	}
	if err := ascii("device.firmware_number", d.FirmwareNumber, 10); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// FLASH
	// ------------------------------------------------------------

	f := cfg.Flash
	switch f.Backend {
	case "", "memory":
	case "file":
		if f.Path == "" {
			return fmt.Errorf("flash.path required for file backend")
		}
	default:
		return fmt.Errorf("flash.backend %q: want memory or file", f.Backend)
	}
	if f.BlockSize != 0 && f.BlockSize&(f.BlockSize-1) != 0 {
		return fmt.Errorf("flash.block_size %d: must be a power of two", f.BlockSize)
	}
	if f.Size != 0 && f.BlockSize != 0 && f.Size%f.BlockSize != 0 {
		return fmt.Errorf("flash.size %d: not a multiple of block_size %d", f.Size, f.BlockSize)
	}
	if f.Size != 0 && d.FirmwareStart >= f.Size {
		return fmt.Errorf("device.firmware_start 0x%x beyond flash.size 0x%x", d.FirmwareStart, f.Size)
	}

	// ------------------------------------------------------------
	// STORE
	// ------------------------------------------------------------

	s := cfg.Store
	switch s.Backend {
	case "", "memory":
	case "file":
		if s.Path == "" {
			return fmt.Errorf("store.path required for file backend")
		}
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr required for redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q: want memory, file or redis", s.Backend)
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		switch m.Protocol {
		case "", "modbus", "ingest":
		default:
			return fmt.Errorf("mirror.protocol %q: want modbus or ingest", m.Protocol)
		}
		if m.Endpoint == "" {
			return fmt.Errorf("mirror.endpoint required")
		}
		if err := ascii("mirror.device_name", m.DeviceName, 0); err != nil {
			return err
		}

		// status block and register file must not overlap
		statusStart := int(m.StatusSlot) * status.SlotsPerDevice
		statusEnd := statusStart + status.SlotsPerDevice - 1
		regStart := int(m.RegisterBase)
		regEnd := regStart + status.RegisterFileSlots - 1
		if !(regEnd < statusStart || regStart > statusEnd) {
			return fmt.Errorf(
				"mirror overlap: status block %d-%d and register file %d-%d",
				statusStart, statusEnd, regStart, regEnd,
			)
		}
		if regEnd > 0xFFFF || statusEnd > 0xFFFF {
			return fmt.Errorf("mirror: addresses exceed 65535")
		}
		if m.IntervalMs < 0 || m.TimeoutMs < 0 {
			return fmt.Errorf("mirror: interval_ms and timeout_ms must be >= 0")
		}
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	for name, v := range map[string]int{
		"loop.interval_ms":       cfg.Loop.IntervalMs,
		"loop.watchdog_ms":       cfg.Loop.WatchdogMs,
		"bridge.interval_ms":     cfg.Bridge.IntervalMs,
		"bridge.timeout_ms":      cfg.Bridge.TimeoutMs,
		"host.timeout_ms":        cfg.Host.TimeoutMs,
		"host.retries":           cfg.Host.Retries,
		"store.redis.timeout_ms": cfg.Store.Redis.TimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if cfg.Loop.WatchdogMs != 0 && cfg.Loop.IntervalMs != 0 && cfg.Loop.WatchdogMs <= cfg.Loop.IntervalMs {
		return fmt.Errorf("loop.watchdog_ms must exceed loop.interval_ms")
	}

	if cfg.Host.Address > 0x7F {
		return fmt.Errorf("host.address 0x%02x: must be a 7-bit address", cfg.Host.Address)
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", cfg.Log.Format)
	}

	return nil
}

// ascii rejects non-printable characters and, when max > 0, long values.
func ascii(field, v string, max int) error {
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7E {
			return fmt.Errorf("%s must contain printable ASCII characters only", field)
		}
	}
	if max > 0 && len(v) > max {
		return fmt.Errorf("%s longer than %d characters", field, max)
	}
	return nil
}
