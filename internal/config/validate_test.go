// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

// helper to build a valid mirror quickly
func mirror(slot, regBase uint16) *MirrorConfig {
	return &MirrorConfig{
		Protocol:     "modbus",
		Endpoint:     "127.0.0.1:502",
		UnitID:       1,
		StatusSlot:   slot,
		RegisterBase: regBase,
	}
}

func TestValidate_ZeroConfigIsValid(t *testing.T) {
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsReadAddress(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Address: 0x59}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for odd 8-bit address")
	}
}

func TestValidate_DIPSwitchesFourBits(t *testing.T) {
	if err := Validate(&Config{Device: DeviceConfig{DIPSwitches: 0x0F}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(&Config{Device: DeviceConfig{DIPSwitches: 0x10}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate_FirmwareNumber(t *testing.T) {
	if err := Validate(&Config{Device: DeviceConfig{FirmwareNumber: "6399831451"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(&Config{Device: DeviceConfig{FirmwareNumber: "63998314510"}}); err == nil {
		t.Fatalf("expected length error")
	}
	if err := Validate(&Config{Device: DeviceConfig{FirmwareNumber: "abc\x01"}}); err == nil {
		t.Fatalf("expected ASCII error")
	}
}

func TestValidate_FlashGeometry(t *testing.T) {
	cases := []struct {
		name string
		f    FlashConfig
		ok   bool
	}{
		{"defaults", FlashConfig{}, true},
		{"file without path", FlashConfig{Backend: "file"}, false},
		{"unknown backend", FlashConfig{Backend: "eeprom"}, false},
		{"block not power of two", FlashConfig{BlockSize: 3000}, false},
		{"size not multiple", FlashConfig{Size: 5000, BlockSize: 4096}, false},
		{"good", FlashConfig{Backend: "file", Path: "x", Size: 0x40000, BlockSize: 4096}, true},
	}
	for _, tc := range cases {
		err := Validate(&Config{Flash: tc.f})
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
	}
}

func TestValidate_FirmwareStartInsideFlash(t *testing.T) {
	cfg := &Config{
		Device: DeviceConfig{FirmwareStart: 0x4000},
		Flash:  FlashConfig{Size: 0x4000, BlockSize: 0x1000},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate_StoreBackends(t *testing.T) {
	if err := Validate(&Config{Store: StoreConfig{Backend: "redis"}}); err == nil {
		t.Fatalf("expected error for redis without addr")
	}
	if err := Validate(&Config{Store: StoreConfig{Backend: "redis", Redis: RedisConfig{Addr: "localhost:6379"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(&Config{Store: StoreConfig{Backend: "etcd"}}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestValidate_MirrorNoOverlap(t *testing.T) {
	cfg := &Config{Mirror: mirror(0, 12)} // status 0-11, regs 12-139
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MirrorOverlapDetected(t *testing.T) {
	cfg := &Config{Mirror: mirror(1, 0)} // status 12-23, regs 0-127
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected overlap error, got nil")
	}
}

func TestValidate_MirrorRequiresEndpoint(t *testing.T) {
	m := mirror(0, 100)
	m.Endpoint = ""
	if err := Validate(&Config{Mirror: m}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidate_WatchdogExceedsLoop(t *testing.T) {
	cfg := &Config{Loop: LoopConfig{IntervalMs: 10, WatchdogMs: 10}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{
		Device: DeviceConfig{FirmwareNumber: "6399831451"},
		Mirror: &MirrorConfig{Endpoint: "x:502", RegisterBase: 100},
	}
	Normalize(cfg)

	if cfg.Device.Address != 0x58 {
		t.Fatalf("address = 0x%02x", cfg.Device.Address)
	}
	if cfg.Device.FirmwareStart != 0x4000 {
		t.Fatalf("firmware_start = 0x%x", cfg.Device.FirmwareStart)
	}
	if cfg.Device.ActivationDelayMs != 3000 {
		t.Fatalf("activation_delay_ms = %d", cfg.Device.ActivationDelayMs)
	}
	if cfg.Flash.Backend != "memory" || cfg.Store.Backend != "memory" {
		t.Fatalf("backends = %q/%q", cfg.Flash.Backend, cfg.Store.Backend)
	}
	if cfg.Mirror.Protocol != "modbus" || cfg.Mirror.DeviceName != "6399831451" {
		t.Fatalf("mirror = %+v", cfg.Mirror)
	}
	if cfg.Host.Address != 0x2C {
		t.Fatalf("host.address = 0x%02x", cfg.Host.Address)
	}
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Address: 0x60, FirmwareStart: 0x8000}}
	Normalize(cfg)
	if cfg.Device.Address != 0x60 || cfg.Device.FirmwareStart != 0x8000 {
		t.Fatalf("device = %+v", cfg.Device)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmm.yaml")
	doc := `
device:
  address: 0x58
  firmware_number: "6399831451"
  dip_switches: 5
flash:
  backend: file
  path: /tmp/flash.bin
mirror:
  endpoint: 127.0.0.1:502
  register_base: 100
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Device.DIPSwitches != 5 || cfg.Flash.Path != "/tmp/flash.bin" || cfg.Mirror == nil {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q", cfg.Log.Level)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	if _, err := Parse([]byte("device:\n  adress: 0x58\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoad_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mirror != nil {
		t.Fatalf("mirror should be nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
