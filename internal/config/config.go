// internal/config/config.go
package config

type Config struct {
	Device DeviceConfig  `yaml:"device"`
	Flash  FlashConfig   `yaml:"flash"`
	Store  StoreConfig   `yaml:"store"`
	Mirror *MirrorConfig `yaml:"mirror"` // optional, opt-in
	Loop   LoopConfig    `yaml:"loop"`
	Bridge BridgeConfig  `yaml:"bridge"`
	Host   HostConfig    `yaml:"host"`
	Log    LogConfig     `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// 8-bit (write) slave address.
	Address uint8 `yaml:"address"`

	FirmwareNumber  string `yaml:"firmware_number"`
	FirmwareVersion uint8  `yaml:"firmware_version"`
	DIPSwitches     uint8  `yaml:"dip_switches"`

	FirmwareStart     uint32 `yaml:"firmware_start"`
	ActivationDelayMs uint32 `yaml:"activation_delay_ms"`

	// Bus-over-TCP listen address (emulator). Empty disables it.
	Listen string `yaml:"listen"`
}

// ---- FLASH ----

type FlashConfig struct {
	Backend   string `yaml:"backend"` // memory | file
	Path      string `yaml:"path"`
	Size      uint32 `yaml:"size"`
	BlockSize uint32 `yaml:"block_size"`
}

// ---- STORE ----

type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory | file | redis
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Prefix    string `yaml:"prefix"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- MIRROR ----

type MirrorConfig struct {
	Protocol   string `yaml:"protocol"` // modbus | ingest
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	StatusSlot uint16 `yaml:"status_slot"`

	// First holding register of the packed register file.
	RegisterBase uint16 `yaml:"register_base"`

	DeviceName string `yaml:"device_name"`
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ---- LOOP ----

type LoopConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	WatchdogMs int `yaml:"watchdog_ms"`
}

// ---- BRIDGE ----

type BridgeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Bus        string `yaml:"bus"` // periph bus name, empty = first
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ---- HOST (cmmctl) ----

type HostConfig struct {
	Bus       string `yaml:"bus"`      // periph bus name
	Endpoint  string `yaml:"endpoint"` // bus-over-TCP; wins over Bus
	Address   uint16 `yaml:"address"`  // 7-bit
	TimeoutMs int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}
