// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultAddress           uint8  = 0x58
	DefaultFirmwareStart     uint32 = 0x4000
	DefaultActivationDelayMs uint32 = 3000
	DefaultFlashSize         uint32 = 0x40000
	DefaultFlashBlockSize    uint32 = 4096
	DefaultLoopIntervalMs           = 1
	DefaultWatchdogMs               = 2000
	DefaultBridgeIntervalMs         = 1000
	DefaultBridgeTimeoutMs          = 50
	DefaultMirrorIntervalMs         = 1000
	DefaultMirrorTimeoutMs          = 2000
	DefaultRedisTimeoutMs           = 500
	DefaultRedisPrefix              = "cmm:"
	DefaultHostAddress       uint16 = 0x2C
	DefaultHostTimeoutMs            = 2000
	DefaultHostRetries              = 3
	DefaultLogLevel                 = "info"
	DefaultLogFormat                = "text"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := &cfg.Device
	if d.Address == 0 {
		d.Address = DefaultAddress
	}
	if d.FirmwareStart == 0 {
		d.FirmwareStart = DefaultFirmwareStart
	}
	if d.ActivationDelayMs == 0 {
		d.ActivationDelayMs = DefaultActivationDelayMs
	}

	// ------------------------------------------------------------
	// FLASH / STORE
	// ------------------------------------------------------------

	f := &cfg.Flash
	if f.Backend == "" {
		f.Backend = "memory"
	}
	if f.BlockSize == 0 {
		f.BlockSize = DefaultFlashBlockSize
	}
	if f.Size == 0 {
		f.Size = DefaultFlashSize
	}

	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.Redis.TimeoutMs == 0 {
		s.Redis.TimeoutMs = DefaultRedisTimeoutMs
	}
	if s.Redis.Prefix == "" {
		s.Redis.Prefix = DefaultRedisPrefix
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		if m.Protocol == "" {
			m.Protocol = "modbus"
		}
		if m.IntervalMs == 0 {
			m.IntervalMs = DefaultMirrorIntervalMs
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultMirrorTimeoutMs
		}
		if m.DeviceName == "" {
			m.DeviceName = d.FirmwareNumber
		}
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	if cfg.Loop.IntervalMs == 0 {
		cfg.Loop.IntervalMs = DefaultLoopIntervalMs
	}
	if cfg.Loop.WatchdogMs == 0 {
		cfg.Loop.WatchdogMs = DefaultWatchdogMs
	}
	if cfg.Bridge.IntervalMs == 0 {
		cfg.Bridge.IntervalMs = DefaultBridgeIntervalMs
	}
	if cfg.Bridge.TimeoutMs == 0 {
		cfg.Bridge.TimeoutMs = DefaultBridgeTimeoutMs
	}

	h := &cfg.Host
	if h.Address == 0 {
		h.Address = DefaultHostAddress
	}
	if h.TimeoutMs == 0 {
		h.TimeoutMs = DefaultHostTimeoutMs
	}
	if h.Retries == 0 {
		h.Retries = DefaultHostRetries
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
