// internal/store/store.go
package store

// Store is the persistent key/value collaborator.
// Get never fails: unknown or unreadable keys fall back to defaults.
type Store interface {
	Get(key string) uint32
	Set(key string, value uint32) error
}

// ---- KEYS ----

const (
	KeyPulsesPerRotation = "pulses_per_rotation"
	KeyPWMFrequency      = "pwm_frequency"
	KeyLearnedFans       = "learned_fans"
	KeyLearnedTemps      = "learned_temperature_sensors"
	KeyFanCurve          = "fan_curve"
	KeyLearned           = "learned"
)

// TriggerBridgeKeys returns the enable/direction keys of bridge n (0..3).
func TriggerBridgeKeys(n int) (en, dir string) {
	id := string(rune('1' + n))
	return "tb" + id + "en", "tb" + id + "dir"
}

// Defaults is the factory environment.
func Defaults() map[string]uint32 {
	d := map[string]uint32{
		KeyPulsesPerRotation: 2,
		KeyPWMFrequency:      1250,
		KeyLearnedFans:       0,
		KeyLearnedTemps:      0,
		KeyFanCurve:          5,
		KeyLearned:           0,
	}
	for i := 1; i <= 6; i++ {
		d["max_speed_learned_fan"+string(rune('0'+i))] = 0
	}
	for i := 1; i <= 4; i++ {
		d["temperature_learned_sensor"+string(rune('0'+i))] = 0
	}
	for n := 0; n < 4; n++ {
		en, dir := TriggerBridgeKeys(n)
		d[en] = 0
		d[dir] = 0
	}
	return d
}

// withDefaults overlays values on top of the factory environment.
func withDefaults(values map[string]uint32) map[string]uint32 {
	out := Defaults()
	for k, v := range values {
		out[k] = v
	}
	return out
}
