// internal/status/snapshot.go
package status

// Snapshot represents exactly what the mirror is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Status         uint8
	UpgradeState   uint8
	ImageSize      uint32
	DroppedWrites  uint16
	SecondsInError uint16
}

// Errored reports whether any sticky error bit is set.
func (s Snapshot) Errored() bool {
	return s.Status&(PECError|UpgradeError|BusError) != 0
}
