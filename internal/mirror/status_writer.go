// internal/mirror/status_writer.go
package mirror

import (
	"github.com/pkg/errors"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// statusWriter keeps the device status block in sync with the engine.
// The first write, and the first write after any failure, asserts the
// whole block including the firmware name; otherwise only changed runs
// of live slots go out.
type statusWriter struct {
	plan Plan
	cli  endpointClient

	synced bool
	prev   []uint16
	name   []uint16
}

func newStatusWriter(plan Plan, cli endpointClient) *statusWriter {
	return &statusWriter{
		plan: plan,
		cli:  cli,
		name: status.EncodeFirmware(plan.DeviceName),
	}
}

func (sw *statusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.Errorf("status writer: no client for %s", sw.plan.Endpoint)
	}

	next := status.Encode(s)
	base := sw.baseAddr()

	if !sw.synced {
		block := append([]uint16(nil), next...)
		copy(block[status.SlotFirmwareStart:], sw.name)
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base, block); err != nil {
			return errors.Wrap(err, "status writer: full block")
		}
		sw.synced, sw.prev = true, next
		return nil
	}

	for _, r := range changedRuns(sw.prev[:status.SlotReservedStart], next[:status.SlotReservedStart]) {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, base+uint16(r[0]), next[r[0]:r[1]]); err != nil {
			sw.synced = false
			return errors.Wrapf(err, "status writer: slots %d-%d", r[0], r[1]-1)
		}
	}

	sw.prev = next
	return nil
}

func (sw *statusWriter) baseAddr() uint16 {
	return sw.plan.StatusSlot * status.SlotsPerDevice
}

// changedRuns returns [start, end) spans where a and b differ.
func changedRuns(a, b []uint16) [][2]int {
	var runs [][2]int
	for i := 0; i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		j := i + 1
		for j < len(b) && a[j] != b[j] {
			j++
		}
		runs = append(runs, [2]int{i, j})
		i = j
	}
	return runs
}
