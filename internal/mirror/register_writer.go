// internal/mirror/register_writer.go
package mirror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// maxWriteQuantity is the Modbus limit for one Write Multiple Registers.
const maxWriteQuantity = 123

// registerWriter publishes the packed register file. Only chunks that
// changed since the last successful write are sent.
type registerWriter struct {
	plan Plan
	cli  endpointClient

	needFull bool
	last     []uint16
}

func newRegisterWriter(plan Plan, cli endpointClient) *registerWriter {
	return &registerWriter{plan: plan, cli: cli, needFull: true}
}

func (rw *registerWriter) WriteRegisters(regs [256]byte) error {
	if rw.cli == nil {
		return fmt.Errorf("register writer: missing client for endpoint %s", rw.plan.Endpoint)
	}

	next := status.EncodeRegisters(regs)

	var errs []string
	for off := 0; off < len(next); off += maxWriteQuantity {
		end := off + maxWriteQuantity
		if end > len(next) {
			end = len(next)
		}
		if !rw.needFull && equal(rw.last[off:end], next[off:end]) {
			continue
		}
		addr := rw.plan.RegisterBase + uint16(off)
		if err := rw.cli.WriteRegisters(rw.plan.UnitID, addr, next[off:end]); err != nil {
			errs = append(errs, fmt.Sprintf("addr=%d qty=%d err=%v", addr, end-off, err))
		}
	}

	if len(errs) > 0 {
		rw.needFull = true
		return errors.New("register writer: " + strings.Join(errs, " | "))
	}

	rw.needFull = false
	rw.last = next
	return nil
}

func equal(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
