// internal/upgrade/errors.go
package upgrade

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrState is returned when a command arrives in the wrong state.
	ErrState = errors.New("upgrade: command not valid in current state")

	// ErrNoEOF is returned by Activate before the EOF record.
	ErrNoEOF = errors.New("upgrade: end-of-file record not received")

	// ErrImageTooSmall is returned when the image cannot hold its CRC.
	ErrImageTooSmall = errors.New("upgrade: image smaller than its checksum")

	// ErrAddress is returned for data below the firmware link address.
	ErrAddress = errors.New("upgrade: record address below firmware start")

	// ErrNoHeader is returned by Inspect when no activation header is present.
	ErrNoHeader = errors.New("upgrade: no activation header")
)

// VerifyError reports a CRC mismatch over the staged image.
type VerifyError struct {
	Computed uint16
	Stored   uint16
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("upgrade: checksum verification failed (0x%04x != 0x%04x)", e.Computed, e.Stored)
}
