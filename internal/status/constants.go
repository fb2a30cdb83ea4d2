// internal/status/constants.go
package status

// Status byte bits returned by GET_STATUS.
// These values define the protocol and MUST NOT be configurable.

// ---- STATUS BITS ----

// Busy is set while a write command waits in the mailbox.
const Busy uint8 = 0x01

// PECError is set when the last write failed its length or PEC check.
const PECError uint8 = 0x02

// UpgradeError is set when the last upgrade step failed.
const UpgradeError uint8 = 0x04

// BusError is set after a bus fault until the next completed write.
const BusError uint8 = 0x08

// ---- MIRROR BLOCK GEOMETRY ----
// The mirror publishes the device status as a fixed block of 16-bit
// registers followed by the register file packed two bytes per slot.

// SlotsPerDevice is the fixed number of status slots.
const SlotsPerDevice = 12

// SlotStatusByte holds the GET_STATUS byte.
const SlotStatusByte = 0

// SlotUpgradeState holds the upgrade state code.
const SlotUpgradeState = 1

// SlotImageSizeLow / SlotImageSizeHigh hold the staged image size.
const SlotImageSizeLow = 2
const SlotImageSizeHigh = 3

// SlotDroppedWrites holds the number of writes dropped while busy (saturating).
const SlotDroppedWrites = 4

// SlotSecondsInError holds the time spent with an error bit set (saturating).
const SlotSecondsInError = 5

// Slots 6-7 are reserved for future use.
const SlotReservedStart = 6
const SlotReservedEnd = 7

// ---- FIRMWARE NUMBER ----

// SlotFirmwareStart is the first slot used for the firmware number.
// The firmware number is always placed at the END of the status block.
const SlotFirmwareStart = 8

// SlotFirmwareSlots is the number of slots reserved for the firmware number.
const SlotFirmwareSlots = 4

// FirmwareMaxChars is the maximum number of ASCII characters published.
const FirmwareMaxChars = 8

// RegisterFileSlots is the number of slots used for the packed register file.
const RegisterFileSlots = 128
