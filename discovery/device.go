package discovery

import "fmt"

// Mode is the reported device mode. Exhaustive: every state transition in
// the flashing pipeline switches over all three values.
type Mode int

const (
	// ModeUnknown means the device identity could not be classified
	ModeUnknown Mode = iota

	// ModeApplication means the board runs MicroPython and exposes a REPL
	ModeApplication

	// ModeBootloader means the board exposes its UF2 mass-storage volume
	ModeBootloader
)

func (m Mode) String() string {
	switch m {
	case ModeApplication:
		return "application"
	case ModeBootloader:
		return "bootloader"
	case ModeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Device describes one discovered board. Discovered transiently each run
// and never persisted.
type Device struct {
	// Port is the serial port path in application mode, or the mounted
	// volume path in bootloader mode
	Port string

	// VendorID and ProductID identify the USB device (application mode)
	VendorID  uint16
	ProductID uint16

	// Serial is the USB serial number, when the port reports one
	Serial string

	// Mode is the reported device mode
	Mode Mode
}

func (d Device) String() string {
	if d.Mode == ModeBootloader {
		return fmt.Sprintf("%s (%s)", d.Port, d.Mode)
	}
	return fmt.Sprintf("%s [%04X:%04X] (%s)", d.Port, d.VendorID, d.ProductID, d.Mode)
}

// USB identifiers for Warped Pinball hardware. The boards are RP2040
// based, so application mode enumerates with the Raspberry Pi vendor ID
// and the MicroPython CDC product ID.
const (
	VendorIDRaspberryPi  = 0x2E8A
	ProductIDMicroPython = 0x0005
)

// knownBoards is the allow-list of (vendor, product) pairs that belong to
// Warped Pinball hardware in application mode.
var knownBoards = [][2]uint16{
	{VendorIDRaspberryPi, ProductIDMicroPython},
}

// allowed reports whether the pair is on the allow-list.
func allowed(vid, pid uint16) bool {
	for _, id := range knownBoards {
		if id[0] == vid && id[1] == pid {
			return true
		}
	}
	return false
}
