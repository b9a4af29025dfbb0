package protocol

// Control bytes understood by the MicroPython REPL.
const (
	// CtrlA switches the REPL into raw mode
	CtrlA = 0x01

	// CtrlB leaves raw mode and returns to the friendly REPL
	CtrlB = 0x02

	// CtrlC interrupts any running program
	CtrlC = 0x03

	// CtrlD executes the buffered input; in responses it separates
	// the stdout and error output sections
	CtrlD = 0x04
)

// BaudRate is the serial speed used by the MicroPython USB CDC REPL.
const BaudRate = 115200

// RawPrompt is printed by the board when raw mode is entered.
const RawPrompt = "raw REPL; CTRL-B to exit"

// execAck is sent by the board after it accepts a script for execution.
const execAck = "OK"

// DefaultReadBufferSize is the buffer size for reading REPL output.
const DefaultReadBufferSize = 1024

// Canned scripts for the operations the flasher needs.
const (
	// ScriptEnterBootloader reboots the board into its UF2 bootloader.
	// The board drops off the bus and re-enumerates as a mass-storage
	// device, so no response follows.
	ScriptEnterBootloader = "import machine\nmachine.bootloader()"

	// ScriptSoftReset reboots the board back into the application.
	ScriptSoftReset = "import machine\nmachine.reset()"

	// ScriptIdentify prints the runtime name, used to confirm a port
	// belongs to a MicroPython board in application mode.
	ScriptIdentify = "import sys\nprint(sys.implementation.name)"
)

// IdentifyResponse is the expected ScriptIdentify output on supported boards.
const IdentifyResponse = "micropython"
