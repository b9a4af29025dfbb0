package protocol

import (
	"fmt"
	"strings"
)

// BuildInterrupt constructs the interrupt sequence.
// Two Ctrl-C bytes stop any running program so the REPL accepts input.
func BuildInterrupt() []byte {
	return []byte{CtrlC, CtrlC}
}

// BuildEnterRawREPL constructs the sequence that switches the REPL into
// raw mode. The board answers with RawPrompt.
func BuildEnterRawREPL() []byte {
	return []byte{CtrlA}
}

// BuildExitRawREPL constructs the sequence that returns to the friendly REPL.
func BuildExitRawREPL() []byte {
	return []byte{CtrlB}
}

// BuildExec constructs an execution frame for the raw REPL.
//
// Frame structure:
//
//	[SCRIPT...]['\n'][CTRL-D]
//
// The script must not itself contain control bytes; a trailing newline is
// added if missing. Returns the complete frame ready to send.
func BuildExec(script string) ([]byte, error) {
	if script == "" {
		return nil, fmt.Errorf("script cannot be empty")
	}
	if strings.ContainsRune(script, rune(CtrlD)) {
		return nil, fmt.Errorf("script cannot contain the execute control byte")
	}

	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}

	frame := make([]byte, 0, len(script)+1)
	frame = append(frame, script...)
	frame = append(frame, CtrlD)

	return frame, nil
}
