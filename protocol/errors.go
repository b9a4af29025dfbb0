package protocol

import (
	"fmt"
	"strings"
)

// ProtocolError represents an error reported by the board itself.
// Contains the captured error output (usually a Python traceback).
type ProtocolError struct {
	// Operation is the exchange that failed
	Operation string

	// Output is the error output captured from the board
	Output string
}

func (e *ProtocolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s failed", e.Operation)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, out)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}
