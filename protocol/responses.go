package protocol

import (
	"bytes"
	"fmt"
)

// ResponseComplete reports whether buf holds a full execution response.
//
// A complete response has the form:
//
//	"OK" <stdout> 0x04 <error output> 0x04 ">"
func ResponseComplete(buf []byte) bool {
	idx := bytes.Index(buf, []byte(execAck))
	if idx < 0 {
		return false
	}

	rest := buf[idx+len(execAck):]
	first := bytes.IndexByte(rest, CtrlD)
	if first < 0 {
		return false
	}

	second := bytes.IndexByte(rest[first+1:], CtrlD)
	return second >= 0
}

// ParseExecResponse extracts stdout and error output from an execution
// response. The frame must be complete per ResponseComplete.
//
// Returns the stdout bytes, the error output bytes (the captured traceback,
// empty on success), and a parse error if the frame is malformed.
func ParseExecResponse(buf []byte) (stdout, errOut []byte, err error) {
	idx := bytes.Index(buf, []byte(execAck))
	if idx < 0 {
		return nil, nil, fmt.Errorf("missing %q acknowledgment in response", execAck)
	}

	rest := buf[idx+len(execAck):]
	first := bytes.IndexByte(rest, CtrlD)
	if first < 0 {
		return nil, nil, fmt.Errorf("incomplete response: missing output terminator")
	}

	stdout = rest[:first]

	tail := rest[first+1:]
	second := bytes.IndexByte(tail, CtrlD)
	if second < 0 {
		return nil, nil, fmt.Errorf("incomplete response: missing error output terminator")
	}

	errOut = tail[:second]
	return stdout, errOut, nil
}

// ContainsRawPrompt reports whether buf contains the raw mode banner.
func ContainsRawPrompt(buf []byte) bool {
	return bytes.Contains(buf, []byte(RawPrompt))
}
