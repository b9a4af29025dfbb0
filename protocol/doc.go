// Package protocol implements the MicroPython raw-REPL communication protocol.
//
// This package provides functions to build command sequences and parse
// responses for the raw (machine-oriented) REPL exposed by MicroPython
// boards over USB CDC serial.
//
// # Protocol Overview
//
// The raw REPL is entered by interrupting any running program (Ctrl-C) and
// sending Ctrl-A. Scripts are then executed by writing the script text
// followed by Ctrl-D (end of transmission):
//
//	Host:   <script> 0x04
//	Board:  "OK" <stdout> 0x04 <error output> 0x04 ">"
//
// Non-empty error output means the script raised an exception; the captured
// traceback is surfaced as a ProtocolError.
//
// # Command Builders
//
// Use the Build* functions to create the byte sequences to write:
//
//	seq := protocol.BuildInterrupt()
//	seq := protocol.BuildEnterRawREPL()
//	frame, err := protocol.BuildExec(protocol.ScriptEnterBootloader)
//
// # Response Parsers
//
// Accumulate bytes from the board and use ResponseComplete / ParseExecResponse:
//
//	if protocol.ResponseComplete(buf) {
//	    stdout, errOut, err := protocol.ParseExecResponse(buf)
//	    ...
//	}
//
// # Shell
//
// Shell wraps an io.ReadWriter and drives the exchange loop: entering the
// raw REPL, executing scripts, and collecting responses with bounded waits.
// It is the building block used for device identification probes and for
// switching a board into its UF2 bootloader.
//
//	sh := protocol.NewShell(port)
//	if err := sh.EnterRawREPL(ctx); err != nil { ... }
//	out, err := sh.Exec(ctx, protocol.ScriptIdentify)
package protocol
