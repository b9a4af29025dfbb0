package protocol

import (
	"bytes"
	"testing"
)

func TestBuildInterrupt(t *testing.T) {
	frame := BuildInterrupt()

	if !bytes.Equal(frame, []byte{CtrlC, CtrlC}) {
		t.Errorf("frame = %v, want two interrupt bytes", frame)
	}
}

func TestBuildEnterRawREPL(t *testing.T) {
	frame := BuildEnterRawREPL()

	if !bytes.Equal(frame, []byte{CtrlA}) {
		t.Errorf("frame = %v, want raw mode byte", frame)
	}
}

func TestBuildExitRawREPL(t *testing.T) {
	frame := BuildExitRawREPL()

	if !bytes.Equal(frame, []byte{CtrlB}) {
		t.Errorf("frame = %v, want friendly mode byte", frame)
	}
}

func TestBuildExec(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name:   "script without trailing newline",
			script: "print(1)",
			want:   append([]byte("print(1)\n"), CtrlD),
		},
		{
			name:   "script with trailing newline",
			script: "print(1)\n",
			want:   append([]byte("print(1)\n"), CtrlD),
		},
		{
			name:   "multi-line script",
			script: "import machine\nmachine.bootloader()",
			want:   append([]byte("import machine\nmachine.bootloader()\n"), CtrlD),
		},
		{
			name:    "empty script",
			script:  "",
			wantErr: true,
			errMsg:  "script cannot be empty",
		},
		{
			name:    "script containing execute byte",
			script:  "print(1)\x04print(2)",
			wantErr: true,
			errMsg:  "script cannot contain the execute control byte",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildExec(tt.script)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !bytes.Contains([]byte(err.Error()), []byte(tt.errMsg)) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = %q, want %q", frame, tt.want)
			}
		})
	}
}

func TestBuildExecBootloaderScript(t *testing.T) {
	frame, err := BuildExec(ScriptEnterBootloader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if frame[len(frame)-1] != CtrlD {
		t.Errorf("frame does not end with the execute byte")
	}
	if !bytes.Contains(frame, []byte("machine.bootloader()")) {
		t.Errorf("frame = %q, missing bootloader call", frame)
	}
}
