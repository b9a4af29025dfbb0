package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeviceNotFound indicates that no matching board appeared within the
// discovery timeout.
var ErrDeviceNotFound = errors.New("no Warped Pinball device found")

// AmbiguousDeviceError indicates that more than one candidate matched and
// the caller has not disambiguated.
type AmbiguousDeviceError struct {
	Candidates []Device
}

func (e *AmbiguousDeviceError) Error() string {
	ports := make([]string, len(e.Candidates))
	for i, d := range e.Candidates {
		ports[i] = d.Port
	}
	return fmt.Sprintf("ambiguous device: %d candidates match (%s)",
		len(e.Candidates), strings.Join(ports, ", "))
}
