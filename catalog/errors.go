package catalog

import (
	"errors"
	"fmt"
)

// ErrArtifactUnavailable indicates that neither the bundled set, the cache,
// nor the remote source has the requested firmware version.
var ErrArtifactUnavailable = errors.New("artifact unavailable")

// ChecksumError indicates that a fetched payload's content hash disagrees
// with the digest declared by its metadata. This detects transport
// corruption and is distinct from signature rejection.
type ChecksumError struct {
	Version  string
	Board    string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s %s: expected %s, got %s",
		e.Board, e.Version, e.Expected, e.Actual)
}
