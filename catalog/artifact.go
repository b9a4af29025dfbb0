package catalog

import "time"

// Source identifies where an artifact's bytes come from.
type Source string

const (
	// SourceBundled is a firmware file shipped with the tool
	SourceBundled Source = "bundled"

	// SourceRemote is a firmware asset on a published release
	SourceRemote Source = "remote"

	// SourceCache is a previously fetched remote artifact on disk
	SourceCache Source = "cache"
)

// ArtifactInfo is the metadata for one available firmware version.
// Returned by ListVersions and passed back to Fetch as the version
// reference.
type ArtifactInfo struct {
	// Version is the semantic version string, without a leading "v"
	Version string

	// Board is the target board identifier (for example "vector")
	Board string

	// Size is the payload size in bytes, when known
	Size int64

	// SHA256 is the declared payload digest in hex, when known.
	// Fetch verifies the payload against it.
	SHA256 string

	// PublishedAt is the release publication time, when known
	PublishedAt time.Time

	// Source identifies where the artifact comes from
	Source Source

	// path is the on-disk payload location for bundled artifacts
	path string

	// payloadURL and signatureURL locate remote artifacts
	payloadURL   string
	signatureURL string
}

// Artifact is a fully fetched firmware artifact. Immutable once fetched:
// the Payload bytes are exactly the bytes that are verified and transferred.
type Artifact struct {
	ArtifactInfo

	// Payload is the complete UF2 image
	Payload []byte

	// Signature is the detached signature over Payload
	Signature []byte
}
