package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Bundled firmware naming convention.
const (
	payloadExt   = ".uf2"
	signatureExt = ".uf2.sig"
)

// listLocal scans the bundled firmware directory for the board.
// A missing directory yields an empty set, not an error.
func (c *Catalog) listLocal(board string) ([]ArtifactInfo, error) {
	if c.cfg.LocalDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(c.cfg.LocalDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []ArtifactInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		fileBoard, version, ok := splitArtifactName(name)
		if !ok || fileBoard != board {
			continue
		}

		path := filepath.Join(c.cfg.LocalDir, name)
		if _, err := os.Stat(path + ".sig"); err != nil {
			c.logDebug("skipping bundled firmware without signature", "file", name)
			continue
		}

		info := ArtifactInfo{
			Version: version,
			Board:   board,
			Source:  SourceBundled,
			path:    path,
		}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// fetchLocal loads a bundled artifact and its detached signature.
func (c *Catalog) fetchLocal(info ArtifactInfo) (*Artifact, error) {
	payload, err := os.ReadFile(info.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read bundled firmware %s %s: %v",
			ErrArtifactUnavailable, info.Board, info.Version, err)
	}

	signature, err := os.ReadFile(info.path + ".sig")
	if err != nil {
		return nil, fmt.Errorf("%w: read bundled signature %s %s: %v",
			ErrArtifactUnavailable, info.Board, info.Version, err)
	}

	return &Artifact{ArtifactInfo: info, Payload: payload, Signature: signature}, nil
}

// splitArtifactName parses "<board>-<version>.uf2" names.
func splitArtifactName(name string) (board, version string, ok bool) {
	if !strings.HasSuffix(strings.ToLower(name), payloadExt) {
		return "", "", false
	}

	base := name[:len(name)-len(payloadExt)]
	idx := strings.LastIndex(base, "-")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", false
	}

	return base[:idx], strings.TrimPrefix(base[idx+1:], "v"), true
}
