package catalog

import (
	"os"
	"path/filepath"
)

// cachePath returns the cache location for an artifact payload.
// The cache is keyed by board and version.
func (c *Catalog) cachePath(info ArtifactInfo) string {
	return filepath.Join(c.cfg.CacheDir, info.Board+"-"+info.Version+payloadExt)
}

// readCache loads a previously fetched artifact. Any cache problem is
// treated as a miss; the cache is an optimization, never a requirement.
func (c *Catalog) readCache(info ArtifactInfo) (*Artifact, bool) {
	if c.cfg.CacheDir == "" {
		return nil, false
	}

	path := c.cachePath(info)
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	signature, err := os.ReadFile(path + ".sig")
	if err != nil {
		return nil, false
	}

	art := &Artifact{ArtifactInfo: info, Payload: payload, Signature: signature}
	art.Source = SourceCache

	if err := checkDigest(art); err != nil {
		// Corrupted cache entry: drop it and refetch.
		_ = os.Remove(path)
		_ = os.Remove(path + ".sig")
		return nil, false
	}

	return art, true
}

// writeCache stores a fetched artifact. Best effort: failures are ignored,
// absence of the cache must never fail a fetch.
func (c *Catalog) writeCache(art *Artifact) {
	if c.cfg.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(c.cfg.CacheDir, 0o755); err != nil {
		return
	}

	path := c.cachePath(art.ArtifactInfo)
	if err := os.WriteFile(path, art.Payload, 0o644); err != nil {
		return
	}
	if err := os.WriteFile(path+".sig", art.Signature, 0o644); err != nil {
		_ = os.Remove(path)
	}
}
