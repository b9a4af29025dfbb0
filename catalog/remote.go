package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// release mirrors the fields of the GitHub releases API this package uses.
type release struct {
	TagName     string         `json:"tag_name"`
	Prerelease  bool           `json:"prerelease"`
	PublishedAt time.Time      `json:"published_at"`
	Assets      []releaseAsset `json:"assets"`
}

type releaseAsset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
	DownloadURL string `json:"browser_download_url"`
}

// listRemote queries the release repository for firmware versions.
// Releases qualify when they are not development builds and carry both the
// board's payload asset and its detached signature.
func (c *Catalog) listRemote(ctx context.Context, board string) ([]ArtifactInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.cfg.APIBase, c.cfg.Repository)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release index returned %s", resp.Status)
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode release index: %w", err)
	}

	payloadName := board + payloadExt
	signatureName := board + signatureExt

	var infos []ArtifactInfo
	for _, rel := range releases {
		if rel.Prerelease || isPrerelease(rel.TagName) {
			continue
		}

		var payload, signature *releaseAsset
		for i := range rel.Assets {
			switch rel.Assets[i].Name {
			case payloadName:
				payload = &rel.Assets[i]
			case signatureName:
				signature = &rel.Assets[i]
			}
		}
		if payload == nil || signature == nil {
			continue
		}

		infos = append(infos, ArtifactInfo{
			Version:      strings.TrimPrefix(rel.TagName, "v"),
			Board:        board,
			Size:         payload.Size,
			SHA256:       parseDigest(payload.Digest),
			PublishedAt:  rel.PublishedAt,
			Source:       SourceRemote,
			payloadURL:   payload.DownloadURL,
			signatureURL: signature.DownloadURL,
		})
	}

	return infos, nil
}

// fetchRemote downloads the payload and its detached signature.
func (c *Catalog) fetchRemote(ctx context.Context, info ArtifactInfo) (*Artifact, error) {
	if info.payloadURL == "" || info.signatureURL == "" {
		return nil, fmt.Errorf("%w: no download location for %s %s",
			ErrArtifactUnavailable, info.Board, info.Version)
	}

	payload, err := c.download(ctx, info.payloadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download firmware %s %s: %v",
			ErrArtifactUnavailable, info.Board, info.Version, err)
	}

	signature, err := c.download(ctx, info.signatureURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download signature %s %s: %v",
			ErrArtifactUnavailable, info.Board, info.Version, err)
	}

	c.logDebug("fetched remote artifact",
		"board", info.Board,
		"version", info.Version,
		"bytes", len(payload),
	)

	return &Artifact{ArtifactInfo: info, Payload: payload, Signature: signature}, nil
}

func (c *Catalog) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// parseDigest extracts the hex digest from an asset digest declaration
// of the form "sha256:<hex>". Other algorithms are ignored.
func parseDigest(digest string) string {
	const prefix = "sha256:"
	if strings.HasPrefix(digest, prefix) {
		return strings.ToLower(digest[len(prefix):])
	}
	return ""
}
