package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// DefaultRepository is the vendor firmware release repository.
const DefaultRepository = "warped-pinball/vector"

// Logger is an optional logging interface, matching the flash package's.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds the catalog configuration.
type Config struct {
	// LocalDir is the directory holding bundled firmware files
	LocalDir string

	// CacheDir stores fetched remote artifacts; empty disables caching
	CacheDir string

	// Repository is the "owner/name" release repository
	Repository string

	// APIBase is the GitHub API base URL (overridable for tests)
	APIBase string

	// HTTPClient performs remote requests
	HTTPClient *http.Client

	// Logger is used for logging operations (optional)
	Logger Logger
}

func defaultConfig() Config {
	return Config{
		Repository: DefaultRepository,
		APIBase:    "https://api.github.com",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Option is a functional option for configuring the Catalog.
type Option func(*Config)

// WithLocalDir sets the bundled firmware directory.
func WithLocalDir(dir string) Option {
	return func(c *Config) { c.LocalDir = dir }
}

// WithCacheDir sets the artifact cache directory.
func WithCacheDir(dir string) Option {
	return func(c *Config) { c.CacheDir = dir }
}

// WithRepository sets the release repository in "owner/name" form.
func WithRepository(repo string) Option {
	return func(c *Config) {
		if repo != "" {
			c.Repository = repo
		}
	}
}

// WithAPIBase overrides the release API base URL.
func WithAPIBase(base string) Option {
	return func(c *Config) {
		if base != "" {
			c.APIBase = base
		}
	}
}

// WithHTTPClient sets the HTTP client used for remote requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// WithLogger sets a logger for catalog operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Catalog resolves available firmware versions and fetches their payloads.
type Catalog struct {
	cfg Config
}

// New creates a Catalog with the given options.
func New(opts ...Option) *Catalog {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Catalog{cfg: cfg}
}

// ListVersions returns the metadata of every firmware version available for
// the board, newest first. The bundled set is always consulted; the remote
// index augments it when reachable. A remote failure degrades to the
// bundled set and only becomes an error when the bundled set is empty too.
func (c *Catalog) ListVersions(ctx context.Context, board string) ([]ArtifactInfo, error) {
	if board == "" {
		return nil, fmt.Errorf("board cannot be empty")
	}

	local, err := c.listLocal(board)
	if err != nil {
		return nil, fmt.Errorf("list bundled firmware: %w", err)
	}

	remote, remoteErr := c.listRemote(ctx, board)
	if remoteErr != nil {
		c.logError("remote listing failed, using bundled set", "error", remoteErr)
		if len(local) == 0 {
			return nil, fmt.Errorf("no bundled firmware and remote listing failed: %w", remoteErr)
		}
	}

	// Bundled artifacts win over a remote entry for the same version:
	// they need no network to fetch.
	seen := make(map[string]struct{}, len(local))
	merged := make([]ArtifactInfo, 0, len(local)+len(remote))
	for _, info := range local {
		seen[info.Version] = struct{}{}
		merged = append(merged, info)
	}
	for _, info := range remote {
		if _, dup := seen[info.Version]; dup {
			continue
		}
		merged = append(merged, info)
	}

	sortNewestFirst(merged)
	return merged, nil
}

// Fetch returns the full artifact for a version reference previously
// obtained from ListVersions. Remote payloads are served from the cache
// when possible and checked against their declared digest.
func (c *Catalog) Fetch(ctx context.Context, info ArtifactInfo) (*Artifact, error) {
	var (
		art *Artifact
		err error
	)

	switch info.Source {
	case SourceBundled:
		art, err = c.fetchLocal(info)
	case SourceRemote:
		if cached, ok := c.readCache(info); ok {
			c.logDebug("serving artifact from cache", "board", info.Board, "version", info.Version)
			return cached, nil
		}
		art, err = c.fetchRemote(ctx, info)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrArtifactUnavailable, info.Source)
	}
	if err != nil {
		return nil, err
	}

	if err := checkDigest(art); err != nil {
		return nil, err
	}

	if info.Source == SourceRemote {
		c.writeCache(art)
	}

	return art, nil
}

// checkDigest compares the payload hash with the declared digest, when one
// was declared.
func checkDigest(art *Artifact) error {
	if art.SHA256 == "" {
		return nil
	}

	sum := sha256.Sum256(art.Payload)
	actual := hex.EncodeToString(sum[:])
	if actual != art.SHA256 {
		return &ChecksumError{
			Version:  art.Version,
			Board:    art.Board,
			Expected: art.SHA256,
			Actual:   actual,
		}
	}
	return nil
}

func (c *Catalog) logDebug(msg string, keysAndValues ...interface{}) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *Catalog) logError(msg string, keysAndValues ...interface{}) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Error(msg, keysAndValues...)
	}
}
