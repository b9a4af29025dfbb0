// Package config loads tool configuration from a YAML file and maps it
// onto the library's functional options.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/flash"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the on-disk configuration. Zero values mean "use the
// library default" so a partial file only overrides what it names.
type Config struct {
	// Board is the target board identifier
	Board string `yaml:"board"`

	// Repository is the GitHub "owner/name" releases are listed from
	Repository string `yaml:"repository"`

	// FirmwareDir holds bundled artifacts shipped alongside the tool
	FirmwareDir string `yaml:"firmware_dir"`

	// CacheDir holds downloaded artifacts between runs
	CacheDir string `yaml:"cache_dir"`

	// Timeouts for the phases of a flash session
	DiscoveryTimeout       Duration `yaml:"discovery_timeout"`
	BootloaderReadyTimeout Duration `yaml:"bootloader_ready_timeout"`
	PostFlashTimeout       Duration `yaml:"post_flash_timeout"`

	// ChunkRetryLimit is the retry budget per block write
	ChunkRetryLimit int `yaml:"chunk_retry_limit"`

	// ChunkRetryDelay is the pause between block write retries
	ChunkRetryDelay Duration `yaml:"chunk_retry_delay"`

	// PickFirst flashes the first candidate when several devices match
	// instead of failing with an ambiguity error
	PickFirst bool `yaml:"pick_first"`
}

// Load reads a YAML configuration file. A missing file is not an error:
// the zero Config is returned and every library default applies.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FlashOptions maps the configuration onto orchestrator options. Unset
// fields contribute nothing, leaving the orchestrator defaults in place.
func (c Config) FlashOptions() []flash.Option {
	opts := []flash.Option{
		flash.WithBoard(c.Board),
		flash.WithDiscoveryTimeout(time.Duration(c.DiscoveryTimeout)),
		flash.WithBootloaderReadyTimeout(time.Duration(c.BootloaderReadyTimeout)),
		flash.WithPostFlashTimeout(time.Duration(c.PostFlashTimeout)),
		flash.WithChunkRetries(c.ChunkRetryLimit, time.Duration(c.ChunkRetryDelay)),
	}
	if c.PickFirst {
		opts = append(opts, flash.WithAmbiguousPolicy(flash.AmbiguousPickFirst))
	}
	return opts
}

// CatalogOptions maps the configuration onto catalog options.
func (c Config) CatalogOptions() []catalog.Option {
	var opts []catalog.Option
	if c.Repository != "" {
		opts = append(opts, catalog.WithRepository(c.Repository))
	}
	if c.FirmwareDir != "" {
		opts = append(opts, catalog.WithLocalDir(c.FirmwareDir))
	}
	if c.CacheDir != "" {
		opts = append(opts, catalog.WithCacheDir(c.CacheDir))
	}
	return opts
}
