package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Li-Yaosong/webadb2/pkg/artifact"
	"github.com/Li-Yaosong/webadb2/pkg/mirror"
)

// Store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// Config holds the client configuration. Flags override file values.
type Config struct {
	// StateDir holds the device store, the client key and default logs.
	StateDir string `yaml:"state_dir"`

	// Store selects the persistence backend: json or sqlite.
	Store string `yaml:"store"`

	LogLevel string `yaml:"log_level"`

	// KeyFile is the client private key file. Default: <state_dir>/adbkey.
	KeyFile string `yaml:"key_file"`

	PacketLog PacketLogConfig    `yaml:"packet_log"`
	Server    ServerConfig       `yaml:"server"`
	S3        *artifact.S3Config `yaml:"s3,omitempty"`
	MDNS      MDNSConfig         `yaml:"mdns"`
	Status    StatusConfig       `yaml:"status"`

	// Decoder is the preferred decoder backend (ffplay, dump).
	Decoder string `yaml:"decoder"`

	// DumpDir receives raw video from the dump decoder.
	DumpDir string `yaml:"dump_dir"`

	// CaptureInput locks the terminal while mirroring.
	CaptureInput bool `yaml:"capture_input"`
}

// PacketLogConfig configures the packet log.
type PacketLogConfig struct {
	// Capacity of the in-memory ring buffer.
	Capacity int `yaml:"capacity"`

	// File receives every event as CBOR (optional).
	File string `yaml:"file"`
}

// ServerConfig describes the mirror server artifact.
type ServerConfig struct {
	// Artifact is a file path, http(s) URL or s3://bucket/key.
	Artifact string `yaml:"artifact"`

	// Digest is the expected BLAKE3 digest in hex (optional).
	Digest string `yaml:"digest"`

	Path    string `yaml:"path"`
	Class   string `yaml:"class"`
	Version string `yaml:"version"`

	MaxSize int64 `yaml:"max_size"`
}

// MDNSConfig configures wireless debugging discovery.
type MDNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface"`
}

// StatusConfig configures the status HTTP server.
type StatusConfig struct {
	// Listen is the address of the status server. Empty disables it.
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	stateDir := ".webadb"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".webadb")
	}
	return &Config{
		StateDir: stateDir,
		Store:    StoreJSON,
		LogLevel: "info",
		PacketLog: PacketLogConfig{
			Capacity: 4096,
		},
		Server: ServerConfig{
			Path:    mirror.DefaultServerPath,
			Class:   mirror.DefaultServerClass,
			Version: mirror.DefaultServerVersion,
			MaxSize: mirror.DefaultMaxArtifactSize,
		},
		MDNS: MDNSConfig{Enabled: true},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreJSON, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("store: unknown backend %q", c.Store))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.PacketLog.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("packet_log.capacity must be positive"))
	}
	if c.Server.Digest != "" {
		if _, err := artifact.ParseDigest(c.Server.Digest); err != nil {
			errs = append(errs, fmt.Errorf("server.digest: %w", err))
		}
	}
	return errors.Join(errs...)
}

// keyFile returns the client key path.
func (c *Config) keyFile() string {
	if c.KeyFile != "" {
		return c.KeyFile
	}
	return filepath.Join(c.StateDir, "adbkey")
}

// dumpDir returns the dump decoder directory.
func (c *Config) dumpDir() string {
	if c.DumpDir != "" {
		return c.DumpDir
	}
	return filepath.Join(c.StateDir, "video")
}

// parseLevel maps a log level name onto slog.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level: unknown level %q", level)
	}
}
