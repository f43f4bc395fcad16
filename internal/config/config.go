package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config mirrors the on-disk YAML schema. All values should be supplied via
// YAML; Validate/applyDefaults document the defaults we fall back to.
type Config struct {
	Version     int             `yaml:"version"`
	General     General         `yaml:"general"`
	Network     Network         `yaml:"network"`
	Concurrency Concurrency     `yaml:"concurrency"`
	Router      RouterConfig    `yaml:"router"`
	Extractor   ExtractorConfig `yaml:"extractor"`
	Vault       VaultConfig     `yaml:"vault"`
	Logging     Logging         `yaml:"logging"`
	Metrics     Metrics         `yaml:"metrics"`
}

type General struct {
	DataRoot    string `yaml:"data_root"`   // sqlite host-reputation table
	VaultRoot   string `yaml:"vault_root"`  // vault_config.json + files/*.enc
	ScratchRoot string `yaml:"scratch_root"` // vault-owned scratch dir for C9
}

type Network struct {
	UserAgent        string `yaml:"user_agent"`
	ProbeTimeoutMS   int    `yaml:"probe_timeout_ms"`   // default 2000, spec.md §5
	ConnectTimeoutS  int    `yaml:"connect_timeout_s"`  // default 30
	RequestTimeoutS  int    `yaml:"request_timeout_s"`  // default 300 (PNDE per-request)
	MetadataTimeoutS int    `yaml:"metadata_timeout_s"` // default 15; not read: the extractor uses its own fixed 15s metadata timeout
}

type Concurrency struct {
	TotalSlots       int `yaml:"total_slots"`     // scheduler general semaphore, default 3
	NativeSlots      int `yaml:"native_slots"`    // scheduler PNDE semaphore, default 2
	MaxConnections   int `yaml:"max_connections"` // default 16, validated to [1,16]; not read: PNDE uses its own fixed cap of 16
	ChunkRetries     int `yaml:"chunk_retries"`   // default 5; not read: PNDE uses its own fixed limit of 5
	RequestRetries   int `yaml:"request_retries"` // default 2; not read by any component
	ExtractorRetries int `yaml:"extractor_retries"` // default 1
}

type RouterConfig struct {
	MediaPlatformSuffixes []string `yaml:"media_platform_suffixes"`
	StaticExtensions      []string `yaml:"static_extensions"`
}

type ExtractorConfig struct {
	BinaryName      string `yaml:"binary_name"`
	AppManagedDir   string `yaml:"app_managed_dir"`
	PackagedDir     string `yaml:"packaged_dir"`
	ReleaseIndexURL string `yaml:"release_index_url"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"` // default 5
	CacheMaxEntries int    `yaml:"cache_max_entries"` // default 64
}

type VaultConfig struct {
	MinPINLength int `yaml:"min_pin_length"` // default 4
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	if c.General.VaultRoot, err = expandTilde(c.General.VaultRoot); err != nil {
		return err
	}
	if c.General.ScratchRoot, err = expandTilde(c.General.ScratchRoot); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills in the defaults spec.md calls out by name, leaving any
// explicitly-set YAML value untouched.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Network.ProbeTimeoutMS == 0 {
		c.Network.ProbeTimeoutMS = 2000
	}
	if c.Network.ConnectTimeoutS == 0 {
		c.Network.ConnectTimeoutS = 30
	}
	if c.Network.RequestTimeoutS == 0 {
		c.Network.RequestTimeoutS = 300
	}
	if c.Network.MetadataTimeoutS == 0 {
		c.Network.MetadataTimeoutS = 15
	}
	if c.Concurrency.TotalSlots == 0 {
		c.Concurrency.TotalSlots = 3
	}
	if c.Concurrency.NativeSlots == 0 {
		c.Concurrency.NativeSlots = 2
	}
	if c.Concurrency.MaxConnections == 0 {
		c.Concurrency.MaxConnections = 16
	}
	if c.Concurrency.ChunkRetries == 0 {
		c.Concurrency.ChunkRetries = 5
	}
	if c.Concurrency.RequestRetries == 0 {
		c.Concurrency.RequestRetries = 2
	}
	if c.Concurrency.ExtractorRetries == 0 {
		c.Concurrency.ExtractorRetries = 1
	}
	if len(c.Router.MediaPlatformSuffixes) == 0 {
		c.Router.MediaPlatformSuffixes = DefaultMediaPlatformSuffixes
	}
	if len(c.Router.StaticExtensions) == 0 {
		c.Router.StaticExtensions = DefaultStaticExtensions
	}
	if c.Extractor.BinaryName == "" {
		c.Extractor.BinaryName = "media-extractor"
	}
	if c.Extractor.CacheTTLMinutes == 0 {
		c.Extractor.CacheTTLMinutes = 5
	}
	if c.Extractor.CacheMaxEntries == 0 {
		c.Extractor.CacheMaxEntries = 64
	}
	if c.Vault.MinPINLength == 0 {
		c.Vault.MinPINLength = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "human"
	}
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.DataRoot == "" {
		return errors.New("general.data_root is required")
	}
	if c.General.VaultRoot == "" {
		return errors.New("general.vault_root is required")
	}
	if c.Vault.MinPINLength < 4 {
		return errors.New("vault.min_pin_length must be >= 4")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	if c.Concurrency.MaxConnections < 1 || c.Concurrency.MaxConnections > 16 {
		return errors.New("concurrency.max_connections must be in [1,16]")
	}
	return nil
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}

// EnsureDir is a small helper shared by components that lazily create their
// on-disk roots (vault files dir, scratch dir, data dir).
func EnsureDir(path string, perm fs.FileMode) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, perm)
}
