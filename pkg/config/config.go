package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file and the defaults.
const (
	EnvRunMode    = "STORAGED_RUNMODE"
	EnvStorageURL = "STORAGED_STORAGE_URL"
	EnvListen     = "STORAGED_LISTEN"
)

// RunMode selects which grid environment the node belongs to.
type RunMode string

const (
	ModeDev  RunMode = "dev"
	ModeQA   RunMode = "qa"
	ModeTest RunMode = "test"
	ModeMain RunMode = "main"
)

// ParseRunMode parses a run mode, accepting the long aliases used on
// kernel command lines.
func ParseRunMode(s string) (RunMode, error) {
	switch s {
	case "dev", "development":
		return ModeDev, nil
	case "qa":
		return ModeQA, nil
	case "test", "testing":
		return ModeTest, nil
	case "main", "production":
		return ModeMain, nil
	default:
		return "", fmt.Errorf("invalid run mode '%s'", s)
	}
}

func (m RunMode) String() string {
	switch m {
	case ModeDev:
		return "development"
	case ModeQA:
		return "qa"
	case ModeTest:
		return "testing"
	case ModeMain:
		return "production"
	default:
		return string(m)
	}
}

// Config is the full daemon configuration, resolved once in main and
// injected down.
type Config struct {
	// Mode is the grid environment, production by default.
	Mode RunMode `yaml:"mode"`

	// StorageURL is the default flist content store passed to g8ufs.
	StorageURL string `yaml:"storage_url"`

	// Root is the flist engine working directory.
	Root string `yaml:"root"`

	// DataDir holds persistent daemon state such as the device type cache.
	DataDir string `yaml:"data_dir"`

	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen"`

	// Debug enables debug logging with console output.
	Debug bool `yaml:"debug"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Mode:       ModeMain,
		StorageURL: "redis://hub.grid.tf:9900",
		Root:       "/var/cache/storaged",
		DataDir:    "/var/lib/storaged",
		Listen:     "0.0.0.0:8080",
	}
}

// Load resolves the configuration: defaults, then the YAML file at path if
// given, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	mode, err := ParseRunMode(string(cfg.Mode))
	if err != nil {
		return Config{}, err
	}
	cfg.Mode = mode

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if mode := os.Getenv(EnvRunMode); mode != "" {
		c.Mode = RunMode(mode)
	}
	if url := os.Getenv(EnvStorageURL); url != "" {
		c.StorageURL = url
	}
	if listen := os.Getenv(EnvListen); listen != "" {
		c.Listen = listen
	}
	return nil
}
