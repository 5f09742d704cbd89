package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings resolved from defaults, the YAML config file,
// a local .env file and the environment, in that order of precedence.
type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	Token      string `yaml:"token"`
	FarmerID   string `yaml:"farmer_id"`
	CacheDir   string `yaml:"cache_dir"`
	LogLevel   string `yaml:"log_level"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		APIBaseURL: DefaultAPIBaseURL,
		CacheDir:   CacheRoot(),
		LogLevel:   "info",
	}
}

// ConfigPath returns the YAML config location, honouring KRUSHI_CONFIG.
func ConfigPath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return filepath.Join(HomeDir(), "config.yaml")
}

// LoadConfig resolves the configuration. A missing config file or .env file
// is not an error; a malformed one is.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(&cfg, ConfigPath()); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(&cfg)
	cfg.APIBaseURL = NormalizeBaseURL(cfg.APIBaseURL)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	overlay(cfg, fileCfg)
	return nil
}

func applyEnv(cfg *Config) {
	overlay(cfg, Config{
		APIBaseURL: os.Getenv(EnvAPIBaseURL),
		Token:      os.Getenv(EnvToken),
		FarmerID:   os.Getenv(EnvFarmerID),
		CacheDir:   os.Getenv(EnvCacheDir),
		LogLevel:   os.Getenv(EnvLogLevel),
	})
}

// overlay copies the non-empty fields of src onto dst.
func overlay(dst *Config, src Config) {
	if src.APIBaseURL != "" {
		dst.APIBaseURL = src.APIBaseURL
	}
	if src.Token != "" {
		dst.Token = src.Token
	}
	if src.FarmerID != "" {
		dst.FarmerID = src.FarmerID
	}
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// NormalizeBaseURL strips trailing slashes and a duplicated API path.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	u = strings.TrimSuffix(u, APIPath)
	if u == "" {
		return DefaultAPIBaseURL
	}
	return u
}
