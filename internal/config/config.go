// Package config loads attestview settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath      = "attestview.yaml"
	DefaultShareBase = "https://example.com/?json="
	EnvPrefix        = "ATTESTVIEW_"
)

type Config struct {
	HistoryPath     string `yaml:"history_path"`
	HistoryLimit    int    `yaml:"history_limit"`
	MaxDepth        int    `yaml:"max_depth"`
	JSONC           bool   `yaml:"jsonc"`
	ShareBaseURL    string `yaml:"share_base_url"`
	ShareMaxLength  int    `yaml:"share_max_length"`
	ShareCodec      string `yaml:"share_codec"`
	LogLevel        string `yaml:"log_level"`
	LogDevelopment  bool   `yaml:"log_development"`
	ListenAddr      string `yaml:"listen_addr"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func Default() Config {
	return Config{
		HistoryPath:     defaultHistoryPath(),
		HistoryLimit:    20,
		MaxDepth:        64,
		ShareBaseURL:    DefaultShareBase,
		ShareMaxLength:  2000,
		ShareCodec:      "zstd",
		LogLevel:        "warn",
		ListenAddr:      ":8080",
		CacheTTLSeconds: 300,
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".attestview", "history.json")
	}
	return filepath.Join(dir, "attestview", "history.json")
}

// Load reads path over Default(). A missing file is not an error when
// path is the default location.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Missing files are skipped;
// variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from ATTESTVIEW_* variables read through
// lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("HISTORY_PATH", &c.HistoryPath)
	str("SHARE_BASE_URL", &c.ShareBaseURL)
	str("SHARE_CODEC", &c.ShareCodec)
	str("LOG_LEVEL", &c.LogLevel)
	str("LISTEN_ADDR", &c.ListenAddr)
	for key, dst := range map[string]*int{
		"HISTORY_LIMIT":     &c.HistoryLimit,
		"MAX_DEPTH":         &c.MaxDepth,
		"SHARE_MAX_LENGTH":  &c.ShareMaxLength,
		"CACHE_TTL_SECONDS": &c.CacheTTLSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if err := flag("JSONC", &c.JSONC); err != nil {
		return err
	}
	return flag("LOG_DEVELOPMENT", &c.LogDevelopment)
}

// Validate rejects settings the rest of the program cannot work with.
func (c Config) Validate() error {
	var problems []string
	if c.HistoryLimit < 1 {
		problems = append(problems, "history_limit must be at least 1")
	}
	if c.MaxDepth < 1 {
		problems = append(problems, "max_depth must be at least 1")
	}
	if c.ShareMaxLength < 1 {
		problems = append(problems, "share_max_length must be at least 1")
	}
	switch c.ShareCodec {
	case "zstd", "lz4":
	default:
		problems = append(problems, fmt.Sprintf("share_codec %q is not zstd or lz4", c.ShareCodec))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
