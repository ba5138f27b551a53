package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultGroupings are the grouping dimensions used when none are configured.
var DefaultGroupings = []string{"site", "platform"}

// Config holds the application configuration
type Config struct {
	HostURL   string   // NetBox base URL, e.g. https://netbox.local
	AuthToken string   // NetBox API token
	Groupings []string // grouping dimensions, each must resolve to a slug

	// Legacy ansible_port/ansible_user hostvars. Off by default; the
	// values below are only emitted when LegacyVars is set.
	LegacyVars bool
	SSHPort    int
	SSHUser    string

	// Snapshot cache, off by default
	CacheEnabled bool
	CacheDir     string
	CacheBackend string // "file" or "sqlite" (default: "sqlite")
	CacheTTL     time.Duration

	// Serve mode
	ListenAddr      string
	RefreshSchedule string // cron spec for periodic rebuilds
	BearerToken     string // protects /mcp when set

	ConfigFile string // path to YAML config file (if loaded)
}

// fileConfig mirrors the YAML config file. Pointer fields distinguish
// "absent" from zero values so the file only overrides what it names.
type fileConfig struct {
	HostURL    *string  `yaml:"netbox_host_url"`
	AuthToken  *string  `yaml:"netbox_auth_token"`
	Groupings  []string `yaml:"groupings"`
	LegacyVars *bool    `yaml:"legacy_vars"`
	SSHPort    *int     `yaml:"ssh_port"`
	SSHUser    *string  `yaml:"ssh_user"`
	Cache      *struct {
		Enabled *bool   `yaml:"enabled"`
		Dir     *string `yaml:"dir"`
		Backend *string `yaml:"backend"`
		TTL     *string `yaml:"ttl"`
	} `yaml:"cache"`
	Serve *struct {
		ListenAddr      *string `yaml:"listen_addr"`
		RefreshSchedule *string `yaml:"refresh_schedule"`
		BearerToken     *string `yaml:"bearer_token"`
	} `yaml:"serve"`
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Values set on opts (from command-line flags)
// 2. YAML config file (opts.ConfigFile, if set and readable)
// 3. Environment variables (.env files are merged into the environment
//    by the CLI layer before this runs)
// 4. Default values
func Load(opts *Config) *Config {
	cfg := &Config{
		Groupings:       append([]string(nil), DefaultGroupings...),
		SSHPort:         22,
		SSHUser:         "root",
		CacheBackend:    "sqlite",
		CacheTTL:        5 * time.Minute,
		ListenAddr:      ":8080",
		RefreshSchedule: "*/5 * * * *",
	}

	// Environment
	cfg.HostURL = coalesce(os.Getenv("NETBOX_HOST_URL"), cfg.HostURL)
	cfg.AuthToken = coalesce(os.Getenv("NETBOX_AUTH_TOKEN"), cfg.AuthToken)
	if v := os.Getenv("TOWERBOX_GROUPINGS"); v != "" {
		cfg.Groupings = splitList(v)
	}
	cfg.LegacyVars = envBool("TOWERBOX_LEGACY_VARS", cfg.LegacyVars)
	if v := os.Getenv("TOWERBOX_SSH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.SSHPort = port
		}
	}
	cfg.SSHUser = coalesce(os.Getenv("TOWERBOX_SSH_USER"), cfg.SSHUser)
	cfg.CacheEnabled = envBool("TOWERBOX_CACHE", cfg.CacheEnabled)
	cfg.CacheDir = coalesce(os.Getenv("TOWERBOX_CACHE_DIR"), cfg.CacheDir)
	cfg.CacheBackend = coalesce(os.Getenv("TOWERBOX_CACHE_BACKEND"), cfg.CacheBackend)
	if v := os.Getenv("TOWERBOX_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.CacheTTL = ttl
		}
	}
	cfg.ListenAddr = coalesce(os.Getenv("TOWERBOX_LISTEN_ADDR"), cfg.ListenAddr)
	cfg.RefreshSchedule = coalesce(os.Getenv("TOWERBOX_REFRESH_SCHEDULE"), cfg.RefreshSchedule)
	cfg.BearerToken = coalesce(os.Getenv("TOWERBOX_BEARER_TOKEN"), cfg.BearerToken)

	// YAML config file
	if opts != nil && opts.ConfigFile != "" {
		if err := loadFromFile(cfg, opts.ConfigFile); err == nil {
			cfg.ConfigFile = opts.ConfigFile
		}
	}

	// CLI opts override everything
	if opts != nil {
		if opts.HostURL != "" {
			cfg.HostURL = opts.HostURL
		}
		if opts.AuthToken != "" {
			cfg.AuthToken = opts.AuthToken
		}
		if len(opts.Groupings) > 0 {
			cfg.Groupings = opts.Groupings
		}
		if opts.LegacyVars {
			cfg.LegacyVars = true
		}
		if opts.CacheEnabled {
			cfg.CacheEnabled = true
		}
		if opts.CacheDir != "" {
			cfg.CacheDir = opts.CacheDir
		}
		if opts.CacheBackend != "" {
			cfg.CacheBackend = opts.CacheBackend
		}
		if opts.CacheTTL > 0 {
			cfg.CacheTTL = opts.CacheTTL
		}
		if opts.ListenAddr != "" {
			cfg.ListenAddr = opts.ListenAddr
		}
		if opts.RefreshSchedule != "" {
			cfg.RefreshSchedule = opts.RefreshSchedule
		}
		if opts.BearerToken != "" {
			cfg.BearerToken = opts.BearerToken
		}
	}

	if cfg.CacheBackend != "file" && cfg.CacheBackend != "sqlite" {
		cfg.CacheBackend = "sqlite"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./data"
	}

	return cfg
}

// Validate checks that required settings are present. It must pass before
// any network activity happens.
func (c *Config) Validate() error {
	if c.HostURL == "" {
		return fmt.Errorf("NETBOX_HOST_URL is required")
	}
	u, err := url.Parse(c.HostURL)
	if err != nil {
		return fmt.Errorf("invalid NETBOX_HOST_URL %q: %w", c.HostURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("NETBOX_HOST_URL must use http or https, got %q", c.HostURL)
	}
	if u.Host == "" {
		return fmt.Errorf("NETBOX_HOST_URL has no host: %q", c.HostURL)
	}
	if c.AuthToken == "" {
		return fmt.Errorf("NETBOX_AUTH_TOKEN is required")
	}
	if len(c.Groupings) == 0 {
		return fmt.Errorf("at least one grouping dimension is required")
	}
	return nil
}

// String returns a description of where the config came from
func (c *Config) String() string {
	if c.ConfigFile != "" {
		return fmt.Sprintf("config file (%s)", c.ConfigFile)
	}
	return "environment variables"
}

// loadFromFile applies settings from a YAML config file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.HostURL != nil {
		cfg.HostURL = *fc.HostURL
	}
	if fc.AuthToken != nil {
		cfg.AuthToken = *fc.AuthToken
	}
	if len(fc.Groupings) > 0 {
		cfg.Groupings = fc.Groupings
	}
	if fc.LegacyVars != nil {
		cfg.LegacyVars = *fc.LegacyVars
	}
	if fc.SSHPort != nil {
		cfg.SSHPort = *fc.SSHPort
	}
	if fc.SSHUser != nil {
		cfg.SSHUser = *fc.SSHUser
	}
	if fc.Cache != nil {
		if fc.Cache.Enabled != nil {
			cfg.CacheEnabled = *fc.Cache.Enabled
		}
		if fc.Cache.Dir != nil {
			cfg.CacheDir = *fc.Cache.Dir
		}
		if fc.Cache.Backend != nil {
			cfg.CacheBackend = *fc.Cache.Backend
		}
		if fc.Cache.TTL != nil {
			if ttl, err := time.ParseDuration(*fc.Cache.TTL); err == nil && ttl > 0 {
				cfg.CacheTTL = ttl
			}
		}
	}
	if fc.Serve != nil {
		if fc.Serve.ListenAddr != nil {
			cfg.ListenAddr = *fc.Serve.ListenAddr
		}
		if fc.Serve.RefreshSchedule != nil {
			cfg.RefreshSchedule = *fc.Serve.RefreshSchedule
		}
		if fc.Serve.BearerToken != nil {
			cfg.BearerToken = *fc.Serve.BearerToken
		}
	}
	return nil
}

// coalesce returns the first non-empty string value
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// envBool reads a boolean environment variable
func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// splitList parses a comma-separated list, trimming whitespace
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
