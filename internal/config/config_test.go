package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// clearEnv removes all config-relevant variables so tests start clean
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NETBOX_HOST_URL", "NETBOX_AUTH_TOKEN",
		"TOWERBOX_GROUPINGS", "TOWERBOX_LEGACY_VARS",
		"TOWERBOX_SSH_PORT", "TOWERBOX_SSH_USER",
		"TOWERBOX_CACHE", "TOWERBOX_CACHE_DIR", "TOWERBOX_CACHE_BACKEND", "TOWERBOX_CACHE_TTL",
		"TOWERBOX_LISTEN_ADDR", "TOWERBOX_REFRESH_SCHEDULE", "TOWERBOX_BEARER_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load(nil)

	if !reflect.DeepEqual(cfg.Groupings, []string{"site", "platform"}) {
		t.Errorf("Groupings = %v, want [site platform]", cfg.Groupings)
	}
	if cfg.LegacyVars {
		t.Error("LegacyVars should default to off")
	}
	if cfg.SSHPort != 22 || cfg.SSHUser != "root" {
		t.Errorf("SSH defaults = %d/%s, want 22/root", cfg.SSHPort, cfg.SSHUser)
	}
	if cfg.CacheEnabled {
		t.Error("Cache should default to off")
	}
	if cfg.CacheBackend != "sqlite" {
		t.Errorf("CacheBackend = %q, want sqlite", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETBOX_HOST_URL", "https://netbox.example.com")
	t.Setenv("NETBOX_AUTH_TOKEN", "tok123")
	t.Setenv("TOWERBOX_GROUPINGS", "site, tenant ,platform")
	t.Setenv("TOWERBOX_LEGACY_VARS", "true")
	t.Setenv("TOWERBOX_CACHE", "1")
	t.Setenv("TOWERBOX_CACHE_TTL", "90s")

	cfg := Load(nil)

	if cfg.HostURL != "https://netbox.example.com" {
		t.Errorf("HostURL = %q", cfg.HostURL)
	}
	if cfg.AuthToken != "tok123" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
	if !reflect.DeepEqual(cfg.Groupings, []string{"site", "tenant", "platform"}) {
		t.Errorf("Groupings = %v", cfg.Groupings)
	}
	if !cfg.LegacyVars {
		t.Error("LegacyVars should be on")
	}
	if !cfg.CacheEnabled {
		t.Error("CacheEnabled should be on")
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "towerbox.yml")
	content := `
netbox_host_url: https://netbox.internal
netbox_auth_token: filetoken
groupings:
  - site
legacy_vars: true
cache:
  enabled: true
  backend: file
  ttl: 10m
serve:
  listen_addr: ":9090"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Writing config file: %v", err)
	}

	cfg := Load(&Config{ConfigFile: path})

	if cfg.HostURL != "https://netbox.internal" {
		t.Errorf("HostURL = %q", cfg.HostURL)
	}
	if cfg.AuthToken != "filetoken" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
	if !reflect.DeepEqual(cfg.Groupings, []string{"site"}) {
		t.Errorf("Groupings = %v, want [site]", cfg.Groupings)
	}
	if !cfg.LegacyVars || !cfg.CacheEnabled {
		t.Error("legacy_vars and cache.enabled should be on")
	}
	if cfg.CacheBackend != "file" {
		t.Errorf("CacheBackend = %q, want file", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoad_OptsOverrideEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv("NETBOX_HOST_URL", "https://from-env")

	cfg := Load(&Config{HostURL: "https://from-flag", CacheBackend: "file"})

	if cfg.HostURL != "https://from-flag" {
		t.Errorf("HostURL = %q, want flag value", cfg.HostURL)
	}
	if cfg.CacheBackend != "file" {
		t.Errorf("CacheBackend = %q, want file", cfg.CacheBackend)
	}
}

func TestLoad_InvalidBackendFallsBack(t *testing.T) {
	clearEnv(t)
	cfg := Load(&Config{CacheBackend: "etcd"})
	if cfg.CacheBackend != "sqlite" {
		t.Errorf("CacheBackend = %q, want sqlite fallback", cfg.CacheBackend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"Valid", Config{HostURL: "https://netbox.local", AuthToken: "t", Groupings: []string{"site"}}, false},
		{"Plain HTTP allowed", Config{HostURL: "http://netbox.local", AuthToken: "t", Groupings: []string{"site"}}, false},
		{"Missing host URL", Config{AuthToken: "t", Groupings: []string{"site"}}, true},
		{"Missing token", Config{HostURL: "https://netbox.local", Groupings: []string{"site"}}, true},
		{"Bad scheme", Config{HostURL: "ftp://netbox.local", AuthToken: "t", Groupings: []string{"site"}}, true},
		{"No host", Config{HostURL: "https://", AuthToken: "t", Groupings: []string{"site"}}, true},
		{"No groupings", Config{HostURL: "https://netbox.local", AuthToken: "t"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
