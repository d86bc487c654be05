// Package config loads the optional ctfbridge config file, which carries
// per-host credentials and client defaults for the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/ctfbridge/ctf"
)

// Config is the root of the config file.
type Config struct {
	// Timeout is the general request timeout, e.g. "10s". Empty keeps the
	// client default.
	Timeout string `yaml:"timeout"`

	// RateLimit bounds requests per second per session. 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Hosts maps an instance hostname to its stored auth and overrides.
	Hosts map[string]Host `yaml:"hosts"`
}

// Host is the per-instance section.
type Host struct {
	// Platform pins the platform name and skips detection.
	Platform string `yaml:"platform"`

	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Session is a session cookie value, for platforms that use one.
	Session string `yaml:"session"`
}

// Credentials assembles ctf.Credentials from the host section.
func (h Host) Credentials() ctf.Credentials {
	creds := ctf.Credentials{
		Token:    h.Token,
		Username: h.Username,
		Password: h.Password,
	}
	if h.Session != "" {
		creds.Cookies = map[string]string{"session": h.Session}
	}
	return creds
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "ctfbridge", "config.yaml"), nil
}

// Load reads the config file at path. A missing file is not an error; it
// yields an empty config. Malformed YAML is an error: silently ignoring a
// typo'd credentials file would be worse than failing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// HostFor returns the section matching the instance URL's hostname, trying
// the exact host first and then parent domains.
func (c *Config) HostFor(instanceURL string) (Host, bool) {
	if len(c.Hosts) == 0 {
		return Host{}, false
	}

	raw := instanceURL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Host{}, false
	}

	host := u.Hostname()
	for host != "" {
		if h, ok := c.Hosts[host]; ok {
			return h, true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return Host{}, false
}
