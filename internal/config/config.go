// Package config resolves runtime settings from a .env file, the process
// environment and (in the CLI) command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/jmcleod/techsync/internal/util"
)

// Target names a deployment environment with a well-known API address.
type Target string

const (
	TargetIOSSimulator    Target = "ios-simulator"
	TargetAndroidEmulator Target = "android-emulator"
	TargetProduction      Target = "production"
)

var targetURLs = map[Target]string{
	// Simulators share the host's loopback interface.
	TargetIOSSimulator: "http://localhost:8000",
	// The Android emulator reaches the host through a fixed alias address.
	TargetAndroidEmulator: "http://10.0.2.2:8000",
	TargetProduction:      "https://api.techsync.com",
}

// Targets lists the known deployment targets.
func Targets() []Target {
	return []Target{TargetIOSSimulator, TargetAndroidEmulator, TargetProduction}
}

// URL returns the API base address for t.
func (t Target) URL() (string, bool) {
	u, ok := targetURLs[t]
	return u, ok
}

const (
	DefaultTimeout   = 15 * time.Second
	minStoreKeyBytes = 16
)

type Config struct {
	Target    string        `env:"TECHSYNC_TARGET" default:"ios-simulator"`
	APIURL    string        `env:"TECHSYNC_API_URL"`
	Timeout   time.Duration `env:"TECHSYNC_TIMEOUT" default:"15s"`
	DataDir   string        `env:"TECHSYNC_DATA_DIR"`
	StoreKey  string        `env:"TECHSYNC_STORE_KEY"`
	LogLevel  string        `env:"LOG_LEVEL" default:"warn"`
	LogFormat string        `env:"LOG_FORMAT" default:"text"`
}

// Load reads the given dotenv files (".env" when none are named), then the
// environment. Variables already set in the environment win over dotenv
// values.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil {
		slog.Debug("no dotenv file loaded, using environment variables", "error", err)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(base, "techsync"), nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		if _, ok := Target(c.Target).URL(); !ok {
			errs = append(errs, fmt.Errorf("TECHSYNC_TARGET %q is not one of %s", c.Target, joinTargets()))
		}
	} else if _, err := parseBaseURL(c.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("TECHSYNC_API_URL: %w", err))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("TECHSYNC_TIMEOUT must be positive"))
	}
	if c.StoreKey != "" {
		if _, err := c.StoreSecret(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BaseURL resolves the API address: an explicit TECHSYNC_API_URL wins over
// the target's address.
func (c *Config) BaseURL() (*url.URL, error) {
	raw := c.APIURL
	if raw == "" {
		u, ok := Target(c.Target).URL()
		if !ok {
			return nil, fmt.Errorf("unknown target %q", c.Target)
		}
		raw = u
	}
	return parseBaseURL(raw)
}

// StoreSecret decodes TECHSYNC_STORE_KEY. It returns nil when unset.
func (c *Config) StoreSecret() ([]byte, error) {
	if c.StoreKey == "" {
		return nil, nil
	}
	b, err := util.HexDecode(c.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("TECHSYNC_STORE_KEY must be valid hex: %w", err)
	}
	if len(b) < minStoreKeyBytes {
		return nil, fmt.Errorf("TECHSYNC_STORE_KEY must decode to at least %d bytes, got %d", minStoreKeyBytes, len(b))
	}
	return b, nil
}

// SessionPath is the bbolt file holding the persisted session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func joinTargets() string {
	names := make([]string, 0, len(targetURLs))
	for _, t := range Targets() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
