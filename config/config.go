package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config directory used when AETHERMON_CONFIG_PATH is unset.
const DefaultPath = "data/config"

// EnvPath names the environment variable that overrides DefaultPath.
const EnvPath = "AETHERMON_CONFIG_PATH"

// ErrNotFound marks a config directory that does not exist.
var ErrNotFound = errors.New("config directory not found")

const (
	ModeTview    = "tview"
	ModeConsole  = "console"
	ModeHTML     = "html"
	ModeHeadless = "headless"
)

// Config represents the complete monitor configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	UI        UIConfig        `yaml:"ui"`
	Logging   LoggingConfig   `yaml:"logging"`

	// LoadedFrom is the directory the config was read from; empty for defaults.
	LoadedFrom string `yaml:"-"`
}

// TransportConfig describes how to reach the telemetry source.
type TransportConfig struct {
	Endpoint           string `yaml:"endpoint"`
	PollIntervalMS     int    `yaml:"poll_interval_ms"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
	ReadLimitBytes     int64  `yaml:"read_limit_bytes"`
	// RedialIntervalMS of 0 leaves a closed connection closed.
	RedialIntervalMS int `yaml:"redial_interval_ms"`
}

// UIConfig selects and tunes the output surface.
type UIConfig struct {
	Mode               string            `yaml:"mode"`
	TargetFPS          int               `yaml:"target_fps"`
	ClearScreen        bool              `yaml:"clear_screen"`
	HTMLPath           string            `yaml:"html_path"`
	HTMLRefreshSeconds int               `yaml:"html_refresh_seconds"`
	SystemLines        int               `yaml:"system_lines"`
	Keybindings        KeybindingsConfig `yaml:"keybindings"`
}

// KeybindingsConfig toggles the letter alternatives to function keys.
type KeybindingsConfig struct {
	UseAlternatives bool `yaml:"use_alternatives"`
}

// LoggingConfig controls the optional daily log files.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Endpoint:           "ws://localhost:8080/aether",
			PollIntervalMS:     100,
			HandshakeTimeoutMS: 5000,
			ReadLimitBytes:     4 << 20,
		},
		UI: UIConfig{
			Mode:               ModeTview,
			TargetFPS:          30,
			ClearScreen:        true,
			HTMLPath:           "data/aethermon.html",
			HTMLRefreshSeconds: 1,
			SystemLines:        200,
			Keybindings:        KeybindingsConfig{UseAlternatives: true},
		},
		Logging: LoggingConfig{
			Dir:           "data/logs",
			RetentionDays: 7,
		},
	}
}

// Load reads every *.yaml and *.yml file in dir, in lexical order, over the
// defaults. Later files override keys set by earlier ones. dir must be a
// directory.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "config path %s", dir), ErrNotFound)
		}
		return nil, errors.Wrapf(err, "config path %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("config path %s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read config dir %s", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	cfg := Default()
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", dir)
	}
	cfg.LoadedFrom = dir
	return cfg, nil
}

func (c *Config) normalize() {
	c.Transport.Endpoint = strings.TrimSpace(c.Transport.Endpoint)
	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = ModeTview
	}
	c.UI.HTMLPath = strings.TrimSpace(c.UI.HTMLPath)
	c.Logging.Dir = strings.TrimSpace(c.Logging.Dir)
}

// Validate reports the first invalid key.
func (c *Config) Validate() error {
	if c.Transport.Endpoint == "" {
		return errors.New("transport.endpoint must be set")
	}
	if _, err := url.Parse(c.Transport.Endpoint); err != nil {
		return errors.Wrap(err, "transport.endpoint")
	}
	if c.Transport.PollIntervalMS <= 0 {
		return errors.Newf("transport.poll_interval_ms must be > 0 (got %d)", c.Transport.PollIntervalMS)
	}
	if c.Transport.HandshakeTimeoutMS <= 0 {
		return errors.Newf("transport.handshake_timeout_ms must be > 0 (got %d)", c.Transport.HandshakeTimeoutMS)
	}
	if c.Transport.ReadLimitBytes <= 0 {
		return errors.Newf("transport.read_limit_bytes must be > 0 (got %d)", c.Transport.ReadLimitBytes)
	}
	if c.Transport.RedialIntervalMS < 0 {
		return errors.Newf("transport.redial_interval_ms must be >= 0 (got %d)", c.Transport.RedialIntervalMS)
	}
	switch c.UI.Mode {
	case ModeTview, ModeConsole, ModeHTML, ModeHeadless:
	default:
		return errors.Newf("ui.mode %q is not one of tview, console, html, headless", c.UI.Mode)
	}
	if c.UI.TargetFPS <= 0 || c.UI.TargetFPS > 240 {
		return errors.Newf("ui.target_fps must be within 1..240 (got %d)", c.UI.TargetFPS)
	}
	if c.UI.Mode == ModeHTML && c.UI.HTMLPath == "" {
		return errors.New("ui.html_path must be set when ui.mode is html")
	}
	if c.UI.HTMLRefreshSeconds < 0 {
		return errors.Newf("ui.html_refresh_seconds must be >= 0 (got %d)", c.UI.HTMLRefreshSeconds)
	}
	if c.UI.SystemLines <= 0 {
		return errors.Newf("ui.system_lines must be > 0 (got %d)", c.UI.SystemLines)
	}
	if c.Logging.Enabled && c.Logging.Dir == "" {
		return errors.New("logging.dir must be set when logging.enabled is true")
	}
	if c.Logging.RetentionDays < 0 {
		return errors.Newf("logging.retention_days must be >= 0 (got %d)", c.Logging.RetentionDays)
	}
	return nil
}

func (t TransportConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

func (t TransportConfig) HandshakeTimeout() time.Duration {
	return time.Duration(t.HandshakeTimeoutMS) * time.Millisecond
}

func (t TransportConfig) RedialInterval() time.Duration {
	return time.Duration(t.RedialIntervalMS) * time.Millisecond
}

// Print displays the configuration
func (c *Config) Print() {
	source := c.LoadedFrom
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Printf("Config: %s\n", source)
	redial := "off"
	if c.Transport.RedialIntervalMS > 0 {
		redial = c.Transport.RedialInterval().String()
	}
	fmt.Printf("Transport: %s (poll every %s, redial %s)\n", c.Transport.Endpoint, c.Transport.PollInterval(), redial)
	fmt.Printf("UI: %s", c.UI.Mode)
	if c.UI.Mode == ModeHTML {
		fmt.Printf(" -> %s", c.UI.HTMLPath)
	}
	fmt.Println()
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retain %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
