// Package config loads the receiver's settings from eagleray.yaml and the
// EAGLERAY_* environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zhubert/eagleray-sideband/paths"
	"github.com/zhubert/eagleray-sideband/vdp"
)

// Trigger modes.
const (
	TriggerLibrary = "library"
	TriggerCommand = "command"
	TriggerLog     = "log"
)

// MaxNameLength is the longest plugin or object name the host accepts.
const MaxNameLength = vdp.MaxTokenLength

const (
	DefaultServiceLibrary    = "vdpService.dll"
	DefaultTriggerLibrary    = "sideband_inputs_trigger.dll"
	DefaultRetryInterval     = time.Second
	DefaultInvokePollTimeout = 999999 * time.Millisecond
	DefaultTriggerTimeout    = 10 * time.Second
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the receiver configuration.
type Config struct {
	PluginName        string        `yaml:"plugin_name" env:"PLUGIN_NAME"`
	ObjectName        string        `yaml:"object_name" env:"OBJECT_NAME"`
	ServiceLibrary    string        `yaml:"service_library" env:"SERVICE_LIBRARY"`
	RetryInterval     time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	InvokePollTimeout time.Duration `yaml:"invoke_poll_timeout" env:"INVOKE_POLL_TIMEOUT"`
	Debug             bool          `yaml:"debug" env:"DEBUG"`

	Trigger TriggerConfig `yaml:"trigger" envPrefix:"TRIGGER_"`
	Events  EventsConfig  `yaml:"events" envPrefix:"EVENTS_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	filePath string
}

// TriggerConfig selects how forwarded arguments are acted on.
type TriggerConfig struct {
	Mode    string        `yaml:"mode" env:"MODE"`
	Library string        `yaml:"library" env:"LIBRARY"`
	Command string        `yaml:"command,omitempty" env:"COMMAND"`
	Args    []string      `yaml:"args,omitempty" env:"ARGS"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EventsConfig controls the status events socket. An empty socket disables it.
type EventsConfig struct {
	Socket string `yaml:"socket" env:"SOCKET"`
}

// MetricsConfig controls the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	mode := TriggerLog
	if runtime.GOOS == "windows" {
		mode = TriggerLibrary
	}
	socket, err := paths.EventsSocketPath()
	if err != nil {
		socket = ""
	}
	return &Config{
		PluginName:        vdp.PluginName,
		ObjectName:        vdp.ObjectName,
		ServiceLibrary:    DefaultServiceLibrary,
		RetryInterval:     DefaultRetryInterval,
		InvokePollTimeout: DefaultInvokePollTimeout,
		Trigger: TriggerConfig{
			Mode:    mode,
			Library: DefaultTriggerLibrary,
			Timeout: DefaultTriggerTimeout,
		},
		Events: EventsConfig{Socket: socket},
	}
}

// Load reads the default config file, applies the environment and validates
// the result. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: "EAGLERAY_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ensureDefaults restores defaults for fields a config file cleared.
func (c *Config) ensureDefaults() {
	def := Default()
	if c.ServiceLibrary == "" {
		c.ServiceLibrary = def.ServiceLibrary
	}
	if c.Trigger.Mode == "" {
		c.Trigger.Mode = def.Trigger.Mode
	}
	if c.Trigger.Library == "" {
		c.Trigger.Library = def.Trigger.Library
	}
	if c.Trigger.Timeout == 0 {
		c.Trigger.Timeout = def.Trigger.Timeout
	}
}

// Validate checks the configuration for values the receiver cannot run with.
func (c *Config) Validate() error {
	if err := validateName("plugin_name", c.PluginName); err != nil {
		return err
	}
	if err := validateName("object_name", c.ObjectName); err != nil {
		return err
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry_interval must be positive, got %s", ErrInvalid, c.RetryInterval)
	}
	if c.InvokePollTimeout < time.Millisecond {
		return fmt.Errorf("%w: invoke_poll_timeout must be at least 1ms, got %s", ErrInvalid, c.InvokePollTimeout)
	}

	switch c.Trigger.Mode {
	case TriggerLibrary:
		if c.Trigger.Library == "" {
			return fmt.Errorf("%w: trigger.library is required in library mode", ErrInvalid)
		}
	case TriggerCommand:
		if strings.TrimSpace(c.Trigger.Command) == "" {
			return fmt.Errorf("%w: trigger.command is required in command mode", ErrInvalid)
		}
		if c.Trigger.Timeout <= 0 {
			return fmt.Errorf("%w: trigger.timeout must be positive, got %s", ErrInvalid, c.Trigger.Timeout)
		}
	case TriggerLog:
	default:
		return fmt.Errorf("%w: unknown trigger.mode %q", ErrInvalid, c.Trigger.Mode)
	}
	return nil
}

func validateName(field, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalid, field)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInvalid, field, len(name), MaxNameLength)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("%w: %s contains a NUL byte", ErrInvalid, field)
	}
	return nil
}

// FilePath returns the file the config was loaded from.
func (c *Config) FilePath() string {
	return c.filePath
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.filePath == "" {
		return errors.New("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path used by Save.
func (c *Config) SetFilePath(path string) {
	c.filePath = path
}
