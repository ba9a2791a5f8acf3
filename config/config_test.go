package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zhubert/eagleray-sideband/paths"
)

func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	paths.Reset()
	t.Cleanup(paths.Reset)
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eagleray.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := setupTestHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PluginName != "EagleRay" || cfg.ObjectName != "ERay_Input" {
		t.Errorf("names = %q, %q", cfg.PluginName, cfg.ObjectName)
	}
	if cfg.RetryInterval != time.Second {
		t.Errorf("RetryInterval = %s", cfg.RetryInterval)
	}
	if cfg.InvokePollTimeout != 999999*time.Millisecond {
		t.Errorf("InvokePollTimeout = %s", cfg.InvokePollTimeout)
	}
	wantMode := TriggerLog
	if runtime.GOOS == "windows" {
		wantMode = TriggerLibrary
	}
	if cfg.Trigger.Mode != wantMode {
		t.Errorf("Trigger.Mode = %q, want %q", cfg.Trigger.Mode, wantMode)
	}
	if cfg.Metrics.Address != "" {
		t.Errorf("metrics should be disabled by default, got %q", cfg.Metrics.Address)
	}
	if want := filepath.Join(home, ".eagleray", "eagleray.yaml"); cfg.FilePath() != want {
		t.Errorf("FilePath = %q, want %q", cfg.FilePath(), want)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, `
plugin_name: EagleRayTest
retry_interval: 250ms
invoke_poll_timeout: 5s
debug: true
trigger:
  mode: command
  command: /usr/bin/notify
  args: ["--source", "eagleray"]
  timeout: 3s
events:
  socket: ""
metrics:
  address: 127.0.0.1:9464
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PluginName != "EagleRayTest" {
		t.Errorf("PluginName = %q", cfg.PluginName)
	}
	if cfg.ObjectName != "ERay_Input" {
		t.Errorf("ObjectName should keep its default, got %q", cfg.ObjectName)
	}
	if cfg.RetryInterval != 250*time.Millisecond || cfg.InvokePollTimeout != 5*time.Second {
		t.Errorf("intervals = %s, %s", cfg.RetryInterval, cfg.InvokePollTimeout)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Trigger.Mode != TriggerCommand || cfg.Trigger.Command != "/usr/bin/notify" {
		t.Errorf("Trigger = %+v", cfg.Trigger)
	}
	if strings.Join(cfg.Trigger.Args, " ") != "--source eagleray" {
		t.Errorf("Trigger.Args = %v", cfg.Trigger.Args)
	}
	if cfg.Trigger.Timeout != 3*time.Second {
		t.Errorf("Trigger.Timeout = %s", cfg.Trigger.Timeout)
	}
	if cfg.Events.Socket != "" {
		t.Errorf("events socket should be disabled, got %q", cfg.Events.Socket)
	}
	if cfg.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("Metrics.Address = %q", cfg.Metrics.Address)
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, "retry_interval: 250ms\ntrigger:\n  mode: log\n")
	t.Setenv("EAGLERAY_RETRY_INTERVAL", "2s")
	t.Setenv("EAGLERAY_TRIGGER_MODE", "command")
	t.Setenv("EAGLERAY_TRIGGER_COMMAND", "notify-send")
	t.Setenv("EAGLERAY_TRIGGER_ARGS", "EagleRay,input")
	t.Setenv("EAGLERAY_METRICS_ADDRESS", ":9100")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.RetryInterval != 2*time.Second {
		t.Errorf("RetryInterval = %s, want 2s", cfg.RetryInterval)
	}
	if cfg.Trigger.Mode != TriggerCommand || cfg.Trigger.Command != "notify-send" {
		t.Errorf("Trigger = %+v", cfg.Trigger)
	}
	if len(cfg.Trigger.Args) != 2 || cfg.Trigger.Args[1] != "input" {
		t.Errorf("Trigger.Args = %v", cfg.Trigger.Args)
	}
	if cfg.Metrics.Address != ":9100" {
		t.Errorf("Metrics.Address = %q", cfg.Metrics.Address)
	}
}

func TestLoadFile_ClearedFieldsGetDefaults(t *testing.T) {
	setupTestHome(t)
	path := writeConfig(t, "service_library: \"\"\ntrigger:\n  mode: \"\"\n  timeout: 0s\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.ServiceLibrary != DefaultServiceLibrary {
		t.Errorf("ServiceLibrary = %q", cfg.ServiceLibrary)
	}
	if cfg.Trigger.Mode == "" || cfg.Trigger.Timeout != DefaultTriggerTimeout {
		t.Errorf("Trigger = %+v", cfg.Trigger)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	setupTestHome(t)

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "plugin_name: [unterminated\n")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("bad env duration", func(t *testing.T) {
		path := writeConfig(t, "")
		t.Setenv("EAGLERAY_RETRY_INTERVAL", "soon")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected env parse error")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "trigger:\n  mode: carrier-pigeon\n")
		_, err := LoadFile(path)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("err = %v, want ErrInvalid", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"empty plugin name", func(c *Config) { c.PluginName = "" }, "plugin_name is empty"},
		{"empty object name", func(c *Config) { c.ObjectName = "" }, "object_name is empty"},
		{"long object name", func(c *Config) { c.ObjectName = strings.Repeat("x", 256) }, "limit is 255"},
		{"max length name", func(c *Config) { c.ObjectName = strings.Repeat("x", 255) }, ""},
		{"NUL in plugin name", func(c *Config) { c.PluginName = "Eagle\x00Ray" }, "NUL"},
		{"zero retry interval", func(c *Config) { c.RetryInterval = 0 }, "retry_interval"},
		{"negative poll timeout", func(c *Config) { c.InvokePollTimeout = -time.Second }, "invoke_poll_timeout"},
		{"sub-millisecond poll timeout", func(c *Config) { c.InvokePollTimeout = time.Microsecond }, "invoke_poll_timeout"},
		{"unknown mode", func(c *Config) { c.Trigger.Mode = "smoke" }, "unknown trigger.mode"},
		{"command without program", func(c *Config) {
			c.Trigger.Mode = TriggerCommand
			c.Trigger.Command = "  "
		}, "trigger.command is required"},
		{"command with zero timeout", func(c *Config) {
			c.Trigger.Mode = TriggerCommand
			c.Trigger.Command = "true"
			c.Trigger.Timeout = 0
		}, "trigger.timeout"},
		{"library without path", func(c *Config) {
			c.Trigger.Mode = TriggerLibrary
			c.Trigger.Library = ""
		}, "trigger.library is required"},
		{"log mode", func(c *Config) { c.Trigger.Mode = TriggerLog }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err should wrap ErrInvalid: %v", err)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "nested", "eagleray.yaml")

	cfg := Default()
	cfg.SetFilePath(path)
	cfg.RetryInterval = 1500 * time.Millisecond
	cfg.Trigger.Mode = TriggerCommand
	cfg.Trigger.Command = "notify"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "retry_interval: 1.5s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.RetryInterval != cfg.RetryInterval || loaded.Trigger.Command != "notify" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSave_NoPath(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Save(); err == nil {
		t.Error("Save without a path should fail")
	}
}
