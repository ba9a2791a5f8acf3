package paths

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestHome creates a temp directory, sets HOME to it, and resets the path cache.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	Reset()
	t.Cleanup(Reset)
	return tmpDir
}

func TestFreshInstallNoXDG(t *testing.T) {
	home := setupTestHome(t)
	expected := filepath.Join(home, ".eagleray")

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if configDir != expected {
		t.Errorf("ConfigDir = %q, want %q", configDir, expected)
	}

	stateDir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if stateDir != expected {
		t.Errorf("StateDir = %q, want %q", stateDir, expected)
	}

	if !IsFlatLayout() {
		t.Error("IsFlatLayout should be true for fresh install without XDG")
	}
}

func TestFlatDirWinsOverXDG(t *testing.T) {
	home := setupTestHome(t)
	flatDir := filepath.Join(home, ".eagleray")
	if err := os.MkdirAll(flatDir, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg-config"))
	Reset()

	configDir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if configDir != flatDir {
		t.Errorf("ConfigDir = %q, want %q", configDir, flatDir)
	}
}

func TestXDGLayout(t *testing.T) {
	home := setupTestHome(t)
	xdgConfig := filepath.Join(home, "xdg-config")
	xdgState := filepath.Join(home, "xdg-state")
	t.Setenv("XDG_CONFIG_HOME", xdgConfig)
	t.Setenv("XDG_STATE_HOME", xdgState)
	Reset()

	configDir, _ := ConfigDir()
	if want := filepath.Join(xdgConfig, "eagleray"); configDir != want {
		t.Errorf("ConfigDir = %q, want %q", configDir, want)
	}
	stateDir, _ := StateDir()
	if want := filepath.Join(xdgState, "eagleray"); stateDir != want {
		t.Errorf("StateDir = %q, want %q", stateDir, want)
	}
	if IsFlatLayout() {
		t.Error("IsFlatLayout should be false with XDG vars")
	}
}

func TestXDGPartialDefaults(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	Reset()

	stateDir, _ := StateDir()
	if want := filepath.Join(home, ".local", "state", "eagleray"); stateDir != want {
		t.Errorf("StateDir = %q, want %q", stateDir, want)
	}
}

func TestFilePaths(t *testing.T) {
	home := setupTestHome(t)
	base := filepath.Join(home, ".eagleray")

	cfg, err := ConfigFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "eagleray.yaml"); cfg != want {
		t.Errorf("ConfigFilePath = %q, want %q", cfg, want)
	}

	logs, err := LogsDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "logs"); logs != want {
		t.Errorf("LogsDir = %q, want %q", logs, want)
	}
}

func TestEventsSocketPath(t *testing.T) {
	home := setupTestHome(t)

	sock, err := EventsSocketPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(os.TempDir(), "eagleray-events.sock"); sock != want {
		t.Errorf("EventsSocketPath = %q, want %q", sock, want)
	}

	runtime := filepath.Join(home, "run")
	t.Setenv("XDG_RUNTIME_DIR", runtime)
	Reset()
	sock, _ = EventsSocketPath()
	if want := filepath.Join(runtime, "eagleray", "eagleray-events.sock"); sock != want {
		t.Errorf("EventsSocketPath = %q, want %q", sock, want)
	}
}

func TestResetClearsCache(t *testing.T) {
	home := setupTestHome(t)
	first, _ := ConfigDir()

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "other"))
	if again, _ := ConfigDir(); again != first {
		t.Errorf("cached ConfigDir changed without Reset: %q", again)
	}
	Reset()
	if after, _ := ConfigDir(); after == first {
		t.Errorf("ConfigDir unchanged after Reset: %q", after)
	}
}
