// Package paths resolves where the receiver keeps its files.
//
//   - Config (XDG_CONFIG_HOME): eagleray.yaml
//   - State (XDG_STATE_HOME): logs/
//   - Runtime (XDG_RUNTIME_DIR): the events socket
//
// Resolution order:
//  1. If ~/.eagleray/ exists → flat layout, config and state under ~/.eagleray/
//  2. If XDG env vars are set → XDG layout
//  3. Otherwise → ~/.eagleray/
//
// The runtime directory is XDG_RUNTIME_DIR/eagleray when set, the system
// temp directory otherwise.
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appName = "eagleray"

var (
	mu       sync.Mutex
	resolved *resolvedPaths
)

type resolvedPaths struct {
	configDir  string
	stateDir   string
	runtimeDir string
	flat       bool
}

func resolve() (*resolvedPaths, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	runtimeDir := os.TempDir()
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		runtimeDir = filepath.Join(xdgRuntime, appName)
	}

	flatDir := filepath.Join(home, "."+appName)
	flat := &resolvedPaths{
		configDir:  flatDir,
		stateDir:   flatDir,
		runtimeDir: runtimeDir,
		flat:       true,
	}

	if info, err := os.Stat(flatDir); err == nil && info.IsDir() {
		resolved = flat
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgConfig == "" && xdgState == "" {
		resolved = flat
		return resolved, nil
	}

	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}
	resolved = &resolvedPaths{
		configDir:  filepath.Join(xdgConfig, appName),
		stateDir:   filepath.Join(xdgState, appName),
		runtimeDir: runtimeDir,
	}
	return resolved, nil
}

// ConfigDir returns the directory holding eagleray.yaml.
func ConfigDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.configDir, nil
}

// StateDir returns the directory for logs.
func StateDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.stateDir, nil
}

// RuntimeDir returns the directory for sockets.
func RuntimeDir() (string, error) {
	r, err := resolve()
	if err != nil {
		return "", err
	}
	return r.runtimeDir, nil
}

// ConfigFilePath returns the full path to eagleray.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".yaml"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// EventsSocketPath returns the default path of the status events socket.
func EventsSocketPath() (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+"-events.sock"), nil
}

// IsFlatLayout returns true if using the ~/.eagleray/ layout.
func IsFlatLayout() bool {
	r, err := resolve()
	if err != nil {
		return true
	}
	return r.flat
}

// Reset clears the cached path resolution. This is intended for testing only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
