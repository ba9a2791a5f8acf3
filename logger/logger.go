package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhubert/eagleray-sideband/paths"
)

const logFileName = "eagleray.log"

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
	initDone bool
)

// DefaultLogPath returns the default log file path.
func DefaultLogPath() (string, error) {
	dir, err := paths.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init initializes the logger with a custom path. If not called, the default
// path is used on first use. Returns an error if the log file cannot be opened.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	return openLocked(path)
}

// openLocked opens path and installs the root logger. Caller must hold mu.
func openLocked(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logPath = path
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// ensureInit opens the default log file if Init was not called.
// Caller must hold mu.
func ensureInit() {
	if initDone {
		return
	}
	defaultPath, err := DefaultLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to get default log path: %v\n", err)
		return
	}
	if err := openLocked(defaultPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func with(args ...any) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	ensureInit()

	base := root
	if base == nil {
		base = slog.Default()
	}
	if len(args) == 0 {
		return base
	}
	return base.With(args...)
}

// Get returns the root logger instance.
func Get() *slog.Logger {
	return with()
}

// WithComponent returns a logger with the component name attached.
//
//	log := logger.WithComponent("endpoint")
//	log.Info("channel connected")
//	// Output: level=INFO msg="channel connected" component=endpoint
func WithComponent(component string) *slog.Logger {
	return with("component", component)
}

// EpochKey is the attribute that carries a connection epoch ID.
//
//	log = log.With(logger.EpochKey, session.EpochID())
const EpochKey = "epochID"

// Path returns the path of the open log file, or "" before initialization.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// ClearLogs removes eagleray.log and any rotated eagleray-*.log files from
// the logs directory. It returns how many files were removed.
func ClearLogs() (int, error) {
	defaultPath, err := DefaultLogPath()
	if err != nil {
		return 0, fmt.Errorf("failed to get default log path: %w", err)
	}

	rotated, err := filepath.Glob(filepath.Join(filepath.Dir(defaultPath), "eagleray-*.log"))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range append([]string{defaultPath}, rotated...) {
		if err := os.Remove(p); err == nil {
			count++
		} else if !os.IsNotExist(err) {
			return count, err
		}
	}
	return count, nil
}
