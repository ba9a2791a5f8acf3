package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhubert/eagleray-sideband/paths"
)

// setupTestLogger initializes the logger with a temp file and returns its path.
func setupTestLogger(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := Init(logPath); err != nil {
		t.Fatalf("Failed to init logger: %v", err)
	}
	return logPath
}

// setupTestHome points the default paths at a temp home directory.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	paths.Reset()
	t.Cleanup(paths.Reset)
	return home
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestGet_StructuredLogging(t *testing.T) {
	logPath := setupTestLogger(t)

	Get().Info("invocation", "command", 7, "params", 1)

	content := readLog(t, logPath)
	for _, want := range []string{"msg=invocation", "command=7", "params=1", "time="} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q:\n%s", want, content)
		}
	}
	if Path() != logPath {
		t.Errorf("Path = %q, want %q", Path(), logPath)
	}
}

func TestWithComponent(t *testing.T) {
	logPath := setupTestLogger(t)

	WithComponent("dispatch").Info("trigger fired", "arg", "go")

	content := readLog(t, logPath)
	if !strings.Contains(content, "component=dispatch") || !strings.Contains(content, "arg=go") {
		t.Errorf("missing attributes:\n%s", content)
	}
}

func TestEpochKey(t *testing.T) {
	logPath := setupTestLogger(t)

	WithComponent("endpoint").With(EpochKey, "3f1c").Info("channel connected")

	content := readLog(t, logPath)
	if !strings.Contains(content, "epochID=3f1c") || !strings.Contains(content, "component=endpoint") {
		t.Errorf("missing attributes:\n%s", content)
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	logPath := setupTestLogger(t)

	SetDebug(false)
	Get().Debug("debug-filtered")
	Get().Info("info-visible")

	SetDebug(true)
	Get().Debug("debug-visible")
	SetDebug(false)

	content := readLog(t, logPath)
	if strings.Contains(content, "debug-filtered") {
		t.Error("Debug message should be filtered at Info level")
	}
	if !strings.Contains(content, "info-visible") {
		t.Error("Info message should be visible")
	}
	if !strings.Contains(content, "debug-visible") || !strings.Contains(content, "level=DEBUG") {
		t.Error("Debug message should be visible after SetDebug(true)")
	}
}

func TestReset(t *testing.T) {
	tmpDir := t.TempDir()
	logPath1 := filepath.Join(tmpDir, "log1.log")
	logPath2 := filepath.Join(tmpDir, "log2.log")
	t.Cleanup(Reset)

	Reset()
	if err := Init(logPath1); err != nil {
		t.Fatal(err)
	}
	Get().Info("message to log1")

	// A second Init without Reset keeps the first file.
	if err := Init(logPath2); err != nil {
		t.Fatal(err)
	}
	Get().Info("still log1")

	Reset()
	if err := Init(logPath2); err != nil {
		t.Fatal(err)
	}
	Get().Info("message to log2")

	content1 := readLog(t, logPath1)
	content2 := readLog(t, logPath2)
	if !strings.Contains(content1, "still log1") || strings.Contains(content1, "message to log2") {
		t.Errorf("log1 content wrong:\n%s", content1)
	}
	if !strings.Contains(content2, "message to log2") || strings.Contains(content2, "message to log1") {
		t.Errorf("log2 content wrong:\n%s", content2)
	}
}

func TestClose(t *testing.T) {
	setupTestLogger(t)
	Close()
	// Logging after Close falls back to the default logger.
	Get().Info("after close")
}

func TestEnsureInit_DefaultPath(t *testing.T) {
	home := setupTestHome(t)
	Reset()
	t.Cleanup(Reset)

	Get().Info("default path test")

	want := filepath.Join(home, ".eagleray", "logs", "eagleray.log")
	if Path() != want {
		t.Errorf("Path = %q, want %q", Path(), want)
	}
	if !strings.Contains(readLog(t, want), "default path test") {
		t.Error("default log file should contain the message")
	}
}

func TestClearLogs(t *testing.T) {
	home := setupTestHome(t)
	Reset()
	t.Cleanup(Reset)

	dir := filepath.Join(home, ".eagleray", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"eagleray.log", "eagleray-1.log", "eagleray-2.log", "other.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	count, err := ClearLogs()
	if err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	if count != 3 {
		t.Errorf("removed %d files, want 3", count)
	}
	if _, err := os.Stat(filepath.Join(dir, "other.log")); err != nil {
		t.Error("unrelated log file should be kept")
	}
}

func TestConcurrent_InitAndGet(t *testing.T) {
	setupTestHome(t)
	for range 10 {
		Reset()
		logPath := filepath.Join(t.TempDir(), "concurrent.log")

		done := make(chan bool, 15)
		for range 5 {
			go func() {
				_ = Init(logPath)
				done <- true
			}()
			go func() {
				Get().With(EpochKey, "e").Info("concurrent epoch")
				done <- true
			}()
			go func() {
				WithComponent("comp").Info("concurrent component")
				done <- true
			}()
		}
		for range 15 {
			<-done
		}
	}
	Reset()
}
