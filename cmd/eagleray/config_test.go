package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApp_ConfigInitAndShow(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "eagleray.yaml")

	out, err := runApp(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := runApp(t, "--config", path, "config", "init"); err == nil {
		t.Error("second init should refuse to overwrite")
	}

	out, err = runApp(t, "--config", path, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"plugin_name: EagleRay", "object_name: ERay_Input", "retry_interval: 1s"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	setupTestHome(t)
	path := filepath.Join(t.TempDir(), "eagleray.yaml")
	if err := os.WriteFile(path, []byte("object_name: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runApp(t, "--config", path, "config"); err == nil || !strings.Contains(err.Error(), "object_name") {
		t.Errorf("err = %v", err)
	}
}
