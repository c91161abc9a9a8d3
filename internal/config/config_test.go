package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devmode.yaml")
	body := `
device_path: /dev/input/event7
touchpad_name: "ELAN Touchpad"
posture_debounce: 1500ms
keyboard_command: ["onboard"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DevicePath != "/dev/input/event7" {
		t.Fatalf("unexpected device path: %q", cfg.DevicePath)
	}
	if cfg.TouchpadName != "ELAN Touchpad" {
		t.Fatalf("unexpected touchpad name: %q", cfg.TouchpadName)
	}
	if cfg.PostureDebounce != 1500*time.Millisecond {
		t.Fatalf("unexpected debounce: %s", cfg.PostureDebounce)
	}
	if len(cfg.KeyboardCommand) != 1 || cfg.KeyboardCommand[0] != "onboard" {
		t.Fatalf("unexpected keyboard command: %#v", cfg.KeyboardCommand)
	}
	if cfg.LogPath != DefaultConfig().LogPath {
		t.Fatalf("log path should keep default, got %q", cfg.LogPath)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("device_path: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DevicePath = ""
	cfg.ScanChunkSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "device_path") || !strings.Contains(msg, "scan_chunk_size") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}
