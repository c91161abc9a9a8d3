package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DevicePath        string        `yaml:"device_path"`
	TouchpadName      string        `yaml:"touchpad_name"`
	LogPath           string        `yaml:"log_path"`
	EventMarker       string        `yaml:"event_marker"`
	ScanChunkSize     int           `yaml:"scan_chunk_size"`
	InitialScanLines  int           `yaml:"initial_scan_lines"`
	RuntimeScanLines  int           `yaml:"runtime_scan_lines"`
	PostureDebounce   time.Duration `yaml:"posture_debounce"`
	PostureSettle     time.Duration `yaml:"posture_settle"`
	DockSettle        time.Duration `yaml:"dock_settle"`
	ChangeWaitTimeout time.Duration `yaml:"change_wait_timeout"`
	InternalOutput    string        `yaml:"internal_output"`
	ExternalOutput    string        `yaml:"external_output"`
	TextScaleKey      string        `yaml:"text_scale_key"`
	WindowScaleKey    string        `yaml:"window_scale_key"`
	KeyboardCommand   []string      `yaml:"keyboard_command"`
	RotationCommand   []string      `yaml:"rotation_command"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	SocketPath        string        `yaml:"socket_path"`
	DBPath            string        `yaml:"db_path"`
	HistoryTTL        time.Duration `yaml:"history_ttl"`
}

func DefaultConfig() Config {
	return Config{
		DevicePath:        "/dev/input/by-path/platform-INT33D6:00-event",
		TouchpadName:      "SynPS/2 Synaptics TouchPad",
		LogPath:           "/var/log/syslog",
		EventMarker:       "INT33D6",
		ScanChunkSize:     4096,
		InitialScanLines:  0,
		RuntimeScanLines:  10,
		PostureDebounce:   800 * time.Millisecond,
		PostureSettle:     200 * time.Millisecond,
		DockSettle:        300 * time.Millisecond,
		ChangeWaitTimeout: 500 * time.Millisecond,
		InternalOutput:    "eDP-1",
		ExternalOutput:    "HDMI-1",
		TextScaleKey:      "/com/canonical/unity/interface/text-scale-factor",
		WindowScaleKey:    "/com/ubuntu/user-interface/scale-factor",
		KeyboardCommand:   []string{"/usr/bin/python3", "/usr/bin/onboard"},
		RotationCommand:   []string{"indicator-screentools-service"},
		CommandTimeout:    5 * time.Second,
		SocketPath:        defaultSocketPath(),
		DBPath:            defaultDBPath(),
		HistoryTTL:        30 * 24 * time.Hour,
	}
}

// LoadFile overlays the YAML file at path on top of DefaultConfig. Keys absent
// from the file keep their default value.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DevicePath) == "" {
		errs = append(errs, errors.New("device_path is required"))
	}
	if strings.TrimSpace(c.TouchpadName) == "" {
		errs = append(errs, errors.New("touchpad_name is required"))
	}
	if strings.TrimSpace(c.LogPath) == "" {
		errs = append(errs, errors.New("log_path is required"))
	}
	if c.EventMarker == "" {
		errs = append(errs, errors.New("event_marker is required"))
	}
	if c.ScanChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("scan_chunk_size must be positive, got %d", c.ScanChunkSize))
	}
	if c.PostureDebounce <= 0 {
		errs = append(errs, errors.New("posture_debounce must be positive"))
	}
	if c.ChangeWaitTimeout <= 0 {
		errs = append(errs, errors.New("change_wait_timeout must be positive"))
	}
	if c.InternalOutput == "" {
		errs = append(errs, errors.New("internal_output is required"))
	}
	if len(c.KeyboardCommand) == 0 {
		errs = append(errs, errors.New("keyboard_command is required"))
	}
	if len(c.RotationCommand) == 0 {
		errs = append(errs, errors.New("rotation_command is required"))
	}
	return errors.Join(errs...)
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "devmode", "devmoded.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devmoded.sock"
	}
	return filepath.Join(home, ".local", "state", "devmode", "devmoded.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "devmode.db"
	}
	return filepath.Join(home, ".local", "state", "devmode", "history.db")
}
