package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.HID.Backend != BackendGadget || cfg.HID.KeyboardDev != "/dev/hidg0" || cfg.HID.MouseDev != "/dev/hidg1" {
		t.Errorf("Unexpected HID defaults: %+v", cfg.HID)
	}
	if cfg.TickInterval() != 50*time.Millisecond {
		t.Errorf("Expected 50ms tick, got %v", cfg.TickInterval())
	}
	if cfg.MQTT.TopicPrefix != "wifihid" {
		t.Errorf("Expected topic prefix wifihid, got %s", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": " 9000 ", "auth_user": "admin", "auth_password": "admin"},
		"hid": {"backend": " Bridge ", "bridge_port": "/dev/ttyACM0", "bridge_baud": 9600},
		"jiggler": {"tick_interval": "20ms"},
		"log": {"level": "DEBUG", "json": true},
		"data_dir": "/var/lib/wifihid"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := HIDConfig{
		Backend:     BackendBridge,
		KeyboardDev: "/dev/hidg0",
		MouseDev:    "/dev/hidg1",
		BridgePort:  "/dev/ttyACM0",
		BridgeBaud:  9600,
		RateLimit:   500,
		RateBurst:   64,
	}
	if diff := cmp.Diff(want, cfg.HID); diff != "" {
		t.Errorf("HID config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Expected trimmed port 9000, got %q", cfg.Server.Port)
	}
	if cfg.TickInterval() != 20*time.Millisecond {
		t.Errorf("Expected 20ms tick, got %v", cfg.TickInterval())
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
	if cfg.DataDir != "/var/lib/wifihid" {
		t.Errorf("Unexpected data dir %q", cfg.DataDir)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"backend", `{"hid": {"backend": "bluetooth"}}`, "unknown hid backend"},
		{"rate", `{"hid": {"write_rate_limit": -1}}`, "must be positive"},
		{"tick", `{"jiggler": {"tick_interval": "soon"}}`, "tick_interval"},
		{"level", `{"log": {"level": "loud"}}`, "unknown log level"},
		{"auth", `{"server": {"auth_user": "admin"}}`, "must be set together"},
		{"unknown field", `{"ble": {}}`, "failed to decode json"},
		{"syntax", `{"server": `, "failed to decode json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
