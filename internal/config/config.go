package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig - налаштування HTTP сервера
type ServerConfig struct {
	Port           string   `json:"port"`
	WebFilesDir    string   `json:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
	AuthUser       string   `json:"auth_user"`
	AuthPassword   string   `json:"auth_password"`
}

// HIDConfig - налаштування HID бекенду
type HIDConfig struct {
	Backend     string  `json:"backend"` // gadget | bridge | none
	KeyboardDev string  `json:"keyboard_device"`
	MouseDev    string  `json:"mouse_device"`
	BridgePort  string  `json:"bridge_port"`
	BridgeBaud  int     `json:"bridge_baud"`
	RateLimit   float64 `json:"write_rate_limit"`
	RateBurst   int     `json:"write_rate_burst"`
	LEDPath     string  `json:"led_path"`
}

// JigglerConfig - як часто перевіряти таймер джиглера
type JigglerConfig struct {
	TickInterval string `json:"tick_interval"`
}

// MQTTConfig - налаштування MQTT та Home Assistant Discovery
type MQTTConfig struct {
	Enabled            bool   `json:"enabled"`
	Broker             string `json:"broker"` // tcp://IP:PORT
	Username           string `json:"username"`
	Password           string `json:"password"`
	ClientID           string `json:"client_id"`
	TopicPrefix        string `json:"topic_prefix"`
	HADiscoveryEnabled bool   `json:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `json:"ha_discovery_prefix"`
}

// LogConfig - рівень і формат логів
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Config - головна структура
type Config struct {
	Server  ServerConfig  `json:"server"`
	HID     HIDConfig     `json:"hid"`
	Jiggler JigglerConfig `json:"jiggler"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Log     LogConfig     `json:"log"`

	// File system settings
	DataDir       string `json:"data_dir"`
	MacrosDir     string `json:"lua_dir"`
	SchedulesFile string `json:"schedules_file"`
}

// Backends accepted in hid.backend.
const (
	BackendGadget = "gadget"
	BackendBridge = "bridge"
	BackendNone   = "none"
)

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Load зчитує файл, парсить JSON та застосовує валідацію/дефолти
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	cfg := &Config{}
	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// TickInterval повертає розпарсений jiggler.tick_interval
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(c.Jiggler.TickInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.HID.Backend = strings.ToLower(strings.TrimSpace(c.HID.Backend))
	c.HID.KeyboardDev = strings.TrimSpace(c.HID.KeyboardDev)
	c.HID.MouseDev = strings.TrimSpace(c.HID.MouseDev)
	c.HID.BridgePort = strings.TrimSpace(c.HID.BridgePort)
	c.HID.LEDPath = strings.TrimSpace(c.HID.LEDPath)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.MacrosDir = strings.TrimSpace(c.MacrosDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
}

func (c *Config) setDefaults() {
	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	// HID Defaults
	if c.HID.Backend == "" {
		c.HID.Backend = BackendGadget
	}
	if c.HID.KeyboardDev == "" {
		c.HID.KeyboardDev = "/dev/hidg0"
	}
	if c.HID.MouseDev == "" {
		c.HID.MouseDev = "/dev/hidg1"
	}
	if c.HID.BridgePort == "" {
		c.HID.BridgePort = "/dev/ttyUSB0"
	}
	if c.HID.BridgeBaud == 0 {
		c.HID.BridgeBaud = 115200
	}
	if c.HID.RateLimit == 0 {
		c.HID.RateLimit = 500.0
	}
	if c.HID.RateBurst == 0 {
		c.HID.RateBurst = 64
	}

	if c.Jiggler.TickInterval == "" {
		c.Jiggler.TickInterval = "50ms"
	}

	// File Defaults
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.MacrosDir == "" {
		c.MacrosDir = "macros"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "wifihid-agent"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "wifihid"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
}

func (c *Config) validate() error {
	switch c.HID.Backend {
	case BackendGadget, BackendBridge, BackendNone:
	default:
		return fmt.Errorf("config error: unknown hid backend '%s'", c.HID.Backend)
	}
	// Дефолт ставиться тільки для нуля, від'ємне значення - помилка користувача
	if c.HID.RateLimit < 0 || c.HID.RateBurst < 0 {
		return fmt.Errorf("config error: 'write_rate_limit' and 'write_rate_burst' must be positive")
	}
	if c.HID.BridgeBaud < 0 {
		return fmt.Errorf("config error: 'bridge_baud' must be positive")
	}
	if d, err := time.ParseDuration(c.Jiggler.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("config error: invalid jiggler 'tick_interval' '%s'", c.Jiggler.TickInterval)
	}
	if !logLevels[c.Log.Level] {
		return fmt.Errorf("config error: unknown log level '%s'", c.Log.Level)
	}
	if (c.Server.AuthUser == "") != (c.Server.AuthPassword == "") {
		return fmt.Errorf("config error: 'auth_user' and 'auth_password' must be set together")
	}
	return nil
}
