package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	StaticDir string

	DefaultSerialPort string
	DefaultBaudRate   int

	DefaultQValue   int
	DefaultSession  int
	DefaultAntenna  int
	DefaultScanTime time.Duration

	MaxAntennas   int
	PowerMinDBM   int
	PowerMaxDBM   int
	MaxTagDisplay int

	CommandTimeout time.Duration
	CommandRetries int
	StopGrace      time.Duration

	ProfilesFile string

	RedisAddr    string
	RedisChannel string

	MQTTHost     string
	MQTTPort     int
	MQTTClientID string
	MQTTPrefix   string

	LogLevel string
}

func Load() Config {
	cfg := Config{
		HTTPAddr:  envOr("PANEL_HTTP_ADDR", ":3000"),
		StaticDir: envOr("PANEL_STATIC_DIR", "static"),

		DefaultSerialPort: envOr("PANEL_SERIAL_PORT", "/dev/ttyUSB0"),
		DefaultBaudRate:   envInt("PANEL_BAUD_RATE", 115200),

		DefaultQValue:   envInt("PANEL_DEFAULT_Q", 4),
		DefaultSession:  envInt("PANEL_DEFAULT_SESSION", 0),
		DefaultAntenna:  envInt("PANEL_DEFAULT_ANTENNA", 1),
		DefaultScanTime: envDurationSec("PANEL_DEFAULT_SCAN_TIME_SEC", 10),

		MaxAntennas:   envInt("PANEL_MAX_ANTENNAS", 4),
		PowerMinDBM:   envInt("PANEL_POWER_MIN_DBM", 0),
		PowerMaxDBM:   envInt("PANEL_POWER_MAX_DBM", 30),
		MaxTagDisplay: envInt("PANEL_MAX_TAG_DISPLAY", 100),

		CommandTimeout: envDurationMS("PANEL_COMMAND_TIMEOUT_MS", 2000),
		CommandRetries: envInt("PANEL_COMMAND_RETRIES", 2),
		StopGrace:      envDurationMS("PANEL_STOP_GRACE_MS", 3000),

		ProfilesFile: envOr("PANEL_PROFILES_FILE", "profiles.yaml"),

		RedisAddr:    strings.TrimSpace(os.Getenv("PANEL_REDIS_ADDR")),
		RedisChannel: envOr("PANEL_REDIS_CHANNEL", "rfid:events"),

		MQTTHost:     strings.TrimSpace(os.Getenv("PANEL_MQTT_HOST")),
		MQTTPort:     envInt("PANEL_MQTT_PORT", 1883),
		MQTTClientID: envOr("PANEL_MQTT_CLIENT_ID", "rfid-panel"),
		MQTTPrefix:   envOr("PANEL_MQTT_PREFIX", "rfid"),

		LogLevel: strings.ToLower(envOr("PANEL_LOG_LEVEL", "info")),
	}

	if cfg.DefaultBaudRate <= 0 {
		cfg.DefaultBaudRate = 115200
	}
	if cfg.DefaultQValue < 0 || cfg.DefaultQValue > 15 {
		cfg.DefaultQValue = 4
	}
	if cfg.DefaultSession < 0 || cfg.DefaultSession > 3 {
		cfg.DefaultSession = 0
	}
	if cfg.DefaultAntenna < 1 || cfg.DefaultAntenna > 64 {
		cfg.DefaultAntenna = 1
	}
	if cfg.MaxAntennas < 1 || cfg.MaxAntennas > 64 {
		cfg.MaxAntennas = 4
	}
	if cfg.PowerMinDBM < 0 {
		cfg.PowerMinDBM = 0
	}
	if cfg.PowerMaxDBM > 33 || cfg.PowerMaxDBM <= cfg.PowerMinDBM {
		cfg.PowerMaxDBM = 30
	}
	if cfg.MaxTagDisplay < 1 {
		cfg.MaxTagDisplay = 100
	}
	if cfg.CommandTimeout < 100*time.Millisecond {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.CommandRetries < 0 {
		cfg.CommandRetries = 0
	}
	if cfg.StopGrace < time.Second {
		cfg.StopGrace = 3 * time.Second
	}

	return cfg
}

func envOr(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationSec(key string, fallbackSec int) time.Duration {
	return time.Duration(envInt(key, fallbackSec)) * time.Second
}

func envDurationMS(key string, fallbackMS int) time.Duration {
	return time.Duration(envInt(key, fallbackMS)) * time.Millisecond
}
