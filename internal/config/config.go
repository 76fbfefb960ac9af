package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Logging
	LogLevel  string
	LogFormat string

	// Capture
	AppID                string // identifier looked up in the enabled-listener registry
	EnabledListeners     string // static registry string, used when EnabledListenersFile is empty
	EnabledListenersFile string
	SettingsCommand      []string // command that opens the listener settings surface
	EmitRemovals         bool     // deliver "removed" observations on the stream

	// Permission watcher, cron schedule or @every descriptor
	PermissionWatchSchedule string

	// Scan / OCR
	ScanInboxDir      string
	OCRLanguages      []string // BCP-47 preference list, e.g. en-US
	OCRMaxConcurrency int      // 0 = one concurrent task per page

	// NATS bridge transport (empty URL disables)
	NatsURL           string
	NatsSubjectPrefix string

	// Stream transport write deadline for websocket sinks
	StreamWriteTimeout time.Duration

	// CORS
	CORSAllowedOrigins string

	// Server
	ServerShutdownTimeoutSeconds int

	// Channel names, overridable through CONFIG_FILE.
	Channels ChannelNames `yaml:"channels"`
}

// ChannelNames holds the names the bridge channels are registered under.
type ChannelNames struct {
	Control    string `yaml:"control"`
	Stream     string `yaml:"stream"`
	Background string `yaml:"background"`
	OCR        string `yaml:"ocr"`
}

// DefaultChannelNames returns the channel names the mobile shell uses.
func DefaultChannelNames() ChannelNames {
	return ChannelNames{
		Control:    "com.subtrack.app/control",
		Stream:     "com.subtrack.app/stream",
		Background: "com.subtrack.app/background",
		OCR:        "com.subtrack.app/ios_ocr",
	}
}

// Validate checks that every channel has a name and that names are unique.
func (c *ChannelNames) Validate() error {
	names := map[string]string{
		"control":    c.Control,
		"stream":     c.Stream,
		"background": c.Background,
		"ocr":        c.OCR,
	}

	seen := make(map[string]string, len(names))
	for role, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("channel name for %q is empty", role)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("channel name %q is used by both %q and %q", name, other, role)
		}
		seen[name] = role
	}
	return nil
}

// fileConfig is the YAML overlay read from CONFIG_FILE.
type fileConfig struct {
	Channels     *ChannelNames `yaml:"channels"`
	OCRLanguages []string      `yaml:"ocr_languages"`
	EmitRemovals *bool         `yaml:"emit_removals"`
}

var AppConfig *Config

// LoadConfig populates AppConfig from the environment and exits on invalid input.
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	AppConfig = cfg
}

// Load reads configuration from environment variables and the optional YAML file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		AppID:                getEnvOrDefault("APP_ID", "com.example.subtrack"),
		EnabledListeners:     getEnvOrDefault("ENABLED_LISTENERS", ""),
		EnabledListenersFile: getEnvOrDefault("ENABLED_LISTENERS_FILE", ""),
		SettingsCommand:      strings.Fields(getEnvOrDefault("SETTINGS_COMMAND", "")),
		EmitRemovals:         getEnvAsBool("EMIT_REMOVALS", false),

		PermissionWatchSchedule: getEnvOrDefault("PERMISSION_WATCH_SCHEDULE", "@every 1m"),

		ScanInboxDir:      getEnvOrDefault("SCAN_INBOX_DIR", ""),
		OCRLanguages:      splitList(getEnvOrDefault("OCR_LANGUAGES", "en-US")),
		OCRMaxConcurrency: getEnvAsInt("OCR_MAX_CONCURRENCY", 0),

		NatsURL:           getEnvOrDefault("NATS_URL", ""),
		NatsSubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "subtrack.bridge"),

		StreamWriteTimeout: getEnvAsDuration("STREAM_WRITE_TIMEOUT", 5*time.Second),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10),

		Channels: DefaultChannelNames(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := LoadConfigFile(f, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return errors.New("APP_ID must not be empty")
	}
	if c.OCRMaxConcurrency < 0 {
		return fmt.Errorf("OCR_MAX_CONCURRENCY must be >= 0, got %d", c.OCRMaxConcurrency)
	}
	if len(c.OCRLanguages) == 0 {
		return errors.New("OCR_LANGUAGES must list at least one language")
	}
	if err := c.Channels.Validate(); err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	return nil
}

// LoadConfigFile overlays YAML settings from reader onto config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	var fc fileConfig
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if fc.Channels != nil {
		merged := config.Channels
		if fc.Channels.Control != "" {
			merged.Control = fc.Channels.Control
		}
		if fc.Channels.Stream != "" {
			merged.Stream = fc.Channels.Stream
		}
		if fc.Channels.Background != "" {
			merged.Background = fc.Channels.Background
		}
		if fc.Channels.OCR != "" {
			merged.OCR = fc.Channels.OCR
		}
		config.Channels = merged
	}
	if len(fc.OCRLanguages) > 0 {
		config.OCRLanguages = fc.OCRLanguages
	}
	if fc.EmitRemovals != nil {
		config.EmitRemovals = *fc.EmitRemovals
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %t: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ShutdownTimeout returns the graceful shutdown window.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ServerShutdownTimeoutSeconds) * time.Second
}
