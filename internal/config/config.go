package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge.
type Config struct {
	General  GeneralConfig  `json:"general"`
	AI       AIConfig       `json:"ai"`
	Channels ChannelsConfig `json:"channels"`
	Callback CallbackConfig `json:"callback"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// AIConfig points the handshake client at the conversational-AI endpoint.
type AIConfig struct {
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"` // user IDs; empty = allow all
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to specific guild
}

type WhatsAppConfig struct {
	Enabled     bool   `json:"enabled"`
	Port        int    `json:"port"`
	WebhookPath string `json:"webhookPath,omitempty"`
}

// CallbackConfig configures the callback ingress server.
type CallbackConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
	// PublicBaseURL is the externally reachable base URL used to build the
	// callback_url attached to push-back-capable messages. Empty = the
	// field is omitted from outbound payloads.
	PublicBaseURL string `json:"publicBaseUrl,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.chatbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatbridge"
	}
	return filepath.Join(home, ".chatbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file, expands environment variables and validates
// the result. Files ending in .yaml or .yml are parsed as YAML, anything
// else as JSON.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// unmarshal decodes JSON directly; YAML goes through a JSON round-trip so
// both formats share the same field names and one set of struct tags.
func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return err
		}
		jsonData, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return json.Unmarshal(jsonData, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.AI.Endpoint == "" {
		errs = append(errs, "ai.endpoint is required")
	}
	if cfg.AI.TimeoutSeconds < 1 || cfg.AI.TimeoutSeconds > 120 {
		errs = append(errs, "ai.timeoutSeconds must be between 1 and 120")
	}

	if cfg.Callback.Port < 0 || cfg.Callback.Port > 65535 {
		errs = append(errs, "callback.port must be between 0 and 65535")
	}
	if cfg.Channels.WhatsApp.Port < 0 || cfg.Channels.WhatsApp.Port > 65535 {
		errs = append(errs, "channels.whatsapp.port must be between 0 and 65535")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
