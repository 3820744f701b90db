package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix            = "BOTKIT_"
	envConfigPath        = "BOTKIT_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envDiscordBotToken   = "DISCORD_BOT_TOKEN"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Bot       BotConfig       `json:"bot"`
	Providers ProvidersConfig `json:"providers"`
	Store     StoreConfig     `json:"store"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Gateway   GatewayConfig   `json:"gateway"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Webchat  WebchatConfig  `json:"webchat"`
	Console  ConsoleConfig  `json:"console"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// DiscordConfig configures Discord channel integration.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// WebchatConfig configures the websocket channel served by the gateway.
type WebchatConfig struct {
	Enabled        bool     `json:"enabled"`
	Path           string   `json:"path"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// ConsoleConfig configures the local terminal channel.
type ConsoleConfig struct {
	User string `json:"user"`
}

// BotConfig configures the bot's turn logic.
type BotConfig struct {
	Name        string `json:"name"`
	Responder   string `json:"responder"`
	Model       string `json:"model"`
	Greeting    string `json:"greeting"`
	MemoryLimit int    `json:"memory_limit"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenAI   OpenAIProviderConfig   `json:"openai"`
	Fantasy  FantasyProviderConfig  `json:"fantasy"`
	OpenCode OpenCodeProviderConfig `json:"opencode"`
}

// OpenAIProviderConfig configures the OpenAI responder client.
type OpenAIProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	APIKeyEnv             string `json:"api_key_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// FantasyProviderConfig tunes generation for the fantasy responder. It
// connects with the providers.openai settings.
type FantasyProviderConfig struct {
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
}

// OpenCodeProviderConfig configures the opencode server responder.
type OpenCodeProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	Agent                 string `json:"agent"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// StoreConfig selects where conversation references are kept.
type StoreConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// SchedulerConfig controls the proactive reminder scheduler.
type SchedulerConfig struct {
	Enabled  bool `json:"enabled"`
	Interval int  `json:"interval"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TelemetryConfig controls OpenTelemetry tracing of turns.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name"`
}

// LoadConfig resolves config.json, parses it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return loadFile(configPath)
}

func loadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// The YAML parser also accepts JSON documents.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// BOTKIT_GATEWAY__PORT -> gateway.port
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// envKey maps BOTKIT_SECTION__FIELD variables to section.field keys. Variables
// without a section separator are not config keys and are skipped.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	if !strings.Contains(key, "__") {
		return ""
	}

	return strings.ReplaceAll(key, "__", ".")
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if token := strings.TrimSpace(os.Getenv(envDiscordBotToken)); token != "" {
		cfg.Channels.Discord.Token = token
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is BOTKIT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
