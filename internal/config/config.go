package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level deskd configuration.
type Config struct {
	Desk       DeskConfig                `json:"desk"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Embedder   EmbedderConfig            `json:"embedder"`
	API        APIConfig                 `json:"api"`
	NATS       NATSConfig                `json:"nats"`
	Redis      RedisConfig               `json:"redis"`
	Connectors ConnectorConfig           `json:"connectors"`
	Scheduler  SchedulerConfig           `json:"scheduler"`
}

// DeskConfig holds desk-level settings.
type DeskConfig struct {
	ID        string `json:"id"`
	DataDir   string `json:"data_dir"`
	StorePath string `json:"store_path,omitempty"` // defaults to {data_dir}/deskd.db
	Provider  string `json:"provider,omitempty"`   // providers key, defaults to "default"
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// EmbedderConfig holds embedding service settings. An empty URL disables
// similarity search and the embedding backfill job.
type EmbedderConfig struct {
	URL   string `json:"url,omitempty"`
	Model string `json:"model,omitempty"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// NATSConfig holds request/reply transport settings. An empty URL disables
// the NATS surface.
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"` // defaults to "deskd.query"
}

// RedisConfig holds conversation-memory settings. An empty Addr falls back
// to process-local memory.
type RedisConfig struct {
	Addr       string `json:"addr,omitempty"`
	Password   string `json:"password,omitempty"`
	DB         int    `json:"db,omitempty"`
	SessionTTL int    `json:"session_ttl_hours,omitempty"`
}

// ConnectorConfig holds settings for external platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings. Users maps Telegram chat ids
// to desk user ids; unmapped chats are refused.
type TelegramConfig struct {
	Token string           `json:"token"`
	Users map[string]string `json:"users,omitempty"`
}

// SlackConfig holds Slack Socket Mode settings. Users maps Slack user ids
// to desk user ids; unmapped users are refused.
type SlackConfig struct {
	BotToken string            `json:"bot_token"`
	AppToken string            `json:"app_token"`
	Users    map[string]string `json:"users,omitempty"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Disabled      bool   `json:"disabled,omitempty"`
	EmbedBackfill string `json:"embed_backfill,omitempty"` // cron spec, defaults to "@every 5m"
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a minimal config from environment variables with
// DESKD_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Desk: DeskConfig{
			ID:      getenv("DESKD_DESK_ID", "default"),
			DataDir: getenv("DESKD_DATA_DIR", "/data"),
		},
		Providers: make(map[string]ProviderConfig),
		API: APIConfig{
			Host: getenv("DESKD_API_HOST", "0.0.0.0"),
			Port: getenvInt("DESKD_API_PORT", 8080),
			Key:  os.Getenv("DESKD_API_KEY"),
		},
	}

	if apiKey := os.Getenv("DESKD_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  getenv("DESKD_MODEL", "claude-sonnet-4-20250514"),
		}
	} else if apiKey := os.Getenv("DESKD_OPENAI_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:    "openai",
			APIKey:  apiKey,
			BaseURL: os.Getenv("DESKD_OPENAI_BASE_URL"),
			Model:   getenv("DESKD_MODEL", "gpt-4o"),
		}
	}

	cfg.Embedder.URL = os.Getenv("DESKD_EMBED_URL")
	cfg.Embedder.Model = os.Getenv("DESKD_EMBED_MODEL")
	cfg.NATS.URL = os.Getenv("DESKD_NATS_URL")
	cfg.Redis.Addr = os.Getenv("DESKD_REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("DESKD_REDIS_PASSWORD")
	cfg.Redis.DB = getenvInt("DESKD_REDIS_DB", 0)

	if token := os.Getenv("DESKD_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{
			Token: token,
			Users: parseUserMap(os.Getenv("DESKD_TELEGRAM_USERS")),
		}
	}
	if bot := os.Getenv("DESKD_SLACK_BOT_TOKEN"); bot != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: bot,
			AppToken: os.Getenv("DESKD_SLACK_APP_TOKEN"),
			Users:    parseUserMap(os.Getenv("DESKD_SLACK_USERS")),
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Desk.Provider == "" {
		c.Desk.Provider = "default"
	}
	if c.Desk.StorePath == "" && c.Desk.DataDir != "" {
		c.Desk.StorePath = c.Desk.DataDir + "/deskd.db"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "nomic-embed-text"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "deskd.query"
	}
	if c.Scheduler.EmbedBackfill == "" {
		c.Scheduler.EmbedBackfill = "@every 5m"
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Desk.ID == "" {
		errs = append(errs, "desk.id is required")
	}
	if c.Desk.DataDir == "" {
		errs = append(errs, "desk.data_dir is required")
	}

	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_key is required", name))
		}
		if p.Model == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.model is required", name))
		}
	}
	if _, ok := c.Providers[c.Desk.Provider]; len(c.Providers) > 0 && !ok {
		errs = append(errs, fmt.Sprintf("desk.provider references unknown provider %q", c.Desk.Provider))
	}

	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Connectors.Slack != nil {
		if c.Connectors.Slack.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if c.Connectors.Slack.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// parseUserMap parses "ext1=desk1,ext2=desk2" into a map.
func parseUserMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
