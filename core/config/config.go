package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// ChannelConfig identifies the channel a user must join before rendering videos.
type ChannelConfig struct {
	Username string `yaml:"username" envconfig:"CHANNEL_USERNAME"`
}

// StorageConfig selects where user sessions are persisted.
type StorageConfig struct {
	// Driver is either "file" (single JSON document) or "postgres".
	Driver string         `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	File   string         `yaml:"file" envconfig:"STORAGE_FILE"`
	DB     DatabaseConfig `yaml:"db"`
}

// DatabaseConfig holds Postgres connection settings for the postgres driver.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// PipelineConfig tunes the video rendering pipeline.
type PipelineConfig struct {
	SceneCount          int    `yaml:"scene_count" envconfig:"PIPELINE_SCENE_COUNT"`
	MinPromptLen        int    `yaml:"min_prompt_len" envconfig:"PIPELINE_MIN_PROMPT_LEN"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" envconfig:"PIPELINE_POLL_INTERVAL_SECONDS"`
	PollDeadlineSeconds int    `yaml:"poll_deadline_seconds" envconfig:"PIPELINE_POLL_DEADLINE_SECONDS"`
	TTSEndpoint         string `yaml:"tts_endpoint" envconfig:"PIPELINE_TTS_ENDPOINT"`
	TTSLang             string `yaml:"tts_lang" envconfig:"PIPELINE_TTS_LANG"`
	FPS                 int    `yaml:"fps" envconfig:"PIPELINE_FPS"`
	TmpRoot             string `yaml:"tmp_root" envconfig:"PIPELINE_TMP_ROOT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageDriverFile keeps the whole session map in one JSON file.
	StorageDriverFile = "file"
	// StorageDriverPostgres persists sessions in a Postgres table.
	StorageDriverPostgres = "postgres"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Channel   ChannelConfig   `yaml:"channel"`
	Storage   StorageConfig   `yaml:"storage"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// PollInterval returns the image generation poll interval as a duration.
func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSeconds) * time.Second
}

// PollDeadline returns the image generation poll deadline as a duration.
func (p PipelineConfig) PollDeadline() time.Duration {
	return time.Duration(p.PollDeadlineSeconds) * time.Second
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram admin_id is required")
	}
	if strings.TrimSpace(cfg.Channel.Username) == "" {
		return fmt.Errorf("channel.username is required")
	}
	if !strings.HasPrefix(cfg.Channel.Username, "@") {
		cfg.Channel.Username = "@" + cfg.Channel.Username
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = StorageDriverFile
	}
	switch driver {
	case StorageDriverFile:
		if strings.TrimSpace(cfg.Storage.File) == "" {
			cfg.Storage.File = "user_data.json"
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.Storage.DB.Host) == "" {
			return fmt.Errorf("storage.db.host is required when storage.driver is 'postgres'")
		}
		if strings.TrimSpace(cfg.Storage.DB.Name) == "" {
			return fmt.Errorf("storage.db.name is required when storage.driver is 'postgres'")
		}
		if cfg.Storage.DB.SSLMode == "" {
			cfg.Storage.DB.SSLMode = "disable"
		}
		if cfg.Storage.DB.MaxConnections <= 0 {
			cfg.Storage.DB.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if cfg.Pipeline.SceneCount <= 0 {
		cfg.Pipeline.SceneCount = 3
	}
	if cfg.Pipeline.MinPromptLen <= 0 {
		cfg.Pipeline.MinPromptLen = 10
	}
	if cfg.Pipeline.PollIntervalSeconds <= 0 {
		cfg.Pipeline.PollIntervalSeconds = 5
	}
	if cfg.Pipeline.PollDeadlineSeconds <= 0 {
		cfg.Pipeline.PollDeadlineSeconds = 120
	}
	if cfg.Pipeline.PollDeadlineSeconds < cfg.Pipeline.PollIntervalSeconds {
		return fmt.Errorf("pipeline.poll_deadline_seconds must be >= pipeline.poll_interval_seconds")
	}
	if strings.TrimSpace(cfg.Pipeline.TTSEndpoint) == "" {
		cfg.Pipeline.TTSEndpoint = "https://translate.google.com/translate_tts"
	}
	if strings.TrimSpace(cfg.Pipeline.TTSLang) == "" {
		cfg.Pipeline.TTSLang = "ar"
	}
	if cfg.Pipeline.FPS <= 0 {
		cfg.Pipeline.FPS = 24
	}
	if strings.TrimSpace(cfg.Pipeline.TmpRoot) == "" {
		cfg.Pipeline.TmpRoot = os.TempDir()
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
