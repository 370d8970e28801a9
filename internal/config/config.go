// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"tg_harvest/internal/ratelimit"
)

// Config holds the application configuration.
type Config struct {
	APIID       int    `env:"TELEGRAM_API_ID"`
	APIHash     string `env:"TELEGRAM_API_HASH"`
	Phone       string `env:"TELEGRAM_PHONE_NUMBER"`
	Password    string `env:"TELEGRAM_PASSWORD"`
	SessionPath string `env:"TELEGRAM_SESSION_PATH" envDefault:"./data/session.json"`

	ChatsPath    string `env:"CHATS_PATH"    envDefault:"./data/chats.txt"`
	MessagesPath string `env:"MESSAGES_PATH" envDefault:"./data/messages.json"`
	RulesPath    string `env:"RULES_PATH"    envDefault:"./configs/rules.yaml"`
	JournalPath  string `env:"JOURNAL_PATH"  envDefault:"./data/journal.db"`
	LogLevel     string `env:"LOG_LEVEL"     envDefault:"info"`

	PageSize      int `env:"HARVEST_PAGE_SIZE" envDefault:"100"`
	HarvestMinSec int `env:"HARVEST_MIN_DELAY" envDefault:"3"`
	HarvestMaxSec int `env:"HARVEST_MAX_DELAY" envDefault:"10"`
	JoinMinSec    int `env:"JOIN_MIN_DELAY"    envDefault:"1"`
	JoinMaxSec    int `env:"JOIN_MAX_DELAY"    envDefault:"10"`

	NotifyBotToken string `env:"NOTIFY_BOT_TOKEN"`
	NotifyChatID   int64  `env:"NOTIFY_CHAT_ID"`

	MetricsFile string `env:"METRICS_FILE"`
}

// LoadDotenv loads variables from the given files (".env" when none are
// given) without overriding variables already set. Missing files are
// ignored; unreadable or malformed ones are errors.
func LoadDotenv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("HARVEST_PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.HarvestMinSec < 0 || c.HarvestMinSec > c.HarvestMaxSec {
		return fmt.Errorf("invalid harvest delay window %d-%d", c.HarvestMinSec, c.HarvestMaxSec)
	}
	if c.JoinMinSec < 0 || c.JoinMinSec > c.JoinMaxSec {
		return fmt.Errorf("invalid join delay window %d-%d", c.JoinMinSec, c.JoinMaxSec)
	}
	if c.NotifyBotToken != "" && c.NotifyChatID == 0 {
		return errors.New("NOTIFY_CHAT_ID is required when NOTIFY_BOT_TOKEN is set")
	}
	return nil
}

// ValidateRemote checks the credentials needed to talk to the remote API.
func (c *Config) ValidateRemote() error {
	if c.APIID == 0 {
		return errors.New("TELEGRAM_API_ID is required")
	}
	if c.APIHash == "" {
		return errors.New("TELEGRAM_API_HASH is required")
	}
	if c.Phone == "" {
		return errors.New("TELEGRAM_PHONE_NUMBER is required")
	}
	return nil
}

// HarvestDelay is the pause window used before fetching and leaving.
func (c *Config) HarvestDelay() ratelimit.Delay {
	return ratelimit.Delay{Min: c.HarvestMinSec, Max: c.HarvestMaxSec}
}

// JoinDelay is the pause window used before joining.
func (c *Config) JoinDelay() ratelimit.Delay {
	return ratelimit.Delay{Min: c.JoinMinSec, Max: c.JoinMaxSec}
}

// NotifyEnabled reports whether run summaries should be sent.
func (c *Config) NotifyEnabled() bool {
	return c.NotifyBotToken != ""
}
