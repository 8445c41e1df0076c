// Package config handles application configuration from environment variables
// and the optional rules file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// AppName names the application directories under the XDG base dirs.
const AppName = "pagewatch"

// DefaultUserAgent identifies the monitor as a regular browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultIgnorePatterns mark volatile page regions by class or id.
var DefaultIgnorePatterns = []string{
	"timestamp",
	"current-time",
	"last-updated",
	"ad-container",
	"advertisement",
	"cookie-banner",
	"session-id",
	"csrf-token",
	"random-id",
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	AllowedUsers     []int64

	DatabasePath string
	CacheDir     string
	// RulesFile is the rules file that was loaded, empty if none.
	RulesFile string
	LogLevel  string

	CheckIntervalMinutes int
	Timeout              time.Duration
	UserAgent            string
	RetryAttempts        int
	RetryDelay           time.Duration
	FetchRetries         uint64
	PolitenessDelay      time.Duration
	Concurrency          int
	RespectRobots        bool

	NotifyOnFirstCheck bool
	NotifyOnError      bool
	IncludeDiff        bool
	MaxDiffLength      int

	IgnorePatterns []string
	Selectors      []string
}

// Load reads configuration from environment variables and the rules file.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:     envString("DATABASE_PATH", filepath.Join(DataDir(), AppName+".db")),
		CacheDir:         envString("CACHE_DIR", filepath.Join(CacheDir(), "snapshots")),
		LogLevel:         envString("LOG_LEVEL", "info"),
		UserAgent:        envString("USER_AGENT", DefaultUserAgent),
		IgnorePatterns:   append([]string(nil), DefaultIgnorePatterns...),
	}

	p := parser{}
	cfg.TelegramChatID = p.int64Var("TELEGRAM_CHAT_ID", 0)
	cfg.AllowedUsers = p.ids("ALLOWED_USERS")
	cfg.CheckIntervalMinutes = p.intVar("CHECK_INTERVAL_MINUTES", 60)
	cfg.Timeout = p.seconds("TIMEOUT_SECONDS", 30)
	cfg.RetryAttempts = p.intVar("RETRY_ATTEMPTS", 3)
	cfg.RetryDelay = p.seconds("RETRY_DELAY_SECONDS", 10)
	cfg.FetchRetries = uint64(max(p.intVar("FETCH_RETRIES", 0), 0))
	cfg.PolitenessDelay = p.seconds("POLITENESS_DELAY_SECONDS", 2)
	cfg.Concurrency = p.intVar("CONCURRENCY", 1)
	cfg.RespectRobots = p.boolVar("RESPECT_ROBOTS", false)
	cfg.NotifyOnFirstCheck = p.boolVar("NOTIFY_ON_FIRST_CHECK", false)
	cfg.NotifyOnError = p.boolVar("NOTIFY_ON_ERROR", true)
	cfg.IncludeDiff = p.boolVar("INCLUDE_DIFF", true)
	cfg.MaxDiffLength = p.intVar("MAX_DIFF_LENGTH", 500)
	if p.err != nil {
		return nil, p.err
	}

	explicit := os.Getenv("RULES_FILE")
	if path := FindRulesFile(explicit); path != "" {
		rules, err := LoadRules(path)
		if err != nil {
			return nil, err
		}
		cfg.RulesFile = path
		if rules.IgnorePatterns != nil {
			cfg.IgnorePatterns = rules.IgnorePatterns
		}
		cfg.Selectors = rules.Selectors
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return ErrMissingChatID
	}
	if c.CheckIntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryAttempts < 1 {
		return ErrInvalidRetryAttempts
	}
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("RETRY_DELAY_SECONDS: %w", ErrNegativeValue)
	}
	if c.PolitenessDelay < 0 {
		return fmt.Errorf("POLITENESS_DELAY_SECONDS: %w", ErrNegativeValue)
	}
	if c.MaxDiffLength < 0 {
		return fmt.Errorf("MAX_DIFF_LENGTH: %w", ErrNegativeValue)
	}
	return nil
}

// TelegramEnabled reports whether a bot token was configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// DataDir returns the XDG data directory for pagewatch.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// CacheDir returns the XDG cache directory for pagewatch.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser reads typed environment variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) intVar(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
		return def
	}
	return v
}

func (p *parser) int64Var(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
		return def
	}
	return v
}

func (p *parser) seconds(key string, def int) time.Duration {
	return time.Duration(p.intVar(key, def)) * time.Second
}

func (p *parser) boolVar(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
		return def
	}
	return v
}

func (p *parser) ids(key string) []int64 {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			p.err = fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
			return nil
		}
		ids = append(ids, uid)
	}
	return ids
}
