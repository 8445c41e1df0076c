package config

import "errors"

// Validation errors returned by Load.
var (
	// ErrMissingChatID is returned when a bot token is set without a chat for
	// notifications.
	ErrMissingChatID = errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")

	// ErrInvalidInterval is returned when CHECK_INTERVAL_MINUTES is not positive.
	ErrInvalidInterval = errors.New("invalid check interval: must be positive")

	// ErrInvalidTimeout is returned when TIMEOUT_SECONDS is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetryAttempts is returned when RETRY_ATTEMPTS is below 1.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidConcurrency is returned when CONCURRENCY is below 1.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be at least 1")

	// ErrNegativeValue is returned for delays and limits that must not be negative.
	ErrNegativeValue = errors.New("value must not be negative")

	// ErrRulesNotFound is returned when an explicitly configured rules file
	// does not exist.
	ErrRulesNotFound = errors.New("rules file not found")
)
