package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Picker    PickerConfig    `json:"picker"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string for long polling (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  bool              `json:"console"`
	File     LogFileConfig     `json:"file"`
	Telegram LogTelegramConfig `json:"telegram"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LogTelegramConfig mirrors a log stream into a Telegram chat. Rate limited;
// meant for warnings and errors, not the full debug firehose.
type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the reminder store backend.
//
// Driver is one of "sqlite", "redis" or "none". An unknown or failing driver
// degrades to the in-memory no-op store rather than refusing to start.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	RedisAddr   string `json:"redis_addr,omitempty"`
	RedisDB     int    `json:"redis_db,omitempty"`
}

// RemindersConfig controls the due-reminder poller.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type RemindersConfig struct {
	Enabled *bool `json:"enabled,omitempty"` // omitted means enabled

	InitialDelay   string `json:"initial_delay,omitempty"`   // default "5s"
	Interval       string `json:"interval,omitempty"`        // default "10s"
	TriggerWindow  string `json:"trigger_window,omitempty"`  // default "59s"
	RetriggerAfter string `json:"retrigger_after,omitempty"` // default "10m"
	RetryBackoff   string `json:"retry_backoff,omitempty"`   // default "1m"
	StaleAfter     string `json:"stale_after,omitempty"`     // default "24h"

	// SanitationCron schedules the nightly corrupt-row purge
	// (default "0 4 * * *").
	SanitationCron string `json:"sanitation_cron,omitempty"`

	// Timezone is an IANA name; due dates are parsed and rendered in it.
	Timezone string `json:"timezone,omitempty"` // default "Europe/Moscow"
}

type PickerConfig struct {
	// Timeout is how long the calendar stays open (default "30s").
	Timeout string `json:"timeout,omitempty"`
}

func (c *RemindersConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ParseDurationField reads one of the duration-string fields above. Empty or
// whitespace-only means "unset" and parses to zero; negative values are
// rejected so a typo can't arm a timer in the past. path names the field in
// the error ("reminders.interval").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with an unset fallback.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
