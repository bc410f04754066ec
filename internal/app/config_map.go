package app

import (
	"time"

	"nagbot/internal/config"
	"nagbot/internal/duesched"
	"nagbot/internal/flow"
	"nagbot/internal/storage"
	logx "nagbot/pkg/logx"
)

const (
	defaultTimezone       = "Europe/Moscow"
	defaultSanitationCron = "0 4 * * *"
)

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			ChatID:     c.Telegram.ChatID,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}

func mapStorage(c config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
		RedisAddr:   c.RedisAddr,
		RedisDB:     c.RedisDB,
	}, nil
}

func mapReminders(c config.RemindersConfig) (duesched.Config, error) {
	var (
		out duesched.Config
		err error
	)
	if out.InitialDelay, err = config.ParseDurationField("reminders.initial_delay", c.InitialDelay); err != nil {
		return out, err
	}
	if out.Interval, err = config.ParseDurationField("reminders.interval", c.Interval); err != nil {
		return out, err
	}
	if out.TriggerWindow, err = config.ParseDurationField("reminders.trigger_window", c.TriggerWindow); err != nil {
		return out, err
	}
	if out.RetriggerAfter, err = config.ParseDurationField("reminders.retrigger_after", c.RetriggerAfter); err != nil {
		return out, err
	}
	if out.RetryBackoff, err = config.ParseDurationField("reminders.retry_backoff", c.RetryBackoff); err != nil {
		return out, err
	}
	if out.StaleAfter, err = config.ParseDurationField("reminders.stale_after", c.StaleAfter); err != nil {
		return out, err
	}
	return out, nil
}

func mapFlow(c config.PickerConfig) (flow.Config, error) {
	timeout, err := config.ParseDurationOrDefault("picker.timeout", c.Timeout, 30*time.Second)
	if err != nil {
		return flow.Config{}, err
	}
	return flow.Config{PickerTimeout: timeout}, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = defaultTimezone
	}
	return time.LoadLocation(name)
}

// validate rejects a config whose duration or timezone fields do not parse.
// Used both at startup and as the hot-reload gate.
func validate(cfg *config.Config) error {
	if _, err := mapStorage(cfg.Storage); err != nil {
		return err
	}
	if _, err := mapReminders(cfg.Reminders); err != nil {
		return err
	}
	if _, err := mapFlow(cfg.Picker); err != nil {
		return err
	}
	if _, err := loadLocation(cfg.Reminders.Timezone); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	return nil
}
