package config

import (
	"sort"
	"strings"

	logx "nagbot/pkg/logx"
)

// SummarizeChange returns the changed sections plus structured attrs safe for
// logging. The telegram token is never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !remindersEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newCfg.Reminders.IsEnabled()),
			logx.String("reminders.interval", strings.TrimSpace(newCfg.Reminders.Interval)),
			logx.String("reminders.timezone", strings.TrimSpace(newCfg.Reminders.Timezone)),
		)
	}

	if strings.TrimSpace(oldCfg.Picker.Timeout) != strings.TrimSpace(newCfg.Picker.Timeout) {
		changed = append(changed, "picker")
		attrs = append(attrs, logx.String("picker.timeout", strings.TrimSpace(newCfg.Picker.Timeout)))
	}

	sort.Strings(changed)
	return changed, attrs
}

func remindersEqual(a, b RemindersConfig) bool {
	if a.IsEnabled() != b.IsEnabled() {
		return false
	}
	a.Enabled, b.Enabled = nil, nil
	return a == b
}
