package config

import (
	"fmt"
	"strconv"
	"strings"
)

// envVar binds environment keys to a config field. The first key that is
// set wins; the unprefixed names are the legacy .env spellings.
type envVar struct {
	keys  []string
	apply func(c *Config, v string) error
}

var envVars = []envVar{
	{[]string{"CRONBOSS_TASKS_DIR", "TASKS_DIR"}, func(c *Config, v string) error {
		c.TasksDir = v
		return nil
	}},
	{[]string{"CRONBOSS_TICK_MINUTES", "CRON_INTERVAL_MINUTES"}, func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		c.TickMinutes = n
		return nil
	}},
	{[]string{"CRONBOSS_WARNINGS_AS_FAILURE", "WARNINGS_AS_FAILURE"}, func(c *Config, v string) error {
		b, err := parseBool(v)
		c.WarningsAsFailure = b
		return err
	}},
	{[]string{"CRONBOSS_DEFAULT_NOTIFY_ON", "DEFAULT_NOTIFY_ON"}, func(c *Config, v string) error {
		c.DefaultNotifyOn = splitList(v)
		return nil
	}},
	{[]string{"CRONBOSS_LOCK_DIR"}, func(c *Config, v string) error {
		c.LockDir = v
		return nil
	}},
	{[]string{"CRONBOSS_TIMEZONE"}, func(c *Config, v string) error {
		c.Timezone = v
		return nil
	}},
	{[]string{"CRONBOSS_SEND_SUMMARY", "SEND_SUMMARY_DISCORD"}, func(c *Config, v string) error {
		b, err := parseBool(v)
		c.Summary.Enabled = b
		return err
	}},
	{[]string{"CRONBOSS_DEFAULT_INTERPRETER", "DEFAULT_VENV"}, func(c *Config, v string) error {
		c.Interpreters.Default = v
		return nil
	}},
	{[]string{"CRONBOSS_INTERPRETERS_FILE", "INTERPRETERS_PATH"}, func(c *Config, v string) error {
		c.Interpreters.File = v
		return nil
	}},
	{[]string{"CRONBOSS_LOG_LEVEL"}, func(c *Config, v string) error {
		c.Logging.Level = v
		return nil
	}},
	{[]string{"CRONBOSS_LOG_FILE", "LOG_FILE_PATH"}, func(c *Config, v string) error {
		c.Logging.File.Enabled = true
		c.Logging.File.Path = v
		return nil
	}},
	{[]string{"CRONBOSS_DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK_URL"}, func(c *Config, v string) error {
		c.Discord.WebhookURL = v
		return nil
	}},
	{[]string{"CRONBOSS_TELEGRAM_TOKEN"}, func(c *Config, v string) error {
		c.Telegram.Token = v
		return nil
	}},
	{[]string{"CRONBOSS_TELEGRAM_CHAT_ID"}, func(c *Config, v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		c.Telegram.ChatID = n
		return nil
	}},
}

// ApplyEnv overlays environment values on cfg and returns the keys used.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) ([]string, error) {
	var applied []string
	for _, ev := range envVars {
		for _, key := range ev.keys {
			v, ok := lookup(key)
			if !ok {
				continue
			}
			if err := ev.apply(cfg, v); err != nil {
				return applied, fmt.Errorf("%s: %w", key, err)
			}
			applied = append(applied, key)
			break
		}
	}
	return applied, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, strings.ToLower(p))
	}
	return out
}
