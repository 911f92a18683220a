package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cronboss/internal/task"
)

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.TasksDir) == "" {
		add("tasks_dir is required")
	}
	if c.TickMinutes < 0 || c.TickMinutes > 60 {
		add("tick_minutes must be within 0..60, got %d", c.TickMinutes)
	}
	if _, err := c.NotifyOn(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.LockDir) == "" {
		add("lock_dir is required")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.TailLines < 0 {
		add("tail_lines must be >= 0")
	}

	durations := map[string]string{
		"poll_interval":            c.PollInterval,
		"kill_grace":               c.KillGrace,
		"storage.busy_timeout":     c.Storage.BusyTimeout,
		"notifier.retry_base":      c.Notifier.RetryBase,
		"notifier.retry_max_delay": c.Notifier.RetryMaxDelay,
		"notifier.send_timeout":    c.Notifier.SendTimeout,
		"discord.timeout":          c.Discord.Timeout,
		"telegram.timeout":         c.Telegram.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "disabled":
	case "file", "jsonl", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for driver %q", c.Storage.Driver)
		}
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Notifier.RetryMax < 0 {
		add("notifier.retry_max must be >= 0")
	}
	if u := strings.TrimSpace(c.Discord.WebhookURL); u != "" {
		pu, err := url.Parse(u)
		if err != nil || (pu.Scheme != "https" && pu.Scheme != "http") || pu.Host == "" {
			add("discord.webhook_url: not an http(s) url")
		}
	}
	if strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.ChatID == 0 {
		add("telegram.chat_id is required when telegram.token is set")
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" && strings.TrimSpace(c.Logging.File.Dir) == "" {
		add("logging.file needs path or dir when enabled")
	}

	return errors.Join(errs...)
}

// NotifyOn parses DefaultNotifyOn.
func (c *Config) NotifyOn() ([]task.Status, error) {
	out := make([]task.Status, 0, len(c.DefaultNotifyOn))
	for _, raw := range c.DefaultNotifyOn {
		st, err := task.ParseStatus(raw)
		if err != nil || st == task.StatusNotRun {
			return nil, fmt.Errorf("default_notify_on: unknown status %q", raw)
		}
		out = append(out, st)
	}
	return out, nil
}

// Location resolves Timezone; empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}
