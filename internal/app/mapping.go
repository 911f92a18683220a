package app

import (
	"fmt"
	"strings"
	"time"

	"cronboss/internal/config"
	"cronboss/internal/launcher"
	"cronboss/internal/notifier"
	"cronboss/internal/runner"
	"cronboss/internal/storage"
	logx "cronboss/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
			Dir:     cfg.Logging.File.Dir,
			Name:    "cronboss",
		},
		Journald: cfg.Logging.Journald,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" || driver == "disabled" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file", "jsonl":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	on, err := cfg.NotifyOn()
	if err != nil {
		return notifier.Config{}, err
	}
	base, err := config.ParseDurationField("notifier.retry_base", cfg.Notifier.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		DefaultNotifyOn: on,
		SummaryEnabled:  cfg.Summary.Enabled,
		RetryMax:        cfg.Notifier.RetryMax,
		RetryBase:       base,
		RetryMaxDelay:   maxDelay,
		SendTimeout:     sendTimeout,
	}, nil
}

// mapTransports builds the configured notification transports. The log
// transport is always present.
func mapTransports(cfg *config.Config, log logx.Logger) ([]notifier.Notifier, error) {
	out := []notifier.Notifier{notifier.NewLog(log)}

	if strings.TrimSpace(cfg.Discord.WebhookURL) != "" {
		timeout, err := config.ParseDurationField("discord.timeout", cfg.Discord.Timeout)
		if err != nil {
			return nil, err
		}
		d, err := notifier.NewDiscord(notifier.DiscordConfig{
			WebhookURL: cfg.Discord.WebhookURL,
			Username:   cfg.Discord.Username,
			RatePerSec: cfg.Discord.RatePerSec,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		timeout, err := config.ParseDurationField("telegram.timeout", cfg.Telegram.Timeout)
		if err != nil {
			return nil, err
		}
		tg, err := notifier.NewTelegram(notifier.TelegramConfig{
			Token:      cfg.Telegram.Token,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Telegram.ThreadID,
			APIURL:     cfg.Telegram.APIURL,
			RatePerSec: cfg.Telegram.RatePerSec,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	return out, nil
}

func mapLauncherConfig(cfg *config.Config) (launcher.Config, error) {
	interps, err := launcher.LoadInterpreters(cfg.Interpreters.File)
	if err != nil {
		return launcher.Config{}, err
	}
	return launcher.Config{
		Resolver: launcher.Resolver{
			Map:     interps,
			Default: cfg.Interpreters.Default,
			Markers: cfg.Interpreters.RootMarkers,
		},
		ProjectRootMarker: cfg.Interpreters.ProjectRootMarker,
		Shell:             cfg.Interpreters.Shell,
	}, nil
}

func mapRunnerOptions(cfg *config.Config) (runner.Options, error) {
	poll, err := config.ParseDurationField("poll_interval", cfg.PollInterval)
	if err != nil {
		return runner.Options{}, err
	}
	grace, err := config.ParseDurationField("kill_grace", cfg.KillGrace)
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		TickMinutes:       cfg.TickMinutes,
		PollInterval:      poll,
		WarningsAsFailure: cfg.WarningsAsFailure,
		TailLines:         cfg.TailLines,
		KillGrace:         grace,
	}, nil
}
