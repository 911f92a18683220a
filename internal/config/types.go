package config

import (
	"os"
	"path/filepath"
)

// Config is the process configuration. All durations are Go duration
// strings (e.g. "500ms", "10s", "1m").
type Config struct {
	// TasksDir holds the *.yaml definition documents.
	TasksDir string `json:"tasks_dir"`
	// TickMinutes is the interval the external scheduler invokes cronboss
	// with. 0 means exact-minute matching.
	TickMinutes       int      `json:"tick_minutes"`
	WarningsAsFailure bool     `json:"warnings_as_failure"`
	DefaultNotifyOn   []string `json:"default_notify_on,omitempty"`
	LockDir           string   `json:"lock_dir"`
	// Timezone is an IANA name used to evaluate "now". Empty means local.
	Timezone string `json:"timezone,omitempty"`

	PollInterval string `json:"poll_interval,omitempty"`
	KillGrace    string `json:"kill_grace,omitempty"`
	TailLines    int    `json:"tail_lines,omitempty"`

	Interpreters InterpretersConfig `json:"interpreters"`
	Summary      SummaryConfig      `json:"summary"`
	Storage      StorageConfig      `json:"storage"`
	Logging      LoggingConfig      `json:"logging"`
	Notifier     NotifierConfig     `json:"notifier"`
	Discord      DiscordConfig      `json:"discord"`
	Telegram     TelegramConfig     `json:"telegram"`
}

type InterpretersConfig struct {
	// File is a YAML map of project or origin name to interpreter path.
	File    string `json:"file,omitempty"`
	Default string `json:"default,omitempty"`
	// ProjectRootMarker names the folder whose path goes on PYTHONPATH.
	ProjectRootMarker string   `json:"project_root_marker,omitempty"`
	RootMarkers       []string `json:"root_markers,omitempty"`
	// Shell runs bash tasks.
	Shell string `json:"shell,omitempty"`
}

type SummaryConfig struct {
	Enabled bool `json:"enabled"`
}

// StorageConfig controls the audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./var/cronboss.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string      `json:"level"`
	Console  bool        `json:"console"`
	File     LoggingFile `json:"file"`
	Journald bool        `json:"journald"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
	// Dir switches to one file per day: <dir>/<YYYY-MM-DD>_cronboss.log.
	Dir string `json:"dir,omitempty"`
}

// NotifierConfig controls delivery retries shared by every transport.
type NotifierConfig struct {
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type DiscordConfig struct {
	WebhookURL string  `json:"webhook_url"`
	Username   string  `json:"username,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token      string  `json:"token"`
	ChatID     int64   `json:"chat_id"`
	ThreadID   int     `json:"thread_id,omitempty"`
	APIURL     string  `json:"api_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TasksDir:        "./tasks",
		LockDir:         filepath.Join(os.TempDir(), "cronboss-locks"),
		DefaultNotifyOn: []string{"failure"},
		Logging:         LoggingConfig{Level: "info", Console: true},
		Storage:         StorageConfig{Driver: "none"},
		Notifier:        NotifierConfig{RetryMax: 3},
	}
}
