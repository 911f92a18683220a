package logx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/rs/zerolog"
)

// journalWriter forwards zerolog JSON lines to the systemd journal.
// Structured fields become journal variables (upper-cased).
type journalWriter struct{}

func newJournalWriter() *journalWriter {
	if !journal.Enabled() {
		return nil
	}
	return &journalWriter{}
}

func (w *journalWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *journalWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	msg, vars := decodeJournalLine(p)
	if msg == "" {
		return len(p), nil
	}
	// Never fail the log call because journald hiccuped.
	_ = journal.Send(msg, journalPriority(level), vars)
	return len(p), nil
}

func decodeJournalLine(p []byte) (string, map[string]string) {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return strings.TrimSpace(string(p)), nil
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	vars := make(map[string]string, len(m))
	for k, v := range m {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			continue
		}
		key := journalKey(k)
		if key == "" {
			continue
		}
		vars[key] = fmt.Sprint(v)
	}
	vars["SYSLOG_IDENTIFIER"] = "cronboss"
	return msg, vars
}

// journalKey maps a field name to a valid journal variable name ([A-Z0-9_], no leading '_').
func journalKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_")
}

func journalPriority(level zerolog.Level) journal.Priority {
	switch {
	case level >= zerolog.ErrorLevel:
		return journal.PriErr
	case level == zerolog.WarnLevel:
		return journal.PriWarning
	case level == zerolog.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
