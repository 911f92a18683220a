package definition

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"cronboss/internal/cleanup"
	"cronboss/internal/schedule"
	"cronboss/internal/task"
)

const defaultRetryDelay = 30 * time.Second

var knownKeys = map[string]bool{
	"type": true, "script": true, "args": true, "interpreter": true, "workdir": true,
	"hours": true, "minutes": true, "days": true, "cron": true,
	"enabled": true, "exclusive": true,
	"retries": true, "retry_delay": true, "timeout": true, "timeout_mode": true,
	"cleanup": true, "notifications": true, "name": true,
}

// Warnf receives non-fatal normalization notes.
type Warnf func(format string, args ...any)

// Normalize turns one raw record into a Definition.
func Normalize(raw map[string]any, origin string, warn Warnf) (task.Definition, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	var def task.Definition
	def.Origin = origin

	script, _ := raw["script"].(string)
	script = strings.TrimSpace(script)
	if script == "" {
		return def, errors.New("missing or invalid script")
	}
	def.Script = script

	for k := range raw {
		if !knownKeys[k] {
			warn("unknown key %q ignored", k)
		}
	}

	switch kind := stringValue(raw["type"]); kind {
	case "", "python":
		def.Kind = task.KindPython
	case "bash":
		def.Kind = task.KindBash
	default:
		warn("invalid type %q, using python", kind)
		def.Kind = task.KindPython
	}

	if s, ok := raw["args"].(string); ok {
		def.Args = s
	}
	def.Interpreter = stringValue(raw["interpreter"])
	def.WorkDir = stringValue(raw["workdir"])
	def.Enabled = asBool(raw["enabled"], true)
	def.Exclusive = asBool(raw["exclusive"], true)

	var err error
	if def.Retries, err = nonNegInt(raw["retries"], 0); err != nil {
		return def, fmt.Errorf("retries: %w", err)
	}
	if def.RetryDelay, err = seconds(raw["retry_delay"], defaultRetryDelay); err != nil {
		return def, fmt.Errorf("retry_delay: %w", err)
	}
	if def.Timeout, err = seconds(raw["timeout"], 0); err != nil {
		return def, fmt.Errorf("timeout: %w", err)
	}
	switch mode := stringValue(raw["timeout_mode"]); mode {
	case "", "strict":
		def.TimeoutMode = task.TimeoutStrict
	case "soft":
		def.TimeoutMode = task.TimeoutSoft
	default:
		warn("invalid timeout_mode %q, using strict", mode)
		def.TimeoutMode = task.TimeoutStrict
	}

	if def.Schedule, err = normalizeSchedule(raw, warn); err != nil {
		return def, err
	}
	if def.Cleanup, err = normalizeCleanup(raw["cleanup"], warn); err != nil {
		return def, fmt.Errorf("cleanup: %w", err)
	}
	def.Notify = normalizeNotifications(raw["notifications"], warn)
	return def, nil
}

func normalizeSchedule(raw map[string]any, warn Warnf) (schedule.Spec, error) {
	var s schedule.Spec

	hours, err := setList(raw["hours"], 0, 23, warn)
	if err != nil {
		return s, fmt.Errorf("hours: %w", err)
	}
	s.AnyHour = len(hours) == 0
	s.Hours = hours

	if s.Minutes, err = intList(raw["minutes"], 0, 59, warn); err != nil {
		return s, fmt.Errorf("minutes: %w", err)
	}

	switch d := raw["days"].(type) {
	case map[string]any:
		_, hasWeekday := d["weekday"]
		_, hasDay := d["day"]
		if hasWeekday && hasDay {
			return s, errors.New("days: weekday and day are mutually exclusive")
		}
		if hasWeekday {
			days, err := setList(d["weekday"], 0, 6, warn)
			if err != nil {
				return s, fmt.Errorf("days.weekday: %w", err)
			}
			if len(days) > 0 {
				s.DaysKind, s.Days = schedule.DaysOfWeek, days
			}
		} else if hasDay {
			warn("days: {day: [...]} is deprecated, use a plain list")
			days, err := setList(d["day"], 1, 31, warn)
			if err != nil {
				return s, fmt.Errorf("days.day: %w", err)
			}
			if len(days) > 0 {
				s.DaysKind, s.Days = schedule.DaysOfMonth, days
			}
		} else {
			return s, errors.New("days: expected weekday or day key")
		}
	default:
		days, err := setList(d, 1, 31, warn)
		if err != nil {
			return s, fmt.Errorf("days: %w", err)
		}
		if len(days) > 0 {
			s.DaysKind, s.Days = schedule.DaysOfMonth, days
		}
	}

	if expr := stringValue(raw["cron"]); expr != "" {
		return s.WithCron(expr)
	}
	return s, nil
}

func normalizeCleanup(v any, warn Warnf) (*cleanup.Directive, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		warn("cleanup is not a mapping, ignored")
		return nil, nil
	}
	var d cleanup.Directive
	switch p := m["paths"].(type) {
	case string:
		d.Paths = []string{p}
	case []any:
		for _, item := range p {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				d.Paths = append(d.Paths, strings.TrimSpace(s))
			}
		}
	}
	if len(d.Paths) == 0 {
		warn("cleanup without paths, ignored")
		return nil, nil
	}

	rule, _ := m["rule"].(map[string]any)
	if rule == nil {
		warn("cleanup without rule, ignored")
		return nil, nil
	}
	if _, ok := rule["keep_last"]; ok {
		n, err := nonNegInt(rule["keep_last"], 0)
		if err != nil {
			return nil, fmt.Errorf("keep_last: %w", err)
		}
		d.Rule.KeepLast = &n
	}
	if _, ok := rule["keep_days"]; ok {
		n, err := nonNegInt(rule["keep_days"], 0)
		if err != nil {
			return nil, fmt.Errorf("keep_days: %w", err)
		}
		d.Rule.KeepDays = &n
	}
	switch e := rule["extensions"].(type) {
	case nil:
	case string:
		if strings.EqualFold(strings.TrimSpace(e), "all") {
			d.Rule.Extensions = cleanup.AllExtensions
		} else {
			d.Rule.Extensions = []string{e}
		}
	case []any:
		exts := []string{}
		for _, item := range e {
			if s, ok := item.(string); ok {
				exts = append(exts, s)
			}
		}
		d.Rule.Extensions = exts
	}
	d.Rule.Recursive = asBool(rule["recursive"], false)
	d.Rule.DryRun = asBool(rule["dry_run"], false)
	return &d, nil
}

func normalizeNotifications(v any, warn Warnf) task.NotifyPolicy {
	var p task.NotifyPolicy
	m, ok := v.(map[string]any)
	if !ok {
		return p
	}
	if list, ok := m["notify_on"].([]any); ok {
		p.On = []task.Status{}
		for _, item := range list {
			s, _ := item.(string)
			st, err := task.ParseStatus(s)
			if err != nil || st == task.StatusNotRun {
				warn("notify_on: unknown value %v ignored", item)
				continue
			}
			p.On = append(p.On, st)
		}
	} else if s, ok := m["notify_on"].(string); ok {
		if st, err := task.ParseStatus(s); err == nil && st != task.StatusNotRun {
			p.On = []task.Status{st}
		} else {
			warn("notify_on: unknown value %q ignored", s)
		}
	}
	if list, ok := m["channels"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				p.Channels = append(p.Channels, strings.ToLower(strings.TrimSpace(s)))
			}
		}
	}
	return p
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// asBool accepts booleans and yes/no/true/false/1/0 in any case.
func asBool(v any, def bool) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		switch x {
		case 1:
			return true
		case 0:
			return false
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "true", "1", "on":
			return true
		case "no", "false", "0", "off":
			return false
		}
	}
	return def
}

// intList reads "any", a single int, a digit string or a list of those.
// Empty or "any" yields nil. Out-of-range values are an error; non-numeric
// list items are dropped with a warning.
// errEmptySet rejects an explicit list with no usable value. Such a set can
// never match and must not widen to "any".
var errEmptySet = errors.New("empty list never matches")

// setList is intList for hours and days: absent or "any" means any, an
// explicit list must keep at least one value.
func setList(v any, lo, hi int, warn Warnf) ([]int, error) {
	out, err := intList(v, lo, hi, warn)
	if err != nil {
		return nil, err
	}
	if _, explicit := v.([]any); explicit && len(out) == 0 {
		return nil, errEmptySet
	}
	return out, nil
}

func intList(v any, lo, hi int, warn Warnf) ([]int, error) {
	var items []any
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(x), "any") || strings.TrimSpace(x) == "" {
			return nil, nil
		}
		items = []any{x}
	case []any:
		items = x
	default:
		items = []any{x}
	}

	seen := map[int]bool{}
	var out []int
	for _, item := range items {
		n, ok := toInt(item)
		if !ok {
			warn("non-integer value %v ignored", item)
			continue
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("value %d out of range %d..%d", n, lo, hi)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x == float64(int(x)) {
			return int(x), true
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return 0, false
			}
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	return 0, false
}

func nonNegInt(v any, def int) (int, error) {
	if v == nil {
		return def, nil
	}
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %v", v)
	}
	return n, nil
}

// seconds reads a count of seconds or a Go duration string ("90s", "5m").
func seconds(v any, def time.Duration) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	if n, ok := toInt(v); ok {
		if n < 0 {
			return 0, errors.New("duration must be >= 0")
		}
		return time.Duration(n) * time.Second, nil
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if d < 0 {
			return 0, errors.New("duration must be >= 0")
		}
		return d, nil
	}
	return 0, fmt.Errorf("expected seconds or a duration, got %v", v)
}
