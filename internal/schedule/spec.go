package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// DaysKind selects how Spec.Days is interpreted.
type DaysKind int

const (
	DaysAny DaysKind = iota
	DaysOfMonth
	DaysOfWeek
)

func (k DaysKind) String() string {
	switch k {
	case DaysAny:
		return "any"
	case DaysOfMonth:
		return "day_of_month"
	case DaysOfWeek:
		return "weekday"
	default:
		return fmt.Sprintf("days(%d)", int(k))
	}
}

// Spec is an immutable schedule.
//
// Hours: AnyHour or a set of 0..23.
// Minutes: empty means any minute.
// Days: DaysAny, day-of-month set (1..31) or weekday set (0=Monday..6=Sunday).
// Weekday and day-of-month are mutually exclusive for one spec.
//
// When Cron is non-empty it replaces the triad entirely.
type Spec struct {
	AnyHour  bool
	Hours    []int
	Minutes  []int
	DaysKind DaysKind
	Days     []int
	Cron     string

	cronSched cron.Schedule
}

// Always returns a spec that matches every tick.
func Always() Spec { return Spec{AnyHour: true, DaysKind: DaysAny} }

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// WithCron parses expr and returns a copy of s that uses it.
func (s Spec) WithCron(expr string) (Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		s.Cron = ""
		s.cronSched = nil
		return s, nil
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return s, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	s.Cron = expr
	s.cronSched = sched
	return s, nil
}

func (s Spec) String() string {
	if s.Cron != "" {
		return "cron:" + s.Cron
	}
	var b strings.Builder
	b.WriteString("hours=")
	if s.AnyHour {
		b.WriteString("any")
	} else {
		b.WriteString(joinInts(s.Hours))
	}
	b.WriteString(" minutes=")
	if len(s.Minutes) == 0 {
		b.WriteString("any")
	} else {
		b.WriteString(joinInts(s.Minutes))
	}
	b.WriteString(" days=")
	b.WriteString(s.DaysKind.String())
	if s.DaysKind != DaysAny {
		b.WriteString(":")
		b.WriteString(joinInts(s.Days))
	}
	return b.String()
}

func joinInts(v []int) string {
	cp := append([]int(nil), v...)
	sort.Ints(cp)
	parts := make([]string, 0, len(cp))
	for _, n := range cp {
		parts = append(parts, fmt.Sprint(n))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
