package schedule

import "time"

// Matches reports whether s is due for the given wall-clock fields.
//
// weekday uses 0=Monday..6=Sunday. tick is the external invocation interval in
// minutes; 0 requires an exact minute match. Matches ignores s.Cron.
func Matches(s Spec, hour, minute, weekday, day, tick int) bool {
	return matchHour(s, hour) && matchDay(s, weekday, day) && matchMinute(s.Minutes, minute, tick)
}

// Due evaluates s at now (in now's location). A cron spec is due when one of
// its activation minutes lies in the trailing tick window ending at now.
func Due(s Spec, now time.Time, tick int) bool {
	if s.cronSched != nil {
		return cronDue(s, now, tick)
	}
	return Matches(s, now.Hour(), now.Minute(), Weekday(now), now.Day(), tick)
}

// Weekday converts Go's Sunday-based weekday to 0=Monday..6=Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func matchHour(s Spec, hour int) bool {
	if s.AnyHour {
		return true
	}
	return contains(s.Hours, hour)
}

func matchDay(s Spec, weekday, day int) bool {
	switch s.DaysKind {
	case DaysAny:
		return true
	case DaysOfMonth:
		return contains(s.Days, day)
	case DaysOfWeek:
		return contains(s.Days, weekday)
	default:
		return false
	}
}

func matchMinute(minutes []int, minute, tick int) bool {
	if len(minutes) == 0 {
		return true
	}
	if tick <= 0 {
		return contains(minutes, minute)
	}
	for _, m := range minutes {
		// Distance from m forward to the current minute, modulo one hour.
		if d := ((minute-m)%60 + 60) % 60; d < tick {
			return true
		}
	}
	return false
}

func cronDue(s Spec, now time.Time, tick int) bool {
	if tick <= 0 {
		tick = 1
	}
	cur := now.Truncate(time.Minute)
	from := cur.Add(-time.Duration(tick) * time.Minute)
	next := s.cronSched.Next(from)
	return !next.After(cur)
}

func contains(set []int, v int) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}
