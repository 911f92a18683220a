package notifier

import (
	"testing"

	"cronboss/internal/task"
)

func TestShouldNotify(t *testing.T) {
	t.Parallel()

	S := func(v ...task.Status) []task.Status { return v }
	cases := []struct {
		name string
		on   []task.Status
		st   task.Status
		want bool
	}{
		{"member", S(task.StatusFailure), task.StatusFailure, true},
		{"not member", S(task.StatusFailure), task.StatusSuccess, false},
		{"none wins", S(task.StatusNone, task.StatusFailure), task.StatusFailure, false},
		{"warnings demoted to success", S(task.StatusSuccess), task.StatusSuccessWithWarnings, true},
		{"warnings listed", S(task.StatusSuccessWithWarnings), task.StatusSuccessWithWarnings, true},
		{"warnings not listed", S(task.StatusFailure), task.StatusSuccessWithWarnings, false},
		{"retry", S(task.StatusRetrying), task.StatusRetrying, true},
		{"empty set", S(), task.StatusFailure, false},
	}
	for _, c := range cases {
		if got := ShouldNotify(c.on, c.st); got != c.want {
			t.Fatalf("%s: ShouldNotify(%v,%v)=%v want %v", c.name, c.on, c.st, got, c.want)
		}
	}
}
