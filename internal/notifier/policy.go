package notifier

import "cronboss/internal/task"

// ShouldNotify applies a notify-on set to an outcome.
func ShouldNotify(notifyOn []task.Status, st task.Status) bool {
	if contains(notifyOn, task.StatusNone) {
		return false
	}
	if st == task.StatusSuccessWithWarnings &&
		contains(notifyOn, task.StatusSuccess) &&
		!contains(notifyOn, task.StatusSuccessWithWarnings) {
		st = task.StatusSuccess
	}
	return contains(notifyOn, st)
}

func contains(set []task.Status, st task.Status) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}
