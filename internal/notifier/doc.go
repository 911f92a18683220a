// Package notifier decides which task outcomes are announced and delivers
// them to the configured transports.
//
// # Policy
//
// Each task carries a notify-on set; when it has none the process-wide
// default applies. "none" silences a task. A success_with_warnings outcome is
// announced as a success when only "success" is listed.
//
// # Transports
//
// A Notifier is one delivery channel (Discord webhook, Telegram chat, the
// log). The Manager calls every selected transport in turn; a transport that
// fails or panics is logged and never affects the others or the caller.
// Sends are retried with jittered exponential backoff and bounded by a
// per-send timeout.
package notifier
