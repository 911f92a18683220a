package notifier

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"cronboss/internal/task"
)

// stderrExcerpt bounds the stderr shown in a message.
const stderrExcerpt = 800

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func statusIcon(st task.Status) string {
	switch st {
	case task.StatusSuccess:
		return "✅"
	case task.StatusSuccessWithWarnings:
		return "⚠️"
	case task.StatusFailure:
		return "❌"
	case task.StatusRetrying:
		return "🔁"
	default:
		return "⚡"
	}
}

func statusLabel(ev Event) string {
	switch ev.Status {
	case task.StatusSuccess:
		return "SUCCESS"
	case task.StatusSuccessWithWarnings:
		return "SUCCESS WITH WARNINGS"
	case task.StatusFailure:
		return "FAILURE"
	case task.StatusRetrying:
		return fmt.Sprintf("RETRY %d/%d", ev.Attempt, ev.Retries)
	default:
		return strings.ToUpper(ev.Status.String())
	}
}

func showsStderr(st task.Status) bool {
	return st == task.StatusFailure || st == task.StatusRetrying || st == task.StatusSuccessWithWarnings
}

// MarkdownText renders ev for Discord.
func MarkdownText(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s** → %s in %.2fs", statusIcon(ev.Status), ev.Name(), statusLabel(ev), ev.Duration.Seconds())
	if ev.Status == task.StatusFailure || ev.Status == task.StatusRetrying {
		fmt.Fprintf(&b, " (exit %d)", ev.ExitCode)
	}
	if msg := excerpt(ev.Stderr, stderrExcerpt); msg != "" && showsStderr(ev.Status) {
		b.WriteString("\n```")
		b.WriteString(strings.ReplaceAll(msg, "```", "'''"))
		b.WriteString("```")
	}
	return b.String()
}

// HTMLText renders ev for Telegram's HTML parse mode.
func HTMLText(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> → %s in %.2fs",
		statusIcon(ev.Status), html.EscapeString(ev.Name()), html.EscapeString(statusLabel(ev)), ev.Duration.Seconds())
	if ev.Status == task.StatusFailure || ev.Status == task.StatusRetrying {
		fmt.Fprintf(&b, " (exit <code>%d</code>)", ev.ExitCode)
	}
	if msg := excerpt(ev.Stderr, stderrExcerpt); msg != "" && showsStderr(ev.Status) {
		b.WriteString("\n<pre><code>")
		b.WriteString(html.EscapeString(msg))
		b.WriteString("</code></pre>")
	}
	return b.String()
}

func summaryLines(s Summary) []string {
	return []string{
		fmt.Sprintf("✅ %d success", s.Success),
		fmt.Sprintf("⚠️ %d with warnings", s.SuccessWithWarnings),
		fmt.Sprintf("❌ %d failed", s.Failure),
		fmt.Sprintf("⏱️ Total duration: %.2fs", s.TotalDuration.Seconds()),
	}
}

// SummaryMarkdown renders s for Discord.
func SummaryMarkdown(s Summary) string {
	return "📊 **cronboss summary**\n" + strings.Join(summaryLines(s), "\n")
}

// SummaryHTML renders s for Telegram.
func SummaryHTML(s Summary) string {
	return "📊 <b>cronboss summary</b>\n" + html.EscapeString(strings.Join(summaryLines(s), "\n"))
}
