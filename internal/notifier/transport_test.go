package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cronboss/internal/task"
)

func TestDiscord_PostsContent(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		got  []webhookPayload
		code = http.StatusNoContent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, p)
		c := code
		mu.Unlock()
		w.WriteHeader(c)
	}))
	defer srv.Close()

	d, err := NewDiscord(DiscordConfig{WebhookURL: srv.URL, RatePerSec: 100})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	ev := Event{
		Script:   "/srv/jobs/backup.sh",
		Status:   task.StatusFailure,
		Duration: 1500 * time.Millisecond,
		ExitCode: 2,
		Stderr:   "disk full",
	}
	if err := d.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	code = http.StatusBadRequest
	mu.Unlock()
	if err := d.SendSummary(context.Background(), Summary{Success: 3}); err == nil {
		t.Fatalf("SendSummary accepted a 400")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("requests=%d want 2", len(got))
	}
	c := got[0].Content
	for _, want := range []string{"backup.sh", "FAILURE", "1.50s", "exit 2", "disk full"} {
		if !strings.Contains(c, want) {
			t.Fatalf("content %q missing %q", c, want)
		}
	}
	if !strings.Contains(got[1].Content, "3 success") {
		t.Fatalf("summary content %q", got[1].Content)
	}
}

func TestNewDiscord_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewDiscord(DiscordConfig{}); err == nil {
		t.Fatalf("empty webhook accepted")
	}
}

func TestTelegram_SendsHTML(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		_ = json.Unmarshal(b, &body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":1760000000,"chat":{"id":-100123,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: -100123, APIURL: srv.URL, RatePerSec: 100})
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	ev := Event{Script: "/srv/a<b>.sh", Status: task.StatusSuccess, Duration: time.Second}
	if err := tg.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path=%q", path)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "<b>a&lt;b&gt;.sh</b>") {
		t.Fatalf("text=%q", text)
	}
	if body["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode=%v", body["parse_mode"])
	}
}

func TestMarkdownText_Variants(t *testing.T) {
	t.Parallel()

	ev := Event{Script: "/a/job.py", Status: task.StatusRetrying, Attempt: 1, Retries: 2, ExitCode: 1, Stderr: strings.Repeat("e", 900)}
	s := MarkdownText(ev)
	if !strings.Contains(s, "RETRY 1/2") || !strings.Contains(s, "...") {
		t.Fatalf("retry text=%q", s)
	}
	ok := MarkdownText(Event{Script: "/a/job.py", Status: task.StatusSuccess, Stderr: "ignored"})
	if strings.Contains(ok, "ignored") {
		t.Fatalf("success text shows stderr: %q", ok)
	}
}
