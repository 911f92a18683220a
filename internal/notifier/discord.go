package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// discordContentLimit is Discord's message size limit in characters.
const discordContentLimit = 2000

type DiscordConfig struct {
	WebhookURL string
	Username   string
	// RatePerSec caps webhook calls (default 1, burst 5).
	RatePerSec float64
	Timeout    time.Duration
}

// Discord posts messages to a webhook.
type Discord struct {
	url      string
	username string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	url := strings.TrimSpace(cfg.WebhookURL)
	if url == "" {
		return nil, errors.New("discord webhook url is empty")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Discord{
		url:      url,
		username: cfg.Username,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 5),
	}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, ev Event) error {
	return d.post(ctx, MarkdownText(ev))
}

func (d *Discord) SendSummary(ctx context.Context, s Summary) error {
	return d.post(ctx, SummaryMarkdown(s))
}

type webhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func (d *Discord) post(ctx context.Context, content string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if r := []rune(content); len(r) > discordContentLimit {
		content = string(r[:discordContentLimit-3]) + "..."
	}
	body, err := json.Marshal(webhookPayload{Content: content, Username: d.username})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("discord rate limited (retry-after %q): %s", resp.Header.Get("Retry-After"), strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("discord responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
