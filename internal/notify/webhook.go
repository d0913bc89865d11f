package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackSink posts alert messages to a Slack incoming webhook.
type SlackSink struct {
	url    string
	client *http.Client
}

// Send posts the message as Slack webhook JSON.
func (s *SlackSink) Send(ctx context.Context, message, title, level string) error {
	body, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s %s*\n%s", levelLabel(level), title, message),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return post(ctx, s.client, s.url, body)
}

// DiscordSink posts alert messages to a Discord webhook.
type DiscordSink struct {
	url    string
	client *http.Client
}

// Send posts the message as a Discord webhook payload.
func (s *DiscordSink) Send(ctx context.Context, message, title, level string) error {
	body, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("**%s %s**\n%s", levelLabel(level), title, message),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return post(ctx, s.client, s.url, body)
}

// WebhookSink posts the raw notification as JSON to an arbitrary endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// Send posts a generic JSON document with title, message, level, and time.
func (s *WebhookSink) Send(ctx context.Context, message, title, level string) error {
	body, err := json.Marshal(map[string]string{
		"title":   title,
		"message": message,
		"level":   level,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return post(ctx, s.client, s.url, body)
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
