package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers relay reports and alerts through the Telegram Bot API.
type TelegramNotifier struct {
	BotToken  string
	ChatID    string
	APIBase   string
	RetryBase time.Duration
	Client    *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken:  botToken,
		ChatID:    chatID,
		APIBase:   DefaultAPIBase,
		RetryBase: time.Second,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

// envelope wraps every Bot API answer.
type envelope[T any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

// APIError is a Bot API call that answered with a failure.
type APIError struct {
	Method      string
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.APIBase, "/"), t.BotToken, name)
}

// call posts in to the named method and decodes the result.
func call[T any](ctx context.Context, t *TelegramNotifier, client *http.Client, name string, in any) (T, error) {
	var zero T
	body, err := json.Marshal(in)
	if err != nil {
		return zero, fmt.Errorf("telegram %s: marshal: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.method(name), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("telegram %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("telegram %s: %w", name, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("telegram %s: read: %w", name, err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK || (decodeErr == nil && !env.OK) {
		desc := env.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return zero, &APIError{Method: name, Status: resp.StatusCode, Description: desc}
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("telegram %s: decode: %w", name, decodeErr)
	}
	return env.Result, nil
}

// Send posts text to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	_, err := call[json.RawMessage](ctx, t, t.Client, "sendMessage", sendMessage{
		ChatID:    t.ChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// SendWithRetry retries Send with a doubling delay from RetryBase.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	base := t.RetryBase
	if base <= 0 {
		base = time.Second
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if lastErr = t.Send(ctx, text); lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		delay := base << uint(attempt)
		log.Printf("[WARN] telegram delivery %d/%d failed: %v (next in %v)", attempt+1, maxRetries+1, lastErr, delay)
		if !wait(ctx, delay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
