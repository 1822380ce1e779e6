// Package notify sends operator alerts through the Telegram bot API. The
// notifier is optional: without a bot token and chat IDs it becomes a silent
// no-op so callers never need to branch on configuration.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	sendTimeout    = 10 * time.Second

	// DefaultDedupeTTL is how long a repeated message text stays suppressed.
	// A persistent sync failure alerts roughly twice an hour instead of
	// every cycle.
	DefaultDedupeTTL = 30 * time.Minute
)

// Config carries the Telegram connection settings.
type Config struct {
	BaseURL   string
	BotToken  string
	ChatIDs   []string
	DedupeTTL time.Duration
}

// Telegram fans one message out to the configured chats.
type Telegram struct {
	http    *resty.Client
	token   string
	chatIDs []string
	logger  *slog.Logger
	seen    *messageCache
}

// NewTelegram builds a notifier. An empty token or chat list yields a
// disabled notifier whose Send always succeeds without network traffic.
func NewTelegram(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}

	chatIDs := make([]string, 0, len(cfg.ChatIDs))
	for _, id := range cfg.ChatIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		chatIDs = append(chatIDs, id)
	}

	if cfg.BotToken == "" || len(chatIDs) == 0 {
		return &Telegram{logger: logger}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(sendTimeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	httpClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		if r == nil {
			return false
		}
		return r.StatusCode() >= 500
	})

	return &Telegram{
		http:    httpClient,
		token:   cfg.BotToken,
		chatIDs: chatIDs,
		logger:  logger,
		seen:    newMessageCache(ttl, 0, nil),
	}
}

// Enabled reports whether the notifier will actually send anything.
func (t *Telegram) Enabled() bool {
	return t != nil && t.http != nil
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to every configured chat. A text already sent within
// the dedupe TTL is dropped silently. Delivery failures are joined so one
// dead chat does not hide the others.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if !t.Enabled() {
		return nil
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil
	}
	if t.seen.Seen(text) {
		t.logger.Debug("notification suppressed as duplicate", "chars", len(text))
		return nil
	}

	var errs []error
	delivered := false
	for _, chatID := range t.chatIDs {
		if err := t.sendOne(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("notify: chat %s: %w", chatID, err))
			continue
		}
		delivered = true
	}

	if delivered {
		t.seen.Record(text)
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendOne(ctx context.Context, chatID, text string) error {
	var result sendMessageResponse
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": chatID, "text": text}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		description := result.Description
		if description == "" {
			description = resp.Status()
		}
		return fmt.Errorf("telegram API: %s", description)
	}
	return nil
}
