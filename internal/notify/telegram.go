package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"smartaqua.dev/smartaqua/internal/engine"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// TelegramConfig holds the configuration for the TelegramSender.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// BaseURL overrides the Telegram API endpoint. Used in tests.
	BaseURL string
}

// NewTelegramSender creates a new TelegramSender instance.
func NewTelegramSender(cfg *TelegramConfig) (*TelegramSender, error) {
	if cfg == nil {
		return nil, errors.New("telegram config cannot be nil")
	}

	if cfg.BotToken == "" {
		return nil, errors.New("bot token cannot be empty")
	}

	if cfg.ChatID == "" {
		return nil, errors.New("chat id cannot be empty")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramAPIBase
	}

	return &TelegramSender{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name identifies the sender in logs and metrics.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// Send posts the notification as a chat message.
func (t *TelegramSender) Send(ctx context.Context, n engine.Notification) error {
	text := fmt.Sprintf("🚨 SmartAqua Alert\n\nDevice: %s\nType: %s\nMessage: %s\nSeverity: %s\nTime: %s",
		n.DeviceID,
		n.AlertType,
		n.Message,
		n.Severity,
		n.Timestamp.Format(time.RFC3339),
	)

	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
