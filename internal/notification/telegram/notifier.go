// Package telegram sends the trending digest through the Telegram bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

const apiBaseURL = "https://api.telegram.org"

// digestSize caps the number of titles per trending message.
const digestSize = 10

// Notifier posts messages to a fixed chat via a bot token.
type Notifier struct {
	config     config.TelegramConfig
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Telegram notifier.
func New(cfg config.TelegramConfig, httpClient *http.Client, logger zerolog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{
		config:     cfg,
		baseURL:    apiBaseURL,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "telegram").Logger(),
	}
}

// IsConfigured reports whether the bot token and chat id are set.
func (n *Notifier) IsConfigured() bool {
	return n.config.IsConfigured()
}

// SendTrendingDigest posts the top candidates of a trending collection as
// a numbered list.
func (n *Notifier) SendTrendingDigest(ctx context.Context, collectionName string, items []media.Candidate) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > digestSize {
		items = items[:digestSize]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", escape(collectionName))
	for i, item := range items {
		line := escape(item.Title)
		if item.Year != nil {
			line = fmt.Sprintf("%s (%d)", line, *item.Year)
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	return n.sendMessage(ctx, b.String())
}

// Test sends a test message to the configured chat.
func (n *Notifier) Test(ctx context.Context) error {
	return n.sendMessage(ctx, "Jellyfin collection sync bot is working.")
}

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":    n.config.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// escape protects HTML parse mode against titles containing markup.
func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
