// Package discord sends run notifications to Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/report"
)

// Discord embed colors
const (
	ColorSuccess = 0x2ECC71 // Green
	ColorWarning = 0xF1C40F // Yellow
	ColorDanger  = 0xE74C3C // Red
	ColorInfo    = 0x3498DB // Blue
)

const username = "Jellyfin Collections"

// Notifier posts run events to a primary webhook, and errors to a separate
// error webhook when one is configured.
type Notifier struct {
	config     config.DiscordConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Discord notifier.
func New(cfg config.DiscordConfig, httpClient *http.Client, logger zerolog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("notifier", "discord").Logger(),
	}
}

// IsConfigured reports whether a webhook URL is set.
func (n *Notifier) IsConfigured() bool {
	return n.config.WebhookURL != ""
}

// OnRunStarted announces the start of a synchronization run.
func (n *Notifier) OnRunStarted(ctx context.Context, r *report.RunReport, libraries int) error {
	embed := Embed{
		Title: "Collection Sync Started",
		Fields: []EmbedField{
			{Name: "Run", Value: r.ID, Inline: true},
			{Name: "Trigger", Value: r.Trigger, Inline: true},
			{Name: "Libraries", Value: fmt.Sprintf("%d", libraries), Inline: true},
		},
		Color:     ColorInfo,
		Timestamp: r.StartedAt.UTC().Format(time.RFC3339),
	}
	return n.send(ctx, n.config.WebhookURL, embed)
}

// OnRunCompleted posts the run summary.
func (n *Notifier) OnRunCompleted(ctx context.Context, r *report.RunReport) error {
	collections, added, removed, failed := r.Totals()

	color := ColorSuccess
	title := "Collection Sync Completed"
	if failed > 0 {
		color = ColorWarning
		title = fmt.Sprintf("Collection Sync Completed (%d failed)", failed)
	}

	embed := Embed{
		Title: title,
		Fields: []EmbedField{
			{Name: "Run", Value: r.ID, Inline: true},
			{Name: "Collections", Value: fmt.Sprintf("%d", collections), Inline: true},
			{Name: "Duration", Value: r.Duration.Round(time.Second).String(), Inline: true},
			{Name: "Items Added", Value: fmt.Sprintf("%d", added), Inline: true},
			{Name: "Items Removed", Value: fmt.Sprintf("%d", removed), Inline: true},
		},
		Color:     color,
		Timestamp: r.EndedAt.UTC().Format(time.RFC3339),
	}
	if r.DryRun {
		embed.Description = "Dry run: no changes were applied."
	}
	return n.send(ctx, n.config.WebhookURL, embed)
}

// OnCollectionError reports a single collection's failure to the error
// webhook, falling back to the primary one.
func (n *Notifier) OnCollectionError(ctx context.Context, library, collection string, err error) error {
	url := n.config.ErrorURL
	if url == "" {
		url = n.config.WebhookURL
	}

	embed := Embed{
		Title:       fmt.Sprintf("Collection Failed - %s", collection),
		Description: fmt.Sprintf("```%s```", truncate(err.Error(), 1000)),
		Fields: []EmbedField{
			{Name: "Library", Value: library, Inline: true},
		},
		Color:     ColorDanger,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return n.send(ctx, url, embed)
}

// Test sends a test notification to the primary webhook.
func (n *Notifier) Test(ctx context.Context) error {
	embed := Embed{
		Title:       "Test Notification",
		Description: "Jellyfin collection sync webhook is working.",
		Color:       ColorInfo,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	return n.send(ctx, n.config.WebhookURL, embed)
}

func (n *Notifier) send(ctx context.Context, url string, embed Embed) error {
	if url == "" {
		return nil
	}

	payload := WebhookPayload{
		Username: username,
		Embeds:   []Embed{embed},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

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

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}

// WebhookPayload is the Discord webhook request body
type WebhookPayload struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Embed is a Discord embed object
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a field in an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter is the footer section of an embed
type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
