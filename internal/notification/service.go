// Package notification fans run events out to the configured channels.
// Delivery failures are logged and never fail a run.
package notification

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/media"
	"github.com/alexhritac/jellyfin-collection/internal/notification/discord"
	"github.com/alexhritac/jellyfin-collection/internal/notification/telegram"
	"github.com/alexhritac/jellyfin-collection/internal/report"
)

// trendingMarkers select which collections feed the Telegram digest.
var trendingMarkers = []string{"trending", "tendances"}

// Service dispatches run events to Discord and Telegram. Either channel
// may be unconfigured.
type Service struct {
	discord  *discord.Notifier
	telegram *telegram.Notifier
	logger   zerolog.Logger
}

// NewService wires the notifiers from configuration.
func NewService(cfg *config.Config, httpClient *http.Client, logger zerolog.Logger) *Service {
	return &Service{
		discord:  discord.New(cfg.Discord, httpClient, logger),
		telegram: telegram.New(cfg.Telegram, httpClient, logger),
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// RunStarted announces a run.
func (s *Service) RunStarted(ctx context.Context, r *report.RunReport, libraries int) {
	if !s.discord.IsConfigured() {
		return
	}
	if err := s.discord.OnRunStarted(ctx, r, libraries); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send run-started notification")
	}
}

// RunCompleted posts the final summary.
func (s *Service) RunCompleted(ctx context.Context, r *report.RunReport) {
	if !s.discord.IsConfigured() {
		return
	}
	if err := s.discord.OnRunCompleted(ctx, r); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send run-completed notification")
	}
}

// CollectionFailed reports one collection's error.
func (s *Service) CollectionFailed(ctx context.Context, library, collection string, err error) {
	if !s.discord.IsConfigured() {
		return
	}
	if sendErr := s.discord.OnCollectionError(ctx, library, collection, err); sendErr != nil {
		s.logger.Warn().Err(sendErr).Msg("failed to send collection-error notification")
	}
}

// TrendingDigest sends the Telegram digest when the collection name marks
// it as a trending one.
func (s *Service) TrendingDigest(ctx context.Context, collectionName string, items []media.Candidate) {
	if !s.telegram.IsConfigured() || !IsTrending(collectionName) {
		return
	}
	if err := s.telegram.SendTrendingDigest(ctx, collectionName, items); err != nil {
		s.logger.Warn().Err(err).Str("collection", collectionName).Msg("failed to send trending digest")
	}
}

// IsTrending reports whether a collection name marks a trending digest
// candidate.
func IsTrending(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range trendingMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
