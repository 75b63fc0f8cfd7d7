package trakt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

var (
	ErrNotConfigured = errors.New("trakt client id or access token is not configured")
	ErrAPIError      = errors.New("trakt API error")
	ErrRateLimited   = errors.New("trakt API rate limited")
)

// Client is a Trakt API client. It expects a pre-obtained OAuth access
// token; the device-code flow lives outside this engine.
type Client struct {
	httpClient *http.Client
	config     config.TraktConfig
	logger     zerolog.Logger
}

// NewClient creates a new Trakt client.
func NewClient(cfg config.TraktConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "trakt").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "trakt"
}

// IsConfigured returns true if the client id and token are set.
func (c *Client) IsConfigured() bool {
	return c.config.ClientID != "" && c.config.AccessToken != ""
}

// TrendingMovies fetches the movies being watched right now.
func (c *Client) TrendingMovies(ctx context.Context, limit int) ([]media.Candidate, error) {
	var entries []trendingEntry
	if err := c.get(ctx, "/movies/trending", limit, &entries); err != nil {
		return nil, err
	}
	return wrappedToCandidates(entries, media.KindMovie), nil
}

// TrendingSeries fetches the shows being watched right now.
func (c *Client) TrendingSeries(ctx context.Context, limit int) ([]media.Candidate, error) {
	var entries []trendingEntry
	if err := c.get(ctx, "/shows/trending", limit, &entries); err != nil {
		return nil, err
	}
	return wrappedToCandidates(entries, media.KindSeries), nil
}

// PopularMovies fetches the all-time popular movies chart.
func (c *Client) PopularMovies(ctx context.Context, limit int) ([]media.Candidate, error) {
	var items []mediaObject
	if err := c.get(ctx, "/movies/popular", limit, &items); err != nil {
		return nil, err
	}
	return objectsToCandidates(items, media.KindMovie), nil
}

// PopularSeries fetches the all-time popular shows chart.
func (c *Client) PopularSeries(ctx context.Context, limit int) ([]media.Candidate, error) {
	var items []mediaObject
	if err := c.get(ctx, "/shows/popular", limit, &items); err != nil {
		return nil, err
	}
	return objectsToCandidates(items, media.KindSeries), nil
}

// WatchedMovies fetches the most-watched movies for a period
// ("daily", "weekly", "monthly", "yearly", "all").
func (c *Client) WatchedMovies(ctx context.Context, period string, limit int) ([]media.Candidate, error) {
	var entries []trendingEntry
	if err := c.get(ctx, "/movies/watched/"+url.PathEscape(normalizePeriod(period)), limit, &entries); err != nil {
		return nil, err
	}
	return wrappedToCandidates(entries, media.KindMovie), nil
}

// WatchedSeries fetches the most-watched shows for a period.
func (c *Client) WatchedSeries(ctx context.Context, period string, limit int) ([]media.Candidate, error) {
	var entries []trendingEntry
	if err := c.get(ctx, "/shows/watched/"+url.PathEscape(normalizePeriod(period)), limit, &entries); err != nil {
		return nil, err
	}
	return wrappedToCandidates(entries, media.KindSeries), nil
}

// trendingEntry wraps a movie or show object in chart responses.
type trendingEntry struct {
	Watchers     int          `json:"watchers"`
	WatcherCount int          `json:"watcher_count"`
	Movie        *mediaObject `json:"movie"`
	Show         *mediaObject `json:"show"`
}

// mediaObject is Trakt's movie/show shape.
type mediaObject struct {
	Title    string   `json:"title"`
	Year     *int     `json:"year"`
	Overview string   `json:"overview"`
	Genres   []string `json:"genres"`
	Language string   `json:"language"`
	Country  string   `json:"country"`
	Rating   float64  `json:"rating"`
	Votes    int      `json:"votes"`
	IDs      struct {
		Trakt int     `json:"trakt"`
		Slug  string  `json:"slug"`
		Imdb  *string `json:"imdb"`
		Tmdb  *int    `json:"tmdb"`
		Tvdb  *int    `json:"tvdb"`
	} `json:"ids"`
}

func (m mediaObject) toCandidate(kind media.Kind) media.Candidate {
	c := media.Candidate{
		Title:            m.Title,
		Year:             m.Year,
		Kind:             kind,
		TmdbID:           m.IDs.Tmdb,
		ImdbID:           m.IDs.Imdb,
		TvdbID:           m.IDs.Tvdb,
		Overview:         m.Overview,
		OriginalLanguage: m.Language,
		OriginCountry:    strings.ToUpper(m.Country),
	}
	for _, g := range m.Genres {
		c.Genres = append(c.Genres, media.GenreName(g))
	}
	if m.Rating > 0 {
		rating := m.Rating
		c.VoteAverage = &rating
	}
	if m.Votes > 0 {
		votes := m.Votes
		c.VoteCount = &votes
	}
	return c
}

func wrappedToCandidates(entries []trendingEntry, kind media.Kind) []media.Candidate {
	candidates := make([]media.Candidate, 0, len(entries))
	for _, e := range entries {
		obj := e.Movie
		if kind == media.KindSeries {
			obj = e.Show
		}
		if obj == nil {
			continue
		}
		candidates = append(candidates, obj.toCandidate(kind))
	}
	return candidates
}

func objectsToCandidates(items []mediaObject, kind media.Kind) []media.Candidate {
	candidates := make([]media.Candidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, item.toCandidate(kind))
	}
	return candidates
}

func normalizePeriod(period string) string {
	switch strings.ToLower(period) {
	case "daily", "weekly", "monthly", "yearly", "all":
		return strings.ToLower(period)
	default:
		return "weekly"
	}
}

// get performs an authenticated GET with the extended=full flag so genre
// and language fields are populated.
func (c *Client) get(ctx context.Context, path string, limit int, result any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("extended", "full")
	params.Set("limit", strconv.Itoa(limit))
	reqURL := strings.TrimRight(c.config.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", "2")
	req.Header.Set("trakt-api-key", c.config.ClientID)
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return ErrRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: authentication failed (status %d)", ErrAPIError, resp.StatusCode)
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
