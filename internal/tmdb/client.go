package tmdb

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
	"golang.org/x/time/rate"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// pageSize is TMDB's fixed results-per-page.
const pageSize = 20

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15
	}
	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 20
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.With().Str("component", "tmdb").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Test verifies connectivity by making a configuration request.
func (c *Client) Test(ctx context.Context) error {
	if !c.IsConfigured() {
		return ErrAPIKeyMissing
	}
	var result struct {
		Images struct {
			BaseURL string `json:"base_url"`
		} `json:"images"`
	}
	return c.doRequest(ctx, "/configuration", url.Values{}, &result)
}

// TrendingMovies fetches trending movies for the given window ("day" or "week").
func (c *Client) TrendingMovies(ctx context.Context, window string, limit int) ([]media.Candidate, error) {
	return c.pagedMovies(ctx, "/trending/movie/"+window, url.Values{}, limit)
}

// TrendingSeries fetches trending series for the given window ("day" or "week").
func (c *Client) TrendingSeries(ctx context.Context, window string, limit int) ([]media.Candidate, error) {
	return c.pagedSeries(ctx, "/trending/tv/"+window, url.Values{}, limit)
}

// PopularMovies fetches the popular movies chart.
func (c *Client) PopularMovies(ctx context.Context, limit int) ([]media.Candidate, error) {
	return c.pagedMovies(ctx, "/movie/popular", url.Values{}, limit)
}

// PopularSeries fetches the popular series chart.
func (c *Client) PopularSeries(ctx context.Context, limit int) ([]media.Candidate, error) {
	return c.pagedSeries(ctx, "/tv/popular", url.Values{}, limit)
}

// DiscoverMovies queries /discover/movie with the given parameters.
func (c *Client) DiscoverMovies(ctx context.Context, p DiscoverParams) ([]media.Candidate, error) {
	params := c.discoverValues(p)
	if p.ReleaseDateGTE != "" {
		params.Set("primary_release_date.gte", p.ReleaseDateGTE)
	}
	if p.ReleaseDateLTE != "" {
		params.Set("primary_release_date.lte", p.ReleaseDateLTE)
	}
	if p.WithReleaseType != "" {
		params.Set("with_release_type", p.WithReleaseType)
	}
	return c.pagedMovies(ctx, "/discover/movie", params, p.Limit)
}

// DiscoverSeries queries /discover/tv with the given parameters.
func (c *Client) DiscoverSeries(ctx context.Context, p DiscoverParams) ([]media.Candidate, error) {
	params := c.discoverValues(p)
	if p.ReleaseDateGTE != "" {
		params.Set("first_air_date.gte", p.ReleaseDateGTE)
	}
	if p.ReleaseDateLTE != "" {
		params.Set("first_air_date.lte", p.ReleaseDateLTE)
	}
	if p.WithOriginCountry != "" {
		params.Set("with_origin_country", p.WithOriginCountry)
	}
	if p.WithStatus != "" {
		params.Set("with_status", p.WithStatus)
	}
	return c.pagedSeries(ctx, "/discover/tv", params, p.Limit)
}

// GetList fetches the members of a TMDB list, keeping only the given kind.
func (c *Client) GetList(ctx context.Context, listID int, kind media.Kind) ([]media.Candidate, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var candidates []media.Candidate
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("language", c.config.Language)
		params.Set("page", strconv.Itoa(page))

		var response listResponse
		if err := c.doRequest(ctx, fmt.Sprintf("/list/%d", listID), params, &response); err != nil {
			return nil, err
		}

		for _, item := range response.Items {
			candidate := item.toCandidate()
			if candidate.Kind != kind {
				continue
			}
			candidates = append(candidates, candidate)
		}

		if page >= response.TotalPages || len(response.Items) == 0 {
			break
		}
	}

	c.logger.Debug().Int("listID", listID).Int("items", len(candidates)).Msg("fetched TMDB list")
	return candidates, nil
}

// FindByIMDBID resolves an IMDb id to a TMDB candidate of the given kind.
// A missing title is normal and returns (nil, nil); only transport and API
// failures return an error.
func (c *Client) FindByIMDBID(ctx context.Context, imdbID string, kind media.Kind) (*media.Candidate, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	params := url.Values{}
	params.Set("external_source", "imdb_id")
	params.Set("language", c.config.Language)

	var response findResponse
	if err := c.doRequest(ctx, "/find/"+url.PathEscape(imdbID), params, &response); err != nil {
		return nil, err
	}

	if kind == media.KindMovie && len(response.MovieResults) > 0 {
		candidate := response.MovieResults[0].toCandidate()
		candidate.ImdbID = &imdbID
		return &candidate, nil
	}
	if kind == media.KindSeries && len(response.TVResults) > 0 {
		candidate := response.TVResults[0].toCandidate()
		candidate.ImdbID = &imdbID
		return &candidate, nil
	}
	return nil, nil
}

func (c *Client) discoverValues(p DiscoverParams) url.Values {
	params := url.Values{}
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "popularity.desc"
	}
	params.Set("sort_by", sortBy)
	if len(p.WithGenres) > 0 {
		params.Set("with_genres", joinInts(p.WithGenres, ","))
	}
	if len(p.WithoutGenres) > 0 {
		params.Set("without_genres", joinInts(p.WithoutGenres, ","))
	}
	if p.VoteAverageGTE > 0 {
		params.Set("vote_average.gte", formatFloat(p.VoteAverageGTE))
	}
	if p.VoteAverageLTE > 0 {
		params.Set("vote_average.lte", formatFloat(p.VoteAverageLTE))
	}
	if p.VoteCountGTE > 0 {
		params.Set("vote_count.gte", strconv.Itoa(p.VoteCountGTE))
	}
	if p.VoteCountLTE > 0 {
		params.Set("vote_count.lte", strconv.Itoa(p.VoteCountLTE))
	}
	if len(p.WithWatchProviders) > 0 {
		// OR semantics across providers
		params.Set("with_watch_providers", joinInts(p.WithWatchProviders, "|"))
		region := p.WatchRegion
		if region == "" {
			region = c.config.Region
		}
		params.Set("watch_region", region)
		params.Set("with_watch_monetization_types", "flatrate")
	}
	if p.WithOrigLanguage != "" {
		params.Set("with_original_language", p.WithOrigLanguage)
	}
	return params
}

// pagedMovies fetches limit movies from a paged endpoint, preserving the
// endpoint's native ordering.
func (c *Client) pagedMovies(ctx context.Context, path string, params url.Values, limit int) ([]media.Candidate, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}
	if limit <= 0 {
		limit = pageSize
	}

	var candidates []media.Candidate
	for page := 1; len(candidates) < limit; page++ {
		pageParams := clone(params)
		pageParams.Set("language", c.config.Language)
		pageParams.Set("page", strconv.Itoa(page))

		var response pagedMovieResponse
		if err := c.doRequest(ctx, path, pageParams, &response); err != nil {
			return nil, err
		}
		if len(response.Results) == 0 {
			break
		}

		for _, result := range response.Results {
			candidates = append(candidates, result.toCandidate())
			if len(candidates) >= limit {
				break
			}
		}
		if page >= response.TotalPages {
			break
		}
	}

	c.logger.Debug().Str("path", path).Int("items", len(candidates)).Msg("fetched movies")
	return candidates, nil
}

// pagedSeries fetches limit series from a paged endpoint.
func (c *Client) pagedSeries(ctx context.Context, path string, params url.Values, limit int) ([]media.Candidate, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}
	if limit <= 0 {
		limit = pageSize
	}

	var candidates []media.Candidate
	for page := 1; len(candidates) < limit; page++ {
		pageParams := clone(params)
		pageParams.Set("language", c.config.Language)
		pageParams.Set("page", strconv.Itoa(page))

		var response pagedTVResponse
		if err := c.doRequest(ctx, path, pageParams, &response); err != nil {
			return nil, err
		}
		if len(response.Results) == 0 {
			break
		}

		for _, result := range response.Results {
			candidates = append(candidates, result.toCandidate())
			if len(candidates) >= limit {
				break
			}
		}
		if page >= response.TotalPages {
			break
		}
	}

	c.logger.Debug().Str("path", path).Int("items", len(candidates)).Msg("fetched series")
	return candidates, nil
}

// doRequest performs a rate-limited HTTP GET request and decodes the JSON
// response.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("api_key", c.config.APIKey)
	reqURL := strings.TrimRight(c.config.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func clone(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

func joinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
