package imdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
)

var (
	ErrDisabled     = errors.New("imdb source is disabled")
	ErrUnknownChart = errors.New("unknown imdb chart")
	ErrAPIError     = errors.New("imdb request failed")
)

// chartPaths maps chart names to their site paths.
var chartPaths = map[string]string{
	"top":        "/chart/top/",
	"boxoffice":  "/chart/boxoffice/",
	"moviemeter": "/chart/moviemeter/",
	"tvmeter":    "/chart/tvmeter/",
}

var (
	titleIDPattern   = regexp.MustCompile(`/title/(tt\d{7,9})`)
	quotedIDPattern  = regexp.MustCompile(`"(tt\d{7,9})"`)
	listIDPattern    = regexp.MustCompile(`^ls\d+$`)
	listURLPattern   = regexp.MustCompile(`/list/(ls\d+)`)
)

// Client scrapes IMDb chart and list pages for title ids. IMDb has no
// public API, so this parses the rendered HTML.
type Client struct {
	httpClient *http.Client
	config     config.IMDBConfig
	logger     zerolog.Logger
}

// NewClient creates a new IMDb client.
func NewClient(cfg config.IMDBConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "imdb").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "imdb"
}

// IsConfigured reports whether scraping is enabled.
func (c *Client) IsConfigured() bool {
	return c.config.Enabled
}

// GetChart returns up to limit title ids from a named chart
// (top, boxoffice, moviemeter, tvmeter), in chart order.
func (c *Client) GetChart(ctx context.Context, chart string, limit int) ([]string, error) {
	path, ok := chartPaths[strings.ToLower(strings.TrimSpace(chart))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChart, chart)
	}
	return c.fetchIDs(ctx, path, limit)
}

// GetList returns up to limit title ids from a custom list. The list may
// be given as a bare ls id or a full IMDb list URL.
func (c *Client) GetList(ctx context.Context, list string, limit int) ([]string, error) {
	id := extractListID(list)
	if id == "" {
		return nil, fmt.Errorf("%w: invalid list id %q", ErrAPIError, list)
	}
	return c.fetchIDs(ctx, "/list/"+id+"/", limit)
}

func (c *Client) fetchIDs(ctx context.Context, path string, limit int) ([]string, error) {
	if !c.IsConfigured() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 250
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.config.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Plain-client requests get a challenge page, so look like a browser.
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:145.0) Gecko/20100101 Firefox/145.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("HTTP request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn().Str("path", path).Msg("IMDb page not found")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ids := ExtractTitleIDs(string(body), limit)
	if resp.StatusCode == http.StatusAccepted && len(ids) == 0 {
		c.logger.Warn().Str("path", path).Msg("received HTTP 202 without title ids, likely a challenge response")
	}
	c.logger.Info().Str("path", path).Int("ids", len(ids)).Msg("fetched IMDb title ids")
	return ids, nil
}

// ExtractTitleIDs pulls unique tt ids out of an IMDb page in first-seen
// order. Modern pages carry the full data set in the __NEXT_DATA__ script
// tag; when that payload is missing or unparseable the visible title links
// are scanned instead.
func ExtractTitleIDs(html string, limit int) []string {
	if ids := extractFromNextData(html, limit); len(ids) > 0 {
		return ids
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, match := range titleIDPattern.FindAllStringSubmatch(html, -1) {
		id := match[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) >= limit {
			break
		}
	}
	return ids
}

// extractFromNextData pulls ids out of the __NEXT_DATA__ JSON payload.
// The payload is scanned textually rather than decoded, so first-seen
// document order survives (Go maps would shuffle it).
func extractFromNextData(html string, limit int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, match := range quotedIDPattern.FindAllStringSubmatch(raw, -1) {
		id := match[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) >= limit {
			break
		}
	}
	return ids
}

func extractListID(value string) string {
	raw := strings.TrimSpace(value)
	if listIDPattern.MatchString(raw) {
		return raw
	}
	if match := listURLPattern.FindStringSubmatch(raw); match != nil {
		return match[1]
	}
	return ""
}
