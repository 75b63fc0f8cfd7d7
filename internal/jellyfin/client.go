package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

var (
	ErrNotConfigured = errors.New("jellyfin URL or API key is not configured")
	ErrNotFound      = errors.New("jellyfin item not found")
	ErrAPIError      = errors.New("jellyfin API error")
)

// collectionBatchSize bounds ids per membership mutation call. Jellyfin
// accepts the ids as a query parameter, so large sets must be chunked.
const collectionBatchSize = 50

// itemFields is the field list requested for library items.
const itemFields = "ProviderIds,Path,Overview,Genres,PremiereDate,DateCreated,CommunityRating,CriticRating,SortName"

// metadataFields must be requested before POSTing an item back, otherwise
// Jellyfin wipes the omitted fields (jellyfin/jellyfin#12646).
const metadataFields = "Overview,SortName,ForcedSortName,DisplayOrder,Tags,Genres,People,Studios,ProviderIds,DateCreated,Taglines"

// Client is a Jellyfin API client.
type Client struct {
	httpClient *http.Client
	config     config.JellyfinConfig
	logger     zerolog.Logger
}

// NewClient creates a new Jellyfin client.
func NewClient(cfg config.JellyfinConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		config: cfg,
		logger: logger.With().Str("component", "jellyfin").Logger(),
	}
}

// IsConfigured returns true if the server URL and API key are set.
func (c *Client) IsConfigured() bool {
	return c.config.URL != "" && c.config.APIKey != ""
}

// Test verifies connectivity by requesting the public system info endpoint.
func (c *Client) Test(ctx context.Context) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.get(ctx, "/System/Info", nil, &info); err != nil {
		return err
	}
	c.logger.Debug().Str("server", info.ServerName).Str("version", info.Version).Msg("Jellyfin reachable")
	return nil
}

// GetLibraries returns all virtual folders (libraries).
func (c *Client) GetLibraries(ctx context.Context) ([]Library, error) {
	var libraries []Library
	if err := c.get(ctx, "/Library/VirtualFolders", nil, &libraries); err != nil {
		return nil, err
	}
	return libraries, nil
}

// GetLibraryItemsPage returns one page of items from a library. Callers
// paginate with startIndex until a short page is returned.
func (c *Client) GetLibraryItemsPage(ctx context.Context, libraryID string, kind media.Kind, startIndex, limit int) ([]media.LibraryItem, error) {
	params := url.Values{}
	params.Set("ParentId", libraryID)
	params.Set("Recursive", "true")
	params.Set("Fields", itemFields)
	params.Set("Limit", fmt.Sprintf("%d", limit))
	params.Set("StartIndex", fmt.Sprintf("%d", startIndex))
	if t := includeItemTypes(kind); t != "" {
		params.Set("IncludeItemTypes", t)
	}

	var response itemsResponse
	if err := c.get(ctx, "/Items", params, &response); err != nil {
		return nil, err
	}

	items := make([]media.LibraryItem, 0, len(response.Items))
	for _, item := range response.Items {
		items = append(items, toLibraryItem(item, libraryID))
	}
	return items, nil
}

// SearchItems searches items across all libraries by title.
func (c *Client) SearchItems(ctx context.Context, query string, kind media.Kind, limit int) ([]media.LibraryItem, error) {
	params := url.Values{}
	params.Set("searchTerm", query)
	params.Set("Recursive", "true")
	params.Set("Fields", itemFields)
	params.Set("Limit", fmt.Sprintf("%d", limit))
	if t := includeItemTypes(kind); t != "" {
		params.Set("IncludeItemTypes", t)
	}

	var response itemsResponse
	if err := c.get(ctx, "/Items", params, &response); err != nil {
		return nil, err
	}

	items := make([]media.LibraryItem, 0, len(response.Items))
	for _, item := range response.Items {
		items = append(items, toLibraryItem(item, ""))
	}
	return items, nil
}

// GetCollections returns all BoxSet collections with their member counts.
func (c *Client) GetCollections(ctx context.Context) ([]Collection, error) {
	params := url.Values{}
	params.Set("IncludeItemTypes", "BoxSet")
	params.Set("Recursive", "true")
	params.Set("Fields", "ChildCount")

	var response struct {
		Items []Collection `json:"Items"`
	}
	if err := c.get(ctx, "/Items", params, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// GetCollectionItems returns the member item ids of a collection.
func (c *Client) GetCollectionItems(ctx context.Context, collectionID string) ([]string, error) {
	params := url.Values{}
	params.Set("ParentId", collectionID)
	params.Set("Recursive", "true")

	var response itemsResponse
	if err := c.get(ctx, "/Items", params, &response); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// CreateCollection creates a new empty collection and returns its id.
func (c *Client) CreateCollection(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("Name", name)

	var response createCollectionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/Collections", params, nil, &response); err != nil {
		return "", err
	}

	c.logger.Info().Str("name", name).Str("id", response.ID).Msg("created collection")
	return response.ID, nil
}

// AddToCollection adds items to a collection in batches. Any failed batch
// aborts the whole operation with an error.
func (c *Client) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	return c.mutateMembers(ctx, http.MethodPost, collectionID, itemIDs, "add")
}

// RemoveFromCollection removes items from a collection in batches. Any
// failed batch aborts the whole operation with an error.
func (c *Client) RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	return c.mutateMembers(ctx, http.MethodDelete, collectionID, itemIDs, "remove")
}

func (c *Client) mutateMembers(ctx context.Context, method, collectionID string, itemIDs []string, verb string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	for i := 0; i < len(itemIDs); i += collectionBatchSize {
		end := i + collectionBatchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		batch := itemIDs[i:end]

		params := url.Values{}
		params.Set("Ids", strings.Join(batch, ","))

		if err := c.doRequest(ctx, method, "/Collections/"+collectionID+"/Items", params, nil, nil); err != nil {
			return fmt.Errorf("failed to %s collection members (batch %d): %w", verb, i/collectionBatchSize+1, err)
		}
	}

	c.logger.Debug().
		Str("collectionID", collectionID).
		Str("op", verb).
		Int("items", len(itemIDs)).
		Msg("collection membership updated")
	return nil
}

// UpdateCollectionMetadata updates a collection's overview, sort name and
// display order. Jellyfin's item update endpoint replaces the whole item,
// so the current item is fetched first and mutated in place.
func (c *Client) UpdateCollectionMetadata(ctx context.Context, collectionID string, meta CollectionMetadata) error {
	params := url.Values{}
	params.Set("Ids", collectionID)
	params.Set("Fields", metadataFields)

	var response struct {
		Items []map[string]any `json:"Items"`
	}
	if err := c.get(ctx, "/Items", params, &response); err != nil {
		return err
	}
	if len(response.Items) == 0 {
		return fmt.Errorf("%w: collection %s", ErrNotFound, collectionID)
	}

	item := response.Items[0]
	if meta.Overview != "" {
		item["Overview"] = meta.Overview
	}
	if meta.SortName != "" {
		// ForcedSortName overrides Jellyfin's auto-generated SortName.
		item["ForcedSortName"] = meta.SortName
	}
	if meta.DisplayOrder != "" {
		item["DisplayOrder"] = meta.DisplayOrder
	}

	if err := c.doRequest(ctx, http.MethodPost, "/Items/"+collectionID, nil, item, nil); err != nil {
		return err
	}

	c.logger.Debug().Str("collectionID", collectionID).Msg("collection metadata updated")
	return nil
}

// get performs an authenticated GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	return c.doRequest(ctx, http.MethodGet, path, params, nil, result)
}

// doRequest performs an authenticated request with transient-failure retry
// and decodes the JSON response into result when non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body, result any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	reqURL := strings.TrimRight(c.config.URL, "/") + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	return retry.Do(
		func() error {
			var reader *bytes.Reader
			if body != nil {
				data, err := json.Marshal(body)
				if err != nil {
					return retry.Unrecoverable(fmt.Errorf("failed to encode request body: %w", err))
				}
				reader = bytes.NewReader(data)
			} else {
				reader = bytes.NewReader(nil)
			}

			req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("X-Emby-Token", c.config.APIKey)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("HTTP request failed: %w", err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(ErrNotFound)
			case resp.StatusCode == http.StatusUnauthorized:
				return retry.Unrecoverable(fmt.Errorf("%w: invalid API key", ErrAPIError))
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode))
			}

			if result != nil {
				if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
					return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
