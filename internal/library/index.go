package library

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/media"
)

// pageSize stays below Jellyfin's hidden per-request cap.
const pageSize = 500

// ItemSource provides the media-server calls the index and matcher need.
// *jellyfin.Client satisfies it.
type ItemSource interface {
	GetLibraryItemsPage(ctx context.Context, libraryID string, kind media.Kind, startIndex, limit int) ([]media.LibraryItem, error)
	SearchItems(ctx context.Context, query string, kind media.Kind, limit int) ([]media.LibraryItem, error)
}

// LoadError reports a failed library scan. A partial scan is never kept:
// absence of a key must mean "not in the library", so the whole load is
// abandoned when any page fails.
type LoadError struct {
	LibraryID string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load library %s: %v", e.LibraryID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Index caches each library's items keyed by TMDB id. A library is scanned
// at most once between resets; Reset is the only invalidation path.
type Index struct {
	source ItemSource
	logger zerolog.Logger

	mu        sync.Mutex
	libraries map[string]*libraryEntry
}

// libraryEntry holds one library's loaded state. Each entry carries its own
// lock so a slow scan of one library does not block lookups in another.
type libraryEntry struct {
	mu     sync.Mutex
	loaded bool
	byTmdb map[int]media.LibraryItem
}

// NewIndex creates a library index backed by the given item source.
func NewIndex(source ItemSource, logger zerolog.Logger) *Index {
	return &Index{
		source:    source,
		logger:    logger.With().Str("component", "library-index").Logger(),
		libraries: make(map[string]*libraryEntry),
	}
}

// EnsureLoaded scans the library into the index if it has not been scanned
// since the last Reset. Subsequent calls for the same library are no-ops.
func (idx *Index) EnsureLoaded(ctx context.Context, libraryID string, kind media.Kind) error {
	entry := idx.entry(libraryID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.loaded {
		return nil
	}

	idx.logger.Info().Str("libraryID", libraryID).Msg("loading library into index")

	byTmdb := make(map[int]media.LibraryItem)
	total := 0
	for start := 0; ; start += pageSize {
		items, err := idx.source.GetLibraryItemsPage(ctx, libraryID, kind, start, pageSize)
		if err != nil {
			return &LoadError{LibraryID: libraryID, Err: err}
		}

		total += len(items)
		for _, item := range items {
			if item.TmdbID != nil {
				byTmdb[*item.TmdbID] = item
			}
		}

		if len(items) < pageSize {
			break
		}
	}

	entry.byTmdb = byTmdb
	entry.loaded = true

	idx.logger.Info().
		Str("libraryID", libraryID).
		Int("items", total).
		Int("indexed", len(byTmdb)).
		Msg("library loaded")
	return nil
}

// Lookup returns the library item for a TMDB id, if the library holds one.
// The library must already be loaded; an unloaded library reports no hit.
func (idx *Index) Lookup(libraryID string, tmdbID int) (media.LibraryItem, bool) {
	idx.mu.Lock()
	entry, ok := idx.libraries[libraryID]
	idx.mu.Unlock()
	if !ok {
		return media.LibraryItem{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.loaded {
		return media.LibraryItem{}, false
	}
	item, ok := entry.byTmdb[tmdbID]
	return item, ok
}

// Reset drops all loaded libraries so the next EnsureLoaded re-scans.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.libraries = make(map[string]*libraryEntry)
	idx.logger.Debug().Msg("library index reset")
}

func (idx *Index) entry(libraryID string) *libraryEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	entry, ok := idx.libraries[libraryID]
	if !ok {
		entry = &libraryEntry{}
		idx.libraries[libraryID] = entry
	}
	return entry
}
