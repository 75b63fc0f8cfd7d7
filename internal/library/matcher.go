package library

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/alexhritac/jellyfin-collection/internal/media"
)

// searchLimit bounds the title-search fallback result count.
const searchLimit = 5

// Result is the outcome of matching one candidate. Item is nil when the
// candidate has no counterpart in the library.
type Result struct {
	Item *media.LibraryItem
	Err  error
}

// Matcher resolves externally-sourced candidates to library items. It keeps
// a cross-library cache keyed by TMDB id, including negative entries, so a
// title seen by several sources in one run is only looked up once.
type Matcher struct {
	index   *Index
	source  ItemSource
	workers int
	logger  zerolog.Logger

	mu    sync.Mutex
	cache map[int]*media.LibraryItem // nil value = confirmed absent
}

// NewMatcher creates a matcher over the given index. workers bounds
// concurrent matching in MatchAll.
func NewMatcher(index *Index, source ItemSource, workers int, logger zerolog.Logger) *Matcher {
	if workers <= 0 {
		workers = 4
	}
	return &Matcher{
		index:   index,
		source:  source,
		workers: workers,
		logger:  logger.With().Str("component", "matcher").Logger(),
		cache:   make(map[int]*media.LibraryItem),
	}
}

// FindInLibrary resolves a candidate to a library item, or nil when the
// library does not hold it. Lookup order: cross-library cache, then the
// library index by TMDB id, then a title search for candidates without a
// TMDB id. Misses for candidates with a TMDB id are cached negatively.
func (m *Matcher) FindInLibrary(ctx context.Context, candidate media.Candidate, libraryID string) (*media.LibraryItem, error) {
	if libraryID != "" {
		if err := m.index.EnsureLoaded(ctx, libraryID, candidate.Kind); err != nil {
			return nil, err
		}
	}

	if candidate.TmdbID != nil {
		m.mu.Lock()
		cached, ok := m.cache[*candidate.TmdbID]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	if candidate.TmdbID != nil && libraryID != "" {
		if item, ok := m.index.Lookup(libraryID, *candidate.TmdbID); ok {
			m.mu.Lock()
			m.cache[*candidate.TmdbID] = &item
			m.mu.Unlock()
			m.logger.Debug().
				Int("tmdbID", *candidate.TmdbID).
				Str("title", candidate.Title).
				Msg("matched by TMDB id")
			return &item, nil
		}
	}

	// Title search only helps candidates with no TMDB id; anything the
	// index missed is genuinely absent.
	if candidate.TmdbID == nil {
		results, err := m.source.SearchItems(ctx, candidate.Title, candidate.Kind, searchLimit)
		if err != nil {
			return nil, err
		}
		for i := range results {
			if isMatch(candidate, results[i]) {
				m.logger.Debug().
					Str("title", candidate.Title).
					Str("matched", results[i].Title).
					Msg("matched by title search")
				return &results[i], nil
			}
		}
		return nil, nil
	}

	m.mu.Lock()
	m.cache[*candidate.TmdbID] = nil
	m.mu.Unlock()
	m.logger.Debug().
		Int("tmdbID", *candidate.TmdbID).
		Str("title", candidate.DisplayTitle()).
		Msg("not found in library")
	return nil, nil
}

// MatchAll resolves candidates concurrently, bounded by the worker limit.
// Results are positional: Results[i] corresponds to candidates[i]. The
// library is loaded up front so a load failure fails the whole batch.
func (m *Matcher) MatchAll(ctx context.Context, candidates []media.Candidate, libraryID string, kind media.Kind) ([]Result, error) {
	if libraryID != "" {
		if err := m.index.EnsureLoaded(ctx, libraryID, kind); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(candidates))
	p := pool.New().WithMaxGoroutines(m.workers)
	for i := range candidates {
		p.Go(func() {
			item, err := m.FindInLibrary(ctx, candidates[i], libraryID)
			results[i] = Result{Item: item, Err: err}
		})
	}
	p.Wait()

	matched := 0
	for _, r := range results {
		if r.Item != nil {
			matched++
		}
	}
	m.logger.Info().
		Str("libraryID", libraryID).
		Int("matched", matched).
		Int("total", len(candidates)).
		Msg("matched candidates against library")
	return results, nil
}

// Reset clears the match cache and the library index for a fresh run, so
// items added to the server since the last run become visible.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.cache = make(map[int]*media.LibraryItem)
	m.mu.Unlock()
	m.index.Reset()
	m.logger.Debug().Msg("matcher cache reset")
}

// isMatch reports whether a library item is the candidate's counterpart.
// A shared external id in any namespace decides outright; otherwise the
// normalized titles must be equal and any years within one of each other.
func isMatch(candidate media.Candidate, item media.LibraryItem) bool {
	if candidate.TmdbID != nil && item.TmdbID != nil {
		return *candidate.TmdbID == *item.TmdbID
	}
	if candidate.ImdbID != nil && item.ImdbID != nil {
		return *candidate.ImdbID == *item.ImdbID
	}
	if candidate.TvdbID != nil && item.TvdbID != nil {
		return *candidate.TvdbID == *item.TvdbID
	}

	if media.NormalizeTitle(candidate.Title) != media.NormalizeTitle(item.Title) {
		return false
	}
	if candidate.Year != nil && item.Year != nil {
		diff := *candidate.Year - *item.Year
		return diff >= -1 && diff <= 1
	}
	return true
}
