package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/media"
	"github.com/alexhritac/jellyfin-collection/internal/tmdb"
)

// overFetchCap bounds the exclusion-filter over-fetch multiplier.
const overFetchCap = 4.0

// TMDBSource is the TMDB surface the aggregator consumes.
type TMDBSource interface {
	TrendingMovies(ctx context.Context, window string, limit int) ([]media.Candidate, error)
	TrendingSeries(ctx context.Context, window string, limit int) ([]media.Candidate, error)
	PopularMovies(ctx context.Context, limit int) ([]media.Candidate, error)
	PopularSeries(ctx context.Context, limit int) ([]media.Candidate, error)
	DiscoverMovies(ctx context.Context, p tmdb.DiscoverParams) ([]media.Candidate, error)
	DiscoverSeries(ctx context.Context, p tmdb.DiscoverParams) ([]media.Candidate, error)
	GetList(ctx context.Context, listID int, kind media.Kind) ([]media.Candidate, error)
	FindByIMDBID(ctx context.Context, imdbID string, kind media.Kind) (*media.Candidate, error)
}

// TraktSource is the Trakt surface the aggregator consumes.
type TraktSource interface {
	TrendingMovies(ctx context.Context, limit int) ([]media.Candidate, error)
	TrendingSeries(ctx context.Context, limit int) ([]media.Candidate, error)
	PopularMovies(ctx context.Context, limit int) ([]media.Candidate, error)
	PopularSeries(ctx context.Context, limit int) ([]media.Candidate, error)
	WatchedMovies(ctx context.Context, period string, limit int) ([]media.Candidate, error)
	WatchedSeries(ctx context.Context, period string, limit int) ([]media.Candidate, error)
}

// IMDBSource yields raw IMDb title ids for charts and lists.
type IMDBSource interface {
	GetChart(ctx context.Context, chart string, limit int) ([]string, error)
	GetList(ctx context.Context, list string, limit int) ([]string, error)
}

// Aggregator fans a collection spec's source directives out to providers
// and folds the results into one deduplicated, filtered, capped candidate
// list. Trakt and IMDb are optional.
type Aggregator struct {
	tmdb   TMDBSource
	trakt  TraktSource
	imdb   IMDBSource
	logger zerolog.Logger
}

// NewAggregator creates an aggregator. trakt and imdb may be nil when those
// providers are not configured.
func NewAggregator(tmdbSource TMDBSource, trakt TraktSource, imdb IMDBSource, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		tmdb:   tmdbSource,
		trakt:  trakt,
		imdb:   imdb,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Stats are the pipeline stage counts of one aggregation.
type Stats struct {
	Fetched  int // raw items across all directives
	Deduped  int // after first-occurrence deduplication
	Filtered int // after filters and the collection cap
}

// FetchCandidates runs every source directive in declared order, appending
// each source's results in its native ranking. A failed directive is
// logged and skipped; only zero configured sources or total failure yields
// an empty list, which callers treat as a harmless empty sync.
func (a *Aggregator) FetchCandidates(ctx context.Context, spec *collection.Spec, kind media.Kind) ([]media.Candidate, Stats) {
	var merged []media.Candidate

	for _, directive := range spec.Sources {
		items, err := a.fetchDirective(ctx, directive, spec.Filter, kind)
		if err != nil {
			a.logger.Warn().
				Err(err).
				Str("collection", spec.Name).
				Str("source", string(directive.Type)).
				Msg("source fetch failed, skipping")
			continue
		}
		merged = append(merged, items...)
	}

	unique := Deduplicate(merged)
	filtered := ApplyFilters(unique, spec.Filter)
	if spec.Limit > 0 && len(filtered) > spec.Limit {
		filtered = filtered[:spec.Limit]
	}

	stats := Stats{Fetched: len(merged), Deduped: len(unique), Filtered: len(filtered)}
	a.logger.Debug().
		Str("collection", spec.Name).
		Int("fetched", stats.Fetched).
		Int("deduped", stats.Deduped).
		Int("final", stats.Filtered).
		Msg("candidates aggregated")
	return filtered, stats
}

func (a *Aggregator) fetchDirective(ctx context.Context, d collection.SourceDirective, filter collection.Filter, kind media.Kind) ([]media.Candidate, error) {
	switch d.Type {
	case collection.SourceTMDBTrendingWeekly:
		if kind == media.KindMovie {
			return a.tmdb.TrendingMovies(ctx, "week", d.Limit)
		}
		return a.tmdb.TrendingSeries(ctx, "week", d.Limit)

	case collection.SourceTMDBTrendingDaily:
		if kind == media.KindMovie {
			return a.tmdb.TrendingMovies(ctx, "day", d.Limit)
		}
		return a.tmdb.TrendingSeries(ctx, "day", d.Limit)

	case collection.SourceTMDBPopular:
		if kind == media.KindMovie {
			return a.tmdb.PopularMovies(ctx, d.Limit)
		}
		return a.tmdb.PopularSeries(ctx, d.Limit)

	case collection.SourceTMDBDiscover:
		return a.fetchDiscover(ctx, d, filter, kind)

	case collection.SourceTMDBList:
		var items []media.Candidate
		for _, listID := range d.TMDBList {
			listItems, err := a.tmdb.GetList(ctx, listID, kind)
			if err != nil {
				return nil, err
			}
			items = append(items, listItems...)
		}
		return items, nil

	case collection.SourceIMDBChart, collection.SourceIMDBList:
		return a.fetchIMDB(ctx, d, kind)

	case collection.SourceTraktTrending:
		if a.trakt == nil {
			return nil, fmt.Errorf("trakt source configured but trakt is not available")
		}
		if kind == media.KindMovie {
			return a.trakt.TrendingMovies(ctx, d.Limit)
		}
		return a.trakt.TrendingSeries(ctx, d.Limit)

	case collection.SourceTraktPopular:
		if a.trakt == nil {
			return nil, fmt.Errorf("trakt source configured but trakt is not available")
		}
		if kind == media.KindMovie {
			return a.trakt.PopularMovies(ctx, d.Limit)
		}
		return a.trakt.PopularSeries(ctx, d.Limit)

	case collection.SourceTraktChart:
		return a.fetchTraktChart(ctx, d, kind)

	default:
		return nil, fmt.Errorf("unknown source directive %q", d.Type)
	}
}

// fetchDiscover issues a discover call, over-fetching when the spec has
// language/country exclusion filters: discover cannot express exclusion,
// so the extra headroom compensates for post-filter attrition.
func (a *Aggregator) fetchDiscover(ctx context.Context, d collection.SourceDirective, filter collection.Filter, kind media.Kind) ([]media.Candidate, error) {
	spec := d.Discover
	if spec == nil {
		spec = &collection.DiscoverSpec{}
	}

	baseLimit := spec.Limit
	if baseLimit <= 0 {
		baseLimit = d.Limit
	}
	if baseLimit <= 0 {
		baseLimit = 20
	}

	multiplier := 1.0 + 0.5*float64(filter.ExclusionEntryCount())
	if multiplier > overFetchCap {
		multiplier = overFetchCap
	}
	limit := int(float64(baseLimit) * multiplier)
	if multiplier > 1.0 {
		a.logger.Debug().
			Int("base", baseLimit).
			Int("adjusted", limit).
			Float64("multiplier", multiplier).
			Msg("over-fetching to compensate for exclusion filters")
	}

	params := tmdb.DiscoverParams{
		SortBy:             spec.SortBy,
		WithGenres:         spec.WithGenres,
		WithoutGenres:      spec.WithoutGenres,
		VoteAverageGTE:     spec.VoteAverageGTE,
		VoteAverageLTE:     spec.VoteAverageLTE,
		VoteCountGTE:       spec.VoteCountGTE,
		VoteCountLTE:       spec.VoteCountLTE,
		ReleaseDateGTE:     spec.ReleaseDateGTE,
		ReleaseDateLTE:     spec.ReleaseDateLTE,
		WithWatchProviders: spec.WithWatchProviders,
		WatchRegion:        spec.WatchRegion,
		WithOrigLanguage:   spec.WithOrigLanguage,
		WithOriginCountry:  spec.WithOriginCountry,
		WithReleaseType:    spec.WithReleaseType,
		WithStatus:         spec.WithStatus,
		Limit:              limit,
	}

	// Post-filter thresholds tighten the upstream query too, where the
	// directive itself does not already set them.
	if params.VoteAverageGTE == 0 && filter.VoteAverageGTE != nil {
		params.VoteAverageGTE = *filter.VoteAverageGTE
	}
	if params.VoteCountGTE == 0 && filter.VoteCountGTE != nil {
		params.VoteCountGTE = *filter.VoteCountGTE
	}
	if params.ReleaseDateGTE == "" && filter.YearGTE != nil {
		params.ReleaseDateGTE = time.Date(*filter.YearGTE, time.January, 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	}

	if kind == media.KindMovie {
		return a.tmdb.DiscoverMovies(ctx, params)
	}
	return a.tmdb.DiscoverSeries(ctx, params)
}

// fetchIMDB resolves chart/list title ids through TMDB so the results
// carry full candidate metadata.
func (a *Aggregator) fetchIMDB(ctx context.Context, d collection.SourceDirective, kind media.Kind) ([]media.Candidate, error) {
	if a.imdb == nil {
		return nil, fmt.Errorf("imdb source configured but imdb is not available")
	}

	fetchLimit := d.Limit
	if fetchLimit <= 0 {
		fetchLimit = 250
	}

	var imdbIDs []string
	for _, id := range d.ListIDs {
		var (
			ids []string
			err error
		)
		if d.Type == collection.SourceIMDBChart {
			ids, err = a.imdb.GetChart(ctx, id, fetchLimit)
		} else {
			ids, err = a.imdb.GetList(ctx, id, fetchLimit)
		}
		if err != nil {
			return nil, err
		}
		imdbIDs = append(imdbIDs, ids...)
	}

	seen := make(map[string]struct{}, len(imdbIDs))
	var resolved []media.Candidate
	for _, imdbID := range imdbIDs {
		if _, ok := seen[imdbID]; ok {
			continue
		}
		seen[imdbID] = struct{}{}

		candidate, err := a.tmdb.FindByIMDBID(ctx, imdbID, kind)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			resolved = append(resolved, *candidate)
		}
		if d.Limit > 0 && len(resolved) >= d.Limit {
			break
		}
	}
	return resolved, nil
}

func (a *Aggregator) fetchTraktChart(ctx context.Context, d collection.SourceDirective, kind media.Kind) ([]media.Candidate, error) {
	if a.trakt == nil {
		return nil, fmt.Errorf("trakt source configured but trakt is not available")
	}

	switch d.Chart {
	case "", "watched":
		if kind == media.KindMovie {
			return a.trakt.WatchedMovies(ctx, d.Period, d.Limit)
		}
		return a.trakt.WatchedSeries(ctx, d.Period, d.Limit)
	case "trending":
		if kind == media.KindMovie {
			return a.trakt.TrendingMovies(ctx, d.Limit)
		}
		return a.trakt.TrendingSeries(ctx, d.Limit)
	case "popular":
		if kind == media.KindMovie {
			return a.trakt.PopularMovies(ctx, d.Limit)
		}
		return a.trakt.PopularSeries(ctx, d.Limit)
	default:
		return nil, fmt.Errorf("unknown trakt chart %q", d.Chart)
	}
}

// Deduplicate walks the merged list once and keeps the first occurrence of
// each logical item. The dedupe key prefers TMDB id, then IMDb id, then
// TVDB id, then normalized title plus year; an item with no usable key is
// dropped.
func Deduplicate(items []media.Candidate) []media.Candidate {
	seen := make(map[string]struct{}, len(items))
	unique := make([]media.Candidate, 0, len(items))

	for _, item := range items {
		key := dedupeKey(item)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}

func dedupeKey(item media.Candidate) string {
	switch {
	case item.TmdbID != nil:
		return fmt.Sprintf("tmdb:%d", *item.TmdbID)
	case item.ImdbID != nil:
		return "imdb:" + *item.ImdbID
	case item.TvdbID != nil:
		return fmt.Sprintf("tvdb:%d", *item.TvdbID)
	case item.Title != "":
		year := 0
		if item.Year != nil {
			year = *item.Year
		}
		return fmt.Sprintf("title:%s:%d", media.NormalizeTitle(item.Title), year)
	}
	return ""
}
