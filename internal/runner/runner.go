// Package runner orchestrates full synchronization runs: parsing the
// collection config, fetching candidates, matching them against Jellyfin
// libraries and reconciling each collection.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/config"
	"github.com/alexhritac/jellyfin-collection/internal/history"
	"github.com/alexhritac/jellyfin-collection/internal/jellyfin"
	"github.com/alexhritac/jellyfin-collection/internal/kometa"
	"github.com/alexhritac/jellyfin-collection/internal/library"
	"github.com/alexhritac/jellyfin-collection/internal/media"
	"github.com/alexhritac/jellyfin-collection/internal/notification"
	"github.com/alexhritac/jellyfin-collection/internal/report"
	"github.com/alexhritac/jellyfin-collection/internal/source"
)

// ErrRunInProgress is returned when a run is requested while another one
// is still executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// seriesMarkers mark library names holding series; anything else is
// treated as a movie library.
var seriesMarkers = []string{"série", "series", "tv", "show", "cartoon"}

// LibraryLister is the Jellyfin surface the runner itself needs; the
// reconciler and matcher hold their own views of the client.
type LibraryLister interface {
	GetLibraries(ctx context.Context) ([]jellyfin.Library, error)
}

// Options control a single run.
type Options struct {
	Trigger        string // "manual" or "scheduled"
	Library        string // process only this library when set
	Collection     string // process only this collection when set
	DryRun         bool
	IgnoreSchedule bool
}

// Runner executes synchronization runs.
type Runner struct {
	cfg        *config.Config
	parser     *kometa.Parser
	server     LibraryLister
	aggregator *source.Aggregator
	matcher    *library.Matcher
	reconciler *collection.Reconciler
	notifier   *notification.Service
	store      *history.Store // nil when persistence is disabled
	logger     zerolog.Logger

	mu sync.Mutex
}

// New wires a runner from its collaborators. store may be nil.
func New(
	cfg *config.Config,
	parser *kometa.Parser,
	server LibraryLister,
	aggregator *source.Aggregator,
	matcher *library.Matcher,
	reconciler *collection.Reconciler,
	notifier *notification.Service,
	store *history.Store,
	logger zerolog.Logger,
) *Runner {
	return &Runner{
		cfg:        cfg,
		parser:     parser,
		server:     server,
		aggregator: aggregator,
		matcher:    matcher,
		reconciler: reconciler,
		notifier:   notifier,
		store:      store,
		logger:     logger.With().Str("component", "runner").Logger(),
	}
}

// Running reports whether a run is currently executing.
func (r *Runner) Running() bool {
	if r.mu.TryLock() {
		r.mu.Unlock()
		return false
	}
	return true
}

// Run executes one full synchronization run. Only one run executes at a
// time; a concurrent request fails with ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, opts Options) (*report.RunReport, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	if opts.Trigger == "" {
		opts.Trigger = "manual"
	}
	rep := report.NewRunReport(opts.Trigger, opts.DryRun)
	r.logger.Info().
		Str("run", rep.ID).
		Str("trigger", opts.Trigger).
		Bool("dry_run", opts.DryRun).
		Msg("run started")

	// Library caches from the previous run may be stale.
	r.matcher.Reset()

	libraries, err := r.parser.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load collection config: %w", err)
	}

	serverLibraries, err := r.server.GetLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list server libraries: %w", err)
	}
	libraryIDs := make(map[string]string, len(serverLibraries))
	for _, lib := range serverLibraries {
		libraryIDs[lib.Name] = lib.ID
	}

	r.notifier.RunStarted(ctx, rep, len(libraries))

	for _, lib := range libraries {
		if opts.Library != "" && !strings.EqualFold(lib.Name, opts.Library) {
			continue
		}

		libraryID, ok := libraryIDs[lib.Name]
		if !ok {
			r.logger.Error().Str("library", lib.Name).Msg("library not found on server")
			rep.AddError("library %q not found on server", lib.Name)
			continue
		}

		r.runLibrary(ctx, rep, lib, libraryID, opts)
	}

	rep.Finalize()
	r.notifier.RunCompleted(ctx, rep)

	if r.store != nil && !opts.DryRun {
		if err := r.store.Save(ctx, rep); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist run history")
		}
	}

	collections, added, removed, failed := rep.Totals()
	r.logger.Info().
		Str("run", rep.ID).
		Int("collections", collections).
		Int("added", added).
		Int("removed", removed).
		Int("failed", failed).
		Dur("duration", rep.Duration).
		Msg("run finished")
	return rep, nil
}

func (r *Runner) runLibrary(ctx context.Context, rep *report.RunReport, lib kometa.Library, libraryID string, opts Options) {
	kind := inferKind(lib.Name)
	today := time.Now()

	workers := r.cfg.Runner.MaxConcurrent
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(workers)

	for _, spec := range lib.Specs {
		spec := spec
		if opts.Collection != "" && !strings.EqualFold(spec.Name, opts.Collection) {
			continue
		}

		if opts.Trigger == "scheduled" && !opts.IgnoreSchedule && !spec.Cadence.IsDue(today) {
			mu.Lock()
			rep.AddCollection(lib.Name, report.CollectionReport{Name: spec.Name, Skipped: true})
			mu.Unlock()
			r.logger.Debug().Str("collection", spec.Name).Str("cadence", spec.Cadence.String()).Msg("not due, skipping")
			continue
		}

		p.Go(func() {
			cr := r.syncCollection(ctx, &spec, lib.Name, libraryID, kind, opts)
			mu.Lock()
			rep.AddCollection(lib.Name, cr)
			mu.Unlock()
		})
	}

	p.Wait()
}

// syncCollection runs the fetch, match and reconcile pipeline for one
// collection. A failure is contained in the returned report entry.
func (r *Runner) syncCollection(ctx context.Context, spec *collection.Spec, libraryName, libraryID string, kind media.Kind, opts Options) report.CollectionReport {
	start := time.Now()
	log := r.logger.With().Str("library", libraryName).Str("collection", spec.Name).Logger()

	cr := report.CollectionReport{Name: spec.Name, DryRun: opts.DryRun}
	fail := func(err error) report.CollectionReport {
		log.Error().Err(err).Msg("collection sync failed")
		cr.Error = err.Error()
		cr.Duration = time.Since(start)
		r.notifier.CollectionFailed(ctx, libraryName, spec.Name, err)
		return cr
	}

	candidates, stats := r.aggregator.FetchCandidates(ctx, spec, kind)
	cr.Fetched = stats.Fetched
	cr.AfterFilters = stats.Filtered

	results, err := r.matcher.MatchAll(ctx, candidates, libraryID, kind)
	if err != nil {
		return fail(fmt.Errorf("failed to match candidates: %w", err))
	}

	members := make([]collection.Member, 0, len(candidates))
	for i, res := range results {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("title", candidates[i].Title).Msg("match lookup failed")
		}
		member := collection.NewMember(candidates[i], res.Item)
		if member.Matched {
			cr.Matched++
		} else {
			cr.Missing++
			cr.MissingTitles = append(cr.MissingTitles, candidates[i].Title)
		}
		members = append(members, member)
	}

	if cr.Matched < spec.MinimumItems {
		log.Warn().
			Int("matched", cr.Matched).
			Int("minimum", spec.MinimumItems).
			Msg("not enough matched items, skipping sync")
		cr.Skipped = true
		cr.Duration = time.Since(start)
		return cr
	}

	outcome, err := r.reconciler.Sync(ctx, spec, members)
	if err != nil {
		return fail(err)
	}

	cr.Created = !outcome.Existed
	cr.ItemsAdded = outcome.Added
	cr.ItemsRemoved = outcome.Removed
	cr.AddedTitles = outcome.AddedTitles
	cr.Duration = time.Since(start)

	r.notifier.TrendingDigest(ctx, spec.Name, candidates)

	log.Info().
		Int("matched", cr.Matched).
		Int("missing", cr.Missing).
		Int("added", cr.ItemsAdded).
		Int("removed", cr.ItemsRemoved).
		Dur("duration", cr.Duration).
		Msg("collection synced")
	return cr
}

// inferKind guesses a library's media kind from its name. Movie wins when
// both kinds of markers appear ("TV Movies" libraries hold movies).
func inferKind(libraryName string) media.Kind {
	lower := strings.ToLower(libraryName)
	for _, marker := range []string{"film", "movie", "ciné", "cine"} {
		if strings.Contains(lower, marker) {
			return media.KindMovie
		}
	}
	for _, marker := range seriesMarkers {
		if strings.Contains(lower, marker) {
			return media.KindSeries
		}
	}
	return media.KindMovie
}
