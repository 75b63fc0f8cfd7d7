package kometa

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/schedule"
)

func testParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser("", zerolog.Nop())
}

func TestParseCollectionBasics(t *testing.T) {
	data := []byte(`
collections:
  Trending This Week:
    summary: The most watched movies right now
    sort_title: "!010_Trending"
    collection_order: release
    sync_mode: sync
    schedule: weekly(monday)
    limit: 25
    tmdb_trending_weekly: 40
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}

	spec := specs[0]
	if spec.Name != "Trending This Week" {
		t.Errorf("Name = %q", spec.Name)
	}
	if spec.Summary != "The most watched movies right now" {
		t.Errorf("Summary = %q", spec.Summary)
	}
	if spec.SortTitle != "!010_Trending" {
		t.Errorf("SortTitle = %q", spec.SortTitle)
	}
	if spec.Order != collection.OrderPremiereDate {
		t.Errorf("Order = %q, want PremiereDate", spec.Order)
	}
	if spec.SyncMode != collection.SyncModeSync {
		t.Errorf("SyncMode = %q", spec.SyncMode)
	}
	if spec.Limit != 25 {
		t.Errorf("Limit = %d, want 25", spec.Limit)
	}
	if spec.Cadence.Type != schedule.Weekly {
		t.Errorf("Cadence.Type = %q, want weekly", spec.Cadence.Type)
	}

	if len(spec.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(spec.Sources))
	}
	if spec.Sources[0].Type != collection.SourceTMDBTrendingWeekly {
		t.Errorf("source type = %q", spec.Sources[0].Type)
	}
	if spec.Sources[0].Limit != 40 {
		t.Errorf("source limit = %d, want 40", spec.Sources[0].Limit)
	}
}

func TestParseSourceDirectivesKeepDeclaredOrder(t *testing.T) {
	data := []byte(`
collections:
  Mixed:
    trakt_popular: 10
    tmdb_trending_weekly: 20
    imdb_chart: top
    tmdb_popular: 30
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}

	want := []collection.SourceType{
		collection.SourceTraktPopular,
		collection.SourceTMDBTrendingWeekly,
		collection.SourceIMDBChart,
		collection.SourceTMDBPopular,
	}
	if len(specs[0].Sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(specs[0].Sources))
	}
	for i, st := range want {
		if specs[0].Sources[i].Type != st {
			t.Errorf("Sources[%d].Type = %q, want %q", i, specs[0].Sources[i].Type, st)
		}
	}
}

func TestParseDiscoverDirective(t *testing.T) {
	data := []byte(`
collections:
  French Cinema:
    tmdb_discover:
      sort_by: popularity.desc
      with_original_language: fr
      with_genres: "18,35"
      with_watch_providers: "8|337"
      watch_region: FR
      vote_count.gte: 100
      primary_release_date.gte: 2020-01-01
      limit: 50
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	spec := specs[0]

	if len(spec.Sources) != 1 || spec.Sources[0].Discover == nil {
		t.Fatal("expected one discover directive")
	}
	d := spec.Sources[0].Discover
	if d.SortBy != "popularity.desc" {
		t.Errorf("SortBy = %q", d.SortBy)
	}
	if d.WithOrigLanguage != "fr" {
		t.Errorf("WithOrigLanguage = %q", d.WithOrigLanguage)
	}
	if len(d.WithGenres) != 2 || d.WithGenres[0] != 18 || d.WithGenres[1] != 35 {
		t.Errorf("WithGenres = %v, want [18 35]", d.WithGenres)
	}
	if len(d.WithWatchProviders) != 2 || d.WithWatchProviders[0] != 8 || d.WithWatchProviders[1] != 337 {
		t.Errorf("WithWatchProviders = %v, want [8 337]", d.WithWatchProviders)
	}
	if d.WatchRegion != "FR" {
		t.Errorf("WatchRegion = %q", d.WatchRegion)
	}
	if d.VoteCountGTE != 100 {
		t.Errorf("VoteCountGTE = %d", d.VoteCountGTE)
	}
	if d.ReleaseDateGTE != "2020-01-01" {
		t.Errorf("ReleaseDateGTE = %q", d.ReleaseDateGTE)
	}
	if d.Limit != 50 {
		t.Errorf("Limit = %d", d.Limit)
	}

	// With no explicit limit, the discover limit caps the collection.
	if spec.Limit != 50 {
		t.Errorf("spec.Limit = %d, want 50", spec.Limit)
	}
}

func TestParseFilters(t *testing.T) {
	data := []byte(`
collections:
  Quality Picks:
    tmdb_popular: 100
    filters:
      year.gte: 2000
      vote_average.gte: 7.5
      tmdb_vote_count.gte: 500
      original_language.not:
        - hi
        - te
      origin_country.not: IN
      without_genres: 16
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	f := specs[0].Filter

	if f.YearGTE == nil || *f.YearGTE != 2000 {
		t.Errorf("YearGTE = %v, want 2000", f.YearGTE)
	}
	if f.VoteAverageGTE == nil || *f.VoteAverageGTE != 7.5 {
		t.Errorf("VoteAverageGTE = %v, want 7.5", f.VoteAverageGTE)
	}
	if f.VoteCountGTE == nil || *f.VoteCountGTE != 500 {
		t.Errorf("VoteCountGTE = %v, want 500", f.VoteCountGTE)
	}
	if len(f.OriginalLanguageNot) != 2 || f.OriginalLanguageNot[0] != "hi" {
		t.Errorf("OriginalLanguageNot = %v", f.OriginalLanguageNot)
	}
	if len(f.OriginCountryNot) != 1 || f.OriginCountryNot[0] != "IN" {
		t.Errorf("OriginCountryNot = %v", f.OriginCountryNot)
	}
	if len(f.WithoutGenres) != 1 || f.WithoutGenres[0] != 16 {
		t.Errorf("WithoutGenres = %v", f.WithoutGenres)
	}
	if f.ExclusionEntryCount() != 3 {
		t.Errorf("ExclusionEntryCount = %d, want 3", f.ExclusionEntryCount())
	}
}

func TestParseTemplateDefaults(t *testing.T) {
	data := []byte(`
templates:
  weekly_sync:
    sync_mode: sync
    schedule: weekly(sunday)
    filters:
      original_language.not:
        - hi

collections:
  Inherits:
    template: weekly_sync
    tmdb_popular: 10
  Overrides:
    template:
      name: weekly_sync
    sync_mode: append
    schedule: daily
    filters:
      year.gte: 2010
    tmdb_popular: 10
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}

	inherits := specs[0]
	if inherits.SyncMode != collection.SyncModeSync {
		t.Errorf("inherited SyncMode = %q", inherits.SyncMode)
	}
	if inherits.Cadence.Type != schedule.Weekly {
		t.Errorf("inherited Cadence.Type = %q", inherits.Cadence.Type)
	}
	if len(inherits.Filter.OriginalLanguageNot) != 1 {
		t.Errorf("inherited filter = %v", inherits.Filter.OriginalLanguageNot)
	}

	overrides := specs[1]
	if overrides.SyncMode != collection.SyncModeAppend {
		t.Errorf("overridden SyncMode = %q", overrides.SyncMode)
	}
	if overrides.Cadence.Type != schedule.Daily {
		t.Errorf("overridden Cadence.Type = %q", overrides.Cadence.Type)
	}
	// Collection filters extend the template's, not replace wholesale.
	if overrides.Filter.YearGTE == nil || *overrides.Filter.YearGTE != 2010 {
		t.Errorf("overridden YearGTE = %v", overrides.Filter.YearGTE)
	}
	if len(overrides.Filter.OriginalLanguageNot) != 1 {
		t.Errorf("template exclusions lost: %v", overrides.Filter.OriginalLanguageNot)
	}
}

func TestParseScheduleDefaults(t *testing.T) {
	data := []byte(`
templates:
  plain:
    sync_mode: sync

collections:
  Trending Movies:
    tmdb_trending_weekly: 20
  Manual Only:
    template: plain
    tmdb_popular: 10
  Pinned Off:
    schedule: never
    tmdb_popular: 10
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}

	// No template and no schedule key runs on every scheduled pass.
	if specs[0].Cadence.Type != schedule.Daily {
		t.Errorf("default Cadence.Type = %q, want daily", specs[0].Cadence.Type)
	}
	if !specs[0].Cadence.IsDue(time.Now()) {
		t.Error("default cadence should always be due")
	}

	// A template without a schedule leaves the collection manual-only.
	if specs[1].Cadence.Type != schedule.Never {
		t.Errorf("templated Cadence.Type = %q, want never", specs[1].Cadence.Type)
	}

	if specs[2].Cadence.Type != schedule.Never {
		t.Errorf("explicit Cadence.Type = %q, want never", specs[2].Cadence.Type)
	}
}

func TestParseIMDBAndTraktDirectives(t *testing.T) {
	data := []byte(`
collections:
  Charts:
    imdb_chart:
      list_ids:
        - top
        - boxoffice
      limit: 15
    imdb_list: ls024149810
    trakt_chart:
      chart: watched
      time_period: monthly
      limit: 20
    tmdb_list: https://www.themoviedb.org/list/8136
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sources := specs[0].Sources
	if len(sources) != 4 {
		t.Fatalf("expected 4 sources, got %d", len(sources))
	}

	chart := sources[0]
	if len(chart.ListIDs) != 2 || chart.ListIDs[0] != "top" || chart.Limit != 15 {
		t.Errorf("imdb_chart = %+v", chart)
	}
	list := sources[1]
	if len(list.ListIDs) != 1 || list.ListIDs[0] != "ls024149810" {
		t.Errorf("imdb_list = %+v", list)
	}
	trakt := sources[2]
	if trakt.Chart != "watched" || trakt.Period != "monthly" || trakt.Limit != 20 {
		t.Errorf("trakt_chart = %+v", trakt)
	}
	tmdbList := sources[3]
	if len(tmdbList.TMDBList) != 1 || tmdbList.TMDBList[0] != 8136 {
		t.Errorf("tmdb_list = %+v", tmdbList)
	}
}

func TestLoadResolvesLibrariesAndFiles(t *testing.T) {
	dir := t.TempDir()

	configYML := []byte(`
libraries:
  Films:
    collection_files:
      - file: config/films.yml
  Séries:
    collection_files:
      - file: config/series.yml
`)
	filmsYML := []byte(`
collections:
  Popular Movies:
    tmdb_popular: 20
`)
	seriesYML := []byte(`
collections:
  Trending Shows:
    tmdb_trending_weekly: 20
  Popular Shows:
    tmdb_popular: 20
`)

	for name, data := range map[string][]byte{
		"config.yml": configYML,
		"films.yml":  filmsYML,
		"series.yml": seriesYML,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	libraries, err := NewParser(dir, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(libraries) != 2 {
		t.Fatalf("expected 2 libraries, got %d", len(libraries))
	}

	if libraries[0].Name != "Films" || len(libraries[0].Specs) != 1 {
		t.Errorf("libraries[0] = %q with %d specs", libraries[0].Name, len(libraries[0].Specs))
	}
	if libraries[1].Name != "Séries" || len(libraries[1].Specs) != 2 {
		t.Errorf("libraries[1] = %q with %d specs", libraries[1].Name, len(libraries[1].Specs))
	}
	if libraries[1].Specs[0].Name != "Trending Shows" {
		t.Errorf("first series collection = %q", libraries[1].Specs[0].Name)
	}
}

func TestParseSkipsBrokenCollection(t *testing.T) {
	data := []byte(`
collections:
  Broken:
    tmdb_list: not-a-list
  Fine:
    tmdb_popular: 10
`)

	specs, err := testParser(t).Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "Fine" {
		t.Fatalf("expected only the valid collection, got %+v", specs)
	}
}
