package tmdb

import (
	"strconv"
	"time"

	"github.com/alexhritac/jellyfin-collection/internal/media"
)

// DiscoverParams holds the supported /discover query parameters. Zero
// values are omitted from the request.
type DiscoverParams struct {
	SortBy             string
	WithGenres         []int
	WithoutGenres      []int
	VoteAverageGTE     float64
	VoteAverageLTE     float64
	VoteCountGTE       int
	VoteCountLTE       int
	ReleaseDateGTE     string // YYYY-MM-DD; primary_release_date for movies, first_air_date for series
	ReleaseDateLTE     string
	WithWatchProviders []int
	WatchRegion        string
	WithOrigLanguage   string
	WithOriginCountry  string // series only
	WithReleaseType    string // movies only
	WithStatus         string // series only
	Limit              int
}

type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

type movieResult struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	ReleaseDate      string  `json:"release_date"`
	Overview         string  `json:"overview"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	PosterPath       string  `json:"poster_path"`
}

type tvResult struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	FirstAirDate     string   `json:"first_air_date"`
	Overview         string   `json:"overview"`
	GenreIDs         []int    `json:"genre_ids"`
	OriginalLanguage string   `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
	VoteAverage      float64  `json:"vote_average"`
	VoteCount        int      `json:"vote_count"`
	Popularity       float64  `json:"popularity"`
	PosterPath       string   `json:"poster_path"`
}

type pagedMovieResponse struct {
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Results    []movieResult `json:"results"`
}

type pagedTVResponse struct {
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Results    []tvResult `json:"results"`
}

type listItem struct {
	ID               int     `json:"id"`
	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	ReleaseDate      string  `json:"release_date"`
	FirstAir         string  `json:"first_air_date"`
	Overview         string  `json:"overview"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	PosterPath       string  `json:"poster_path"`
}

type listResponse struct {
	Items      []listItem `json:"items"`
	TotalPages int        `json:"total_pages"`
}

type findResponse struct {
	MovieResults []movieResult `json:"movie_results"`
	TVResults    []tvResult    `json:"tv_results"`
}

func (m movieResult) toCandidate() media.Candidate {
	id := m.ID
	c := media.Candidate{
		Title:            m.Title,
		Kind:             media.KindMovie,
		TmdbID:           &id,
		Overview:         m.Overview,
		Genres:           genreRefs(m.GenreIDs),
		OriginalLanguage: m.OriginalLanguage,
		PosterPath:       m.PosterPath,
	}
	setDateFields(&c, m.ReleaseDate)
	setSignals(&c, m.VoteAverage, m.VoteCount, m.Popularity)
	return c
}

func (t tvResult) toCandidate() media.Candidate {
	id := t.ID
	c := media.Candidate{
		Title:            t.Name,
		Kind:             media.KindSeries,
		TmdbID:           &id,
		Overview:         t.Overview,
		Genres:           genreRefs(t.GenreIDs),
		OriginalLanguage: t.OriginalLanguage,
		PosterPath:       t.PosterPath,
	}
	if len(t.OriginCountry) > 0 {
		c.OriginCountry = t.OriginCountry[0]
	}
	setDateFields(&c, t.FirstAirDate)
	setSignals(&c, t.VoteAverage, t.VoteCount, t.Popularity)
	return c
}

func (i listItem) toCandidate() media.Candidate {
	id := i.ID
	kind := media.KindMovie
	title := i.Title
	date := i.ReleaseDate
	if i.MediaType == "tv" {
		kind = media.KindSeries
		title = i.Name
		date = i.FirstAir
	}
	c := media.Candidate{
		Title:            title,
		Kind:             kind,
		TmdbID:           &id,
		Overview:         i.Overview,
		Genres:           genreRefs(i.GenreIDs),
		OriginalLanguage: i.OriginalLanguage,
		PosterPath:       i.PosterPath,
	}
	setDateFields(&c, date)
	setSignals(&c, i.VoteAverage, i.VoteCount, i.Popularity)
	return c
}

func genreRefs(ids []int) []media.GenreRef {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]media.GenreRef, len(ids))
	for i, id := range ids {
		refs[i] = media.GenreID(id)
	}
	return refs
}

func setDateFields(c *media.Candidate, date string) {
	if len(date) >= 4 {
		if year, err := strconv.Atoi(date[:4]); err == nil && year > 0 {
			c.Year = &year
		}
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		c.PremiereDate = &t
	}
}

func setSignals(c *media.Candidate, voteAverage float64, voteCount int, popularity float64) {
	if voteAverage > 0 {
		c.VoteAverage = &voteAverage
	}
	if voteCount > 0 {
		c.VoteCount = &voteCount
	}
	if popularity > 0 {
		c.Popularity = &popularity
	}
}
