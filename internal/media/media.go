package media

import (
	"strconv"
	"time"
)

// Kind identifies the media kind of an item or library.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

// GenreRef is a tagged reference to a genre: either a catalog genre id
// (TMDB numeric id) or a free-text name (Trakt, Jellyfin). Filters compare
// ids only; names are resolved to display text at the presentation boundary.
type GenreRef struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// GenreID returns a GenreRef carrying a catalog id.
func GenreID(id int) GenreRef { return GenreRef{ID: id} }

// GenreName returns a GenreRef carrying a free-text name.
func GenreName(name string) GenreRef { return GenreRef{Name: name} }

// HasID reports whether the ref carries a catalog id.
func (g GenreRef) HasID() bool { return g.ID > 0 }

// Candidate is one item returned by a catalog provider before matching.
// External identifiers are explicit optionals: a nil pointer means the
// provider did not supply that namespace.
type Candidate struct {
	Title string
	Year  *int
	Kind  Kind

	TmdbID *int
	ImdbID *string
	TvdbID *int

	Overview         string
	Genres           []GenreRef
	OriginalLanguage string // ISO 639-1, empty when unknown
	OriginCountry    string // ISO 3166-1, empty when unknown
	VoteAverage      *float64
	VoteCount        *int
	Popularity       *float64

	PremiereDate *time.Time
	PosterPath   string
}

// DisplayTitle returns "Title (Year)" when the year is known.
func (c Candidate) DisplayTitle() string {
	if c.Year != nil {
		return c.Title + " (" + strconv.Itoa(*c.Year) + ")"
	}
	return c.Title
}

// LibraryItem is an item that exists in a server library.
type LibraryItem struct {
	ID    string // server-native item id
	Title string
	Year  *int
	Kind  Kind

	TmdbID *int
	ImdbID *string
	TvdbID *int

	LibraryID string
	Path      string
	Genres    []string

	PremiereDate    *time.Time
	DateCreated     *time.Time
	CommunityRating *float64
	CriticRating    *float64
	SortName        string
}
