package collection

import (
	"strings"
	"time"

	"github.com/alexhritac/jellyfin-collection/internal/media"
	"github.com/alexhritac/jellyfin-collection/internal/schedule"
)

// SyncMode controls whether reconciliation removes server-side members
// that are no longer desired.
type SyncMode string

const (
	SyncModeAppend SyncMode = "append" // add new items, keep existing
	SyncModeSync   SyncMode = "sync"   // match the collection exactly to the source
)

// ParseSyncMode maps a config value to a SyncMode, defaulting to sync.
func ParseSyncMode(value string) SyncMode {
	if strings.ToLower(strings.TrimSpace(value)) == string(SyncModeAppend) {
		return SyncModeAppend
	}
	return SyncModeSync
}

// Order is the display order of members within a collection. Jellyfin shows
// members in insertion order, so any order other than custom is realized by
// re-adding members in sorted sequence.
type Order string

const (
	OrderCustom          Order = "custom" // keep source order (default)
	OrderSortName        Order = "SortName"
	OrderPremiereDate    Order = "PremiereDate"
	OrderDateCreated     Order = "DateCreated"
	OrderCommunityRating Order = "CommunityRating"
	OrderCriticRating    Order = "CriticRating"
	OrderRandom          Order = "Random"
)

// orderAliases maps the accepted config spellings to orders.
var orderAliases = map[string]Order{
	"custom":          OrderCustom,
	"alpha":           OrderSortName,
	"alphabetical":    OrderSortName,
	"sortname":        OrderSortName,
	"name":            OrderSortName,
	"release":         OrderPremiereDate,
	"premieredate":    OrderPremiereDate,
	"release_date":    OrderPremiereDate,
	"date":            OrderPremiereDate,
	"added":           OrderDateCreated,
	"datecreated":     OrderDateCreated,
	"date_added":      OrderDateCreated,
	"rating":          OrderCommunityRating,
	"communityrating": OrderCommunityRating,
	"audience_rating": OrderCommunityRating,
	"critic":          OrderCriticRating,
	"criticrating":    OrderCriticRating,
	"critic_rating":   OrderCriticRating,
	"random":          OrderRandom,
}

// ParseOrder maps a config value to an Order. Unknown values fall back to
// custom.
func ParseOrder(value string) Order {
	if value == "" {
		return OrderCustom
	}
	if order, ok := orderAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return order
	}
	return OrderCustom
}

// DisplayOrder maps the order to Jellyfin's DisplayOrder metadata value.
// PremiereDate keeps Default: members are inserted newest-first, while
// Jellyfin's own PremiereDate display order is oldest-first.
func (o Order) DisplayOrder() string {
	switch o {
	case OrderSortName:
		return "SortName"
	case OrderDateCreated:
		return "DateCreated"
	case OrderCommunityRating, OrderCriticRating:
		return "CommunityRating" // Jellyfin has no separate critic field
	default:
		return "Default"
	}
}

// Filter is the declarative predicate set applied after deduplication.
// Nil/empty fields never drop an item.
type Filter struct {
	YearGTE         *int
	YearLTE         *int
	VoteAverageGTE  *float64
	VoteAverageLTE  *float64
	CriticRatingGTE *float64
	VoteCountGTE    *int
	VoteCountLTE    *int

	WithGenres    []int
	WithoutGenres []int

	CountryNot          []string
	OriginCountryNot    []string
	OriginalLanguageNot []string
}

// ExclusionEntryCount counts the language/country exclusion entries that
// upstream discover queries cannot express, driving the over-fetch
// multiplier.
func (f Filter) ExclusionEntryCount() int {
	return len(f.OriginalLanguageNot) + len(f.OriginCountryNot)
}

// DiscoverSpec holds normalized discover-directive parameters.
type DiscoverSpec struct {
	SortBy             string
	WithGenres         []int
	WithoutGenres      []int
	VoteAverageGTE     float64
	VoteAverageLTE     float64
	VoteCountGTE       int
	VoteCountLTE       int
	ReleaseDateGTE     string // YYYY-MM-DD
	ReleaseDateLTE     string
	WithWatchProviders []int
	WatchRegion        string
	WithOrigLanguage   string
	WithOriginCountry  string
	WithReleaseType    string
	WithStatus         string
	Limit              int
}

// SourceType identifies a provider directive kind.
type SourceType string

const (
	SourceTMDBTrendingWeekly SourceType = "tmdb_trending_weekly"
	SourceTMDBTrendingDaily  SourceType = "tmdb_trending_daily"
	SourceTMDBPopular        SourceType = "tmdb_popular"
	SourceTMDBDiscover       SourceType = "tmdb_discover"
	SourceTMDBList           SourceType = "tmdb_list"
	SourceIMDBChart          SourceType = "imdb_chart"
	SourceIMDBList           SourceType = "imdb_list"
	SourceTraktTrending      SourceType = "trakt_trending"
	SourceTraktPopular       SourceType = "trakt_popular"
	SourceTraktChart         SourceType = "trakt_chart"
)

// SourceDirective is one provider instruction of a collection spec.
// Directives run in declared order and their results are appended in that
// order.
type SourceDirective struct {
	Type     SourceType
	Limit    int
	Chart    string        // trakt chart name (watched/trending/popular)
	Period   string        // trakt watched period
	ListIDs  []string      // imdb chart names or ls ids
	TMDBList []int         // tmdb list ids
	Discover *DiscoverSpec // tmdb discover parameters
}

// Spec is the declarative configuration of one collection.
type Spec struct {
	Name      string
	Summary   string
	SortTitle string
	Poster    string

	Order        Order
	SyncMode     SyncMode
	MinimumItems int
	Limit        int

	Cadence schedule.Cadence
	Filter  Filter
	Sources []SourceDirective

	Template string
}

// Member is a candidate after matching, carrying the server id when
// matched and the fields the sorter orders by.
type Member struct {
	Candidate media.Candidate
	Matched   bool
	ServerID  string

	PremiereDate    *time.Time
	DateCreated     *time.Time
	CommunityRating *float64
	CriticRating    *float64
	SortName        string
}

// NewMember folds a match result into a member. Sort fields prefer the
// library item's values, falling back to the candidate's.
func NewMember(candidate media.Candidate, item *media.LibraryItem) Member {
	m := Member{
		Candidate:    candidate,
		PremiereDate: candidate.PremiereDate,
	}
	if item != nil {
		m.Matched = true
		m.ServerID = item.ID
		m.DateCreated = item.DateCreated
		m.CommunityRating = item.CommunityRating
		m.CriticRating = item.CriticRating
		m.SortName = item.SortName
		if item.PremiereDate != nil {
			m.PremiereDate = item.PremiereDate
		}
	}
	if m.CommunityRating == nil {
		m.CommunityRating = candidate.VoteAverage
	}
	return m
}

// Plan is the reconciliation outcome computed per run: the ordered ids to
// add, the ids to remove, and whether a full clear-and-readd is needed.
type Plan struct {
	ToAdd               []string
	ToRemove            []string
	RequiresFullReorder bool
}

// Empty reports whether the plan would leave the server untouched.
func (p Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0 && !p.RequiresFullReorder
}
