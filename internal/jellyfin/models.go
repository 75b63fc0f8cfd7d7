package jellyfin

import (
	"strconv"
	"time"

	"github.com/alexhritac/jellyfin-collection/internal/media"
)

// Library is a Jellyfin virtual folder.
type Library struct {
	Name string `json:"Name"`
	ID   string `json:"ItemId"`
}

// Collection is a Jellyfin BoxSet summary.
type Collection struct {
	ID         string `json:"Id"`
	Name       string `json:"Name"`
	ChildCount int    `json:"ChildCount"`
}

// CollectionMetadata holds the mutable metadata fields of a collection.
// Empty fields are left untouched on the server.
type CollectionMetadata struct {
	Overview     string
	SortName     string
	DisplayOrder string
}

type itemsResponse struct {
	Items            []itemJSON `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

type itemJSON struct {
	ID              string            `json:"Id"`
	Name            string            `json:"Name"`
	Type            string            `json:"Type"`
	ParentID        string            `json:"ParentId"`
	ProductionYear  *int              `json:"ProductionYear"`
	ProviderIds     map[string]string `json:"ProviderIds"`
	Path            string            `json:"Path"`
	Genres          []string          `json:"Genres"`
	PremiereDate    *time.Time        `json:"PremiereDate"`
	DateCreated     *time.Time        `json:"DateCreated"`
	CommunityRating *float64          `json:"CommunityRating"`
	CriticRating    *float64          `json:"CriticRating"`
	SortName        string            `json:"SortName"`
	ChildCount      int               `json:"ChildCount"`
}

type createCollectionResponse struct {
	ID string `json:"Id"`
}

// toLibraryItem converts a Jellyfin item to the engine's library item shape.
func toLibraryItem(item itemJSON, libraryID string) media.LibraryItem {
	out := media.LibraryItem{
		ID:              item.ID,
		Title:           item.Name,
		Year:            item.ProductionYear,
		Kind:            mapItemKind(item.Type),
		LibraryID:       libraryID,
		Path:            item.Path,
		Genres:          item.Genres,
		PremiereDate:    item.PremiereDate,
		DateCreated:     item.DateCreated,
		CommunityRating: item.CommunityRating,
		CriticRating:    item.CriticRating,
		SortName:        item.SortName,
	}
	if out.LibraryID == "" {
		out.LibraryID = item.ParentID
	}

	if raw, ok := item.ProviderIds["Tmdb"]; ok && raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			out.TmdbID = &id
		}
	}
	if raw, ok := item.ProviderIds["Imdb"]; ok && raw != "" {
		imdb := raw
		out.ImdbID = &imdb
	}
	if raw, ok := item.ProviderIds["Tvdb"]; ok && raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			out.TvdbID = &id
		}
	}

	return out
}

func mapItemKind(jellyfinType string) media.Kind {
	if jellyfinType == "Series" {
		return media.KindSeries
	}
	return media.KindMovie
}

func includeItemTypes(kind media.Kind) string {
	switch kind {
	case media.KindMovie:
		return "Movie"
	case media.KindSeries:
		return "Series"
	}
	return ""
}
