package source

import (
	"github.com/alexhritac/jellyfin-collection/internal/collection"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

// ApplyFilters drops candidates failing the spec's predicates. Numeric
// bounds are inclusive; a candidate missing the filtered field is never
// dropped by that filter.
func ApplyFilters(items []media.Candidate, f collection.Filter) []media.Candidate {
	kept := make([]media.Candidate, 0, len(items))
	for _, item := range items {
		if keep(item, f) {
			kept = append(kept, item)
		}
	}
	return kept
}

func keep(item media.Candidate, f collection.Filter) bool {
	if f.YearGTE != nil && item.Year != nil && *item.Year < *f.YearGTE {
		return false
	}
	if f.YearLTE != nil && item.Year != nil && *item.Year > *f.YearLTE {
		return false
	}

	if f.VoteAverageGTE != nil && item.VoteAverage != nil && *item.VoteAverage < *f.VoteAverageGTE {
		return false
	}
	if f.VoteAverageLTE != nil && item.VoteAverage != nil && *item.VoteAverage > *f.VoteAverageLTE {
		return false
	}
	// Candidates carry no separate critic score, so the community average
	// stands in for the critic threshold too.
	if f.CriticRatingGTE != nil && item.VoteAverage != nil && *item.VoteAverage < *f.CriticRatingGTE {
		return false
	}

	if f.VoteCountGTE != nil && item.VoteCount != nil && *item.VoteCount < *f.VoteCountGTE {
		return false
	}
	if f.VoteCountLTE != nil && item.VoteCount != nil && *item.VoteCount > *f.VoteCountLTE {
		return false
	}

	if item.OriginCountry != "" {
		if containsString(f.CountryNot, item.OriginCountry) {
			return false
		}
		if containsString(f.OriginCountryNot, item.OriginCountry) {
			return false
		}
	}
	if item.OriginalLanguage != "" && containsString(f.OriginalLanguageNot, item.OriginalLanguage) {
		return false
	}

	// Genre filters only consider id-tagged genre refs; provider-native
	// name tags cannot be compared against catalog ids.
	genreIDs := idGenres(item.Genres)
	if len(f.WithoutGenres) > 0 && len(genreIDs) > 0 {
		if intersects(genreIDs, f.WithoutGenres) {
			return false
		}
	}
	if len(f.WithGenres) > 0 && len(genreIDs) > 0 {
		if !intersects(genreIDs, f.WithGenres) {
			return false
		}
	}

	return true
}

func idGenres(genres []media.GenreRef) []int {
	var ids []int
	for _, g := range genres {
		if g.HasID() {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func containsString(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

func intersects(values, set []int) bool {
	for _, v := range values {
		for _, s := range set {
			if v == s {
				return true
			}
		}
	}
	return false
}
