package collection

import (
	"math/rand"
	"sort"
	"strings"
	"time"
)

// SortMembers orders members according to the collection order and returns
// a new slice. Custom keeps source order; named modes use title as the
// secondary tiebreak.
func SortMembers(members []Member, order Order) []Member {
	if order == OrderCustom {
		return members
	}

	sorted := make([]Member, len(members))
	copy(sorted, members)

	switch order {
	case OrderRandom:
		rand.Shuffle(len(sorted), func(i, j int) {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		})
	case OrderSortName:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sortName(sorted[i]) < sortName(sorted[j])
		})
	case OrderPremiereDate:
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := premiereKey(sorted[i]), premiereKey(sorted[j])
			if !a.Equal(b) {
				return a.After(b) // newest first
			}
			return sorted[i].Candidate.Title < sorted[j].Candidate.Title
		})
	case OrderDateCreated:
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := createdKey(sorted[i]), createdKey(sorted[j])
			if !a.Equal(b) {
				return a.After(b) // most recently added first
			}
			return sorted[i].Candidate.Title < sorted[j].Candidate.Title
		})
	case OrderCommunityRating:
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := ratingKey(sorted[i].CommunityRating), ratingKey(sorted[j].CommunityRating)
			if a != b {
				return a > b // highest first
			}
			return sorted[i].Candidate.Title < sorted[j].Candidate.Title
		})
	case OrderCriticRating:
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := ratingKey(sorted[i].CriticRating), ratingKey(sorted[j].CriticRating)
			if a != b {
				return a > b
			}
			return sorted[i].Candidate.Title < sorted[j].Candidate.Title
		})
	}

	return sorted
}

func sortName(m Member) string {
	if m.SortName != "" {
		return strings.ToLower(m.SortName)
	}
	return strings.ToLower(m.Candidate.Title)
}

// premiereKey falls back to January 1st of the release year when the exact
// premiere date is unknown.
func premiereKey(m Member) time.Time {
	if m.PremiereDate != nil {
		return *m.PremiereDate
	}
	if m.Candidate.Year != nil {
		return time.Date(*m.Candidate.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

func createdKey(m Member) time.Time {
	if m.DateCreated != nil {
		return *m.DateCreated
	}
	return time.Time{}
}

func ratingKey(rating *float64) float64 {
	if rating == nil {
		return 0
	}
	return *rating
}
