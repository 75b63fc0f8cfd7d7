// Package report accumulates the per-run synchronization summary.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CollectionReport summarizes one collection's pipeline counts.
type CollectionReport struct {
	Name    string `json:"name"`
	Library string `json:"library"`
	Skipped bool   `json:"skipped,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
	Created bool   `json:"created,omitempty"`

	Fetched      int `json:"fetched"`
	AfterFilters int `json:"after_filters"`
	Matched      int `json:"matched"`
	Missing      int `json:"missing"`
	ItemsAdded   int `json:"items_added"`
	ItemsRemoved int `json:"items_removed"`

	AddedTitles   []string `json:"added_titles,omitempty"`
	MissingTitles []string `json:"missing_titles,omitempty"`

	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// MatchRate is the matched share of filtered candidates, in percent.
func (c CollectionReport) MatchRate() float64 {
	if c.AfterFilters == 0 {
		return 0
	}
	return 100 * float64(c.Matched) / float64(c.AfterFilters)
}

// LibraryReport groups the collection reports of one library.
type LibraryReport struct {
	Name        string             `json:"name"`
	Collections []CollectionReport `json:"collections"`
}

// RunReport is the full summary of one synchronization run.
type RunReport struct {
	ID        string          `json:"id"`
	Trigger   string          `json:"trigger"` // manual or scheduled
	DryRun    bool            `json:"dry_run,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Duration  time.Duration   `json:"duration"`
	Libraries []LibraryReport `json:"libraries"`
	Errors    []string        `json:"errors,omitempty"`
}

// NewRunReport starts a report with a fresh short run id.
func NewRunReport(trigger string, dryRun bool) *RunReport {
	return &RunReport{
		ID:        uuid.NewString()[:8],
		Trigger:   trigger,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
}

// Library returns the report bucket for a library, creating it on first use.
func (r *RunReport) Library(name string) *LibraryReport {
	for i := range r.Libraries {
		if r.Libraries[i].Name == name {
			return &r.Libraries[i]
		}
	}
	r.Libraries = append(r.Libraries, LibraryReport{Name: name})
	return &r.Libraries[len(r.Libraries)-1]
}

// AddCollection appends a collection report to its library bucket.
func (r *RunReport) AddCollection(library string, c CollectionReport) {
	c.Library = library
	bucket := r.Library(library)
	bucket.Collections = append(bucket.Collections, c)
	if c.Error != "" {
		r.Errors = append(r.Errors, fmt.Sprintf("%s / %s: %s", library, c.Name, c.Error))
	}
}

// AddError records a run-level failure not tied to a single collection.
func (r *RunReport) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Finalize stamps the end time and duration.
func (r *RunReport) Finalize() {
	r.EndedAt = time.Now()
	r.Duration = r.EndedAt.Sub(r.StartedAt)
}

// Totals aggregates counts across every library.
func (r *RunReport) Totals() (collections, added, removed, failed int) {
	for _, lib := range r.Libraries {
		for _, c := range lib.Collections {
			if c.Skipped {
				continue
			}
			collections++
			added += c.ItemsAdded
			removed += c.ItemsRemoved
			if c.Error != "" {
				failed++
			}
		}
	}
	return collections, added, removed, failed
}

// Succeeded reports whether the run completed without any errors.
func (r *RunReport) Succeeded() bool {
	return len(r.Errors) == 0
}
