package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/jellyfin"
)

// Server is the media-server surface the reconciler mutates.
// *jellyfin.Client satisfies it.
type Server interface {
	GetCollections(ctx context.Context) ([]jellyfin.Collection, error)
	GetCollectionItems(ctx context.Context, collectionID string) ([]string, error)
	CreateCollection(ctx context.Context, name string) (string, error)
	AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error
	RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) error
	UpdateCollectionMetadata(ctx context.Context, collectionID string, meta jellyfin.CollectionMetadata) error
}

// Outcome reports one collection sync. Added/Removed are only populated
// after a confirmed-successful apply.
type Outcome struct {
	CollectionID string
	Existed      bool
	Added        int
	Removed      int
	AddedTitles  []string
}

// Reconciler diffs desired members against server state and applies the
// minimal order-correct set of mutations.
type Reconciler struct {
	server Server
	dryRun bool
	logger zerolog.Logger
}

// NewReconciler creates a reconciler. With dryRun set, plans are computed
// and logged but nothing is created or mutated.
func NewReconciler(server Server, dryRun bool, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		server: server,
		dryRun: dryRun,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// Sync brings the named server collection in line with the desired members.
// Any membership mutation failure is fatal for this collection; a metadata
// update failure is logged and swallowed.
func (r *Reconciler) Sync(ctx context.Context, spec *Spec, members []Member) (*Outcome, error) {
	existing, err := r.resolveTarget(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Existed: existing != nil}

	sorted := SortMembers(members, spec.Order)
	desired := make([]string, 0, len(sorted))
	titleByID := make(map[string]string, len(sorted))
	for _, m := range sorted {
		if m.Matched && m.ServerID != "" {
			desired = append(desired, m.ServerID)
			titleByID[m.ServerID] = m.Candidate.Title
		}
	}

	var current []string
	if existing != nil {
		outcome.CollectionID = existing.ID
		current, err = r.server.GetCollectionItems(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read members of %q: %w", spec.Name, err)
		}
	}

	plan := ComputePlan(current, desired, spec.SyncMode, spec.Order, existing != nil)
	for _, id := range plan.ToAdd {
		outcome.AddedTitles = append(outcome.AddedTitles, titleByID[id])
	}

	if r.dryRun {
		r.logger.Info().
			Str("collection", spec.Name).
			Int("toAdd", len(plan.ToAdd)).
			Int("toRemove", len(plan.ToRemove)).
			Bool("reorder", plan.RequiresFullReorder).
			Msg("dry run, skipping apply")
		return outcome, nil
	}

	if existing == nil {
		id, err := r.server.CreateCollection(ctx, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection %q: %w", spec.Name, err)
		}
		outcome.CollectionID = id
	}

	// Finish in-flight mutations even if the run is being shut down, so a
	// collection is never left half-reordered.
	applyCtx := context.WithoutCancel(ctx)

	if plan.RequiresFullReorder && len(desired) > 0 {
		if len(current) > 0 {
			if err := r.server.RemoveFromCollection(applyCtx, outcome.CollectionID, current); err != nil {
				return nil, fmt.Errorf("failed to clear %q before reorder: %w", spec.Name, err)
			}
		}
		if err := r.server.AddToCollection(applyCtx, outcome.CollectionID, desired); err != nil {
			return nil, fmt.Errorf("failed to re-add members while reordering %q: %w", spec.Name, err)
		}
		r.logger.Info().
			Str("collection", spec.Name).
			Int("items", len(desired)).
			Str("order", string(spec.Order)).
			Msg("collection reordered")
	} else {
		if len(plan.ToAdd) > 0 {
			if err := r.server.AddToCollection(applyCtx, outcome.CollectionID, plan.ToAdd); err != nil {
				return nil, fmt.Errorf("failed to add members to %q: %w", spec.Name, err)
			}
			r.logger.Info().Str("collection", spec.Name).Int("items", len(plan.ToAdd)).Msg("members added")
		}
		if len(plan.ToRemove) > 0 {
			if err := r.server.RemoveFromCollection(applyCtx, outcome.CollectionID, plan.ToRemove); err != nil {
				return nil, fmt.Errorf("failed to remove members from %q: %w", spec.Name, err)
			}
			r.logger.Info().Str("collection", spec.Name).Int("items", len(plan.ToRemove)).Msg("members removed")
		}
	}

	meta := jellyfin.CollectionMetadata{
		Overview:     spec.Summary,
		SortName:     spec.SortTitle,
		DisplayOrder: spec.Order.DisplayOrder(),
	}
	if err := r.server.UpdateCollectionMetadata(applyCtx, outcome.CollectionID, meta); err != nil {
		r.logger.Warn().Err(err).Str("collection", spec.Name).Msg("metadata update failed")
	}

	outcome.Added = len(plan.ToAdd)
	outcome.Removed = len(plan.ToRemove)
	return outcome, nil
}

// resolveTarget finds the existing server collection with the spec's exact
// name. Several same-named collections can exist; the one with the largest
// member count wins and the ambiguity is logged, never merged.
func (r *Reconciler) resolveTarget(ctx context.Context, name string) (*jellyfin.Collection, error) {
	collections, err := r.server.GetCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	var matches []jellyfin.Collection
	for _, c := range collections {
		if c.Name == name {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	best := matches[0]
	for _, c := range matches[1:] {
		if c.ChildCount > best.ChildCount {
			best = c
		}
	}

	if len(matches) > 1 {
		ids := make([]string, len(matches))
		for i, c := range matches {
			ids[i] = c.ID
		}
		r.logger.Warn().
			Str("collection", name).
			Int("duplicates", len(matches)).
			Str("using", best.ID).
			Str("ids", strings.Join(ids, ", ")).
			Msg("multiple collections share this name, using largest")
	}

	return &best, nil
}

// ComputePlan diffs current membership against the desired ordered list.
// ToAdd preserves desired order so ranked lists survive into the add
// sequence. A full reorder is needed for any non-custom order, or for a
// custom sync of a pre-existing collection, but only when there is
// otherwise something to change; a no-op diff never touches the server.
func ComputePlan(current, desired []string, mode SyncMode, order Order, existed bool) Plan {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	var plan Plan
	for _, id := range desired {
		if _, ok := currentSet[id]; !ok {
			plan.ToAdd = append(plan.ToAdd, id)
		}
	}
	if mode == SyncModeSync {
		for _, id := range current {
			if _, ok := desiredSet[id]; !ok {
				plan.ToRemove = append(plan.ToRemove, id)
			}
		}
	}

	orderSensitive := order != OrderCustom ||
		(order == OrderCustom && mode == SyncModeSync && existed)
	pending := len(plan.ToAdd) > 0 || len(plan.ToRemove) > 0 || !existed
	plan.RequiresFullReorder = orderSensitive && pending

	return plan
}
