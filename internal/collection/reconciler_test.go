package collection

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/jellyfin"
	"github.com/alexhritac/jellyfin-collection/internal/media"
)

type fakeServer struct {
	collections []jellyfin.Collection
	members     map[string][]string
	nextID      string

	added       [][]string
	removed     [][]string
	metadata    []jellyfin.CollectionMetadata
	metadataErr error
	addErr      error
}

func newFakeServer() *fakeServer {
	return &fakeServer{members: make(map[string][]string), nextID: "new-collection"}
}

func (f *fakeServer) GetCollections(_ context.Context) ([]jellyfin.Collection, error) {
	return f.collections, nil
}

func (f *fakeServer) GetCollectionItems(_ context.Context, collectionID string) ([]string, error) {
	return f.members[collectionID], nil
}

func (f *fakeServer) CreateCollection(_ context.Context, _ string) (string, error) {
	f.collections = append(f.collections, jellyfin.Collection{ID: f.nextID})
	return f.nextID, nil
}

func (f *fakeServer) AddToCollection(_ context.Context, collectionID string, itemIDs []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, itemIDs)
	f.members[collectionID] = append(f.members[collectionID], itemIDs...)
	return nil
}

func (f *fakeServer) RemoveFromCollection(_ context.Context, collectionID string, itemIDs []string) error {
	f.removed = append(f.removed, itemIDs)
	drop := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		drop[id] = struct{}{}
	}
	var kept []string
	for _, id := range f.members[collectionID] {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	f.members[collectionID] = kept
	return nil
}

func (f *fakeServer) UpdateCollectionMetadata(_ context.Context, _ string, meta jellyfin.CollectionMetadata) error {
	if f.metadataErr != nil {
		return f.metadataErr
	}
	f.metadata = append(f.metadata, meta)
	return nil
}

func member(title, serverID string) Member {
	return Member{
		Candidate: media.Candidate{Title: title, Kind: media.KindMovie},
		Matched:   serverID != "",
		ServerID:  serverID,
	}
}

func TestComputePlanAppendNeverRemoves(t *testing.T) {
	plan := ComputePlan([]string{"A", "B"}, []string{"B", "C"}, SyncModeAppend, OrderCustom, true)

	if !reflect.DeepEqual(plan.ToAdd, []string{"C"}) {
		t.Errorf("ToAdd = %v, want [C]", plan.ToAdd)
	}
	if len(plan.ToRemove) != 0 {
		t.Errorf("ToRemove = %v, want empty", plan.ToRemove)
	}
}

func TestComputePlanSyncRemovesUndesired(t *testing.T) {
	plan := ComputePlan([]string{"A", "B", "C"}, []string{"B", "D"}, SyncModeSync, OrderCustom, true)

	if !reflect.DeepEqual(plan.ToAdd, []string{"D"}) {
		t.Errorf("ToAdd = %v, want [D]", plan.ToAdd)
	}
	if !reflect.DeepEqual(plan.ToRemove, []string{"A", "C"}) {
		t.Errorf("ToRemove = %v, want [A C]", plan.ToRemove)
	}
}

func TestComputePlanPreservesDesiredOrderInAdds(t *testing.T) {
	plan := ComputePlan(nil, []string{"C", "A", "B"}, SyncModeSync, OrderCustom, false)

	if !reflect.DeepEqual(plan.ToAdd, []string{"C", "A", "B"}) {
		t.Errorf("ToAdd = %v, ranked order must survive", plan.ToAdd)
	}
}

func TestComputePlanReorderDecision(t *testing.T) {
	tests := []struct {
		name    string
		current []string
		desired []string
		mode    SyncMode
		order   Order
		existed bool
		want    bool
	}{
		{
			name:    "custom append no changes",
			current: []string{"A"}, desired: []string{"A"},
			mode: SyncModeAppend, order: OrderCustom, existed: true,
			want: false,
		},
		{
			name:    "custom sync existing with changes",
			current: []string{"A", "B"}, desired: []string{"B", "C"},
			mode: SyncModeSync, order: OrderCustom, existed: true,
			want: true,
		},
		{
			name:    "custom sync existing no changes",
			current: []string{"A", "B"}, desired: []string{"A", "B"},
			mode: SyncModeSync, order: OrderCustom, existed: true,
			want: false,
		},
		{
			name:    "named order with changes",
			current: []string{"A"}, desired: []string{"A", "B"},
			mode: SyncModeAppend, order: OrderPremiereDate, existed: true,
			want: true,
		},
		{
			name:    "named order no changes on existing",
			current: []string{"A", "B"}, desired: []string{"A", "B"},
			mode: SyncModeSync, order: OrderPremiereDate, existed: true,
			want: false,
		},
		{
			name:    "named order new collection",
			current: nil, desired: []string{"A"},
			mode: SyncModeSync, order: OrderSortName, existed: false,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ComputePlan(tt.current, tt.desired, tt.mode, tt.order, tt.existed)
			if plan.RequiresFullReorder != tt.want {
				t.Errorf("RequiresFullReorder = %v, want %v", plan.RequiresFullReorder, tt.want)
			}
		})
	}
}

func TestSyncIdempotent(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 2}}
	server.members["col-1"] = []string{"A", "B"}

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeSync, Order: OrderCustom}
	members := []Member{member("A title", "A"), member("B title", "B")}

	outcome, err := r.Sync(context.Background(), spec, members)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.Added != 0 || outcome.Removed != 0 {
		t.Errorf("already-synced collection mutated: added=%d removed=%d", outcome.Added, outcome.Removed)
	}
	if len(server.added) != 0 || len(server.removed) != 0 {
		t.Errorf("server mutated on no-op diff: adds=%v removes=%v", server.added, server.removed)
	}
}

func TestSyncAddsAndRemoves(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 3}}
	server.members["col-1"] = []string{"A", "B", "C"}

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeSync, Order: OrderCustom}
	members := []Member{member("B title", "B"), member("D title", "D")}

	outcome, err := r.Sync(context.Background(), spec, members)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.Added != 1 || outcome.Removed != 2 {
		t.Errorf("added=%d removed=%d, want 1 and 2", outcome.Added, outcome.Removed)
	}
	// Custom sync on an existing collection with pending changes reorders.
	if got := server.members["col-1"]; !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("final members = %v, want [B D]", got)
	}
}

func TestSyncCreatesMissingCollection(t *testing.T) {
	server := newFakeServer()
	server.nextID = "col-new"

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Fresh", SyncMode: SyncModeSync, Order: OrderCustom}
	members := []Member{member("A title", "A")}

	outcome, err := r.Sync(context.Background(), spec, members)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.Existed {
		t.Error("Existed = true for a fresh collection")
	}
	if outcome.CollectionID != "col-new" {
		t.Errorf("CollectionID = %q, want col-new", outcome.CollectionID)
	}
	if got := server.members["col-new"]; !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("members = %v, want [A]", got)
	}
}

func TestSyncPicksLargestDuplicate(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{
		{ID: "col-small", Name: "Trending", ChildCount: 2},
		{ID: "col-big", Name: "Trending", ChildCount: 40},
		{ID: "other", Name: "Other", ChildCount: 100},
	}
	server.members["col-big"] = []string{"A"}

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeAppend, Order: OrderCustom}

	outcome, err := r.Sync(context.Background(), spec, []Member{member("A title", "A")})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.CollectionID != "col-big" {
		t.Errorf("CollectionID = %q, want the largest duplicate col-big", outcome.CollectionID)
	}
}

func TestSyncMutationFailureIsFatal(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 0}}
	server.addErr = errors.New("server rejected batch")

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeAppend, Order: OrderCustom}

	outcome, err := r.Sync(context.Background(), spec, []Member{member("A title", "A")})
	if err == nil {
		t.Fatal("expected error from failed add")
	}
	if outcome != nil && (outcome.Added != 0 || outcome.Removed != 0) {
		t.Errorf("counts must not be populated on failure: %+v", outcome)
	}
}

func TestSyncMetadataFailureNonFatal(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 0}}
	server.metadataErr = errors.New("metadata rejected")

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeAppend, Order: OrderCustom, Summary: "desc"}

	outcome, err := r.Sync(context.Background(), spec, []Member{member("A title", "A")})
	if err != nil {
		t.Fatalf("metadata failure should not fail the sync: %v", err)
	}
	if outcome.Added != 1 {
		t.Errorf("Added = %d, want 1", outcome.Added)
	}
}

func TestSyncDryRunComputesWithoutApplying(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 1}}
	server.members["col-1"] = []string{"A"}

	r := NewReconciler(server, true, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeSync, Order: OrderCustom}
	members := []Member{member("B title", "B")}

	outcome, err := r.Sync(context.Background(), spec, members)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(server.added) != 0 || len(server.removed) != 0 || len(server.metadata) != 0 {
		t.Error("dry run touched the server")
	}
	if !reflect.DeepEqual(outcome.AddedTitles, []string{"B title"}) {
		t.Errorf("AddedTitles = %v, want the computed plan", outcome.AddedTitles)
	}
}

func TestSyncUnmatchedMembersExcluded(t *testing.T) {
	server := newFakeServer()
	server.collections = []jellyfin.Collection{{ID: "col-1", Name: "Trending", ChildCount: 0}}

	r := NewReconciler(server, false, zerolog.Nop())
	spec := &Spec{Name: "Trending", SyncMode: SyncModeSync, Order: OrderCustom}
	members := []Member{member("Matched", "A"), member("Unmatched", "")}

	outcome, err := r.Sync(context.Background(), spec, members)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.Added != 1 {
		t.Errorf("Added = %d, want 1 (unmatched member must not count)", outcome.Added)
	}
}
