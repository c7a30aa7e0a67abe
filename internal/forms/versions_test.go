package forms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func createRevenueDocument(t *testing.T, service *Service) Document {
	t.Helper()
	document, err := service.Create(context.Background(), NewDocumentInput{
		TenantID: mustTenantID(t, "tenant-1"),
		Title:    "Revenue intake",
		Sections: revenueSections(),
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return document
}

func TestCreateStartsUnpublishedAtVersionOne(t *testing.T) {
	service, store := newTestService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)

	if document.Version != 1 {
		t.Fatalf("expected version 1, got %d", document.Version)
	}
	if document.OriginalID != nil {
		t.Fatalf("version 1 must not carry original_id")
	}
	if document.IsPublished || document.PublishedAt != nil {
		t.Fatalf("new documents must start unpublished")
	}
	if !document.IsLive() {
		t.Fatalf("new documents must be live")
	}

	stored, err := store.GetByID(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if stored.Title != "Revenue intake" || len(stored.Sections) != 1 {
		t.Fatalf("stored document does not round-trip: %+v", stored)
	}
}

func TestCreateRejectsInvalidDefinitions(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1"})

	sections := revenueSections()
	sections[0].Questions[1].Condition.QuestionID = "missing"
	_, err := service.Create(context.Background(), NewDocumentInput{
		TenantID: mustTenantID(t, "tenant-1"),
		Title:    "Broken",
		Sections: sections,
	})
	if !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition, got %v", err)
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)

	first, err := service.Publish(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if !first.IsPublished || first.PublishedAt == nil {
		t.Fatalf("expected published document with timestamp")
	}
	if first.Version != 1 {
		t.Fatalf("publish must not change the version")
	}

	second, err := service.Publish(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected repeat publish error: %v", err)
	}
	if *second.PublishedAt != *first.PublishedAt {
		t.Fatalf("repeat publish must keep the original timestamp: %d vs %d",
			*second.PublishedAt, *first.PublishedAt)
	}
}

func TestPublishMissingDocumentFails(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1"})
	if _, err := service.Publish(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCosmeticUpdateStaysInPlace(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	updated, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Title: strPtr("Renamed intake")}, false)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Version != 1 {
		t.Fatalf("cosmetic updates must not change the version, got %d", updated.Version)
	}
	if updated.ID != document.ID {
		t.Fatalf("cosmetic updates must keep the same row")
	}
	if updated.Title != "Renamed intake" {
		t.Fatalf("patch was not applied: %q", updated.Title)
	}
}

func TestStructuralUpdateBeforePublishStaysInPlace(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)

	sections := revenueSections()
	sections[0].Questions[0].Text = "Any revenue at all?"
	updated, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Sections: &sections}, true)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Version != 1 || updated.ID != document.ID {
		t.Fatalf("unpublished structural updates must stay in place, got version %d", updated.Version)
	}
}

func TestStructuralUpdateAfterPublishChainsVersions(t *testing.T) {
	service, store := newTestService(t, []string{"doc-1", "doc-2", "doc-3"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	sections := revenueSections()
	sections[0].Questions[0].Text = "Any revenue at all?"
	v2, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Sections: &sections}, true)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version)
	}
	if v2.OriginalID == nil || *v2.OriginalID != document.ID {
		t.Fatalf("version 2 must chain to the root, got %v", v2.OriginalID)
	}
	if !v2.IsPublished {
		t.Fatalf("publication state must carry over to the new version")
	}

	closed, err := store.GetByID(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if closed.IsLive() {
		t.Fatalf("old version must be closed")
	}

	// A further structural update chains to the root, not to version 2.
	sections[0].Questions[0].Text = "Seriously, any revenue?"
	v3, err := service.Update(context.Background(), v2.ID,
		DocumentPatch{Sections: &sections}, true)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if v3.Version != 3 {
		t.Fatalf("expected version 3, got %d", v3.Version)
	}
	if v3.OriginalID == nil || *v3.OriginalID != document.ID {
		t.Fatalf("version 3 must still chain to the root, got %v", v3.OriginalID)
	}
}

func TestUpdateThroughStaleVersionIDActsOnLiveRow(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1", "doc-2"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	sections := revenueSections()
	sections[0].Questions[0].Required = false
	v2, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Sections: &sections}, true)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	// Cosmetic edit addressed via the closed root id lands on version 2.
	updated, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Description: strPtr("now with context")}, false)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.ID != v2.ID || updated.Version != 2 {
		t.Fatalf("expected the live version to absorb the edit, got version %d", updated.Version)
	}
}

func TestListLineageIsCompleteAndOrdered(t *testing.T) {
	service, _ := newTestService(t, []string{"doc-1", "doc-2", "doc-3"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	sections := revenueSections()
	for i := 0; i < 2; i++ {
		sections[0].Questions[0].Text = "Revision"
		latest, err := service.GetLive(context.Background(), document.ID)
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if _, err := service.Update(context.Background(), latest.ID,
			DocumentPatch{Sections: &sections}, true); err != nil {
			t.Fatalf("unexpected update error: %v", err)
		}
	}

	lineage, err := service.ListLineage(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected lineage error: %v", err)
	}
	if len(lineage) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(lineage))
	}
	liveCount := 0
	for i, version := range lineage {
		expected := int64(3 - i)
		if version.Version != expected {
			t.Fatalf("expected version %d at position %d, got %d", expected, i, version.Version)
		}
		if version.Version > 1 {
			if version.OriginalID == nil || *version.OriginalID != document.ID {
				t.Fatalf("version %d must chain to root", version.Version)
			}
		}
		if version.IsLive() {
			liveCount++
		}
	}
	if liveCount != 1 {
		t.Fatalf("expected exactly one live version, got %d", liveCount)
	}
}

func TestConcurrentStructuralUpdatesKeepLineageConsistent(t *testing.T) {
	service, store := newTestService(t, nil)
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	sections := revenueSections()
	sections[0].Questions[0].Text = "Contended edit"

	var wg sync.WaitGroup
	results := make(chan error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := service.Update(context.Background(), document.ID,
				DocumentPatch{Sections: &sections}, true)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if successes < 1 {
		t.Fatalf("expected at least one structural update to win (successes=%d conflicts=%d)", successes, conflicts)
	}

	lineage, err := store.ListLineage(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected lineage error: %v", err)
	}
	liveCount := 0
	versions := make(map[int64]bool)
	for _, version := range lineage {
		if version.IsLive() {
			liveCount++
		}
		if versions[version.Version] {
			t.Fatalf("duplicate version number %d", version.Version)
		}
		versions[version.Version] = true
	}
	if liveCount != 1 {
		t.Fatalf("expected exactly one live version after the race, got %d", liveCount)
	}
	for v := int64(1); v <= int64(len(lineage)); v++ {
		if !versions[v] {
			t.Fatalf("version numbers must be gapless, missing %d in %v", v, versions)
		}
	}
}

// interposedStore injects a callback between the service's read of the
// live version and its in-place write, making lost-race interleavings
// deterministic.
type interposedStore struct {
	Store
	beforeWrite func()
}

func (s *interposedStore) UpdateInPlace(ctx context.Context, document Document) error {
	if s.beforeWrite != nil {
		hook := s.beforeWrite
		s.beforeWrite = nil
		hook()
	}
	return s.Store.UpdateInPlace(ctx, document)
}

func newInterposedService(t *testing.T, ids []string) (*Service, *interposedStore, Store) {
	t.Helper()

	inner := newTestStore(t)
	wrapped := &interposedStore{Store: inner}
	service, err := NewService(ServiceConfig{
		Store:      wrapped,
		Clock:      func() time.Time { return time.Unix(testClockSeconds, 0).UTC() },
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct forms service: %v", err)
	}
	return service, wrapped, inner
}

// closeLineageUnderneath simulates a structural update that wins the
// race: it closes the current live row and opens version 2 directly
// against the store.
func closeLineageUnderneath(t *testing.T, store Store, root Document) {
	t.Helper()

	if _, err := store.ConditionalClose(context.Background(), root.ID, testClockSeconds+5); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	rootID := root.ID
	publishedAt := int64(testClockSeconds)
	next := revenueDocument(t, "doc-2")
	next.Version = 2
	next.OriginalID = &rootID
	next.IsPublished = true
	next.PublishedAt = &publishedAt
	next.ValidFrom = testClockSeconds + 5
	if err := store.InsertVersion(context.Background(), next); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
}

func assertSingleLiveVersion(t *testing.T, store Store, root Document) {
	t.Helper()

	lineage, err := store.ListLineage(context.Background(), root.ID)
	if err != nil {
		t.Fatalf("unexpected lineage error: %v", err)
	}
	liveCount := 0
	for _, version := range lineage {
		if version.IsLive() {
			liveCount++
			if version.Version != 2 {
				t.Fatalf("expected version 2 to stay live, got %d", version.Version)
			}
		}
	}
	if liveCount != 1 {
		t.Fatalf("expected exactly one live version, got %d", liveCount)
	}
}

func TestCosmeticUpdateLosingCloseRaceConflicts(t *testing.T) {
	service, wrapped, inner := newInterposedService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	wrapped.beforeWrite = func() { closeLineageUnderneath(t, inner, document) }
	_, err := service.Update(context.Background(), document.ID,
		DocumentPatch{Description: strPtr("late edit")}, false)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a cosmetic edit losing the close race, got %v", err)
	}

	assertSingleLiveVersion(t, inner, document)
	stale, err := inner.GetByID(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if stale.IsLive() {
		t.Fatalf("the lost write must not re-open the closed row")
	}
	if stale.Description != "" {
		t.Fatalf("the lost edit must not land anywhere, got %q", stale.Description)
	}
}

func TestRetireLosingCloseRaceConflicts(t *testing.T) {
	service, wrapped, inner := newInterposedService(t, []string{"doc-1"})
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	wrapped.beforeWrite = func() { closeLineageUnderneath(t, inner, document) }
	if _, err := service.Retire(context.Background(), document.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for retire losing the close race, got %v", err)
	}

	assertSingleLiveVersion(t, inner, document)
	live, err := inner.GetLive(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if !live.IsPublished {
		t.Fatalf("the lost retire must not unpublish the new live version")
	}
}

func TestRetireStopsAcceptingSubmissions(t *testing.T) {
	service, _ := newTestService(t, nil)
	document := createRevenueDocument(t, service)
	if _, err := service.Publish(context.Background(), document.ID); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	retired, err := service.Retire(context.Background(), document.ID)
	if err != nil {
		t.Fatalf("unexpected retire error: %v", err)
	}
	if retired.IsPublished {
		t.Fatalf("retire must unpublish the live version")
	}

	_, err = service.Submit(context.Background(), SubmitInput{
		DocumentID: document.ID,
		Answers:    AnswerSet{"q1": "no"},
	})
	if !errors.Is(err, ErrNotPublished) {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
}
