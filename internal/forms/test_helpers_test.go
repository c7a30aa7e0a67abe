package forms

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testClockSeconds = 1700000600

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", fmt.Errorf("exhausted ids after %d", g.index)
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:forms_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&DocumentRecord{}, &SubmissionRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(newTestDB(t))
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func newTestService(t *testing.T, ids []string) (*Service, Store) {
	t.Helper()

	store := newTestStore(t)
	var provider IDProvider = NewUUIDProvider()
	if ids != nil {
		provider = &staticIDGenerator{ids: ids}
	}
	clock := func() time.Time { return time.Unix(testClockSeconds, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      clock,
		IDProvider: provider,
	})
	if err != nil {
		t.Fatalf("failed to construct forms service: %v", err)
	}
	return service, store
}

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func mustTenantID(t *testing.T, value string) TenantID {
	t.Helper()
	id, err := NewTenantID(value)
	if err != nil {
		t.Fatalf("unexpected tenant id error: %v", err)
	}
	return id
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

// revenueSections models the canonical two-question form: Q1 asks
// whether the respondent has revenue, Q2 asks for the amount and is
// visible only when Q1 answers yes.
func revenueSections() []Section {
	return []Section{{
		ID:    "sec-main",
		Title: "Revenue",
		Questions: []Question{
			{
				ID:       "q1",
				Type:     QuestionTypeTristate,
				Text:     "Do you have revenue?",
				Required: true,
			},
			{
				ID:       "q2",
				Type:     QuestionTypeNumber,
				Text:     "Monthly revenue amount",
				Required: true,
				Rules:    ValidationRules{Min: floatPtr(0)},
				Condition: &Condition{
					QuestionID: "q1",
					Operator:   OperatorEquals,
					Value:      "yes",
				},
			},
		},
	}}
}

func revenueDocument(t *testing.T, id string) Document {
	t.Helper()
	document := Document{
		ID:        mustDocumentID(t, id),
		TenantID:  mustTenantID(t, "tenant-1"),
		Title:     "Revenue intake",
		Sections:  revenueSections(),
		Version:   1,
		ValidFrom: testClockSeconds,
	}
	if err := document.Validate(); err != nil {
		t.Fatalf("unexpected document validation error: %v", err)
	}
	return document
}
