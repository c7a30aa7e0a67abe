package forms

import (
	"errors"
	"strings"
	"testing"
)

func TestNewDocumentIDRejectsEmptyAndOversized(t *testing.T) {
	if _, err := NewDocumentID("   "); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("expected ErrInvalidDocumentID, got %v", err)
	}
	if _, err := NewDocumentID(strings.Repeat("x", 191)); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("expected ErrInvalidDocumentID for oversized input, got %v", err)
	}
	id, err := NewDocumentID("  doc-1  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "doc-1" {
		t.Fatalf("expected trimmed id, got %q", id.String())
	}
}

func TestParseQuestionTypeCoversClosedSet(t *testing.T) {
	known := []string{
		"text", "textarea", "number", "currency", "select", "multiselect",
		"tristate", "date", "email", "phone", "url", "account_lookup", "contact_lookup",
	}
	for _, raw := range known {
		if _, err := ParseQuestionType(raw); err != nil {
			t.Fatalf("expected %q to parse, got %v", raw, err)
		}
	}
	if _, err := ParseQuestionType("checkbox"); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion for unknown type, got %v", err)
	}
}

func TestQuestionValidationRejectsMismatchedRules(t *testing.T) {
	tests := []struct {
		name     string
		question Question
	}{
		{
			name: "options-on-text",
			question: Question{
				ID: "q1", Type: QuestionTypeText, Text: "Name",
				Options: []string{"a", "b"},
			},
		},
		{
			name: "select-without-options",
			question: Question{
				ID: "q1", Type: QuestionTypeSelect, Text: "Pick one",
			},
		},
		{
			name: "length-bounds-on-number",
			question: Question{
				ID: "q1", Type: QuestionTypeNumber, Text: "Amount",
				Rules: ValidationRules{MinLength: intPtr(2)},
			},
		},
		{
			name: "selection-bounds-on-select",
			question: Question{
				ID: "q1", Type: QuestionTypeSelect, Text: "Pick one",
				Options: []string{"a"},
				Rules:   ValidationRules{MaxSelections: intPtr(2)},
			},
		},
		{
			name: "inverted-numeric-bounds",
			question: Question{
				ID: "q1", Type: QuestionTypeNumber, Text: "Amount",
				Rules: ValidationRules{Min: floatPtr(10), Max: floatPtr(1)},
			},
		},
		{
			name: "non-positive-step",
			question: Question{
				ID: "q1", Type: QuestionTypeNumber, Text: "Amount",
				Rules: ValidationRules{Step: floatPtr(0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.question.validate(); !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
		})
	}
}

func TestConditionValidationEnforcesOperatorValuePairing(t *testing.T) {
	missingValue := Condition{QuestionID: "q1", Operator: OperatorEquals}
	if err := missingValue.validate(); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for value-less equals, got %v", err)
	}

	extraValue := Condition{QuestionID: "q1", Operator: OperatorIsEmpty, Value: "yes"}
	if err := extraValue.validate(); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for is_empty with value, got %v", err)
	}

	valid := Condition{QuestionID: "q1", Operator: OperatorIsNotEmpty, Combinator: CombinatorAnd}
	if err := valid.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDocumentValidationRejectsBrokenReferences(t *testing.T) {
	document := revenueDocument(t, "doc-1")

	document.Sections[0].Questions[1].Condition.QuestionID = "missing"
	if err := document.Validate(); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for dangling reference, got %v", err)
	}

	document.Sections[0].Questions[1].Condition.QuestionID = "q2"
	if err := document.Validate(); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for self reference, got %v", err)
	}
}

func TestDocumentValidationRejectsDuplicateQuestionIDs(t *testing.T) {
	document := revenueDocument(t, "doc-1")
	document.Sections = append(document.Sections, Section{
		ID:    "sec-extra",
		Title: "Extra",
		Questions: []Question{{
			ID: "q1", Type: QuestionTypeText, Text: "Duplicate",
		}},
	})
	if err := document.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for duplicate ids, got %v", err)
	}
}

func TestDocumentValidationTiesOriginalIDToVersion(t *testing.T) {
	document := revenueDocument(t, "doc-1")

	document.Version = 2
	if err := document.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for version 2 without original_id, got %v", err)
	}

	root := mustDocumentID(t, "doc-root")
	document.OriginalID = &root
	if err := document.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	document.Version = 1
	if err := document.Validate(); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for version 1 with original_id, got %v", err)
	}
}

func TestRootIDResolvesLineageRoot(t *testing.T) {
	document := revenueDocument(t, "doc-1")
	if document.RootID() != "doc-1" {
		t.Fatalf("expected own id for version 1, got %s", document.RootID())
	}

	root := mustDocumentID(t, "doc-root")
	document.Version = 2
	document.OriginalID = &root
	if document.RootID() != "doc-root" {
		t.Fatalf("expected original id for later versions, got %s", document.RootID())
	}
}

func TestQuestionsFlattensAcrossSections(t *testing.T) {
	document := revenueDocument(t, "doc-1")
	document.Sections = append(document.Sections, Section{
		ID:    "sec-contact",
		Title: "Contact",
		Questions: []Question{{
			ID: "q3", Type: QuestionTypeEmail, Text: "Email address",
		}},
	})

	questions := document.Questions()
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if questions[0].ID != "q1" || questions[2].ID != "q3" {
		t.Fatalf("unexpected flattening order: %v", []QuestionID{questions[0].ID, questions[1].ID, questions[2].ID})
	}

	if _, ok := document.QuestionByID("q3"); !ok {
		t.Fatalf("expected to find q3")
	}
	if _, ok := document.QuestionByID("q9"); ok {
		t.Fatalf("did not expect to find q9")
	}
}
