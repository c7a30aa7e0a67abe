package forms

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// DocumentRecord is the persisted shape of one document version. The
// section tree lives in a JSON column; the versioning fields are plain
// columns so lineage and liveness queries stay indexable.
type DocumentRecord struct {
	ID               string         `gorm:"column:id;primaryKey;size:190;not null"`
	TenantID         string         `gorm:"column:tenant_id;size:190;not null;index:idx_documents_tenant"`
	Title            string         `gorm:"column:title;size:500;not null"`
	Description      string         `gorm:"column:description;type:text;not null;default:''"`
	SectionsJSON     datatypes.JSON `gorm:"column:sections;type:json;not null"`
	Version          int64          `gorm:"column:version;not null;default:1"`
	OriginalID       *string        `gorm:"column:original_id;size:190;index:idx_documents_lineage"`
	ValidFromSeconds int64          `gorm:"column:valid_from_s;not null"`
	ValidUntilSecs   *int64         `gorm:"column:valid_until_s"`
	IsPublished      bool           `gorm:"column:is_published;not null;default:false"`
	PublishedAtSecs  *int64         `gorm:"column:published_at_s"`
	Recurrence       string         `gorm:"column:recurrence;size:190;not null;default:''"`
	ReminderDays     int            `gorm:"column:reminder_days;not null;default:0"`
	SuccessMessage   string         `gorm:"column:success_message;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRecord) TableName() string {
	return "form_documents"
}

// SubmissionStatus marks whether a submission is still editable.
type SubmissionStatus string

const (
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
)

// SubmissionRecord is the persisted shape of one submission, including
// the frozen snapshot of the document version it was taken against.
type SubmissionRecord struct {
	ID                 string         `gorm:"column:id;primaryKey;size:190;not null"`
	TenantID           string         `gorm:"column:tenant_id;size:190;not null;index:idx_submissions_tenant"`
	DocumentID         string         `gorm:"column:document_id;size:190;not null;index:idx_submissions_document"`
	SnapshotJSON       datatypes.JSON `gorm:"column:snapshot;type:json;not null"`
	AnswersJSON        datatypes.JSON `gorm:"column:answers;type:json;not null"`
	Status             string         `gorm:"column:status;size:20;not null;default:'draft'"`
	SubmittedAtSeconds int64          `gorm:"column:submitted_at_s;not null"`
	SubmitterID        string         `gorm:"column:submitter_id;size:190;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (SubmissionRecord) TableName() string {
	return "form_submissions"
}

func toRecord(document Document) (DocumentRecord, error) {
	sections, err := json.Marshal(document.Sections)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("encode sections: %w", err)
	}
	record := DocumentRecord{
		ID:               document.ID.String(),
		TenantID:         document.TenantID.String(),
		Title:            document.Title,
		Description:      document.Description,
		SectionsJSON:     sections,
		Version:          document.Version,
		ValidFromSeconds: document.ValidFrom,
		ValidUntilSecs:   document.ValidUntil,
		IsPublished:      document.IsPublished,
		PublishedAtSecs:  document.PublishedAt,
		Recurrence:       document.Recurrence,
		ReminderDays:     document.ReminderDays,
		SuccessMessage:   document.SuccessMessage,
	}
	if document.OriginalID != nil {
		original := document.OriginalID.String()
		record.OriginalID = &original
	}
	return record, nil
}

func fromRecord(record DocumentRecord) (Document, error) {
	var sections []Section
	if len(record.SectionsJSON) > 0 {
		if err := json.Unmarshal(record.SectionsJSON, &sections); err != nil {
			return Document{}, fmt.Errorf("decode sections for document %s: %w", record.ID, err)
		}
	}
	document := Document{
		ID:             DocumentID(record.ID),
		TenantID:       TenantID(record.TenantID),
		Title:          record.Title,
		Description:    record.Description,
		Sections:       sections,
		Version:        record.Version,
		ValidFrom:      record.ValidFromSeconds,
		ValidUntil:     record.ValidUntilSecs,
		IsPublished:    record.IsPublished,
		PublishedAt:    record.PublishedAtSecs,
		Recurrence:     record.Recurrence,
		ReminderDays:   record.ReminderDays,
		SuccessMessage: record.SuccessMessage,
	}
	if record.OriginalID != nil {
		original := DocumentID(*record.OriginalID)
		document.OriginalID = &original
	}
	return document, nil
}

func toSubmissionRecord(submission Submission) (SubmissionRecord, error) {
	snapshot, err := json.Marshal(submission.Snapshot)
	if err != nil {
		return SubmissionRecord{}, fmt.Errorf("encode snapshot: %w", err)
	}
	answers, err := json.Marshal(submission.Answers)
	if err != nil {
		return SubmissionRecord{}, fmt.Errorf("encode answers: %w", err)
	}
	return SubmissionRecord{
		ID:                 submission.ID,
		TenantID:           submission.TenantID.String(),
		DocumentID:         submission.DocumentID.String(),
		SnapshotJSON:       snapshot,
		AnswersJSON:        answers,
		Status:             string(submission.Status),
		SubmittedAtSeconds: submission.SubmittedAt,
		SubmitterID:        submission.SubmitterID,
	}, nil
}

func fromSubmissionRecord(record SubmissionRecord) (Submission, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(record.SnapshotJSON, &snapshot); err != nil {
		return Submission{}, fmt.Errorf("decode snapshot for submission %s: %w", record.ID, err)
	}
	answers := make(AnswerSet)
	if len(record.AnswersJSON) > 0 {
		raw := make(map[string]any)
		if err := json.Unmarshal(record.AnswersJSON, &raw); err != nil {
			return Submission{}, fmt.Errorf("decode answers for submission %s: %w", record.ID, err)
		}
		for key, value := range raw {
			answers[QuestionID(key)] = value
		}
	}
	return Submission{
		ID:          record.ID,
		TenantID:    TenantID(record.TenantID),
		DocumentID:  DocumentID(record.DocumentID),
		Snapshot:    snapshot,
		Answers:     answers,
		Status:      SubmissionStatus(record.Status),
		SubmittedAt: record.SubmittedAtSeconds,
		SubmitterID: record.SubmitterID,
	}, nil
}
