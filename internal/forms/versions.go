package forms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps engine failures with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "forms.service.new"
	opCreate        = "forms.create"
	opPublish       = "forms.publish"
	opRetire        = "forms.retire"
	opUpdate        = "forms.update"
	opListLineage   = "forms.list_lineage"
	opVisibility    = "forms.visibility"
	opSubmit        = "forms.submit"
	opGetSubmission = "forms.get_submission"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new versions and submissions.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig carries the dependencies for the version manager.
type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the version state machine plus the evaluation and
// validation entry points built on top of it.
type Service struct {
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the engine service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// NewDocumentInput describes a document to create at version 1.
type NewDocumentInput struct {
	TenantID       TenantID
	Title          string
	Description    string
	Sections       []Section
	Recurrence     string
	ReminderDays   int
	SuccessMessage string
}

// Create persists a new unpublished document at version 1.
func (s *Service) Create(ctx context.Context, input NewDocumentInput) (Document, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	document := Document{
		ID:             DocumentID(id),
		TenantID:       input.TenantID,
		Title:          input.Title,
		Description:    input.Description,
		Sections:       input.Sections,
		Version:        1,
		ValidFrom:      s.clock().UTC().Unix(),
		Recurrence:     input.Recurrence,
		ReminderDays:   input.ReminderDays,
		SuccessMessage: input.SuccessMessage,
	}
	if err := document.Validate(); err != nil {
		return Document{}, newServiceError(opCreate, "invalid_document", err)
	}
	if err := s.store.InsertVersion(ctx, document); err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("document_id", id))
		return Document{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.logger.Info("document created",
		zap.String("document_id", id),
		zap.String("tenant_id", input.TenantID.String()))
	return document, nil
}

// Publish marks the live version as accepting submissions. The
// transition is idempotent: the first call stamps published_at, every
// later call returns the document unchanged.
func (s *Service) Publish(ctx context.Context, id DocumentID) (Document, error) {
	document, err := s.store.GetLive(ctx, id)
	if err != nil {
		return Document{}, newServiceError(opPublish, "load_failed", err)
	}
	if document.IsPublished {
		return document, nil
	}

	publishedAt := s.clock().UTC().Unix()
	document.IsPublished = true
	document.PublishedAt = &publishedAt
	if err := s.store.UpdateInPlace(ctx, document); err != nil {
		if errors.Is(err, ErrConflict) {
			return Document{}, newServiceError(opPublish, "version_conflict", err)
		}
		s.logError(opPublish, "update_failed", err, zap.String("document_id", document.ID.String()))
		return Document{}, newServiceError(opPublish, "update_failed", err)
	}

	s.logger.Info("document published",
		zap.String("document_id", document.ID.String()),
		zap.Int64("version", document.Version))
	return document, nil
}

// Retire stops the live version from accepting new submissions without
// deleting anything; historical submissions keep their snapshots.
func (s *Service) Retire(ctx context.Context, id DocumentID) (Document, error) {
	document, err := s.store.GetLive(ctx, id)
	if err != nil {
		return Document{}, newServiceError(opRetire, "load_failed", err)
	}
	if !document.IsPublished {
		return document, nil
	}

	document.IsPublished = false
	if err := s.store.UpdateInPlace(ctx, document); err != nil {
		if errors.Is(err, ErrConflict) {
			return Document{}, newServiceError(opRetire, "version_conflict", err)
		}
		s.logError(opRetire, "update_failed", err, zap.String("document_id", document.ID.String()))
		return Document{}, newServiceError(opRetire, "update_failed", err)
	}
	return document, nil
}

// DocumentPatch lists the fields an update may change. Nil fields are
// left untouched.
type DocumentPatch struct {
	Title          *string
	Description    *string
	Sections       *[]Section
	Recurrence     *string
	ReminderDays   *int
	SuccessMessage *string
}

func (p DocumentPatch) apply(document *Document) {
	if p.Title != nil {
		document.Title = *p.Title
	}
	if p.Description != nil {
		document.Description = *p.Description
	}
	if p.Sections != nil {
		document.Sections = *p.Sections
	}
	if p.Recurrence != nil {
		document.Recurrence = *p.Recurrence
	}
	if p.ReminderDays != nil {
		document.ReminderDays = *p.ReminderDays
	}
	if p.SuccessMessage != nil {
		document.SuccessMessage = *p.SuccessMessage
	}
}

// Update applies an edit to the lineage's live version. The caller
// classifies the edit: cosmetic edits and any edit to an unpublished
// document mutate the row in place; a structural edit to a published
// document closes the current version and opens the next one
// atomically. A lost close race surfaces as ErrConflict and is never
// retried here.
func (s *Service) Update(ctx context.Context, id DocumentID, patch DocumentPatch, isStructural bool) (Document, error) {
	current, err := s.store.GetLive(ctx, id)
	if err != nil {
		return Document{}, newServiceError(opUpdate, "load_failed", err)
	}

	if !current.IsPublished || !isStructural {
		patched := current
		patch.apply(&patched)
		if err := patched.Validate(); err != nil {
			return Document{}, newServiceError(opUpdate, "invalid_document", err)
		}
		if err := s.store.UpdateInPlace(ctx, patched); err != nil {
			if errors.Is(err, ErrConflict) {
				return Document{}, newServiceError(opUpdate, "version_conflict", err)
			}
			s.logError(opUpdate, "update_failed", err, zap.String("document_id", current.ID.String()))
			return Document{}, newServiceError(opUpdate, "update_failed", err)
		}
		return patched, nil
	}

	nextID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUpdate, "id_generation_failed", err)
		return Document{}, newServiceError(opUpdate, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	root := current.RootID()
	next := current
	patch.apply(&next)
	next.ID = DocumentID(nextID)
	next.Version = current.Version + 1
	next.OriginalID = &root
	next.ValidFrom = now
	next.ValidUntil = nil
	if err := next.Validate(); err != nil {
		return Document{}, newServiceError(opUpdate, "invalid_document", err)
	}

	txErr := s.store.InTx(ctx, func(tx Store) error {
		affected, err := tx.ConditionalClose(ctx, current.ID, now)
		if err != nil {
			return newServiceError(opUpdate, "close_failed", err)
		}
		if affected == 0 {
			return newServiceError(opUpdate, "version_conflict",
				fmt.Errorf("%w: document %s", ErrConflict, current.ID))
		}
		if err := tx.InsertVersion(ctx, next); err != nil {
			return newServiceError(opUpdate, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrConflict) {
			s.logError(opUpdate, "transaction_failed", txErr, zap.String("document_id", current.ID.String()))
		}
		return Document{}, txErr
	}

	s.logger.Info("document version opened",
		zap.String("document_id", next.ID.String()),
		zap.String("original_id", root.String()),
		zap.Int64("version", next.Version))
	return next, nil
}

// Get loads the exact version row for an identifier.
func (s *Service) Get(ctx context.Context, id DocumentID) (Document, error) {
	return s.store.GetByID(ctx, id)
}

// GetLive resolves an identifier to its lineage's current version.
func (s *Service) GetLive(ctx context.Context, id DocumentID) (Document, error) {
	return s.store.GetLive(ctx, id)
}

// ListLineage reconstructs the full version history of the logical
// document containing the given identifier, newest first.
func (s *Service) ListLineage(ctx context.Context, id DocumentID) ([]Document, error) {
	documents, err := s.store.ListLineage(ctx, id)
	if err != nil {
		return nil, newServiceError(opListLineage, "query_failed", err)
	}
	return documents, nil
}

// Visibility evaluates the conditional-logic graph of the live version
// against a partial answer set. A cyclic graph surfaces ErrCyclicLogic.
func (s *Service) Visibility(ctx context.Context, id DocumentID, answers AnswerSet) (VisibleSet, error) {
	document, err := s.store.GetLive(ctx, id)
	if err != nil {
		return nil, newServiceError(opVisibility, "load_failed", err)
	}
	visible, hasCycle := Visible(document, answers)
	if hasCycle {
		s.logError(opVisibility, "cyclic_logic", ErrCyclicLogic, zap.String("document_id", document.ID.String()))
		return nil, newServiceError(opVisibility, "cyclic_logic",
			fmt.Errorf("%w: document %s", ErrCyclicLogic, document.ID))
	}
	return visible, nil
}

// SubmitInput describes a candidate submission against a lineage's live
// version.
type SubmitInput struct {
	DocumentID  DocumentID
	Answers     AnswerSet
	SubmitterID string
	AsDraft     bool
}

// SubmitOutcome reports the validation result and, when the submission
// was accepted, the stored record with its frozen snapshot.
type SubmitOutcome struct {
	Submission *Submission
	Result     ValidationResult
}

// Submit validates and stores a submission against the live version.
// Validation failure is a structured result, not an error. Drafts skip
// validation and may be completed later; submitted records are
// immutable.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitOutcome, error) {
	document, err := s.store.GetLive(ctx, input.DocumentID)
	if err != nil {
		return SubmitOutcome{}, newServiceError(opSubmit, "load_failed", err)
	}
	if !document.IsPublished {
		return SubmitOutcome{}, newServiceError(opSubmit, "not_published",
			fmt.Errorf("%w: document %s", ErrNotPublished, document.ID))
	}

	visible, hasCycle := Visible(document, input.Answers)
	if hasCycle {
		s.logError(opSubmit, "cyclic_logic", ErrCyclicLogic, zap.String("document_id", document.ID.String()))
		return SubmitOutcome{}, newServiceError(opSubmit, "cyclic_logic",
			fmt.Errorf("%w: document %s", ErrCyclicLogic, document.ID))
	}

	result := ValidationResult{OK: true}
	if !input.AsDraft {
		result = ValidateSubmission(document, visible, input.Answers)
		if !result.OK {
			return SubmitOutcome{Result: result}, nil
		}
	}

	submissionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return SubmitOutcome{}, newServiceError(opSubmit, "id_generation_failed", err)
	}

	status := SubmissionStatusSubmitted
	if input.AsDraft {
		status = SubmissionStatusDraft
	}
	submission := Submission{
		ID:          submissionID,
		TenantID:    document.TenantID,
		DocumentID:  document.ID,
		Snapshot:    CaptureSnapshot(document),
		Answers:     input.Answers,
		Status:      status,
		SubmittedAt: s.clock().UTC().Unix(),
		SubmitterID: input.SubmitterID,
	}
	if err := s.store.InsertSubmission(ctx, submission); err != nil {
		s.logError(opSubmit, "insert_failed", err, zap.String("document_id", document.ID.String()))
		return SubmitOutcome{}, newServiceError(opSubmit, "insert_failed", err)
	}

	s.logger.Info("submission stored",
		zap.String("submission_id", submissionID),
		zap.String("document_id", document.ID.String()),
		zap.Int64("version", document.Version),
		zap.String("status", string(status)))
	return SubmitOutcome{Submission: &submission, Result: result}, nil
}

// GetSubmission loads a stored submission and its snapshot.
func (s *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	submission, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, newServiceError(opGetSubmission, "load_failed", err)
	}
	return submission, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("forms service error", attrs...)
}
