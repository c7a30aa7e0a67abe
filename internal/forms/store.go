package forms

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store is the persistence surface consumed by the version manager. The
// close-and-open transaction relies on InTx wrapping ConditionalClose
// and InsertVersion atomically.
type Store interface {
	// GetByID loads the exact version row with the given identifier.
	GetByID(ctx context.Context, id DocumentID) (Document, error)
	// GetLive resolves a possibly-non-root identifier to its lineage's
	// current live version.
	GetLive(ctx context.Context, id DocumentID) (Document, error)
	// ListLineage returns every version of the lineage containing the
	// given identifier, ordered by version descending.
	ListLineage(ctx context.Context, id DocumentID) ([]Document, error)
	// InsertVersion persists a new version row.
	InsertVersion(ctx context.Context, document Document) error
	// ConditionalClose stamps valid_until on the row only while it is
	// still open, returning the number of rows affected. Zero means a
	// concurrent update closed it first.
	ConditionalClose(ctx context.Context, id DocumentID, closedAt int64) (int64, error)
	// UpdateInPlace overwrites the content and publication columns of
	// the row only while it is still open; the chaining columns are
	// never written. A row closed by a concurrent structural update
	// surfaces as ErrConflict, a missing row as ErrNotFound.
	UpdateInPlace(ctx context.Context, document Document) error
	// InTx runs fn against a transactional view of the store; any error
	// aborts the whole transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// InsertSubmission persists a submission with its frozen snapshot.
	InsertSubmission(ctx context.Context, submission Submission) error
	// GetSubmission loads a stored submission by identifier.
	GetSubmission(ctx context.Context, id string) (Submission, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a GORM handle in the Store interface.
func NewStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New("forms: database handle is required")
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) GetByID(ctx context.Context, id DocumentID) (Document, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, err
	}
	return fromRecord(record)
}

func (s *gormStore) GetLive(ctx context.Context, id DocumentID) (Document, error) {
	anchor, err := s.GetByID(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if anchor.IsLive() {
		return anchor, nil
	}

	root := anchor.RootID()
	var record DocumentRecord
	err = s.db.WithContext(ctx).
		Where("(id = ? OR original_id = ?) AND valid_until_s IS NULL", root.String(), root.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%w: no live version for lineage %s", ErrNotFound, root)
	}
	if err != nil {
		return Document{}, err
	}
	return fromRecord(record)
}

func (s *gormStore) ListLineage(ctx context.Context, id DocumentID) ([]Document, error) {
	anchor, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	root := anchor.RootID()

	var records []DocumentRecord
	if err := s.db.WithContext(ctx).
		Where("id = ? OR original_id = ?", root.String(), root.String()).
		Order("version DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	documents := make([]Document, 0, len(records))
	for _, record := range records {
		document, err := fromRecord(record)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, nil
}

func (s *gormStore) InsertVersion(ctx context.Context, document Document) error {
	record, err := toRecord(document)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *gormStore) ConditionalClose(ctx context.Context, id DocumentID, closedAt int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ? AND valid_until_s IS NULL", id.String()).
		Update("valid_until_s", closedAt)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *gormStore) UpdateInPlace(ctx context.Context, document Document) error {
	record, err := toRecord(document)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&DocumentRecord{}).
		Where("id = ? AND valid_until_s IS NULL", record.ID).
		Select("*").
		Omit("id", "version", "original_id", "valid_from_s", "valid_until_s").
		Updates(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&DocumentRecord{}).
			Where("id = ?", record.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, document.ID)
		}
		return fmt.Errorf("%w: document %s was closed before the write", ErrConflict, document.ID)
	}
	return nil
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) InsertSubmission(ctx context.Context, submission Submission) error {
	record, err := toSubmissionRecord(submission)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

func (s *gormStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var record SubmissionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Submission{}, fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	if err != nil {
		return Submission{}, err
	}
	return fromSubmissionRecord(record)
}
