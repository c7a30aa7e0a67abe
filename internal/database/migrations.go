package database

import (
	"errors"
	"time"

	"github.com/formline/backend/internal/forms"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationNormalizeRootOriginalID = "2026-05-18_normalize_root_original_id"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeRootOriginalID, apply: normalizeRootOriginalID},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeRootOriginalID clears original_id on lineage roots. Early
// imports stored the root's own id there, which made "original_id is
// null iff version 1" queries lie about those rows.
func normalizeRootOriginalID(db *gorm.DB) error {
	return db.Model(&forms.DocumentRecord{}).
		Where("original_id = id AND version = 1").
		Update("original_id", nil).Error
}
