package cache

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationScrubPlaceholderFileURLs = "2026-05-10_scrub_placeholder_file_urls"

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
		{name: migrationScrubPlaceholderFileURLs, apply: scrubPlaceholderFileURLs},
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
			logger.Info("cache migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Older cache versions persisted the backend's "[null]"/"null" attachment
// placeholders verbatim instead of normalizing them to empty.
func scrubPlaceholderFileURLs(db *gorm.DB) error {
	if err := db.Model(&CachedPost{}).
		Where("files_url IN ?", []string{"null", "[null]"}).
		Update("files_url", "").Error; err != nil {
		return err
	}
	return db.Model(&CachedMessage{}).
		Where("file_url IN ?", []string{"null", "[null]"}).
		Update("file_url", "").Error
}
