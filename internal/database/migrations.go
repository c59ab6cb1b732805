package database

import (
	"errors"
	"time"

	"github.com/retainhq/retain/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairSeqCounterFloor = "2026-06-18_repair_seq_counter_floor"

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
		{name: migrationRepairSeqCounterFloor, apply: repairSeqCounterFloor},
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

// Rows imported from an earlier schema could carry next_seq_no = 0; the
// allocator assumes the counter starts at 1.
func repairSeqCounterFloor(db *gorm.DB) error {
	return db.Model(&users.User{}).
		Where("next_seq_no < 1").
		Update("next_seq_no", 1).Error
}
