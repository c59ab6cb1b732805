package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/retainhq/retain/backend/internal/sync"
	"github.com/retainhq/retain/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&users.Client{},
		&sync.Card{},
		&sync.CardContent{},
		&sync.CardDeleted{},
		&sync.CardBookmarked{},
		&sync.CardSuspended{},
		&sync.CardMetadata{},
		&sync.Deck{},
		&sync.CardDeck{},
		&sync.ReviewLog{},
		&sync.ReviewLogDeleted{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
