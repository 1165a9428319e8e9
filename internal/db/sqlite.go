package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// SQLiteService owns the embedded store. The diary lives entirely on
// device, so the relational engine is a single sqlite file under the
// app's data directory.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(log *logger.Logger, path string) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")

	serviceLog.Info("Opening sqlite database...", "path", path)
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		serviceLog.Error("Failed to open sqlite database", "error", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Cascade deletes for tags and analysis rows depend on this pragma.
	if err := gdb.Exec(`PRAGMA foreign_keys = ON;`).Error; err != nil {
		serviceLog.Error("Failed to enable foreign key enforcement", "error", err)
		return nil, fmt.Errorf("failed to enable foreign key enforcement: %w", err)
	}

	return &SQLiteService{db: gdb, log: serviceLog}, nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	err := s.db.AutoMigrate(
		&types.DiaryEntry{},
		&types.Tag{},
		&types.DiaryAnalysis{},
		&types.UserProfile{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for sqlite tables", "error", err)
		return err
	}
	return nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
