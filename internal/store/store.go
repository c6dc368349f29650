package store

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps a GORM handle threaded explicitly through constructors: one
// handle opened at process start, closed on shutdown, never a package-level
// mutable global.
type Store struct {
	DB *gorm.DB
}

// Open connects to MySQL and migrates every table in the data model.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return OpenWithDB(db)
}

// OpenWithDB wraps an already-open GORM handle (used by tests with a
// sqlmock dialector).
func OpenWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&WalletUniverseRun{},
		&WalletUniverseMember{},
		&WalletUniverseCurrent{},
		&WalletSnapshot{},
		&IngestRun{},
		&IngestHealth{},
		&Signal{},
		&SignalContributors{},
		&AlertState{},
		&Alert{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}
