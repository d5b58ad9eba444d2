// Package localstore is the durable, transactional store on the
// technician's device. It owns the outbound operation queue and the shadow
// copies of work the technician records while offline.
package localstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/fieldsync-go/internal/errors"
	"github.com/tphakala/fieldsync-go/internal/logging"
)

// Store is the device-local store backed by a single SQLite file.
// All mutations run inside SQLite transactions so a crash leaves each
// operation either fully applied or absent.
type Store struct {
	db             *gorm.DB
	path           string
	attemptCeiling int
	reserveMu      sync.Mutex // serializes batch reservation
	logger         *slog.Logger
}

// Config holds the construction parameters for a Store.
type Config struct {
	Path           string // SQLite file path, or ":memory:" for tests
	AttemptCeiling int    // max attempts before retry is promoted to failed
	Debug          bool
}

// Open opens the SQLite file and runs the idempotent schema migration.
// A store that cannot be opened or migrated is unusable; those failures
// wrap errors.ErrStoreUnavailable.
func Open(cfg Config) (*Store, error) {
	if cfg.AttemptCeiling < 1 {
		return nil, errors.Newf("attempt ceiling must be at least 1, got %d", cfg.AttemptCeiling).
			Component("localstore").
			Category(errors.CategoryValidation).
			Build()
	}

	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable(err, "create_store_dir", cfg.Path)
		}
	}

	logLevel := gormlogger.Silent
	if cfg.Debug {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, unavailable(err, "open", cfg.Path)
	}

	store := &Store{
		db:             db,
		path:           cfg.Path,
		attemptCeiling: cfg.AttemptCeiling,
		logger:         logging.ForService("localstore"),
	}

	if err := store.migrate(); err != nil {
		return nil, err
	}

	store.logger.Info("local store opened", "path", cfg.Path, "attempt_ceiling", cfg.AttemptCeiling)
	return store, nil
}

// migrate idempotently ensures all tables and required columns exist.
// Missing columns are added with nullable defaults; running it on every
// startup is safe.
func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&Operation{},
		&ShadowWorkOrder{},
		&VoiceCommandRecord{},
		&MediaDescriptor{},
	)
	if err != nil {
		return unavailable(err, "schema_migrate", s.path)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return transient(err, "close")
	}
	return sqlDB.Close()
}

// AttemptCeiling returns the configured maximum attempt count.
func (s *Store) AttemptCeiling() int {
	return s.attemptCeiling
}

// HasMinimumDiskFree reports whether the filesystem holding the store file
// has at least minFree bytes available. Used as a floor check before
// accepting media captures. Probe failures count as having space; running
// out is caught by the write itself.
func (s *Store) HasMinimumDiskFree(minFree uint64) bool {
	if s.path == ":memory:" || minFree == 0 {
		return true
	}
	free, err := getDiskFreeSpace(filepath.Dir(s.path))
	if err != nil {
		s.logger.Warn("disk space probe failed", "path", s.path, "error", err)
		return true
	}
	return free >= minFree
}

// unavailable wraps a structural store failure. These require operator
// intervention and stop the sync loop.
func unavailable(err error, operation, path string) error {
	return errors.New(fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)).
		Component("localstore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("path", path).
		Build()
}

// transient wraps a retryable store failure.
func transient(err error, operation string) error {
	return errors.New(fmt.Errorf("%w: %w", errors.ErrStoreTransient, err)).
		Component("localstore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// now is a seam for tests that need deterministic timestamps.
var now = time.Now
