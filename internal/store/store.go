// Package store is the only component that talks to the durable relational
// store. All mutation goes through InsertChunk and the aggregate upserts, each
// scoped to one database transaction so partial failures cannot corrupt
// previously committed state.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dvloznov/bankbatch/internal/config"
)

const (
	connectAttempts = 5
	connectBaseWait = 2 * time.Second
)

// Store wraps the database handle.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to MySQL with bounded retry (the store may still be starting
// when a scheduled batch kicks off). Cancelling ctx stops the backoff early;
// exhausting the attempts is the fatal storage-unavailability case: either
// way the caller aborts the run.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Store, error) {
	var db *gorm.DB
	var err error

	wait := connectBaseWait
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN()), gormConfig())
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("store: connect after %d attempts: %w", connectAttempts, err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("store: connect: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	log.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("connected to database")
	return New(db), nil
}

// New wraps an existing gorm handle. Tests use this with a SQLite dialector;
// the transactional behavior is identical.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Surfaces duplicate-key violations as gorm.ErrDuplicatedKey across
		// dialects, which the error classifier relies on.
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Migrate creates the contract schema and its expected indexes.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&TransactionRow{}, &DailyAggregateRow{}, &CustomerAggregateRow{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
