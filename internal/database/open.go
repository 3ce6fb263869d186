package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/piclumo/backend/internal/gallery"
	"github.com/piclumo/backend/internal/users"
)

// Open establishes the database connection and performs schema migrations.
// A postgres:// DSN selects the Postgres driver; anything else is treated
// as a SQLite path.
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	usingSQLite := !isPostgresDSN(dsn)

	var db *gorm.DB
	var err error
	if usingSQLite {
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	} else {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return nil, err
	}

	if usingSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite takes one writer; a single connection avoids busy errors.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&gallery.Item{},
		&gallery.VoteMarker{},
		&gallery.AuditRecord{},
		&gallery.GeneratedImage{},
		&users.Profile{},
		&users.Metrics{},
		&users.UsageCounter{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.Bool("sqlite", usingSQLite))
	}

	return db, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
