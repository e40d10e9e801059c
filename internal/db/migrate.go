// Package db provides database schema migration management.
package db

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
)

//go:embed migrations
var dbMigrations embed.FS

// Migrate applies all pending schema migrations in version order.
// Each step runs in its own transaction and is recorded, so an
// interrupted upgrade resumes from the first unapplied step.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(dbMigrations, "migrations")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to load embedded migrations", err)
	}

	dst, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to init migration driver", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "sqlite", dst)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to create migrator", err)
	}

	err = migrator.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		// schema already up to date
	case err != nil:
		return apperrors.Wrap(apperrors.ErrMigration, "migration failed", err)
	}
	return nil
}
