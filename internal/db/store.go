// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
)

// Store provides all local-store operations. Every multi-row state
// transition runs inside one transaction; partial application is
// never committed. The single-writer discipline comes from the
// connection pool (one open connection), so callers never need
// additional locking.
type Store struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
		sq: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// inTx runs fn inside a transaction. A failure rolls the whole
// transaction back and is reported as a storage error.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit transaction", err)
	}
	return nil
}
