// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

const transmissionColumns = "id, submission_id, form_id, filename, status, start_date, end_date, retry_count, max_retries"

// CreateTransmission queues one file for upload. Filename is unique;
// re-exporting a submission reuses the existing row instead of
// queueing a duplicate.
func (s *Store) CreateTransmission(t *models.Transmission) error {
	if t.Status == "" {
		t.Status = models.TransmissionQueued
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = models.DefaultMaxRetries
	}
	query := `
	INSERT INTO transmissions (submission_id, form_id, filename, status, start_date, end_date, retry_count, max_retries)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(filename) DO NOTHING
	`
	result, err := s.db.Exec(query, t.SubmissionID, t.FormID, t.Filename, t.Status,
		t.StartDate, t.EndDate, t.RetryCount, t.MaxRetries)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create transmission", err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		t.ID, _ = result.LastInsertId()
		return nil
	}
	existing, err := s.GetTransmissionByFilename(t.Filename)
	if err != nil {
		return err
	}
	*t = *existing
	return nil
}

func scanTransmission(row rowScanner) (*models.Transmission, error) {
	var t models.Transmission
	err := row.Scan(&t.ID, &t.SubmissionID, &t.FormID, &t.Filename, &t.Status,
		&t.StartDate, &t.EndDate, &t.RetryCount, &t.MaxRetries)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTransmission retrieves a transmission by ID.
func (s *Store) GetTransmission(id int64) (*models.Transmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM transmissions WHERE id = ?`, transmissionColumns)
	t, err := scanTransmission(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("transmission not found: %d", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get transmission", err)
	}
	return t, nil
}

// GetTransmissionByFilename retrieves a transmission by its unique filename.
func (s *Store) GetTransmissionByFilename(filename string) (*models.Transmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM transmissions WHERE filename = ?`, transmissionColumns)
	t, err := scanTransmission(s.db.QueryRow(query, filename))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "transmission not found: "+filename)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get transmission", err)
	}
	return t, nil
}

// ListTransmissionsBySubmission returns all transmissions of a submission.
func (s *Store) ListTransmissionsBySubmission(submissionID int64) ([]*models.Transmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM transmissions WHERE submission_id = ? ORDER BY id`, transmissionColumns)
	return s.queryTransmissions(query, submissionID)
}

func (s *Store) queryTransmissions(query string, args ...any) ([]*models.Transmission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list transmissions", err)
	}
	defer rows.Close()

	var transmissions []*models.Transmission
	for rows.Next() {
		t, err := scanTransmission(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan transmission", err)
		}
		transmissions = append(transmissions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate transmissions", err)
	}
	return transmissions, nil
}

// ListUnsyncedTransmissions returns transmissions eligible for upload:
// QUEUED, IN_PROGRESS rows stale past the threshold, and FAILED rows
// with retry budget left.
func (s *Store) ListUnsyncedTransmissions(staleThreshold time.Duration) ([]*models.Transmission, error) {
	staleBefore := time.Now().Add(-staleThreshold).UnixMilli()
	query, args, err := s.sq.
		Select("id", "submission_id", "form_id", "filename", "status",
			"start_date", "end_date", "retry_count", "max_retries").
		From("transmissions").
		Where(sq.Or{
			sq.Eq{"status": string(models.TransmissionQueued)},
			sq.And{
				sq.Eq{"status": string(models.TransmissionInProgress)},
				sq.Lt{"start_date": staleBefore},
			},
			sq.And{
				sq.Eq{"status": string(models.TransmissionFailed)},
				sq.Expr("retry_count < max_retries"),
			},
		}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to build transmission query", err)
	}
	return s.queryTransmissions(query, args...)
}

// ListDeadTransmissions returns FAILED transmissions whose retry
// budget is exhausted. These need operator attention.
func (s *Store) ListDeadTransmissions() ([]*models.Transmission, error) {
	query := fmt.Sprintf(`
	SELECT %s FROM transmissions
	WHERE status = ? AND retry_count >= max_retries ORDER BY id`, transmissionColumns)
	return s.queryTransmissions(query, models.TransmissionFailed)
}

// MarkTransmissionInProgress records the start of an upload attempt.
func (s *Store) MarkTransmissionInProgress(id int64) error {
	now := time.Now().UnixMilli()
	query := `
	UPDATE transmissions SET status = ?, start_date = ?, end_date = 0
	WHERE id = ? AND status IN (?, ?, ?)
	`
	result, err := s.db.Exec(query, models.TransmissionInProgress, now, id,
		models.TransmissionQueued, models.TransmissionFailed, models.TransmissionInProgress)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark transmission in progress", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("transmission %d not eligible for upload", id))
	}
	return nil
}

// MarkTransmissionSynced records a verified, acknowledged transfer.
func (s *Store) MarkTransmissionSynced(id int64) error {
	now := time.Now().UnixMilli()
	query := `UPDATE transmissions SET status = ?, end_date = ? WHERE id = ?`
	if _, err := s.db.Exec(query, models.TransmissionSynced, now, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark transmission synced", err)
	}
	return nil
}

// MarkTransmissionFailed records a failed attempt and burns one retry.
// Synced rows are never demoted.
func (s *Store) MarkTransmissionFailed(id int64) error {
	now := time.Now().UnixMilli()
	query := `
	UPDATE transmissions SET status = ?, end_date = ?, retry_count = retry_count + 1
	WHERE id = ? AND status != ?
	`
	if _, err := s.db.Exec(query, models.TransmissionFailed, now, id, models.TransmissionSynced); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to mark transmission failed", err)
	}
	return nil
}

// ReclaimStaleTransmissions moves IN_PROGRESS rows whose attempt
// started before the staleness threshold back to QUEUED. A crash or
// timeout mid-upload leaves rows IN_PROGRESS; the sweep makes them
// retriable. Returns the number reclaimed.
func (s *Store) ReclaimStaleTransmissions(staleThreshold time.Duration) (int64, error) {
	staleBefore := time.Now().Add(-staleThreshold).UnixMilli()
	query := `
	UPDATE transmissions SET status = ?
	WHERE status = ? AND start_date < ?
	`
	result, err := s.db.Exec(query, models.TransmissionQueued, models.TransmissionInProgress, staleBefore)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to reclaim stale transmissions", err)
	}
	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read reclaim result", err)
	}
	return reclaimed, nil
}

// AllTransmissionsSynced reports whether every transmission of a
// submission has completed. A submission with no transmissions is not
// considered synced.
func (s *Store) AllTransmissionsSynced(submissionID int64) (bool, error) {
	var total, synced int
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM transmissions WHERE submission_id = ?`,
		models.TransmissionSynced, submissionID).Scan(&total, &synced)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to count transmissions", err)
	}
	return total > 0 && total == synced, nil
}
