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
	"github.com/akvo/akvo-flow-mobile-sub002/internal/uuid"
)

const submissionColumns = `id, uuid, form_id, record_id, user_id, status, start_date,
	saved_date, submitted_date, exported_date, sync_date, duration, submitter_name, version`

// CreateSubmission creates a new submission in SAVED status. A fresh
// uuid is generated when the caller left it empty.
func (s *Store) CreateSubmission(sub *models.Submission) error {
	if sub.UUID == "" {
		sub.UUID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = models.StatusSaved
	}
	now := time.Now().UnixMilli()
	if sub.StartDate == 0 {
		sub.StartDate = now
	}
	if sub.SavedDate == 0 {
		sub.SavedDate = now
	}

	query := `
	INSERT INTO submissions (uuid, form_id, record_id, user_id, status, start_date,
		saved_date, submitted_date, exported_date, sync_date, duration, submitter_name, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, sub.UUID, sub.FormID, sub.RecordID, sub.UserID,
		sub.Status, sub.StartDate, sub.SavedDate, sub.SubmittedDate, sub.ExportedDate,
		sub.SyncDate, sub.Duration, sub.SubmitterName, sub.Version)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create submission", err)
	}
	sub.ID, err = result.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read submission id", err)
	}
	return nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	err := row.Scan(&sub.ID, &sub.UUID, &sub.FormID, &sub.RecordID, &sub.UserID,
		&sub.Status, &sub.StartDate, &sub.SavedDate, &sub.SubmittedDate,
		&sub.ExportedDate, &sub.SyncDate, &sub.Duration, &sub.SubmitterName, &sub.Version)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubmission retrieves a submission by ID.
func (s *Store) GetSubmission(id int64) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = ?`, submissionColumns)
	sub, err := scanSubmission(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("submission not found: %d", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get submission", err)
	}
	return sub, nil
}

// GetSubmissionByUUID retrieves a submission by its globally unique uuid.
func (s *Store) GetSubmissionByUUID(u string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE uuid = ?`, submissionColumns)
	sub, err := scanSubmission(s.db.QueryRow(query, u))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "submission not found: "+u)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get submission", err)
	}
	return sub, nil
}

// ListSubmissionsByStatus returns submissions in the given statuses,
// oldest first.
func (s *Store) ListSubmissionsByStatus(statuses ...models.SubmissionStatus) ([]*models.Submission, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	query, args, err := s.sq.
		Select("id", "uuid", "form_id", "record_id", "user_id", "status", "start_date",
			"saved_date", "submitted_date", "exported_date", "sync_date", "duration",
			"submitter_name", "version").
		From("submissions").
		Where(sq.Eq{"status": values}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to build submission query", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list submissions", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan submission", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate submissions", err)
	}
	return subs, nil
}

// CountSubmissionsByStatus returns per-status submission counts.
func (s *Store) CountSubmissionsByStatus() (map[models.SubmissionStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to count submissions", err)
	}
	defer rows.Close()

	counts := make(map[models.SubmissionStatus]int)
	for rows.Next() {
		var status models.SubmissionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// AdvanceSubmissionStatus moves a submission forward in its lifecycle
// and stamps the matching transition date. Re-advancing to the current
// status is a no-op; moving backwards is an error. The status check
// and the write commit atomically.
func (s *Store) AdvanceSubmissionStatus(id int64, target models.SubmissionStatus) error {
	if !target.Valid() {
		return apperrors.New(apperrors.ErrInvalid, "unknown status: "+string(target))
	}
	if target == models.StatusDownloaded {
		// DOWNLOADED marks rows authored elsewhere; only the pull
		// merge may assign it.
		return apperrors.New(apperrors.ErrInvalid, "DOWNLOADED is not a valid advance target")
	}
	return s.inTx(func(tx *sql.Tx) error {
		var current models.SubmissionStatus
		err := tx.QueryRow(`SELECT status FROM submissions WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("submission not found: %d", id))
		}
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to read submission status", err)
		}

		if target == current {
			return nil
		}
		if target.Rank() < current.Rank() {
			return apperrors.New(apperrors.ErrStatusRegression,
				fmt.Sprintf("cannot move submission %d from %s to %s", id, current, target))
		}

		now := time.Now().UnixMilli()
		dateColumn := ""
		switch target {
		case models.StatusSubmitted:
			dateColumn = "submitted_date"
		case models.StatusExported:
			dateColumn = "exported_date"
		case models.StatusSynced:
			dateColumn = "sync_date"
		case models.StatusSaved:
			dateColumn = "saved_date"
		}

		query := fmt.Sprintf(`
			UPDATE submissions SET status = ?, %s = CASE WHEN %s = 0 THEN ? ELSE %s END
			WHERE id = ?`, dateColumn, dateColumn, dateColumn)
		if _, err := tx.Exec(query, target, now, id); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to advance submission status", err)
		}
		return nil
	})
}

// AccumulateDuration adds filling time to a submission. Time stops
// accumulating once the submission has been submitted.
func (s *Store) AccumulateDuration(id int64, delta time.Duration) error {
	if delta < 0 {
		return apperrors.New(apperrors.ErrInvalid, "duration delta must not be negative")
	}
	query := `
	UPDATE submissions SET duration = duration + ?
	WHERE id = ? AND submitted_date = 0
	`
	_, err := s.db.Exec(query, delta.Milliseconds(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to accumulate duration", err)
	}
	return nil
}
