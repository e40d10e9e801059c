// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"
	"time"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/uuid"
)

// RemoteResponse is one answer of a pulled submission, mapped at the
// store boundary from the wire format.
type RemoteResponse struct {
	QuestionID string
	Iteration  int
	Value      string
	Type       string
}

// RemoteSubmission is one pulled submission.
type RemoteSubmission struct {
	UUID          string
	FormID        string
	SubmitterName string
	SubmittedAt   int64
	Version       float64
	Responses     []RemoteResponse
}

// RemoteRecord is one pulled data point with its submissions.
type RemoteRecord struct {
	RecordID     string
	GroupID      string
	Name         string
	Latitude     *float64
	Longitude    *float64
	LastModified int64
	Submissions  []RemoteSubmission
}

// MergePage merges one page of pulled records and advances the group
// watermark, all in a single transaction: either the page and the
// watermark land together or neither does. Re-applying the same page
// is a no-op, which is what makes crash-and-refetch safe.
func (s *Store) MergePage(groupID string, records []RemoteRecord, watermark int64) error {
	return s.inTx(func(tx *sql.Tx) error {
		for i := range records {
			if err := mergeRecordTx(tx, groupID, &records[i]); err != nil {
				return err
			}
		}
		if watermark > 0 {
			_, err := tx.Exec(`
				INSERT INTO sync_watermarks (group_id, timestamp) VALUES (?, ?)
				ON CONFLICT(group_id) DO UPDATE SET timestamp = MAX(timestamp, excluded.timestamp)`,
				groupID, watermark)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrStorage, "failed to advance watermark", err)
			}
		}
		return nil
	})
}

// MergeRecord merges a single pulled record in its own transaction.
func (s *Store) MergeRecord(groupID string, record *RemoteRecord) error {
	return s.inTx(func(tx *sql.Tx) error {
		return mergeRecordTx(tx, groupID, record)
	})
}

func mergeRecordTx(tx *sql.Tx, groupID string, record *RemoteRecord) error {
	// Upsert the data point; last_modified only moves forward.
	_, err := tx.Exec(`
		INSERT INTO data_points (record_id, group_id, name, latitude, longitude, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			group_id = excluded.group_id,
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			last_modified = MAX(last_modified, excluded.last_modified)`,
		record.RecordID, groupID, record.Name, record.Latitude, record.Longitude, record.LastModified)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to upsert data point", err)
	}

	now := time.Now().UnixMilli()
	for i := range record.Submissions {
		if err := mergeSubmissionTx(tx, record.RecordID, &record.Submissions[i], now); err != nil {
			return err
		}
	}
	return nil
}

// mergeSubmissionTx resolves one pulled submission against the local
// row with the same uuid. A malformed uuid rejects the whole page,
// rolling back any sibling records. A duplicate uuid is not an error: local
// pipeline rows are acknowledged (their transmissions marked synced),
// DOWNLOADED rows are overwritten, everything else is inserted fresh.
func mergeSubmissionTx(tx *sql.Tx, recordID string, remote *RemoteSubmission, now int64) error {
	if err := uuid.Validate(remote.UUID); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "pulled submission rejected", err)
	}

	var localID int64
	var localStatus models.SubmissionStatus
	err := tx.QueryRow(`SELECT id, status FROM submissions WHERE uuid = ?`, remote.UUID).
		Scan(&localID, &localStatus)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(`
			INSERT INTO submissions (uuid, form_id, record_id, status, start_date, saved_date,
				submitted_date, sync_date, submitter_name, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			remote.UUID, remote.FormID, recordID, models.StatusDownloaded,
			remote.SubmittedAt, remote.SubmittedAt, remote.SubmittedAt, now,
			remote.SubmitterName, remote.Version)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to insert pulled submission", err)
		}
		localID, err = result.LastInsertId()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to read submission id", err)
		}
		return replaceResponsesTx(tx, localID, remote.Responses)

	case err != nil:
		return apperrors.Wrap(apperrors.ErrStorage, "failed to look up submission by uuid", err)

	case localStatus == models.StatusDownloaded:
		// Server copy wins for rows this device never authored.
		_, err := tx.Exec(`
			UPDATE submissions SET form_id = ?, record_id = ?, submitted_date = ?,
				submitter_name = ?, version = ?, sync_date = ?
			WHERE id = ?`,
			remote.FormID, recordID, remote.SubmittedAt,
			remote.SubmitterName, remote.Version, now, localID)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to overwrite pulled submission", err)
		}
		return replaceResponsesTx(tx, localID, remote.Responses)

	case localStatus == models.StatusSynced:
		return nil

	default:
		// Our own submission echoed back from the server: the upload
		// completed even if the acknowledgement was lost. Mark its
		// transmissions complete and close the lifecycle.
		_, err := tx.Exec(`
			UPDATE transmissions SET status = ?, end_date = ?
			WHERE submission_id = ? AND status != ?`,
			models.TransmissionSynced, now, localID, models.TransmissionSynced)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to mark transmissions synced", err)
		}
		_, err = tx.Exec(`
			UPDATE submissions SET status = ?, sync_date = CASE WHEN sync_date = 0 THEN ? ELSE sync_date END
			WHERE id = ?`,
			models.StatusSynced, now, localID)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to close submission lifecycle", err)
		}
		return nil
	}
}

func replaceResponsesTx(tx *sql.Tx, submissionID int64, responses []RemoteResponse) error {
	if _, err := tx.Exec(`DELETE FROM responses WHERE submission_id = ?`, submissionID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear pulled responses", err)
	}
	for _, r := range responses {
		_, err := tx.Exec(`
			INSERT INTO responses (submission_id, question_id, iteration, value, type, include)
			VALUES (?, ?, ?, ?, ?, 1)`,
			submissionID, r.QuestionID, r.Iteration, r.Value, r.Type)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to insert pulled response", err)
		}
	}
	return nil
}
