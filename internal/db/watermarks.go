// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
)

// GetWatermark returns the pull-sync watermark for a group, zero when
// the group has never been pulled.
func (s *Store) GetWatermark(groupID string) (int64, error) {
	var ts int64
	err := s.db.QueryRow(`SELECT timestamp FROM sync_watermarks WHERE group_id = ?`, groupID).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to get watermark", err)
	}
	return ts, nil
}

// SetWatermark advances the watermark for a group. The watermark
// never moves backwards.
func (s *Store) SetWatermark(groupID string, timestamp int64) error {
	query := `
	INSERT INTO sync_watermarks (group_id, timestamp) VALUES (?, ?)
	ON CONFLICT(group_id) DO UPDATE SET timestamp = MAX(timestamp, excluded.timestamp)
	`
	if _, err := s.db.Exec(query, groupID, timestamp); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to set watermark", err)
	}
	return nil
}

// ListWatermarks returns all group watermarks.
func (s *Store) ListWatermarks() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT group_id, timestamp FROM sync_watermarks`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list watermarks", err)
	}
	defer rows.Close()

	marks := make(map[string]int64)
	for rows.Next() {
		var groupID string
		var ts int64
		if err := rows.Scan(&groupID, &ts); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan watermark", err)
		}
		marks[groupID] = ts
	}
	return marks, rows.Err()
}

// DeleteOrphans removes submissions without any responses and data
// points without any submissions. Maintenance sweep; downloaded rows
// are kept since pulled submissions may legitimately carry no
// response detail. Returns deleted (submissions, dataPoints).
func (s *Store) DeleteOrphans() (int64, int64, error) {
	var subs, points int64
	err := s.inTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			DELETE FROM submissions
			WHERE status != 'DOWNLOADED'
			  AND id NOT IN (SELECT DISTINCT submission_id FROM responses)`)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to delete orphan submissions", err)
		}
		subs, _ = result.RowsAffected()

		result, err = tx.Exec(`
			DELETE FROM data_points
			WHERE record_id NOT IN (SELECT DISTINCT record_id FROM submissions)`)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to delete orphan data points", err)
		}
		points, _ = result.RowsAffected()
		return nil
	})
	return subs, points, err
}
