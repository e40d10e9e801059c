// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// CreateDataPoint inserts a new data point.
func (s *Store) CreateDataPoint(dp *models.DataPoint) error {
	if (dp.Latitude == nil) != (dp.Longitude == nil) {
		return apperrors.New(apperrors.ErrInvalid, "latitude and longitude must be set together")
	}
	query := `
	INSERT INTO data_points (record_id, group_id, name, latitude, longitude, last_modified)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, dp.RecordID, dp.GroupID, dp.Name, dp.Latitude, dp.Longitude, dp.LastModified)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to create data point", err)
	}
	return nil
}

// GetDataPoint retrieves a data point by record ID.
func (s *Store) GetDataPoint(recordID string) (*models.DataPoint, error) {
	query := `
	SELECT record_id, group_id, name, latitude, longitude, last_modified
	FROM data_points WHERE record_id = ?
	`
	dp, err := scanDataPoint(s.db.QueryRow(query, recordID))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "data point not found: "+recordID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get data point", err)
	}
	return dp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataPoint(row rowScanner) (*models.DataPoint, error) {
	var dp models.DataPoint
	var lat, lon sql.NullFloat64
	err := row.Scan(&dp.RecordID, &dp.GroupID, &dp.Name, &lat, &lon, &dp.LastModified)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		dp.Latitude = &lat.Float64
		dp.Longitude = &lon.Float64
	}
	return &dp, nil
}

// ListDataPoints returns all data points in a group, most recently
// modified first.
func (s *Store) ListDataPoints(groupID string) ([]*models.DataPoint, error) {
	query := `
	SELECT record_id, group_id, name, latitude, longitude, last_modified
	FROM data_points WHERE group_id = ? ORDER BY last_modified DESC
	`
	rows, err := s.db.Query(query, groupID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list data points", err)
	}
	defer rows.Close()

	var points []*models.DataPoint
	for rows.Next() {
		dp, err := scanDataPoint(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan data point", err)
		}
		points = append(points, dp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate data points", err)
	}
	return points, nil
}

// UpdateDataPointCAS updates a data point's name and location with a
// compare-and-set on last_modified: the write only lands when
// lastModified is not older than the stored value, keeping
// last_modified monotonic non-decreasing. Returns whether the write
// was applied.
func (s *Store) UpdateDataPointCAS(recordID, name string, lat, lon *float64, lastModified int64) (bool, error) {
	if (lat == nil) != (lon == nil) {
		return false, apperrors.New(apperrors.ErrInvalid, "latitude and longitude must be set together")
	}
	query := `
	UPDATE data_points
	SET name = ?, latitude = ?, longitude = ?, last_modified = ?
	WHERE record_id = ? AND last_modified <= ?
	`
	result, err := s.db.Exec(query, name, lat, lon, lastModified, recordID, lastModified)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to update data point", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to read update result", err)
	}
	return affected > 0, nil
}
