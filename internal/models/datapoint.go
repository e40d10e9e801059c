// Package models provides data model definitions for the field agent.
package models

import "time"

// DataPoint is a monitored real-world entity (site, household) that
// submissions are collected about. Latitude and longitude are set
// both-or-neither. LastModified only moves forward; updates go
// through the store's compare-and-set.
type DataPoint struct {
	RecordID     string   `db:"record_id" json:"record_id"`
	GroupID      string   `db:"group_id" json:"group_id"`
	Name         string   `db:"name" json:"name"`
	Latitude     *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64 `db:"longitude" json:"longitude,omitempty"`
	LastModified int64    `db:"last_modified" json:"last_modified"`
}

// TableName returns the table name for DataPoint.
func (DataPoint) TableName() string {
	return "data_points"
}

// LastModifiedTime returns LastModified as time.Time.
func (d *DataPoint) LastModifiedTime() time.Time {
	return time.UnixMilli(d.LastModified)
}

// HasLocation reports whether the data point carries a coordinate pair.
func (d *DataPoint) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}
