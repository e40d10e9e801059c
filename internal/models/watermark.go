// Package models provides data model definitions for the field agent.
package models

import "time"

// SyncWatermark is the per-group upper bound of data already pulled
// from the server. It is only advanced together with the merge
// transaction that made the data durable.
type SyncWatermark struct {
	GroupID   string `db:"group_id" json:"group_id"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for SyncWatermark.
func (SyncWatermark) TableName() string {
	return "sync_watermarks"
}

// Time returns the Timestamp as time.Time.
func (w *SyncWatermark) Time() time.Time {
	return time.UnixMilli(w.Timestamp)
}
