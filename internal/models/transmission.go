// Package models provides data model definitions for the field agent.
package models

import "time"

// TransmissionStatus is the transfer state of one physical file.
type TransmissionStatus string

const (
	TransmissionQueued      TransmissionStatus = "QUEUED"
	TransmissionInProgress  TransmissionStatus = "IN_PROGRESS"
	TransmissionSynced      TransmissionStatus = "SYNCED"
	TransmissionFailed      TransmissionStatus = "FAILED"
	TransmissionFormDeleted TransmissionStatus = "FORM_DELETED"
)

// DefaultMaxRetries bounds how often a FAILED transmission is
// re-queued before it is dead-lettered for the operator.
const DefaultMaxRetries = 10

// Transmission tracks one file (export archive or media) awaiting or
// having completed transfer. Multiple transmissions may exist per
// submission: one archive plus one per media answer.
type Transmission struct {
	ID           int64              `db:"id" json:"id"`
	SubmissionID int64              `db:"submission_id" json:"submission_id"`
	FormID       string             `db:"form_id" json:"form_id"`
	Filename     string             `db:"filename" json:"filename"`
	Status       TransmissionStatus `db:"status" json:"status"`
	StartDate    int64              `db:"start_date" json:"start_date"`
	EndDate      int64              `db:"end_date" json:"end_date"`
	RetryCount   int                `db:"retry_count" json:"retry_count"`
	MaxRetries   int                `db:"max_retries" json:"max_retries"`
}

// TableName returns the table name for Transmission.
func (Transmission) TableName() string {
	return "transmissions"
}

// StartTime returns StartDate as time.Time.
func (t *Transmission) StartTime() time.Time {
	return time.UnixMilli(t.StartDate)
}

// Exhausted reports whether the retry budget is spent.
func (t *Transmission) Exhausted() bool {
	return t.RetryCount >= t.MaxRetries
}
