// Package models provides data model definitions for the field agent.
package models

import "time"

// SubmissionStatus is the lifecycle stage of a submission.
type SubmissionStatus string

const (
	StatusSaved      SubmissionStatus = "SAVED"
	StatusSubmitted  SubmissionStatus = "SUBMITTED"
	StatusExported   SubmissionStatus = "EXPORTED"
	StatusSynced     SubmissionStatus = "SYNCED"
	StatusDownloaded SubmissionStatus = "DOWNLOADED"
)

// Rank orders statuses for forward-only transition checks.
// DOWNLOADED rows come from pull sync and sit outside the local
// capture pipeline; they rank terminal.
func (s SubmissionStatus) Rank() int {
	switch s {
	case StatusSaved:
		return 0
	case StatusSubmitted:
		return 1
	case StatusExported:
		return 2
	case StatusSynced:
		return 3
	case StatusDownloaded:
		return 4
	}
	return -1
}

// Valid reports whether s is a known status value.
func (s SubmissionStatus) Valid() bool {
	return s.Rank() >= 0
}

// Submission is one filled instance of a form against a data point.
// Exactly one status-transition date is set per stage reached, and
// Duration only accumulates while SubmittedDate is zero.
type Submission struct {
	ID            int64            `db:"id" json:"id"`
	UUID          string           `db:"uuid" json:"uuid"`
	FormID        string           `db:"form_id" json:"form_id"`
	RecordID      string           `db:"record_id" json:"record_id"`
	UserID        int64            `db:"user_id" json:"user_id"`
	Status        SubmissionStatus `db:"status" json:"status"`
	StartDate     int64            `db:"start_date" json:"start_date"`
	SavedDate     int64            `db:"saved_date" json:"saved_date"`
	SubmittedDate int64            `db:"submitted_date" json:"submitted_date"`
	ExportedDate  int64            `db:"exported_date" json:"exported_date"`
	SyncDate      int64            `db:"sync_date" json:"sync_date"`
	Duration      int64            `db:"duration" json:"duration"`
	SubmitterName string           `db:"submitter_name" json:"submitter_name"`
	Version       float64          `db:"version" json:"version"`
}

// TableName returns the table name for Submission.
func (Submission) TableName() string {
	return "submissions"
}

// StartTime returns StartDate as time.Time.
func (s *Submission) StartTime() time.Time {
	return time.UnixMilli(s.StartDate)
}

// InProgress reports whether the submission is still being filled.
func (s *Submission) InProgress() bool {
	return s.SubmittedDate == 0
}
