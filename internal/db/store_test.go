package db

import (
	"testing"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := Migrate(database.DB); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewStore(database.DB)
}

func seedSubmission(t *testing.T, s *Store, status models.SubmissionStatus) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		FormID:        "form-1",
		RecordID:      "rec-1",
		SubmitterName: "field worker",
	}
	if err := s.CreateSubmission(sub); err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}
	for _, next := range []models.SubmissionStatus{
		models.StatusSubmitted, models.StatusExported, models.StatusSynced,
	} {
		if status.Rank() < next.Rank() {
			break
		}
		if err := s.AdvanceSubmissionStatus(sub.ID, next); err != nil {
			t.Fatalf("failed to advance submission to %s: %v", next, err)
		}
	}
	got, err := s.GetSubmission(sub.ID)
	if err != nil {
		t.Fatalf("failed to reload submission: %v", err)
	}
	return got
}

func seedTransmission(t *testing.T, s *Store, submissionID int64, filename string) *models.Transmission {
	t.Helper()
	tr := &models.Transmission{
		SubmissionID: submissionID,
		FormID:       "form-1",
		Filename:     filename,
	}
	if err := s.CreateTransmission(tr); err != nil {
		t.Fatalf("failed to create transmission: %v", err)
	}
	return tr
}
