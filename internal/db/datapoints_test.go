package db

import (
	"testing"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func TestCreateDataPointRejectsHalfLocation(t *testing.T) {
	s := setupTestStore(t)

	lat := 0.3476
	err := s.CreateDataPoint(&models.DataPoint{RecordID: "rec-1", GroupID: "group-1", Latitude: &lat})
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Fatalf("expected invalid-location error, got %v", err)
	}
}

func TestUpdateDataPointCAS(t *testing.T) {
	s := setupTestStore(t)

	dp := &models.DataPoint{RecordID: "rec-1", GroupID: "group-1", Name: "old", LastModified: 100}
	if err := s.CreateDataPoint(dp); err != nil {
		t.Fatalf("CreateDataPoint failed: %v", err)
	}

	applied, err := s.UpdateDataPointCAS("rec-1", "new", nil, nil, 200)
	if err != nil {
		t.Fatalf("UpdateDataPointCAS failed: %v", err)
	}
	if !applied {
		t.Fatal("expected newer update to apply")
	}

	applied, err = s.UpdateDataPointCAS("rec-1", "stale", nil, nil, 150)
	if err != nil {
		t.Fatalf("UpdateDataPointCAS failed: %v", err)
	}
	if applied {
		t.Fatal("stale update must be rejected")
	}

	got, err := s.GetDataPoint("rec-1")
	if err != nil {
		t.Fatalf("GetDataPoint failed: %v", err)
	}
	if got.Name != "new" || got.LastModified != 200 {
		t.Errorf("unexpected data point: %+v", got)
	}
}

func TestDeleteOrphans(t *testing.T) {
	s := setupTestStore(t)

	// an abandoned submission with no responses
	empty := seedSubmission(t, s, models.StatusSaved)

	// a live one with an answer
	live := seedSubmission(t, s, models.StatusSaved)
	if _, err := s.SaveResponse(ResponseKey{SubmissionID: live.ID, QuestionID: "q1"},
		"v", models.TypeValue, true, ""); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	// a pulled submission without responses stays
	if err := s.MergePage("group-1", []RemoteRecord{{
		RecordID:     "rec-dl",
		LastModified: 100,
		Submissions:  []RemoteSubmission{{UUID: "7f2a3b1c-0000-4000-8000-00000000000a", FormID: "form-1"}},
	}}, 100); err != nil {
		t.Fatalf("MergePage failed: %v", err)
	}

	subs, points, err := s.DeleteOrphans()
	if err != nil {
		t.Fatalf("DeleteOrphans failed: %v", err)
	}
	if subs != 1 {
		t.Errorf("expected 1 pruned submission, got %d", subs)
	}
	if points != 0 {
		t.Errorf("referenced data points must survive, pruned %d", points)
	}

	if _, err := s.GetSubmission(empty.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("empty submission should be gone, got %v", err)
	}
	if _, err := s.GetSubmission(live.ID); err != nil {
		t.Errorf("live submission should survive: %v", err)
	}
	if _, err := s.GetSubmissionByUUID("7f2a3b1c-0000-4000-8000-00000000000a"); err != nil {
		t.Errorf("downloaded submission should survive: %v", err)
	}
}
