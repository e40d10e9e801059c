package db

import (
	"testing"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func TestUpsertFormBumpsVersion(t *testing.T) {
	s := setupTestStore(t)

	form := &models.Form{FormID: "form-1", GroupID: "group-1", Name: "Water point", Version: 1}
	if err := s.UpsertForm(form); err != nil {
		t.Fatalf("UpsertForm failed: %v", err)
	}

	form.Version = 2
	form.Name = "Water point survey"
	if err := s.UpsertForm(form); err != nil {
		t.Fatalf("UpsertForm failed: %v", err)
	}

	got, err := s.GetForm("form-1")
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}
	if got.Version != 2 || got.Name != "Water point survey" {
		t.Errorf("unexpected form after upsert: %+v", got)
	}

	forms, err := s.ListForms("group-1")
	if err != nil {
		t.Fatalf("ListForms failed: %v", err)
	}
	if len(forms) != 1 {
		t.Errorf("expected one form row, got %d", len(forms))
	}
}

func TestUpsertFormRevivesDeletedForm(t *testing.T) {
	s := setupTestStore(t)

	form := &models.Form{FormID: "form-1", GroupID: "group-1", Name: "Water point", Version: 1}
	if err := s.UpsertForm(form); err != nil {
		t.Fatalf("UpsertForm failed: %v", err)
	}
	if err := s.SoftDeleteForm("form-1"); err != nil {
		t.Fatalf("SoftDeleteForm failed: %v", err)
	}
	if err := s.UpsertForm(form); err != nil {
		t.Fatalf("UpsertForm failed: %v", err)
	}

	got, err := s.GetForm("form-1")
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}
	if got.Deleted {
		t.Error("re-installed form should not stay deleted")
	}
}

func TestSoftDeleteFormParksTransmissions(t *testing.T) {
	s := setupTestStore(t)
	form := &models.Form{FormID: "form-1", GroupID: "group-1", Name: "Water point", Version: 1}
	if err := s.UpsertForm(form); err != nil {
		t.Fatalf("UpsertForm failed: %v", err)
	}
	sub := seedSubmission(t, s, models.StatusSubmitted)
	queued := seedTransmission(t, s, sub.ID, "/tmp/a.zip")
	synced := seedTransmission(t, s, sub.ID, "/tmp/b.zip")
	if err := s.MarkTransmissionSynced(synced.ID); err != nil {
		t.Fatalf("MarkTransmissionSynced failed: %v", err)
	}

	if err := s.SoftDeleteForm("form-1"); err != nil {
		t.Fatalf("SoftDeleteForm failed: %v", err)
	}

	got, err := s.GetForm("form-1")
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}
	if !got.Deleted {
		t.Error("expected form to be marked deleted")
	}

	gotQueued, err := s.GetTransmission(queued.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if gotQueued.Status != models.TransmissionFormDeleted {
		t.Errorf("queued transmission should be parked, got %s", gotQueued.Status)
	}

	gotSynced, err := s.GetTransmission(synced.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if gotSynced.Status != models.TransmissionSynced {
		t.Errorf("synced transmission must stay synced, got %s", gotSynced.Status)
	}

	pending, err := s.ListUnsyncedTransmissions(0)
	if err != nil {
		t.Fatalf("ListUnsyncedTransmissions failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("parked transmissions should never be retried, got %d pending", len(pending))
	}
}

func TestGetFormNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetForm("missing")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestFormGroupRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	group := &models.FormGroup{
		GroupID:            "group-1",
		Name:               "Boreholes",
		RegistrationFormID: "form-reg",
		Monitored:          true,
	}
	if err := s.UpsertFormGroup(group); err != nil {
		t.Fatalf("UpsertFormGroup failed: %v", err)
	}

	got, err := s.GetFormGroup("group-1")
	if err != nil {
		t.Fatalf("GetFormGroup failed: %v", err)
	}
	if !got.Monitored || got.RegistrationFormID != "form-reg" {
		t.Errorf("unexpected group: %+v", got)
	}

	groups, err := s.ListFormGroups()
	if err != nil {
		t.Fatalf("ListFormGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected one group, got %d", len(groups))
	}
}
