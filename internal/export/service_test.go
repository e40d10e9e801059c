package export

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func setupService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	store := db.NewStore(database.DB)
	svc := NewService(store, Config{
		ExportDir:  filepath.Join(t.TempDir(), "exports"),
		DeviceID:   "device-1",
		SigningKey: "secret",
	})
	return svc, store
}

func submitWithResponses(t *testing.T, store *db.Store, included int, excluded int) *models.Submission {
	t.Helper()
	sub := &models.Submission{FormID: "form-1", RecordID: "rec-1", SubmitterName: "field worker"}
	if err := store.CreateSubmission(sub); err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}
	for i := 0; i < included+excluded; i++ {
		key := db.ResponseKey{SubmissionID: sub.ID, QuestionID: "q" + string(rune('1'+i))}
		if _, err := store.SaveResponse(key, "v", models.TypeValue, i < included, ""); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}
	}
	if err := store.AdvanceSubmissionStatus(sub.ID, models.StatusSubmitted); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	got, err := store.GetSubmission(sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	return got
}

func TestExportOnlyIncludedResponses(t *testing.T) {
	svc, store := setupService(t)
	sub := submitWithResponses(t, store, 3, 1)

	res, err := svc.Export(sub)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.RecordCount != 3 {
		t.Errorf("expected 3 exported records, got %d", res.RecordCount)
	}
	if !strings.HasSuffix(res.ArchivePath, ".zip") {
		t.Errorf("unexpected archive path %q", res.ArchivePath)
	}

	got, err := store.GetSubmission(sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if got.Status != models.StatusExported || got.ExportedDate == 0 {
		t.Errorf("expected EXPORTED submission, got %s", got.Status)
	}

	transmissions, err := store.ListTransmissionsBySubmission(sub.ID)
	if err != nil {
		t.Fatalf("ListTransmissionsBySubmission failed: %v", err)
	}
	if len(transmissions) != 1 {
		t.Fatalf("expected one archive transmission, got %d", len(transmissions))
	}
	if transmissions[0].Status != models.TransmissionQueued {
		t.Errorf("expected QUEUED transmission, got %s", transmissions[0].Status)
	}
}

func TestExportQueuesMediaTransmissions(t *testing.T) {
	svc, store := setupService(t)
	sub := submitWithResponses(t, store, 1, 0)
	key := db.ResponseKey{SubmissionID: sub.ID, QuestionID: "photo"}
	if _, err := store.SaveResponse(key, "", models.TypeImage, true, "/data/media/p.jpg"); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	res, err := svc.Export(sub)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(res.MediaPaths) != 1 {
		t.Fatalf("expected one media path, got %v", res.MediaPaths)
	}

	transmissions, err := store.ListTransmissionsBySubmission(sub.ID)
	if err != nil {
		t.Fatalf("ListTransmissionsBySubmission failed: %v", err)
	}
	if len(transmissions) != 2 {
		t.Fatalf("expected archive + media transmissions, got %d", len(transmissions))
	}
}

func TestExportSkipsAlreadyExported(t *testing.T) {
	svc, store := setupService(t)
	sub := submitWithResponses(t, store, 2, 0)

	if _, err := svc.Export(sub); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	again, err := store.GetSubmission(sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}

	res, err := svc.Export(again)
	if err != nil {
		t.Fatalf("re-export errored: %v", err)
	}
	if res != nil {
		t.Error("re-export should be a silent skip")
	}

	transmissions, err := store.ListTransmissionsBySubmission(sub.ID)
	if err != nil {
		t.Fatalf("ListTransmissionsBySubmission failed: %v", err)
	}
	if len(transmissions) != 1 {
		t.Errorf("re-export queued duplicate transmissions: %d", len(transmissions))
	}
}

func TestExportAfterInterruptedRunReusesQueuedTransmission(t *testing.T) {
	svc, store := setupService(t)
	sub := submitWithResponses(t, store, 2, 0)

	// a previous run queued the archive transmission but died before
	// advancing the submission
	queued := &models.Transmission{
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		Filename:     filepath.Join(svc.dir, ArchiveFilename(sub)),
	}
	if err := store.CreateTransmission(queued); err != nil {
		t.Fatalf("CreateTransmission failed: %v", err)
	}

	res, err := svc.Export(sub)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res == nil {
		t.Fatal("expected the interrupted submission to export")
	}

	transmissions, err := store.ListTransmissionsBySubmission(sub.ID)
	if err != nil {
		t.Fatalf("ListTransmissionsBySubmission failed: %v", err)
	}
	if len(transmissions) != 1 {
		t.Fatalf("expected the queued row to be reused, got %d rows", len(transmissions))
	}
	if transmissions[0].ID != queued.ID {
		t.Errorf("a second archive row was queued: %d vs %d", transmissions[0].ID, queued.ID)
	}
}

func TestExportSkipsEmptySubmission(t *testing.T) {
	svc, store := setupService(t)
	sub := submitWithResponses(t, store, 0, 1)

	res, err := svc.Export(sub)
	if err != nil {
		t.Fatalf("Export errored: %v", err)
	}
	if res != nil {
		t.Error("expected a silent skip for an all-excluded submission")
	}
	got, err := store.GetSubmission(sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if got.Status != models.StatusSubmitted {
		t.Errorf("status should stay put, got %s", got.Status)
	}
}

func TestExportAllDrainsSubmittedBacklog(t *testing.T) {
	svc, store := setupService(t)
	submitWithResponses(t, store, 2, 0)
	submitWithResponses(t, store, 1, 0)

	results, err := svc.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(results))
	}

	// a second run finds nothing left to do
	results, err = svc.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no re-exports, got %d", len(results))
	}
}
