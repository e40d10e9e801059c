package db

import (
	"testing"
	"time"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

func TestCreateTransmissionReusesExistingFilename(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)

	first := seedTransmission(t, s, sub.ID, "/tmp/a.zip")
	dup := &models.Transmission{SubmissionID: sub.ID, FormID: "form-1", Filename: "/tmp/a.zip"}
	if err := s.CreateTransmission(dup); err != nil {
		t.Fatalf("CreateTransmission failed: %v", err)
	}
	if dup.ID != first.ID {
		t.Errorf("expected the existing row, got id %d instead of %d", dup.ID, first.ID)
	}
	if dup.MaxRetries != models.DefaultMaxRetries {
		t.Errorf("expected default retry budget, got %d", dup.MaxRetries)
	}
}

func TestTransmissionLifecycle(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)
	tr := seedTransmission(t, s, sub.ID, "/tmp/a.zip")

	if err := s.MarkTransmissionInProgress(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionInProgress failed: %v", err)
	}
	got, err := s.GetTransmission(tr.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if got.Status != models.TransmissionInProgress || got.StartDate == 0 {
		t.Errorf("expected started IN_PROGRESS row, got %s start=%d", got.Status, got.StartDate)
	}

	if err := s.MarkTransmissionSynced(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionSynced failed: %v", err)
	}
	got, err = s.GetTransmission(tr.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if got.Status != models.TransmissionSynced || got.EndDate == 0 {
		t.Errorf("expected finished SYNCED row, got %s end=%d", got.Status, got.EndDate)
	}

	// a synced transmission stays synced
	if err := s.MarkTransmissionFailed(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionFailed failed: %v", err)
	}
	got, err = s.GetTransmission(tr.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if got.Status != models.TransmissionSynced {
		t.Errorf("SYNCED transmission was demoted to %s", got.Status)
	}
}

func TestMarkTransmissionFailedCountsRetries(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)
	tr := seedTransmission(t, s, sub.ID, "/tmp/a.zip")

	if err := s.MarkTransmissionInProgress(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionInProgress failed: %v", err)
	}
	if err := s.MarkTransmissionFailed(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionFailed failed: %v", err)
	}
	got, err := s.GetTransmission(tr.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if got.Status != models.TransmissionFailed || got.RetryCount != 1 {
		t.Errorf("expected FAILED with 1 attempt, got %s with %d", got.Status, got.RetryCount)
	}
}

func TestListUnsyncedTransmissions(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)
	threshold := 30 * time.Minute

	queued := seedTransmission(t, s, sub.ID, "/tmp/queued.zip")

	fresh := seedTransmission(t, s, sub.ID, "/tmp/fresh.zip")
	if err := s.MarkTransmissionInProgress(fresh.ID); err != nil {
		t.Fatalf("MarkTransmissionInProgress failed: %v", err)
	}

	stale := seedTransmission(t, s, sub.ID, "/tmp/stale.zip")
	if err := s.MarkTransmissionInProgress(stale.ID); err != nil {
		t.Fatalf("MarkTransmissionInProgress failed: %v", err)
	}
	backdate(t, s, stale.ID, time.Now().Add(-2*threshold))

	dead := seedTransmission(t, s, sub.ID, "/tmp/dead.zip")
	if _, err := s.db.Exec(`UPDATE transmissions SET status = ?, retry_count = max_retries WHERE id = ?`,
		models.TransmissionFailed, dead.ID); err != nil {
		t.Fatalf("failed to exhaust transmission: %v", err)
	}

	pending, err := s.ListUnsyncedTransmissions(threshold)
	if err != nil {
		t.Fatalf("ListUnsyncedTransmissions failed: %v", err)
	}
	want := map[int64]bool{queued.ID: true, stale.ID: true}
	if len(pending) != len(want) {
		t.Fatalf("expected %d pending transmissions, got %d", len(want), len(pending))
	}
	for _, tr := range pending {
		if !want[tr.ID] {
			t.Errorf("unexpected pending transmission %d (%s)", tr.ID, tr.Filename)
		}
	}

	deadLetters, err := s.ListDeadTransmissions()
	if err != nil {
		t.Fatalf("ListDeadTransmissions failed: %v", err)
	}
	if len(deadLetters) != 1 || deadLetters[0].ID != dead.ID {
		t.Fatalf("expected one dead letter, got %d", len(deadLetters))
	}
}

func TestReclaimStaleTransmissions(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)
	threshold := 30 * time.Minute

	tr := seedTransmission(t, s, sub.ID, "/tmp/stuck.zip")
	if err := s.MarkTransmissionInProgress(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionInProgress failed: %v", err)
	}
	backdate(t, s, tr.ID, time.Now().Add(-time.Hour))

	reclaimed, err := s.ReclaimStaleTransmissions(threshold)
	if err != nil {
		t.Fatalf("ReclaimStaleTransmissions failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed transmission, got %d", reclaimed)
	}
	got, err := s.GetTransmission(tr.ID)
	if err != nil {
		t.Fatalf("GetTransmission failed: %v", err)
	}
	if got.Status != models.TransmissionQueued {
		t.Errorf("expected QUEUED after reclaim, got %s", got.Status)
	}

	// the reclaimed row is retried
	if err := s.MarkTransmissionInProgress(tr.ID); err != nil {
		t.Fatalf("retry after reclaim failed: %v", err)
	}
	if err := s.MarkTransmissionSynced(tr.ID); err != nil {
		t.Fatalf("MarkTransmissionSynced failed: %v", err)
	}
}

func TestAllTransmissionsSynced(t *testing.T) {
	s := setupTestStore(t)
	sub := seedSubmission(t, s, models.StatusSubmitted)

	done, err := s.AllTransmissionsSynced(sub.ID)
	if err != nil {
		t.Fatalf("AllTransmissionsSynced failed: %v", err)
	}
	if done {
		t.Error("a submission without transmissions must not count as synced")
	}

	a := seedTransmission(t, s, sub.ID, "/tmp/a.zip")
	b := seedTransmission(t, s, sub.ID, "/tmp/b.jpg")
	if err := s.MarkTransmissionSynced(a.ID); err != nil {
		t.Fatalf("MarkTransmissionSynced failed: %v", err)
	}
	done, err = s.AllTransmissionsSynced(sub.ID)
	if err != nil {
		t.Fatalf("AllTransmissionsSynced failed: %v", err)
	}
	if done {
		t.Error("one pending transmission must keep the submission unsynced")
	}

	if err := s.MarkTransmissionSynced(b.ID); err != nil {
		t.Fatalf("MarkTransmissionSynced failed: %v", err)
	}
	done, err = s.AllTransmissionsSynced(sub.ID)
	if err != nil {
		t.Fatalf("AllTransmissionsSynced failed: %v", err)
	}
	if !done {
		t.Error("expected all transmissions synced")
	}
}

func backdate(t *testing.T, s *Store, id int64, to time.Time) {
	t.Helper()
	if _, err := s.db.Exec(`UPDATE transmissions SET start_date = ? WHERE id = ?`,
		to.UnixMilli(), id); err != nil {
		t.Fatalf("failed to backdate transmission: %v", err)
	}
}
