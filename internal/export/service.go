// Package export turns completed submissions into signed, checksummed
// archives ready for upload.
package export

import (
	"fmt"
	"path/filepath"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// Service exports eligible submissions and queues their transmissions.
type Service struct {
	store   *db.Store
	encoder *Encoder
	dir     string
}

// Config holds export service configuration.
type Config struct {
	ExportDir      string
	DeviceID       string
	SubmitterEmail string
	SigningKey     string
}

// NewService creates an export Service.
func NewService(store *db.Store, cfg Config) *Service {
	return &Service{
		store: store,
		encoder: &Encoder{
			DeviceID:       cfg.DeviceID,
			SubmitterEmail: cfg.SubmitterEmail,
			SigningKey:     cfg.SigningKey,
		},
		dir: cfg.ExportDir,
	}
}

// Result describes one exported submission.
type Result struct {
	SubmissionID int64
	ArchivePath  string
	Checksum     uint32
	RecordCount  int
	MediaPaths   []string
}

// Export packages one submission: encodes its included responses,
// writes the archive, queues one transmission for the archive and one
// per media file, and advances the submission to EXPORTED. A
// submission with no included responses yields (nil, nil) and its
// status stays put. An already-exported submission is skipped the
// same way.
func (s *Service) Export(sub *models.Submission) (*Result, error) {
	if sub.ExportedDate != 0 {
		return nil, nil
	}
	if sub.Status != models.StatusSubmitted && sub.Status != models.StatusSaved {
		return nil, apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("submission %d is not exportable in status %s", sub.ID, sub.Status))
	}

	responses, err := s.store.ListResponses(sub.ID, true)
	if err != nil {
		return nil, err
	}
	payload, err := s.encoder.Encode(sub, responses)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNothingToDo) {
			logging.WithFields(logging.Fields{"submission": sub.ID}).
				Debug("nothing to export")
			return nil, nil
		}
		return nil, err
	}

	filename := ArchiveFilename(sub)
	archivePath := filepath.Join(s.dir, filename)
	if err := s.encoder.WriteArchive(payload, archivePath); err != nil {
		return nil, err
	}

	// Queue the archive and every media file before the status
	// advance; the stable filenames make a crashed run's requeue
	// land on the rows already created.
	files := append([]string{archivePath}, payload.MediaPaths...)
	for _, f := range files {
		t := &models.Transmission{
			SubmissionID: sub.ID,
			FormID:       sub.FormID,
			Filename:     f,
			Status:       models.TransmissionQueued,
		}
		if err := s.store.CreateTransmission(t); err != nil {
			return nil, err
		}
	}

	// Emergency exports of SAVED submissions pass through SUBMITTED
	// so the lifecycle dates stay complete.
	if sub.Status == models.StatusSaved {
		if err := s.store.AdvanceSubmissionStatus(sub.ID, models.StatusSubmitted); err != nil {
			return nil, err
		}
	}
	if err := s.store.AdvanceSubmissionStatus(sub.ID, models.StatusExported); err != nil {
		return nil, err
	}

	return &Result{
		SubmissionID: sub.ID,
		ArchivePath:  archivePath,
		Checksum:     payload.Checksum,
		RecordCount:  len(responses),
		MediaPaths:   payload.MediaPaths,
	}, nil
}

// ExportAll exports every SUBMITTED submission. One submission's
// failure does not block the others; the first error is reported
// after the batch completes.
func (s *Service) ExportAll() ([]*Result, error) {
	subs, err := s.store.ListSubmissionsByStatus(models.StatusSubmitted)
	if err != nil {
		return nil, err
	}

	var results []*Result
	var firstErr error
	for _, sub := range subs {
		result, err := s.Export(sub)
		if err != nil {
			logging.WithFields(logging.Fields{"submission": sub.ID}).
				WithError(err).Error("export failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if result != nil {
			results = append(results, result)
		}
	}
	return results, firstErr
}
