// Package upload sends export archives and media files to remote
// storage and records the outcome.
package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// Config holds upload transport configuration.
type Config struct {
	// UploadURL is the policy/pre-signed upload endpoint of the
	// object storage bucket.
	UploadURL string
	// NotifyURL is the processing endpoint told about completed
	// transfers.
	NotifyURL string
	DeviceID  string
	Timeout   time.Duration
}

// Transport uploads transmissions and advances their lifecycle.
type Transport struct {
	store  *db.Store
	client *resty.Client
	cfg    Config
}

// NewTransport creates an upload Transport.
func NewTransport(store *db.Store, cfg Config) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	client := resty.New().SetTimeout(cfg.Timeout)
	return &Transport{store: store, client: client, cfg: cfg}
}

// Upload transfers one file, verifies the returned content hash,
// notifies the processing endpoint, and marks the transmission
// SYNCED. Any failure marks the transmission FAILED and leaves the
// owning submission untouched, so the next cycle retries it.
// Re-upload of the same content is idempotent: identical bytes yield
// the identical hash.
func (t *Transport) Upload(ctx context.Context, tr *models.Transmission) error {
	if err := t.store.MarkTransmissionInProgress(tr.ID); err != nil {
		return err
	}

	err := t.transfer(ctx, tr)
	if err != nil {
		if markErr := t.store.MarkTransmissionFailed(tr.ID); markErr != nil {
			logging.WithFields(logging.Fields{"transmission": tr.ID}).
				WithError(markErr).Error("failed to record transmission failure")
		}
		return err
	}

	if err := t.store.MarkTransmissionSynced(tr.ID); err != nil {
		return err
	}
	return t.finishSubmission(tr)
}

func (t *Transport) transfer(ctx context.Context, tr *models.Transmission) error {
	data, err := os.ReadFile(tr.Filename)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUploadFailed, "failed to read file for upload", err)
	}
	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])
	base := filepath.Base(tr.Filename)

	resp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", base, bytes.NewReader(data)).
		SetFormData(map[string]string{
			"key": base,
		}).
		Post(t.cfg.UploadURL)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransientNetwork, "upload request failed", err)
	}
	if resp.IsError() {
		return apperrors.New(apperrors.ErrUploadFailed,
			fmt.Sprintf("upload of %s failed with status %s", base, resp.Status()))
	}

	// The checksum gate: a transmission is never considered
	// transferred unless the hash echoed by storage matches ours.
	echoed := strings.Trim(resp.Header().Get("ETag"), `"`)
	if echoed == "" || !strings.EqualFold(echoed, checksum) {
		return apperrors.New(apperrors.ErrIntegrity,
			fmt.Sprintf("hash mismatch for %s: sent %s, storage echoed %q", base, checksum, echoed))
	}

	return t.notify(ctx, base, checksum)
}

// notify tells the processing endpoint the file is ready. Only a 2xx
// acknowledgement completes the transfer.
func (t *Transport) notify(ctx context.Context, filename, checksum string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fileName": filename,
			"deviceId": t.cfg.DeviceID,
			"checksum": checksum,
		}).
		Get(t.cfg.NotifyURL)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransientNetwork, "processing notification failed", err)
	}
	if resp.IsError() {
		return apperrors.New(apperrors.ErrUploadFailed,
			fmt.Sprintf("processing notification for %s rejected with status %s", filename, resp.Status()))
	}
	return nil
}

// finishSubmission advances the owning submission once every one of
// its transmissions is SYNCED, and only then removes the local
// archive. The SYNCED row is durable before the file goes away, so a
// crash in between at worst re-uploads identical content.
func (t *Transport) finishSubmission(tr *models.Transmission) error {
	done, err := t.store.AllTransmissionsSynced(tr.SubmissionID)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	if err := t.store.AdvanceSubmissionStatus(tr.SubmissionID, models.StatusSynced); err != nil {
		return err
	}

	transmissions, err := t.store.ListTransmissionsBySubmission(tr.SubmissionID)
	if err != nil {
		return err
	}
	for _, item := range transmissions {
		if filepath.Ext(item.Filename) != ".zip" {
			continue // media files stay on device
		}
		if err := os.Remove(item.Filename); err != nil && !os.IsNotExist(err) {
			logging.WithFields(logging.Fields{"file": item.Filename}).
				WithError(err).Warn("failed to remove synced archive")
		}
	}
	logging.WithFields(logging.Fields{"submission": tr.SubmissionID}).
		Info("submission fully synced")
	return nil
}

// ProcessQueue uploads every eligible transmission: queued, stale
// in-progress, and failed-with-budget. Per-item failures are isolated
// from siblings.
func (t *Transport) ProcessQueue(ctx context.Context, staleThreshold time.Duration) (int, error) {
	pending, err := t.store.ListUnsyncedTransmissions(staleThreshold)
	if err != nil {
		return 0, err
	}

	uploaded := 0
	var firstErr error
	for _, tr := range pending {
		select {
		case <-ctx.Done():
			return uploaded, ctx.Err()
		default:
		}
		if err := t.Upload(ctx, tr); err != nil {
			logging.WithFields(logging.Fields{
				"transmission": tr.ID,
				"file":         filepath.Base(tr.Filename),
			}).WithError(err).Warn("upload failed, will retry")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}
	return uploaded, firstErr
}
