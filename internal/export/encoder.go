// Package export turns completed submissions into signed, checksummed
// archives ready for upload.
package export

import (
	"archive/zip"
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

const (
	dataEntryName      = "data.txt"
	signatureEntryName = "data.txt.sig"
	fieldDelimiter     = "\t"
)

// sanitizer strips characters that would break record framing.
var sanitizer = strings.NewReplacer(
	"\t", " ",
	"\n", " ",
	"\r", " ",
	"|", " ",
)

// Encoder renders submissions into delimited payloads and zip archives.
type Encoder struct {
	DeviceID       string
	SubmitterEmail string
	SigningKey     string
}

// Payload is the deterministic export content for one submission.
type Payload struct {
	Data       []byte
	Checksum   uint32 // CRC32 (IEEE) over Data
	Signature  string // hex HMAC-SHA1 over the MD5 digest of Data, empty when unsigned
	MediaPaths []string
}

// Encode renders the included responses of a submission into one
// delimited payload. The output depends only on the submission row
// and its responses, so encoding the same submission twice yields
// byte-for-byte identical data. Media answers contribute a record
// naming their file but the file itself is not embedded; its path is
// returned for independent upload.
func (e *Encoder) Encode(sub *models.Submission, responses []*models.Response) (*Payload, error) {
	if len(responses) == 0 {
		return nil, apperrors.New(apperrors.ErrNothingToDo, "submission has no included responses")
	}

	var buf bytes.Buffer
	var mediaPaths []string
	for _, r := range responses {
		value := r.Value
		if r.IsMedia() && r.Filename != "" {
			mediaPaths = append(mediaPaths, r.Filename)
			value = filepath.Base(r.Filename)
		}
		fields := []string{
			fmt.Sprintf("%d", sub.ID),
			r.QuestionID,
			fmt.Sprintf("%d", r.Iteration),
			r.Type,
			sanitizer.Replace(value),
			sanitizer.Replace(sub.SubmitterName),
			sanitizer.Replace(e.SubmitterEmail),
			fmt.Sprintf("%d", sub.StartDate),
			fmt.Sprintf("%d", sub.SubmittedDate),
			fmt.Sprintf("%d", sub.Duration),
			e.DeviceID,
			sub.UUID,
		}
		buf.WriteString(strings.Join(fields, fieldDelimiter))
		buf.WriteString("\n")
	}

	payload := &Payload{
		Data:       buf.Bytes(),
		Checksum:   crc32.ChecksumIEEE(buf.Bytes()),
		MediaPaths: mediaPaths,
	}
	if e.SigningKey != "" {
		payload.Signature = e.sign(payload.Data)
	}
	return payload, nil
}

// sign computes the hex HMAC-SHA1 signature over the MD5 digest of
// the payload. Signing is for authenticity, not confidentiality.
func (e *Encoder) sign(data []byte) string {
	digest := md5.Sum(data)
	mac := hmac.New(sha1.New, []byte(e.SigningKey))
	mac.Write([]byte(hex.EncodeToString(digest[:])))
	return hex.EncodeToString(mac.Sum(nil))
}

// WriteArchive writes the payload into a zip archive at path,
// containing one data entry and, when signed, one signature entry.
// The archive is written to a temp file and renamed into place so a
// crash never leaves a half-written archive under the final name.
func (e *Encoder) WriteArchive(payload *Payload, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create export directory", err)
	}

	tempPath := path + ".tmp"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create archive file", err)
	}

	zw := zip.NewWriter(outFile)
	entry, err := zw.Create(dataEntryName)
	if err != nil {
		outFile.Close()
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create data entry", err)
	}
	if _, err := entry.Write(payload.Data); err != nil {
		outFile.Close()
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to write data entry", err)
	}

	if payload.Signature != "" {
		sigEntry, err := zw.Create(signatureEntryName)
		if err != nil {
			outFile.Close()
			return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create signature entry", err)
		}
		if _, err := sigEntry.Write([]byte(payload.Signature)); err != nil {
			outFile.Close()
			return apperrors.Wrap(apperrors.ErrExportFailed, "failed to write signature entry", err)
		}
	}

	if err := zw.Close(); err != nil {
		outFile.Close()
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to finalize archive", err)
	}
	if err := outFile.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to close archive file", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to move archive into place", err)
	}
	return nil
}

// ArchiveFilename builds the archive name for a submission. The name
// is stable across runs, so an export interrupted after queueing its
// transmission re-queues against the same filename instead of
// stranding the first row.
func ArchiveFilename(sub *models.Submission) string {
	return fmt.Sprintf("%d-%s.zip", sub.ID, sub.UUID)
}
