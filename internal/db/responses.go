// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// ResponseKey addresses one answer slot within a submission.
type ResponseKey struct {
	SubmissionID int64
	QuestionID   string
	Iteration    int
}

// SaveResponse inserts an answer, or updates value, type, include
// flag and filename when the (submission, question, iteration) slot
// already holds one. The row id and iteration of an existing answer
// are preserved. Returns the stored row.
func (s *Store) SaveResponse(key ResponseKey, value, answerType string, include bool, filename string) (*models.Response, error) {
	var fname sql.NullString
	if filename != "" {
		fname = sql.NullString{String: filename, Valid: true}
	}
	query := `
	INSERT INTO responses (submission_id, question_id, iteration, value, type, include, filename)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(submission_id, question_id, iteration) DO UPDATE SET
		value = excluded.value,
		type = excluded.type,
		include = excluded.include,
		filename = excluded.filename
	`
	_, err := s.db.Exec(query, key.SubmissionID, key.QuestionID, key.Iteration,
		value, answerType, include, fname)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to save response", err)
	}
	return s.GetResponse(key)
}

// GetResponse retrieves one answer by key.
func (s *Store) GetResponse(key ResponseKey) (*models.Response, error) {
	query := `
	SELECT id, submission_id, question_id, iteration, value, type, include, filename
	FROM responses WHERE submission_id = ? AND question_id = ? AND iteration = ?
	`
	resp, err := scanResponse(s.db.QueryRow(query, key.SubmissionID, key.QuestionID, key.Iteration))
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "response not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get response", err)
	}
	return resp, nil
}

func scanResponse(row rowScanner) (*models.Response, error) {
	var resp models.Response
	var fname sql.NullString
	err := row.Scan(&resp.ID, &resp.SubmissionID, &resp.QuestionID, &resp.Iteration,
		&resp.Value, &resp.Type, &resp.Include, &fname)
	if err != nil {
		return nil, err
	}
	if fname.Valid {
		resp.Filename = fname.String
	}
	return &resp, nil
}

// ListResponses returns a submission's answers in question order.
// With includedOnly set, answers excluded from export are dropped.
func (s *Store) ListResponses(submissionID int64, includedOnly bool) ([]*models.Response, error) {
	query := `
	SELECT id, submission_id, question_id, iteration, value, type, include, filename
	FROM responses WHERE submission_id = ?
	`
	if includedOnly {
		query += ` AND include = 1`
	}
	query += ` ORDER BY question_id, iteration`

	rows, err := s.db.Query(query, submissionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list responses", err)
	}
	defer rows.Close()

	var responses []*models.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan response", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate responses", err)
	}
	return responses, nil
}

// ExcludeResponse soft-deletes one answer from export without losing
// the captured value.
func (s *Store) ExcludeResponse(key ResponseKey) error {
	query := `
	UPDATE responses SET include = 0
	WHERE submission_id = ? AND question_id = ? AND iteration = ?
	`
	result, err := s.db.Exec(query, key.SubmissionID, key.QuestionID, key.Iteration)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to exclude response", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.New(apperrors.ErrNotFound, "response not found")
	}
	return nil
}
