// Package db provides transactional repository operations for agent
// data models.
package db

import (
	"database/sql"
	"time"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// UpsertForm inserts or overwrites a form definition. Identity is
// form_id; the installer calls this when a bundle carries a new
// version of an already-installed form.
func (s *Store) UpsertForm(form *models.Form) error {
	query := `
	INSERT INTO forms (form_id, group_id, name, version, language, file_location, reference_data_installed, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(form_id) DO UPDATE SET
		group_id = excluded.group_id,
		name = excluded.name,
		version = excluded.version,
		language = excluded.language,
		file_location = excluded.file_location,
		reference_data_installed = excluded.reference_data_installed,
		deleted = 0
	`
	_, err := s.db.Exec(query, form.FormID, form.GroupID, form.Name, form.Version,
		form.Language, form.FileLocation, form.ReferenceDataInstalled, form.Deleted)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to upsert form", err)
	}
	return nil
}

// GetForm retrieves a form by ID, including soft-deleted rows.
func (s *Store) GetForm(formID string) (*models.Form, error) {
	query := `
	SELECT form_id, group_id, name, version, language, file_location, reference_data_installed, deleted
	FROM forms WHERE form_id = ?
	`
	var form models.Form
	err := s.db.QueryRow(query, formID).Scan(
		&form.FormID, &form.GroupID, &form.Name, &form.Version,
		&form.Language, &form.FileLocation, &form.ReferenceDataInstalled, &form.Deleted,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "form not found: "+formID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get form", err)
	}
	return &form, nil
}

// ListForms returns all non-deleted forms for a group.
func (s *Store) ListForms(groupID string) ([]*models.Form, error) {
	query := `
	SELECT form_id, group_id, name, version, language, file_location, reference_data_installed, deleted
	FROM forms WHERE group_id = ? AND deleted = 0 ORDER BY name
	`
	rows, err := s.db.Query(query, groupID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list forms", err)
	}
	defer rows.Close()

	var forms []*models.Form
	for rows.Next() {
		var form models.Form
		err := rows.Scan(&form.FormID, &form.GroupID, &form.Name, &form.Version,
			&form.Language, &form.FileLocation, &form.ReferenceDataInstalled, &form.Deleted)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan form", err)
		}
		forms = append(forms, &form)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate forms", err)
	}
	return forms, nil
}

// SoftDeleteForm marks a form deleted and moves its pending
// transmissions to FORM_DELETED so they are never uploaded. Both
// writes commit together.
func (s *Store) SoftDeleteForm(formID string) error {
	return s.inTx(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		if _, err := tx.Exec(`UPDATE forms SET deleted = 1 WHERE form_id = ?`, formID); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to soft-delete form", err)
		}
		_, err := tx.Exec(`
			UPDATE transmissions SET status = ?, end_date = ?
			WHERE form_id = ? AND status IN (?, ?, ?)`,
			models.TransmissionFormDeleted, now, formID,
			models.TransmissionQueued, models.TransmissionInProgress, models.TransmissionFailed)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to retire transmissions", err)
		}
		return nil
	})
}

// UpsertFormGroup inserts or updates a form group.
func (s *Store) UpsertFormGroup(group *models.FormGroup) error {
	query := `
	INSERT INTO form_groups (group_id, name, registration_form_id, monitored)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(group_id) DO UPDATE SET
		name = excluded.name,
		registration_form_id = excluded.registration_form_id,
		monitored = excluded.monitored
	`
	_, err := s.db.Exec(query, group.GroupID, group.Name, group.RegistrationFormID, group.Monitored)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to upsert form group", err)
	}
	return nil
}

// GetFormGroup retrieves a form group by ID.
func (s *Store) GetFormGroup(groupID string) (*models.FormGroup, error) {
	query := `SELECT group_id, name, registration_form_id, monitored FROM form_groups WHERE group_id = ?`
	var group models.FormGroup
	err := s.db.QueryRow(query, groupID).Scan(
		&group.GroupID, &group.Name, &group.RegistrationFormID, &group.Monitored)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "form group not found: "+groupID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to get form group", err)
	}
	return &group, nil
}

// ListFormGroups returns all form groups.
func (s *Store) ListFormGroups() ([]*models.FormGroup, error) {
	rows, err := s.db.Query(`SELECT group_id, name, registration_form_id, monitored FROM form_groups ORDER BY name`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list form groups", err)
	}
	defer rows.Close()

	var groups []*models.FormGroup
	for rows.Next() {
		var group models.FormGroup
		if err := rows.Scan(&group.GroupID, &group.Name, &group.RegistrationFormID, &group.Monitored); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan form group", err)
		}
		groups = append(groups, &group)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate form groups", err)
	}
	return groups, nil
}
