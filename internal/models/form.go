// Package models provides data model definitions for the field agent.
package models

// Form is one installed form definition. A form is immutable per
// version; the installer overwrites the row when a newer version of
// the same form_id arrives.
type Form struct {
	FormID                  string  `db:"form_id" json:"form_id"`
	GroupID                 string  `db:"group_id" json:"group_id"`
	Name                    string  `db:"name" json:"name"`
	Version                 float64 `db:"version" json:"version"`
	Language                string  `db:"language" json:"language"`
	FileLocation            string  `db:"file_location" json:"file_location"`
	ReferenceDataInstalled  bool    `db:"reference_data_installed" json:"reference_data_installed"`
	Deleted                 bool    `db:"deleted" json:"deleted"`
}

// TableName returns the table name for Form.
func (Form) TableName() string {
	return "forms"
}

// FormGroup groups forms under one survey program.
type FormGroup struct {
	GroupID            string `db:"group_id" json:"group_id"`
	Name               string `db:"name" json:"name"`
	RegistrationFormID string `db:"registration_form_id" json:"registration_form_id"`
	Monitored          bool   `db:"monitored" json:"monitored"`
}

// TableName returns the table name for FormGroup.
func (FormGroup) TableName() string {
	return "form_groups"
}
