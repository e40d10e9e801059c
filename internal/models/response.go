// Package models provides data model definitions for the field agent.
package models

// Answer types as stored in the value column. Media-backed types keep
// the file path in Filename and are uploaded separately from the
// export archive.
const (
	TypeValue     = "VALUE"
	TypeOption    = "OPTION"
	TypeGeo       = "GEO"
	TypeDate      = "DATE"
	TypeImage     = "IMAGE"
	TypeVideo     = "VIDEO"
	TypeMeta      = "META_NAME"
	TypeMetaGeo   = "META_GEO"
	TypeSignature = "SIGNATURE"
)

// Response is one answer to one question within a submission.
// (SubmissionID, QuestionID, Iteration) is unique; iteration is 0 for
// non-repeating questions.
type Response struct {
	ID           int64  `db:"id" json:"id"`
	SubmissionID int64  `db:"submission_id" json:"submission_id"`
	QuestionID   string `db:"question_id" json:"question_id"`
	Iteration    int    `db:"iteration" json:"iteration"`
	Value        string `db:"value" json:"value"`
	Type         string `db:"type" json:"type"`
	Include      bool   `db:"include" json:"include"`
	Filename     string `db:"filename" json:"filename,omitempty"`
}

// TableName returns the table name for Response.
func (Response) TableName() string {
	return "responses"
}

// IsMedia reports whether the answer is backed by a media file.
func (r *Response) IsMedia() bool {
	return r.Type == TypeImage || r.Type == TypeVideo || r.Type == TypeSignature
}
