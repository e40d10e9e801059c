// Package bundle installs content bundles: archives of form
// definitions, reference data and per-form media dropped into an
// inbox directory out-of-band.
package bundle

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	apperrors "github.com/akvo/akvo-flow-mobile-sub002/internal/errors"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/models"
)

// Definition is the parsed metadata of one form-definition XML entry.
type Definition struct {
	XMLName            xml.Name `xml:"survey"`
	FormID             string   `xml:"surveyId,attr"`
	Name               string   `xml:"name,attr"`
	Version            string   `xml:"version,attr"`
	App                string   `xml:"app,attr"`
	GroupID            string   `xml:"surveyGroupId,attr"`
	GroupName          string   `xml:"surveyGroupName,attr"`
	RegistrationFormID string   `xml:"registrationSurveyId,attr"`
	Language           string   `xml:"defaultLanguageCode,attr"`
}

// ParseDefinition decodes a form-definition document and validates
// the fields the installer relies on.
func ParseDefinition(r io.Reader) (*Definition, error) {
	var def Definition
	if err := xml.NewDecoder(r).Decode(&def); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptBundle, "failed to parse form definition", err)
	}
	if def.FormID == "" {
		return nil, apperrors.New(apperrors.ErrCorruptBundle, "form definition is missing a survey id")
	}
	if def.GroupID == "" {
		return nil, apperrors.New(apperrors.ErrCorruptBundle,
			fmt.Sprintf("form definition %s is missing a group id", def.FormID))
	}
	if _, err := def.version(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) version() (float64, error) {
	if d.Version == "" {
		return 1.0, nil
	}
	v, err := strconv.ParseFloat(d.Version, 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCorruptBundle,
			fmt.Sprintf("form definition %s has a malformed version %q", d.FormID, d.Version), err)
	}
	return v, nil
}

// Monitored reports whether the group tracks data points over time.
// A group with a registration form is monitored: follow-up forms
// amend the data point the registration form created.
func (d *Definition) Monitored() bool {
	return d.RegistrationFormID != "" && d.RegistrationFormID != d.FormID
}

// Form converts the definition into a store row. fileLocation is
// where the installer placed the definition document.
func (d *Definition) Form(fileLocation string) *models.Form {
	v, _ := d.version()
	return &models.Form{
		FormID:       d.FormID,
		GroupID:      d.GroupID,
		Name:         d.Name,
		Version:      v,
		Language:     d.Language,
		FileLocation: fileLocation,
	}
}

// Group converts the definition into a form group row.
func (d *Definition) Group() *models.FormGroup {
	return &models.FormGroup{
		GroupID:            d.GroupID,
		Name:               d.GroupName,
		RegistrationFormID: d.RegistrationFormID,
		Monitored:          d.Monitored(),
	}
}
