package course

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes a YAML or JSON course policy and validates it.
func Parse(data []byte) (*Course, error) {
	var c Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, decodeFault(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// decodeFault reports a value of the wrong type (a string extension, a
// non-numeric threshold) or unreadable policy text as a DataFault.
func decodeFault(err error) *DataFault {
	f := &DataFault{Field: "policy", Err: err}
	var te *yaml.TypeError
	if errors.As(err, &te) && len(te.Errors) > 0 {
		if loc, msg, ok := strings.Cut(te.Errors[0], ": "); ok {
			f.Field, f.Err = loc, errors.New(msg)
		}
	}
	return f
}

// Load reads and parses a course policy file.
func Load(path string) (*Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course: %w", err)
	}
	return Parse(data)
}

// Validate reports the first ConfigurationError or DataFault in the policy.
// It does not modify the course.
func (c *Course) Validate() error {
	if len(c.LetterGrades) == 0 {
		return &ConfigurationError{Field: "letter_grades", Reason: "table is empty"}
	}
	for i, a := range c.Assessments {
		if err := validate.Struct(a); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return &ConfigurationError{
					Assessment: fmt.Sprintf("assessments[%d] %s", i, a.label()),
					Field:      fe.Field(),
					Reason:     fmt.Sprintf("failed %q validation", fe.Tag()),
				}
			}
			return err
		}
		if err := a.check(i); err != nil {
			return err
		}
	}
	return nil
}

func (a Assessment) check(i int) error {
	where := fmt.Sprintf("assessments[%d] %s", i, a.label())
	switch a.Type {
	case KindCheckpoint, KindDue:
		if a.ID == "" {
			return &ConfigurationError{Assessment: where, Field: "id", Reason: "module id is required"}
		}
		if a.Weight == nil {
			return &ConfigurationError{Assessment: where, Field: "weight", Reason: "is required"}
		}
		if a.Date == "" {
			return &ConfigurationError{Assessment: where, Field: "date", Reason: "is required"}
		}
		if _, err := a.Deadline(); err != nil {
			return &DataFault{Assessment: where, Field: "date", Value: a.Date, Err: err}
		}
		if _, err := a.ExtensionDays(); err != nil {
			var df *DataFault
			if errors.As(err, &df) {
				df.Assessment = where
			}
			return err
		}
	case KindManual:
		if a.Weight == nil {
			return &ConfigurationError{Assessment: where, Field: "weight", Reason: "is required"}
		}
		if a.Name == "" {
			return &ConfigurationError{Assessment: where, Field: "name", Reason: "is required"}
		}
	case KindExtra:
		if a.Name == "" {
			return &ConfigurationError{Assessment: where, Field: "name", Reason: "is required"}
		}
	}
	return nil
}
