package course

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("course configuration error")
	// ErrDataFault matches every *DataFault.
	ErrDataFault = errors.New("course data fault")
)

// ConfigurationError is a policy that cannot be graded at all. Report
// generation for the whole course aborts.
type ConfigurationError struct {
	Assessment string
	Field      string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Assessment != "" && e.Field != "":
		return fmt.Sprintf("course: %s: %s: %s", e.Assessment, e.Field, e.Reason)
	case e.Assessment != "":
		return fmt.Sprintf("course: %s: %s", e.Assessment, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("course: %s: %s", e.Field, e.Reason)
	}
	return "course: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// DataFault is a malformed value in the policy, such as an unparsable date.
type DataFault struct {
	Assessment string
	Field      string
	Value      string
	Err        error
}

func (e *DataFault) Error() string {
	where := e.Field
	if e.Assessment != "" {
		where = e.Assessment + ": " + e.Field
	}
	if e.Value == "" {
		return fmt.Sprintf("course: %s: malformed: %v", where, e.Err)
	}
	return fmt.Sprintf("course: %s: malformed %s %q: %v", e.Assessment, e.Field, e.Value, e.Err)
}

func (e *DataFault) Unwrap() error { return e.Err }

func (e *DataFault) Is(target error) bool { return target == ErrDataFault }
