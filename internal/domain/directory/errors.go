package directory

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching. The typed errors below wrap one of
// these so callers can branch on the kind without a type assertion.
var (
	// ErrNotFound is returned when every resolution strategy came back empty.
	ErrNotFound = errors.New("user not found")
	// ErrAmbiguousMatch is returned by a resolver configured to reject
	// searches that match more than one person.
	ErrAmbiguousMatch = errors.New("ambiguous user match")
	// ErrUnknownField is returned in strict mode for names outside the vocabulary.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidFieldValue is returned when a value cannot be written to its
	// field, such as an object given for a relationship link.
	ErrInvalidFieldValue = errors.New("invalid field value")
	// ErrMissingRequiredField is returned when a required field has neither
	// an explicit change nor a current value.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrRemoteRejected is returned when the directory answered with a non-2xx status.
	ErrRemoteRejected = errors.New("directory rejected request")
	// ErrTransport is returned when the directory could not be reached.
	ErrTransport = errors.New("directory unreachable")
)

// NotFoundError carries the token that could not be resolved.
type NotFoundError struct {
	Token string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("user not found: no record matches %q", e.Token)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AmbiguousMatchError reports a search strategy that matched several people.
type AmbiguousMatchError struct {
	Token      string
	Strategy   string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous user match: %q matched %d records via %s (%s)",
		e.Token, len(e.Candidates), e.Strategy, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousMatchError) Unwrap() error { return ErrAmbiguousMatch }

// UnknownFieldError lists every change key outside the vocabulary.
type UnknownFieldError struct {
	Fields []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field(s): %s; allowed fields: %s",
		strings.Join(e.Fields, ", "), strings.Join(FieldNames(), ", "))
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// MissingRequiredFieldError names the required field that had no value.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field %s: not provided and no current value on record", e.Field)
}

func (e *MissingRequiredFieldError) Unwrap() error { return ErrMissingRequiredField }

// InvalidFieldValueError names the field whose value has the wrong shape.
type InvalidFieldValueError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldValueError) Error() string {
	return fmt.Sprintf("invalid value for field %s: %s", e.Field, e.Reason)
}

func (e *InvalidFieldValueError) Unwrap() error { return ErrInvalidFieldValue }

// RemoteRejectedError carries the directory's status and response body verbatim.
type RemoteRejectedError struct {
	Status int
	Body   string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("directory rejected request: status %d: %s", e.Status, e.Body)
}

func (e *RemoteRejectedError) Unwrap() error { return ErrRemoteRejected }

// TransportError wraps the underlying network failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("directory unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// ErrorKind returns a stable snake_case name for the error kind, or
// "internal" when err is not one of the directory errors.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAmbiguousMatch):
		return "ambiguous_match"
	case errors.Is(err, ErrUnknownField):
		return "unknown_field"
	case errors.Is(err, ErrMissingRequiredField):
		return "missing_required_field"
	case errors.Is(err, ErrInvalidFieldValue):
		return "invalid_field_value"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrTransport):
		return "transport_failure"
	default:
		return "internal"
	}
}
