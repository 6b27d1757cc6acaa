package extractor

import (
	"errors"
	"fmt"
)

// ErrPasswordRequired is returned when no attempted credential opens the document.
// Callers are expected to retry with an explicit password.
var ErrPasswordRequired = errors.New("document password required")

// ErrWrongPassword is returned by an Unlocker when the credential does not open the document
var ErrWrongPassword = errors.New("incorrect document password")

// Document-level parse failure reasons
const (
	ReasonEmpty      = "empty"
	ReasonUnreadable = "unreadable"
)

// ParseError reports a document that cannot be read at all.
// Row-level failures never surface as errors; they are recorded on the Portfolio.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error (%s)", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
