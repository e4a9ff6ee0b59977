// Package validation defines the error returned when caller input has the
// wrong shape, such as a blank name or a non-positive amount.
package validation

import "github.com/go-faster/errors"

// Error describes one rejected input field. Message is complete on its own,
// e.g. "amount must be positive".
type Error struct {
	Field   string
	Message string
}

// New returns a validation error for field.
func New(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// As extracts a validation error from err's chain.
func As(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
