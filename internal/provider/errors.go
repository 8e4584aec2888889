package provider

import "errors"

// ErrNotFound is returned when a record does not exist in the backend.
var ErrNotFound = errors.New("provider: record not found")

// ErrMissingID is returned for read, update or destroy requests without an id.
var ErrMissingID = errors.New("provider: request has no id")

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
