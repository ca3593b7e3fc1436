package metal

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	errNotFound       = fmt.Errorf("NotFound")
	errConflict       = fmt.Errorf("Conflict")
	errInternal       = fmt.Errorf("Internal")
	errMalformedGraph = fmt.Errorf("MalformedGraph")
)

// NotFound creates a new notfound error with a given error message.
func NotFound(format string, args ...interface{}) error {
	return errors.Wrapf(errNotFound, format, args...)
}

// IsNotFound checks if an error is a notfound error.
func IsNotFound(e error) bool {
	return errors.Cause(e) == errNotFound
}

// Conflict creates a new conflict error with a given error message.
func Conflict(format string, args ...interface{}) error {
	return errors.Wrapf(errConflict, format, args...)
}

// IsConflict checks if an error is a conflict error.
func IsConflict(e error) bool {
	return errors.Cause(e) == errConflict
}

// Internal creates a new Internal error with a given error message and the original error.
func Internal(err error, format string, args ...interface{}) error {
	return errors.Wrap(errInternal, errors.Wrapf(err, format, args...).Error())
}

// IsInternal checks if an error is a Internal error.
func IsInternal(e error) bool {
	return errors.Cause(e) == errInternal
}

// MalformedGraph creates an error indicating that the persisted storage graph
// of a machine violates an invariant, e.g. an unknown partition table type or
// a cyclic device dependency. Compilation of such a graph must be aborted,
// a partial storage plan is unsafe to execute.
func MalformedGraph(format string, args ...interface{}) error {
	return errors.Wrapf(errMalformedGraph, format, args...)
}

// IsMalformedGraph checks if an error is a malformed graph error.
func IsMalformedGraph(e error) bool {
	return errors.Cause(e) == errMalformedGraph
}
