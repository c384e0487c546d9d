package trace

import (
	"errors"
	"fmt"
)

// CorruptTraceError reports a record that could not be read.
//
// Events preceding the corrupt record have already been delivered; the run
// ends at the corrupt record.
type CorruptTraceError struct {
	// File is the path of the file holding the record.
	File string

	// Line is the 1-based line number of the record within File.
	Line int

	// Err is the underlying decode or I/O error.
	Err error
}

// Error implements the error interface.
func (e *CorruptTraceError) Error() string {
	return fmt.Sprintf("corrupt trace record at %s:%d: %v", e.File, e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *CorruptTraceError) Unwrap() error {
	return e.Err
}

// IsCorruptTraceError returns true if err is or wraps a CorruptTraceError.
func IsCorruptTraceError(err error) bool {
	var ce *CorruptTraceError
	return errors.As(err, &ce)
}
