package callchain

import (
	"errors"
	"fmt"
)

// MalformedCode categorizes nesting errors.
type MalformedCode string

const (
	// ErrCodeUnmatchedOutputs indicates an OUTPUTS event that does not close
	// the innermost open call.
	ErrCodeUnmatchedOutputs MalformedCode = "UNMATCHED_OUTPUTS"

	// ErrCodeUnfinished indicates the stream ended inside an invocation.
	ErrCodeUnfinished MalformedCode = "UNFINISHED_INVOCATION"

	// ErrCodeInvalidLabel indicates an event that is neither INPUTS nor OUTPUTS.
	ErrCodeInvalidLabel MalformedCode = "INVALID_LABEL"
)

// MalformedTraceError reports INPUTS/OUTPUTS events that are not well nested.
type MalformedTraceError struct {
	Code MalformedCode

	// Call is the offending event.
	Call Call

	// Open is the innermost call still open when the error was detected,
	// if any.
	Open *Call
}

// Error implements the error interface.
func (e *MalformedTraceError) Error() string {
	if e.Open != nil {
		return fmt.Sprintf("%s: %s %s at time %d (open call %s at time %d)",
			e.Code, e.Call.Name, e.Call.Label, e.Call.Time, e.Open.Name, e.Open.Time)
	}
	return fmt.Sprintf("%s: %s %s at time %d", e.Code, e.Call.Name, e.Call.Label, e.Call.Time)
}

// IsMalformedTraceError returns true if err is or wraps a MalformedTraceError.
func IsMalformedTraceError(err error) bool {
	var me *MalformedTraceError
	return errors.As(err, &me)
}
