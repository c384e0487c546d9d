package merge

import (
	"errors"
	"fmt"
)

// MergeErrorCode categorizes merge failures.
type MergeErrorCode string

const (
	// ErrCodeModuleMismatch indicates runs disagree on the module at a position.
	ErrCodeModuleMismatch MergeErrorCode = "MODULE_MISMATCH"

	// ErrCodeFunctionMismatch indicates runs disagree on the function at a position.
	ErrCodeFunctionMismatch MergeErrorCode = "FUNCTION_MISMATCH"

	// ErrCodeLabelMismatch indicates runs disagree on INPUTS/OUTPUTS at a position.
	ErrCodeLabelMismatch MergeErrorCode = "LABEL_MISMATCH"

	// ErrCodeArgsMismatch indicates runs recorded different argument names.
	ErrCodeArgsMismatch MergeErrorCode = "ARGS_MISMATCH"
)

// MergeError reports runs that cannot be aligned at a position.
type MergeError struct {
	// Code identifies the mismatch.
	Code MergeErrorCode

	// Position is the 0-based index of the aligned events.
	Position int64

	// Run is the run that disagrees with run 0.
	Run int

	// Want and Got are the values of run 0 and of Run.
	Want string
	Got  string
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("%s: run %d disagrees with run 0 at position %d (want %s, got %s)",
		e.Code, e.Run, e.Position, e.Want, e.Got)
}

// IsMergeError returns true if err is or wraps a MergeError.
func IsMergeError(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}
