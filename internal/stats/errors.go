package stats

import (
	"errors"
	"fmt"
)

// InconsistentSampleTypeError reports samples that cannot be summarized
// together, for example a float array in one run and a string in another.
type InconsistentSampleTypeError struct {
	// Index is the sample (run) that disagrees with sample 0.
	Index int

	// Want describes sample 0.
	Want string

	// Got describes the disagreeing sample.
	Got string
}

// Error implements the error interface.
func (e *InconsistentSampleTypeError) Error() string {
	return fmt.Sprintf("inconsistent sample types: sample %d is %s, sample 0 is %s", e.Index, e.Got, e.Want)
}

// IsInconsistentSampleTypeError returns true if err is or wraps an
// InconsistentSampleTypeError.
func IsInconsistentSampleTypeError(err error) bool {
	var ie *InconsistentSampleTypeError
	return errors.As(err, &ie)
}

// UnknownMethodError reports an estimator name that is not registered.
type UnknownMethodError struct {
	Method string
}

// Error implements the error interface.
func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown significant digits method %q (want one of %v)", e.Method, Methods())
}
