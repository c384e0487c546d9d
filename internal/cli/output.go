package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runs disagree, calls not well nested
	ExitCommandError = 2 // bad flags, unreadable inputs, database errors
)

// Codes carried by JSON error envelopes.
const (
	CodeInput     = "E001" // trace inputs missing or unreadable
	CodeConfig    = "E002" // invalid flags or configuration
	CodeStore     = "E003" // export database failure
	CodeMerge     = "E100" // runs disagree at an aligned position
	CodeMalformed = "E101" // INPUTS/OUTPUTS not well nested
	CodeCanceled  = "E200" // interrupted
)

// ExitError is a command failure that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func exitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code. Errors that are not an
// *ExitError exit with ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// Envelope is the shape of every JSON document a command prints.
type Envelope struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed command.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Reporter prints command results as text or as a JSON Envelope. Text
// errors go to Stderr so that Stdout only ever holds results.
type Reporter struct {
	Format  string
	Stdout  io.Writer
	Stderr  io.Writer
	Verbose bool
}

func (r *Reporter) isJSON() bool { return r.Format == "json" }

func (r *Reporter) encode(env Envelope) error {
	enc := json.NewEncoder(r.Stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(env)
}

// Success prints data. Text output relies on data's String method when it
// has one.
func (r *Reporter) Success(data any) error {
	if r.isJSON() {
		return r.encode(Envelope{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(r.Stdout, data)
	return err
}

// Fail prints the failure and returns it as an *ExitError with the exit
// code exit. details, typically the partial result, is only printed as JSON
// or with --verbose.
func (r *Reporter) Fail(exit int, code, message string, err error, details any) error {
	msg := message
	if err != nil {
		msg = message + ": " + err.Error()
	}
	if werr := r.writeError(code, msg, details); werr != nil {
		return werr
	}
	return exitError(exit, message, err)
}

func (r *Reporter) writeError(code, message string, details any) error {
	if r.isJSON() {
		return r.encode(Envelope{
			Status: "error",
			Error:  &EnvelopeError{Code: code, Message: message, Details: details},
		})
	}

	w := r.Stderr
	if w == nil {
		w = r.Stdout
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if r.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %v\n", details)
	}
	return nil
}
