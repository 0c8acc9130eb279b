package converter

import "errors"

// These errors represent specific categories of issues returned by the planner,
// the controller or recorded inside a failed Outcome. Callers check them with errors.Is.
var (
	// ErrDecode indicates the source image could not be read or is malformed.
	// Recorded in the Outcome of the affected task; never aborts a run.
	ErrDecode = errors.New("failed to decode source image")

	// ErrEncode indicates the target image could not be encoded or written,
	// e.g. an unwritable destination directory.
	// Recorded in the Outcome of the affected task; never aborts a run.
	ErrEncode = errors.New("failed to encode target image")

	// ErrUnsupportedFormat indicates an unknown target format token.
	// Wrapped by ErrEncode when it reaches a conversion.
	ErrUnsupportedFormat = errors.New("unsupported target format")

	// ErrPlanning indicates an invalid input directory or an output directory that
	// could not be created. Fatal: returned before any task is dispatched.
	ErrPlanning = errors.New("planning failed")

	// ErrConfigValidation indicates that the provided Options failed validation.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrNothingToDo is returned by Controller.Start and ConvertTree when the plan
	// is empty. It is a terminal, non-error condition for callers.
	ErrNothingToDo = errors.New("no convertible files found")

	// ErrInvalidTransition is returned when a control request is not valid in the
	// controller's current status (e.g. pausing a finished run).
	ErrInvalidTransition = errors.New("invalid run state transition")

	// ErrNotPaused is returned when the worker count is changed outside of the Paused status.
	ErrNotPaused = errors.New("worker count can only be changed while paused")

	// ErrRunCancelled is returned by ConvertTree and Report.Err when the run ended in the
	// Cancelled status, and by Planner.Plan when its context is cancelled mid-walk.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrConversionFailures is returned by Report.Err when a finished run recorded
	// at least one failed conversion, so the CLI exits non-zero.
	ErrConversionFailures = errors.New("one or more conversions failed")
)
