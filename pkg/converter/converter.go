package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ConvertTree is the batch entry point of the library: it validates opts,
// plans the input tree, runs a Controller to completion and returns its report.
//
// An empty plan returns ErrNothingToDo with a report whose status is Idle.
// A cancelled run (ctx done) returns the partial report and ErrRunCancelled.
// Failed conversions are not an error here; see Report.Err.
func ConvertTree(ctx context.Context, opts Options) (Report, error) {
	// --- Initial Validation ---
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)

	if opts.EventHooks == nil {
		return Report{}, fmt.Errorf("%w: EventHooks implementation cannot be nil (use NoOpHooks if needed)", ErrConfigValidation)
	}
	if err := validateOptions(&opts); err != nil {
		logger.Error(err.Error())
		return Report{}, err
	}

	conv := opts.Converter
	if conv == nil {
		ic, err := NewImageConverter(ConverterOptions{Filter: opts.Filter, TIFFCompression: opts.TIFFCompression}, opts.Logger)
		if err != nil {
			return Report{}, err
		}
		conv = ic
	}

	// --- Planning ---
	planner, err := NewPlanner(opts.PlanOptions(), opts.EventHooks, opts.Logger)
	if err != nil {
		return Report{}, err
	}
	tasks, err := planner.Plan(ctx)
	if err != nil {
		return Report{}, err
	}

	ctrl := NewController(tasks, conv, ControllerOptions{
		Workers:          opts.Workers,
		ProgressInterval: opts.ProgressInterval,
		Hooks:            opts.EventHooks,
		Logger:           opts.Logger,
		InputPath:        opts.InputPath,
		OutputPath:       opts.OutputPath,
		TargetFormat:     opts.TargetFormat,
	})

	// --- Dispatch ---
	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, ErrNothingToDo) {
			return annotate(ctrl.Report(), opts), err
		}
		return Report{}, err
	}
	// The controller cancels itself when ctx is done, so this always returns.
	st, _ := ctrl.Wait(context.Background())

	if st.Status == RunCancelled {
		graceCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownGrace)
		defer cancel()
		if err := ctrl.Close(graceCtx); err != nil {
			logger.Warn("In-flight conversions still running after shutdown grace period", slog.String("error", err.Error()))
		}
	} else {
		_ = ctrl.Close(context.Background())
	}

	report := annotate(ctrl.Report(), opts)
	if st.Status == RunCancelled {
		return report, report.Err()
	}
	return report, nil
}

func annotate(r Report, opts Options) Report {
	r.Summary.ProfileUsed = opts.ProfileName
	r.Summary.ConfigFilePath = opts.ConfigFilePath
	return r
}

// validateOptions checks the library-level invariants of opts. The CLI layer
// performs the same checks with friendlier messages before calling ConvertTree.
func validateOptions(opts *Options) error {
	if opts.InputPath == "" {
		return fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("%w: output path cannot be empty", ErrConfigValidation)
	}
	if _, _, err := ParseFormat(opts.TargetFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if opts.Quality < 0 || opts.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100 (0 for encoder default), got %d", ErrConfigValidation, opts.Quality)
	}
	if n := len(opts.Resize); n != 0 && n != 2 {
		return fmt.Errorf("%w: resize takes exactly two values WIDTH,HEIGHT, got %d", ErrConfigValidation, n)
	}
	for _, v := range opts.Resize {
		if v < 0 {
			return fmt.Errorf("%w: resize dimensions cannot be negative, got %v", ErrConfigValidation, opts.Resize)
		}
	}
	if opts.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative, got %d", ErrConfigValidation, opts.Workers)
	}
	return nil
}
