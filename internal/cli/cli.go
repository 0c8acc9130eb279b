package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tcirtsa/Jp2Converter/internal/cli/hooks"
	"github.com/tcirtsa/Jp2Converter/internal/cli/ui"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// Streams are the terminal endpoints of a run. The report goes to Out;
// progress and the interactive screen go to Err.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run orchestrates the main application logic after configuration loading.
// It returns nil when every conversion succeeded or there was nothing to do,
// converter.ErrRunCancelled when the run was cancelled, and
// converter.ErrConversionFailures when any conversion failed.
func Run(ctx context.Context, opts converter.Options, logger *slog.Logger, streams Streams) error {
	if streams.Out == nil {
		streams.Out = io.Discard
	}
	if streams.Err == nil {
		streams.Err = io.Discard
	}
	if opts.Interactive {
		return runInteractive(ctx, opts, logger, streams)
	}
	return runBatch(ctx, opts, logger, streams)
}

func runBatch(ctx context.Context, opts converter.Options, logger *slog.Logger, streams Streams) error {
	var newBar func(int) hooks.ProgressBar
	if opts.TuiEnabled && !opts.Verbose && isTerminal(streams.Err) {
		newBar = progressBarFactory(streams.Err)
	}
	opts.EventHooks = hooks.NewCLIHooks(logger, false, opts.Verbose, nil, newBar, streams.Err)

	report, err := converter.ConvertTree(ctx, opts)
	switch {
	case errors.Is(err, converter.ErrNothingToDo):
		return reportNothingToDo(opts, streams.Out)
	case errors.Is(err, converter.ErrRunCancelled) && report.Summary.Status == "":
		logger.Warn("Conversion run cancelled before any task was dispatched")
		return err
	case err != nil && !errors.Is(err, converter.ErrRunCancelled):
		logger.Error("Conversion run failed", slog.Any("error", err))
		return err
	}

	if werr := report.Write(streams.Out, opts.OutputFormat); werr != nil {
		return werr
	}
	return report.Err()
}

func runInteractive(ctx context.Context, opts converter.Options, logger *slog.Logger, streams Streams) error {
	h := hooks.NewCLIHooks(logger, true, opts.Verbose, nil, nil, nil)

	conv := opts.Converter
	if conv == nil {
		ic, err := converter.NewImageConverter(converter.ConverterOptions{Filter: opts.Filter, TIFFCompression: opts.TIFFCompression}, opts.Logger)
		if err != nil {
			return err
		}
		conv = ic
	}
	planner, err := converter.NewPlanner(opts.PlanOptions(), h, opts.Logger)
	if err != nil {
		return err
	}
	tasks, err := planner.Plan(ctx)
	if err != nil {
		return err
	}

	ctrl := converter.NewController(tasks, conv, converter.ControllerOptions{
		Workers:          opts.Workers,
		ProgressInterval: opts.ProgressInterval,
		Hooks:            h,
		Logger:           opts.Logger,
		InputPath:        opts.InputPath,
		OutputPath:       opts.OutputPath,
		TargetFormat:     opts.TargetFormat,
	})

	model := ui.NewModel(ctx, ctrl, tasks, opts.InputPath)
	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(streams.Err)}
	if streams.In != nil {
		progOpts = append(progOpts, tea.WithInput(streams.In))
	}
	p := tea.NewProgram(model, progOpts...)
	h.SetProgram(p)

	_, runErr := p.Run()
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		logger.Error("Interactive screen failed", slog.Any("error", runErr))
	}

	// Leaving the screen cancels an active run; in-flight conversions get a grace period.
	graceCtx, cancel := context.WithTimeout(context.Background(), converter.DefaultShutdownGrace)
	defer cancel()
	if err := ctrl.Close(graceCtx); err != nil {
		logger.Warn("In-flight conversions still running at exit", slog.String("error", err.Error()))
	}

	if ctrl.State().Status == converter.RunIdle {
		if len(tasks) == 0 {
			return reportNothingToDo(opts, streams.Out)
		}
		logger.Info("Exited without starting the run")
		return nil
	}

	report := ctrl.Report()
	report.Summary.ProfileUsed = opts.ProfileName
	report.Summary.ConfigFilePath = opts.ConfigFilePath
	if werr := report.Write(streams.Out, opts.OutputFormat); werr != nil {
		return werr
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return report.Err()
}

// reportNothingToDo prints the empty-plan result distinctly from a run in
// which every conversion failed.
func reportNothingToDo(opts converter.Options, w io.Writer) error {
	if opts.OutputFormat == converter.OutputFormatJSON {
		return converter.Report{
			SchemaVersion: converter.ReportSchemaVersion,
			Summary: converter.ReportSummary{
				InputPath:      opts.InputPath,
				OutputPath:     opts.OutputPath,
				TargetFormat:   opts.TargetFormat,
				ProfileUsed:    opts.ProfileName,
				ConfigFilePath: opts.ConfigFilePath,
				Status:         converter.RunIdle,
			},
			Outcomes: []converter.Outcome{},
			Errors:   []converter.ErrorInfo{},
		}.WriteJSON(w)
	}
	_, err := fmt.Fprintf(w, "No .jp2 files found in %s. Nothing to do.\n", opts.InputPath)
	return err
}

func progressBarFactory(w io.Writer) func(int) hooks.ProgressBar {
	return func(total int) hooks.ProgressBar {
		return progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(65*time.Millisecond),
		)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
