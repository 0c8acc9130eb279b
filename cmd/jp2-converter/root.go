package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tcirtsa/Jp2Converter/internal/cli"
	"github.com/tcirtsa/Jp2Converter/internal/cli/config"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// setupCodec wires the JPEG 2000 decoder to the run's logger and returns
	// its shutdown func. Replaced in codec.go.
	setupCodec = func(slog.Handler) func() { return func() {} }
)

// newRootCmd builds the base command with its flags registered. Each call
// returns a fresh command, so flag state never leaks between executions.
func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "jp2-converter INPUT_DIR OUTPUT_DIR FORMAT",
		Short: "Batch-converts JPEG 2000 (.jp2) images to PNG, JPEG, BMP or TIFF.",
		Long: `jp2-converter walks INPUT_DIR, converts every .jp2 file to FORMAT
(png, jpg, jpeg, jpg/jpeg, bmp, tiff) and writes the result to the mirrored
location under OUTPUT_DIR.

It features:
  - A bounded worker pool (default min(32, cores+4) workers).
  - Optional exact resize with a high-quality resampling filter.
  - JPEG quality control.
  - An interactive screen with Start/Pause/Resume/Cancel and a worker count
    that can be changed while paused (--interactive).

Exit status is 0 when every file converted (or there was nothing to do),
1 on configuration/planning errors or any failed conversion, and 130 when
the run was cancelled.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:    positionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors above print usage; runtime errors below do not.
			cmd.SilenceUsage = true

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, closeLog, err := config.LoadAndValidate(cfgFile, profileName, args, cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			// Skipped by the codec while a decode abandoned after the shutdown grace period is still running.
			shutdown := setupCodec(opts.Logger)
			defer shutdown()

			streams := cli.Streams{In: cmd.InOrStdin(), Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
			return cli.Run(ctx, opts, logger, streams)
		},
	}
	cmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	// Persistent flags
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/jp2-converter/, $HOME/.jp2-converter/)")
	cmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables the progress bar)")

	// Note: Flag names map to Viper keys in internal/cli/config/config.go.

	// Conversion flags
	cmd.Flags().IntP("quality", "q", converter.DefaultQuality, "JPEG quality 1-100 (0 keeps the encoder default)")
	cmd.Flags().IntSlice("resize", nil, "Resize to exactly WIDTH HEIGHT (--resize 800 600 or --resize 800,600); a zero dimension keeps the original size")
	cmd.Flags().String("filter", converter.DefaultFilter, fmt.Sprintf("Resampling filter for --resize %v", converter.FilterNames()))
	cmd.Flags().String("tiff-compression", converter.DefaultTIFFCompression, `TIFF compression ("none", "deflate")`)

	// Planning & scheduling flags
	cmd.Flags().Bool("no-recursive", false, "Only convert files directly inside INPUT_DIR")
	cmd.Flags().StringArray("exclude", []string{}, "Glob patterns for files/directories to skip (can be specified multiple times)")
	cmd.Flags().IntP("workers", "w", converter.DefaultWorkersSetting, "Number of parallel workers (0 for min(32, cores+4))")
	cmd.Flags().Duration("progress-interval", converter.DefaultProgressInterval, "How often progress is published")

	// Presentation flags
	cmd.Flags().BoolP("interactive", "i", converter.DefaultInteractive, "Open the interactive run screen (start, pause, resume, cancel, resize)")
	cmd.Flags().Bool("no-tui", false, "Disable the progress bar even in a TTY")
	cmd.Flags().String("output-format", string(converter.DefaultOutputFormat), `Final report format ("text", "json")`)
	cmd.Flags().String("log-format", converter.DefaultLogFormat, `Log format ("text", "json")`)
	cmd.Flags().String("log-file", "", "Write logs to this file instead of stderr")

	return cmd
}

// positionalArgs accepts INPUT_DIR OUTPUT_DIR FORMAT. With "--resize WIDTH HEIGHT"
// the flag only takes WIDTH, so HEIGHT arrives as a fourth positional argument.
func positionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 4 {
		if resize, err := cmd.Flags().GetIntSlice("resize"); err == nil && len(resize) == 1 {
			return nil
		}
	}
	return cobra.ExactArgs(3)(cmd, args)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(newRootCmd())
}

func execute(cmd *cobra.Command) int {
	return exitCode(cmd.Execute())
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, converter.ErrRunCancelled):
		return exitCancelled
	default:
		return exitFailure
	}
}
