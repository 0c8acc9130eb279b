package converter

import (
	"log/slog"
	"time"
)

// Hooks defines callbacks for status updates during a run.
// Implementations MUST be thread-safe as methods may be called concurrently from workers.
type Hooks interface {
	// OnTaskPlanned is called once per task, in plan order, before the run starts.
	OnTaskPlanned(task Task) error
	// OnTaskStatusUpdate is called when a task starts processing and when its outcome is recorded.
	OnTaskStatusUpdate(path string, status Status, message string, duration time.Duration) error
	// OnStateChange is called on every lifecycle transition and periodically while the run is active.
	OnStateChange(state State) error
	// OnRunComplete is called once when the run reaches Finished or Cancelled.
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnTaskPlanned implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskPlanned(task Task) error { return nil }

// OnTaskStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnTaskStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

// OnStateChange implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnStateChange(state State) error { return nil }

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// Options holds all configuration for a ConvertTree run.
type Options struct {
	// --- Core Paths & Target ---
	InputPath    string `mapstructure:"inputPath"`  // Required: absolute path to the source directory
	OutputPath   string `mapstructure:"outputPath"` // Required: absolute path to the output directory
	TargetFormat string `mapstructure:"format"`     // Required: png, jpg/jpeg, bmp, tiff

	// --- Conversion ---
	Quality         int    `mapstructure:"quality"`         // 1-100, 0 for encoder default (JPEG only)
	Resize          []int  `mapstructure:"resize"`          // [width, height]; empty or any zero means no resize
	Filter          string `mapstructure:"filter"`          // resampling filter name
	TIFFCompression string `mapstructure:"tiffCompression"` // "none" or "deflate"

	// --- Planning ---
	Recursive       bool     `mapstructure:"recursive"` // walk subdirectories
	ExcludePatterns []string `mapstructure:"exclude"`   // glob patterns relative to InputPath

	// --- Scheduling ---
	Workers          int           `mapstructure:"workers"`          // pool size, 0 = default
	ProgressInterval time.Duration `mapstructure:"progressInterval"` // coordinator progress tick

	// --- Behavior & Presentation ---
	ConfigFilePath string       `mapstructure:"-"`            // path to the loaded config file (for reporting)
	ProfileName    string       `mapstructure:"-"`            // name of the profile used (for reporting)
	Verbose        bool         `mapstructure:"verbose"`      // enable debug logging
	LogFormat      string       `mapstructure:"logFormat"`    // "text" or "json"
	TuiEnabled     bool         `mapstructure:"tuiEnabled"`   // progress bar on a TTY in batch mode
	Interactive    bool         `mapstructure:"interactive"`  // launch the interactive surface
	OutputFormat   OutputFormat `mapstructure:"outputFormat"` // "text" or "json" final report

	// --- Injected Dependencies ---
	EventHooks Hooks         `mapstructure:"-"` // Required: callback interface
	Logger     slog.Handler  `mapstructure:"-"` // Required: logging backend
	Converter  FileConverter `mapstructure:"-"` // Optional: defaults to an ImageConverter
}

// ResizeSpec converts the configured [width, height] pair into a Resize.
func (o *Options) ResizeSpec() Resize {
	if len(o.Resize) != 2 {
		return Resize{}
	}
	return Resize{Width: o.Resize[0], Height: o.Resize[1]}
}

// PlanOptions configures a Planner.
type PlanOptions struct {
	InputPath       string
	OutputPath      string
	TargetFormat    string
	Quality         int
	Resize          Resize
	Recursive       bool
	ExcludePatterns []string
}

// PlanOptions derives planner options from the run options.
func (o *Options) PlanOptions() PlanOptions {
	return PlanOptions{
		InputPath:       o.InputPath,
		OutputPath:      o.OutputPath,
		TargetFormat:    o.TargetFormat,
		Quality:         o.Quality,
		Resize:          o.ResizeSpec(),
		Recursive:       o.Recursive,
		ExcludePatterns: o.ExcludePatterns,
	}
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Workers          int           // initial pool size, <= 0 means DefaultPoolSize()
	ProgressInterval time.Duration // <= 0 means DefaultProgressInterval
	Hooks            Hooks         // nil means NoOpHooks
	Logger           slog.Handler  // nil discards logs
	RunID            string        // empty means a fresh UUID
	InputPath        string        // reporting only
	OutputPath       string        // reporting only
	TargetFormat     string        // reporting only
}
