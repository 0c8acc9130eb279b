package converter

import (
	"fmt"
	"strings"
	"time"
)

// Status defines the possible processing states of a single task during a run.
type Status string

// Constants representing the defined task statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// RunStatus is the lifecycle state of a Controller.
type RunStatus string

// Idle -> Running <-> Paused -> {Cancelled | Finished}. Cancelled and Finished are terminal.
const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCancelled RunStatus = "cancelled"
	RunFinished  RunStatus = "finished"
)

// Terminal reports whether no further transition can leave this status.
func (s RunStatus) Terminal() bool {
	return s == RunCancelled || s == RunFinished
}

// OutputFormat defines the format for the final summary report printed to standard output.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Format is the target raster format family of a conversion.
type Format string

// Supported target formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// ParseFormat resolves a user supplied format token (case-insensitive) into its
// format family and the lowercase extension used for destination file names.
// "jpg", "jpeg" and the legacy "jpg/jpeg" choice all map to FormatJPEG.
func ParseFormat(token string) (Format, string, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	switch t {
	case "png":
		return FormatPNG, "png", nil
	case "jpg", "jpg/jpeg":
		return FormatJPEG, "jpg", nil
	case "jpeg":
		return FormatJPEG, "jpeg", nil
	case "bmp":
		return FormatBMP, "bmp", nil
	case "tiff":
		return FormatTIFF, "tiff", nil
	case "tif":
		return FormatTIFF, "tif", nil
	}
	return "", "", fmt.Errorf("%w: %q (allowed: png, jpg, jpeg, bmp, tiff)", ErrUnsupportedFormat, token)
}

// SupportsQuality reports whether a quality setting applies to this format.
func (f Format) SupportsQuality() bool { return f == FormatJPEG }

// Resize requests resampling to an exact size. Aspect ratio is not preserved.
type Resize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Enabled is true only when both dimensions are positive; anything else means
// "keep the original dimensions".
func (r Resize) Enabled() bool { return r.Width > 0 && r.Height > 0 }

func (r Resize) String() string {
	if !r.Enabled() {
		return "original"
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Task is one planned source -> destination conversion request. Tasks are
// created by the Planner and never mutated afterwards.
type Task struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
	// TargetFormat is the lowercase destination token (png, jpg, jpeg, bmp, tiff, tif).
	TargetFormat string `json:"targetFormat"`
	// Quality is 1-100, 0 means encoder default. Ignored unless the target is JPEG.
	Quality int    `json:"quality,omitempty"`
	Resize  Resize `json:"resize"`
}

// Outcome is the recorded result of executing a Task.
type Outcome struct {
	Success         bool          `json:"success"`
	SourcePath      string        `json:"sourcePath"`
	DestinationPath string        `json:"destinationPath"`
	Error           string        `json:"error,omitempty"`
	Err             error         `json:"-"`
	Duration        time.Duration `json:"durationNs"`
}

// Counts is a point-in-time view of the aggregated outcomes.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// State is a snapshot of the run state owned by a Controller.
type State struct {
	Status RunStatus `json:"status"`
	Counts
	Workers   int           `json:"workers"`
	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsedNs"`
}
