package converter

import (
	"runtime"
	"time"
)

// Constants defining default values for configuration options.
// These are used when setting up Viper defaults in the configuration loading process.
const (
	// SourceExtension is the canonical extension of convertible files (matched case-insensitively).
	SourceExtension = ".jp2"
	// DefaultWorkersSetting of 0 means DefaultWorkers() for the CLI and DefaultPoolSize() for the library.
	DefaultWorkersSetting = 0
	// MaxCLIWorkers caps the CLI default worker count.
	MaxCLIWorkers = 32
	// MaxPoolSize caps the library default pool size.
	MaxPoolSize = 64
	// DefaultRecursive walks the whole input tree.
	DefaultRecursive = true
	// DefaultQuality of 0 leaves the JPEG encoder default in place.
	DefaultQuality = 0
	// DefaultFilter is the resampling filter used for resize.
	DefaultFilter = "lanczos"
	// DefaultTIFFCompression is the TIFF compression scheme.
	DefaultTIFFCompression = "deflate"
	// DefaultOutputFormat is the default format for the final summary report.
	DefaultOutputFormat = OutputFormatText
	// DefaultTuiEnabled enables the progress bar on a TTY in batch mode.
	DefaultTuiEnabled = true
	// DefaultInteractive starts the batch run without the interactive surface.
	DefaultInteractive = false
	// DefaultVerbose is the default state for verbose logging.
	DefaultVerbose = false
	// DefaultLogFormat is the default log handler format.
	DefaultLogFormat = "text"
	// DefaultProgressInterval is how often the coordinating goroutine publishes progress.
	DefaultProgressInterval = 100 * time.Millisecond
	// DefaultShutdownGrace bounds how long Close waits for in-flight conversions.
	DefaultShutdownGrace = 30 * time.Second
)

// Constants related to report schema.
const (
	// ReportSchemaVersion indicates the version of the JSON report structure.
	ReportSchemaVersion = "1.0"
)

// DefaultWorkers is the CLI default worker count: min(32, cores+4).
func DefaultWorkers() int {
	return min(MaxCLIWorkers, runtime.NumCPU()+4)
}

// DefaultPoolSize is the controller default when no worker count is given: min(64, 2*cores).
func DefaultPoolSize() int {
	return max(1, min(MaxPoolSize, 2*runtime.NumCPU()))
}
