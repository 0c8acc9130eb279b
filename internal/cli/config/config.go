package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tcirtsa/Jp2Converter/pkg/converter"
	"github.com/tcirtsa/Jp2Converter/pkg/util"
)

const (
	EnvPrefix         = "JP2CONVERTER"
	DefaultConfigName = "jp2-converter"
)

// flagKeys maps command-line flag names to their configuration keys.
var flagKeys = map[string]string{
	"quality":           "quality",
	"resize":            "resize",
	"workers":           "workers",
	"exclude":           "exclude",
	"filter":            "filter",
	"tiff-compression":  "tiffCompression",
	"output-format":     "outputFormat",
	"log-format":        "logFormat",
	"log-file":          "logFile",
	"progress-interval": "progressInterval",
	"interactive":       "interactive",
	"verbose":           "verbose",
}

// LoadAndValidate loads configuration from all sources (defaults, file, profile, env, flags),
// applies the positional arguments INPUT_DIR OUTPUT_DIR FORMAT, validates the merged
// configuration and sets up the logger.
// Returns the populated Options struct (without EventHooks) and a func that closes
// the log file, if one was opened, or an error wrapping converter.ErrConfigValidation.
// closeLog is never nil.
func LoadAndValidate(cfgFile, profileName string, args []string, flags *pflag.FlagSet) (opts converter.Options, logger *slog.Logger, closeLog func() error, err error) {
	closeLog = func() error { return nil }
	v := viper.New()

	// Initialize a temporary basic logger for early loading errors
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	// --- Load Config File ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("No home directory, searching the working directory only", slog.Any("error", err))
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			configFileUsed := cfgFile
			if configFileUsed == "" {
				configFileUsed = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", configFileUsed), slog.Any("error", err))
			return opts, tempLogger, closeLog, fmt.Errorf("%w: error reading config file '%s': %w", converter.ErrConfigValidation, configFileUsed, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	// --- Apply Profile ---
	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		profileSettings := v.Sub(profileKey)
		if profileSettings == nil {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", converter.ErrConfigValidation, profileName, configPath)
			tempLogger.Error(err.Error())
			return opts, tempLogger, closeLog, err
		}
		if err := v.MergeConfigMap(profileSettings.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return opts, tempLogger, closeLog, fmt.Errorf("%w: error merging profile '%s': %w", converter.ErrConfigValidation, profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	// --- Bind Environment Variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Bind Flags (Highest Priority) ---
	if flags != nil {
		for flagName, key := range flagKeys {
			flag := flags.Lookup(flagName)
			if flag == nil {
				tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", flagName))
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				tempLogger.Error("Error binding flag", slog.String("flag", flagName), slog.Any("error", err))
				return opts, tempLogger, closeLog, fmt.Errorf("error binding flag '--%s': %w", flagName, err)
			}
		}
	}

	// --- Unmarshal Final Configuration ---
	if err := v.Unmarshal(&opts); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return opts, tempLogger, closeLog, fmt.Errorf("%w: error unmarshalling configuration: %w", converter.ErrConfigValidation, err)
	}

	// --- Explicitly Handle Flag Overrides ---
	// Slices and negated booleans do not round-trip through viper reliably.
	if flags != nil {
		if flags.Changed("resize") {
			opts.Resize, _ = flags.GetIntSlice("resize")
		}
		if flags.Changed("exclude") {
			opts.ExcludePatterns, _ = flags.GetStringArray("exclude")
		}
		if flags.Changed("verbose") {
			opts.Verbose, _ = flags.GetBool("verbose")
		}
		if flags.Changed("interactive") {
			opts.Interactive, _ = flags.GetBool("interactive")
		}
		if flags.Changed("no-recursive") {
			if noRecursive, _ := flags.GetBool("no-recursive"); noRecursive {
				opts.Recursive = false
			}
		}
		if flags.Changed("no-tui") {
			if noTui, _ := flags.GetBool("no-tui"); noTui {
				opts.TuiEnabled = false
			}
		}
	}

	// --- Positional Arguments (always win) ---
	args, opts.Resize, err = foldResizeHeight(args, opts.Resize)
	if err != nil {
		tempLogger.Error(err.Error())
		return opts, tempLogger, closeLog, err
	}
	if len(args) != 3 {
		err = fmt.Errorf("%w: expected INPUT_DIR OUTPUT_DIR FORMAT, got %d argument(s)", converter.ErrConfigValidation, len(args))
		tempLogger.Error(err.Error())
		return opts, tempLogger, closeLog, err
	}
	opts.InputPath, opts.OutputPath, opts.TargetFormat = args[0], args[1], args[2]

	// --- Setup Final Logger ---
	logHandler, logCloser, err := newLogHandler(opts, v.GetString("logFile"))
	if err != nil {
		tempLogger.Error("Cannot open log file", slog.Any("error", err))
		return opts, tempLogger, closeLog, err
	}
	closeLog = logCloser.Close
	logger = slog.New(logHandler)
	opts.Logger = logHandler

	// --- Final Validation and Derivations ---
	if err = validateAndDeriveOptions(&opts, logger); err != nil {
		_ = closeLog()
		return opts, logger, func() error { return nil }, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", opts.ConfigFilePath),
		slog.String("profile", opts.ProfileName),
		slog.String("input", opts.InputPath),
		slog.String("output", opts.OutputPath),
		slog.String("format", opts.TargetFormat),
		slog.Int("workers", opts.Workers),
		slog.Bool("verbose", opts.Verbose),
	)

	return opts, logger, closeLog, nil
}

// foldResizeHeight supports "--resize WIDTH HEIGHT": the flag takes WIDTH and
// HEIGHT is left as a fourth positional argument.
func foldResizeHeight(args []string, resize []int) ([]string, []int, error) {
	if len(args) != 4 || len(resize) != 1 {
		return args, resize, nil
	}
	height, err := strconv.Atoi(args[3])
	if err != nil {
		return args, resize, fmt.Errorf("%w: invalid resize height %q (flag --resize WIDTH HEIGHT): %w", converter.ErrConfigValidation, args[3], err)
	}
	return args[:3], []int{resize[0], height}, nil
}

// setDefaults establishes the default values for configuration options in Viper.
func setDefaults(v *viper.Viper) {
	// --- Conversion ---
	v.SetDefault("quality", converter.DefaultQuality)
	v.SetDefault("resize", []int{})
	v.SetDefault("filter", converter.DefaultFilter)
	v.SetDefault("tiffCompression", converter.DefaultTIFFCompression)

	// --- Planning & Scheduling ---
	v.SetDefault("recursive", converter.DefaultRecursive)
	v.SetDefault("exclude", []string{})
	v.SetDefault("workers", converter.DefaultWorkersSetting)
	v.SetDefault("progressInterval", converter.DefaultProgressInterval.String())

	// --- Behavior & Presentation ---
	v.SetDefault("verbose", converter.DefaultVerbose)
	v.SetDefault("logFormat", converter.DefaultLogFormat)
	v.SetDefault("logFile", "")
	v.SetDefault("tuiEnabled", converter.DefaultTuiEnabled)
	v.SetDefault("interactive", converter.DefaultInteractive)
	v.SetDefault("outputFormat", string(converter.DefaultOutputFormat))
}

// nopCloser is returned when no log file was opened.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogHandler builds the slog handler for the run. Logs go to stderr, or to
// logFile when set. The interactive screen owns the terminal, so without a log
// file its logs are discarded. The returned closer releases the log file.
func newLogHandler(opts converter.Options, logFile string) (slog.Handler, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: cannot open log file '%s': %w", converter.ErrConfigValidation, logFile, err)
		}
		w, closer = f, f
	case opts.Interactive:
		w = io.Discard
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(opts.LogFormat, "json") {
		return slog.NewJSONHandler(w, handlerOpts), closer, nil
	}
	return slog.NewTextHandler(w, handlerOpts), closer, nil
}

// isValidEnumValue checks if a given string value is present in a slice of allowed enum values.
// Case-sensitive comparison.
func isValidEnumValue[T ~string](value T, allowedValues []T) bool {
	return slices.Contains(allowedValues, value)
}

// validateAndDeriveOptions performs semantic validation on the populated Options struct
// and calculates derived fields. It wraps errors with converter.ErrConfigValidation.
// Input directory existence is checked by the planner, not here.
func validateAndDeriveOptions(opts *converter.Options, logger *slog.Logger) error {
	// === Path Derivations ===
	for _, p := range []*string{&opts.InputPath, &opts.OutputPath} {
		if *p == "" {
			err := fmt.Errorf("%w: input and output directories are required", converter.ErrConfigValidation)
			logger.Error(err.Error())
			return err
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			err = fmt.Errorf("%w: cannot resolve absolute path '%s': %w", converter.ErrConfigValidation, *p, err)
			logger.Error(err.Error(), slog.String("value", *p))
			return err
		}
		*p = abs
	}

	// === Enum Validations ===
	if _, _, err := converter.ParseFormat(opts.TargetFormat); err != nil {
		err = fmt.Errorf("%w: %w", converter.ErrConfigValidation, err)
		logger.Error(err.Error(), slog.String("key", "format"), slog.String("value", opts.TargetFormat))
		return err
	}
	if _, err := converter.ResampleFilter(opts.Filter); err != nil {
		err = fmt.Errorf("%w. Allowed: %v", err, converter.FilterNames())
		logger.Error(err.Error(), slog.String("key", "filter"), slog.String("value", opts.Filter))
		return err
	}
	if _, err := converter.TIFFCompression(opts.TIFFCompression); err != nil {
		logger.Error(err.Error(), slog.String("key", "tiffCompression"), slog.String("value", opts.TIFFCompression))
		return err
	}
	allowedOutputFormat := []converter.OutputFormat{converter.OutputFormatText, converter.OutputFormatJSON}
	if !isValidEnumValue(opts.OutputFormat, allowedOutputFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'outputFormat' (flag --output-format). Allowed: %v", converter.ErrConfigValidation, opts.OutputFormat, allowedOutputFormat)
		logger.Error(err.Error(), slog.String("key", "outputFormat"), slog.String("value", string(opts.OutputFormat)))
		return err
	}
	allowedLogFormat := []string{"text", "json"}
	if !isValidEnumValue(strings.ToLower(opts.LogFormat), allowedLogFormat) {
		err := fmt.Errorf("%w: invalid value '%s' for key 'logFormat' (flag --log-format). Allowed: %v", converter.ErrConfigValidation, opts.LogFormat, allowedLogFormat)
		logger.Error(err.Error(), slog.String("key", "logFormat"), slog.String("value", opts.LogFormat))
		return err
	}

	// === Numeric Range Validations ===
	if opts.Quality < 0 || opts.Quality > 100 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'quality' (flag --quality). Must be between 1 and 100", converter.ErrConfigValidation, opts.Quality)
		logger.Error(err.Error(), slog.String("key", "quality"), slog.Int("value", opts.Quality))
		return err
	}
	if n := len(opts.Resize); n != 0 && n != 2 {
		err := fmt.Errorf("%w: invalid value %v for key 'resize' (flag --resize). Expected WIDTH,HEIGHT", converter.ErrConfigValidation, opts.Resize)
		logger.Error(err.Error(), slog.String("key", "resize"))
		return err
	}
	for _, d := range opts.Resize {
		if d < 0 {
			err := fmt.Errorf("%w: invalid value %v for key 'resize' (flag --resize). Dimensions must be >= 0", converter.ErrConfigValidation, opts.Resize)
			logger.Error(err.Error(), slog.String("key", "resize"))
			return err
		}
	}
	if opts.Workers < 0 {
		err := fmt.Errorf("%w: invalid value '%d' for key 'workers' (flag --workers). Must be >= 0", converter.ErrConfigValidation, opts.Workers)
		logger.Error(err.Error(), slog.String("key", "workers"), slog.Int("value", opts.Workers))
		return err
	}
	if opts.Workers == 0 {
		opts.Workers = converter.DefaultWorkers()
		logger.Debug("Using default worker count", slog.Int("workers", opts.Workers))
	}
	if opts.ProgressInterval <= 0 {
		err := fmt.Errorf("%w: invalid value '%s' for key 'progressInterval' (flag --progress-interval). Must be > 0", converter.ErrConfigValidation, opts.ProgressInterval)
		logger.Error(err.Error(), slog.String("key", "progressInterval"))
		return err
	}

	// === Exclude Patterns ===
	for _, p := range opts.ExcludePatterns {
		if err := util.ValidatePattern(p); err != nil {
			err = fmt.Errorf("%w: key 'exclude' (flag --exclude): %w", converter.ErrConfigValidation, err)
			logger.Error(err.Error(), slog.String("key", "exclude"), slog.String("value", p))
			return err
		}
	}

	return nil
}
