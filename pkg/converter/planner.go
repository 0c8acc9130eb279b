package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tcirtsa/Jp2Converter/pkg/util"
)

// Planner walks the input tree, mirrors its directories under the output root
// and builds the ordered task list.
type Planner struct {
	opts       PlanOptions
	hooks      Hooks
	logger     *slog.Logger
	excludes   *excludeMatcher
	format     Format
	extension  string
	inputRoot  string
	outputRoot string
}

// NewPlanner creates a new Planner. Paths are resolved to absolute paths here;
// their existence is checked by Plan.
func NewPlanner(opts PlanOptions, hooks Hooks, loggerHandler slog.Handler) (*Planner, error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if hooks == nil {
		hooks = &NoOpHooks{}
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "planner"))

	format, extension, err := ParseFormat(opts.TargetFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: input and output paths are required", ErrPlanning)
	}
	inputRoot, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve input path '%s': %w", ErrPlanning, opts.InputPath, err)
	}
	outputRoot, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve output path '%s': %w", ErrPlanning, opts.OutputPath, err)
	}

	excludes := newExcludeMatcher(opts.ExcludePatterns)
	logger.Debug("Exclude patterns loaded", slog.Int("count", excludes.patternCount()))

	return &Planner{
		opts:       opts,
		hooks:      hooks,
		logger:     logger,
		excludes:   excludes,
		format:     format,
		extension:  extension,
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
	}, nil
}

// Plan enumerates the input tree and returns one Task per matching file, in
// lexical walk order. Every visited directory is mirrored under the output root
// before its files are inspected. An empty, non-nil slice means nothing to do.
// A cancelled ctx yields an error matching both ErrRunCancelled and ctx.Err().
func (p *Planner) Plan(ctx context.Context) ([]Task, error) {
	info, err := os.Stat(p.inputRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: input directory '%s' does not exist", ErrPlanning, p.inputRoot)
		}
		return nil, fmt.Errorf("%w: cannot access input directory '%s': %w", ErrPlanning, p.inputRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: input path '%s' is not a directory", ErrPlanning, p.inputRoot)
	}
	if err := os.MkdirAll(p.outputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create output directory '%s': %w", ErrPlanning, p.outputRoot, err)
	}

	p.logger.Info("Planning conversion tasks",
		slog.String("input", p.inputRoot),
		slog.String("output", p.outputRoot),
		slog.String("format", string(p.format)),
		slog.Bool("recursive", p.opts.Recursive),
	)

	tasks := make([]Task, 0, 64)
	walkErr := filepath.WalkDir(p.inputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.inputRoot {
				return fmt.Errorf("%w: cannot read input directory '%s': %w", ErrPlanning, path, err)
			}
			p.logger.Warn("Error accessing path during planning", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.Type()&fs.ModeSymlink != 0 {
			p.logger.Debug("Skipping symbolic link", slog.String("path", path))
			return nil
		}

		rel, err := filepath.Rel(p.inputRoot, path)
		if err != nil {
			p.logger.Warn("Could not calculate relative path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		if d.IsDir() {
			return p.visitDir(path, rel)
		}

		relSlash := filepath.ToSlash(rel)
		if p.excludes.Match(relSlash, false) {
			p.logger.Debug("File excluded", slog.String("path", relSlash), slog.String("pattern", p.excludes.LastMatchPattern(relSlash, false)))
			return nil
		}
		if !p.selects(d.Name()) {
			return nil
		}

		task := p.newTask(path, rel)
		tasks = append(tasks, task)
		if hookErr := p.hooks.OnTaskPlanned(task); hookErr != nil {
			p.logger.Warn("Event hook OnTaskPlanned failed", slog.String("path", relSlash), slog.String("error", hookErr.Error()))
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			p.logger.Info("Planning cancelled", slog.String("reason", walkErr.Error()))
			return nil, fmt.Errorf("%w: planning interrupted: %w", ErrRunCancelled, walkErr)
		}
		if errors.Is(walkErr, ErrPlanning) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("%w: %w", ErrPlanning, walkErr)
	}

	p.logger.Info("Planning complete", slog.Int("tasks", len(tasks)))
	return tasks, nil
}

// visitDir mirrors a directory into the output tree, or prunes it.
func (p *Planner) visitDir(path, rel string) error {
	if rel == "." {
		return nil // output root was created by Plan
	}
	if !p.opts.Recursive {
		return filepath.SkipDir
	}
	if path == p.outputRoot {
		// Output tree nested in the input tree; walking it would mirror it into itself.
		p.logger.Debug("Skipping output directory inside input tree", slog.String("path", path))
		return filepath.SkipDir
	}
	relSlash := filepath.ToSlash(rel)
	if p.excludes.Match(relSlash, true) {
		p.logger.Debug("Directory excluded", slog.String("path", relSlash), slog.String("pattern", p.excludes.LastMatchPattern(relSlash, true)))
		return filepath.SkipDir
	}
	mirror := filepath.Join(p.outputRoot, rel)
	if err := os.MkdirAll(mirror, 0o755); err != nil {
		return fmt.Errorf("%w: cannot create output directory '%s': %w", ErrPlanning, mirror, err)
	}
	return nil
}

// selects reports whether a file name carries the source extension.
// AppleDouble "._" companions are never images.
func (p *Planner) selects(name string) bool {
	if strings.HasPrefix(name, "._") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), SourceExtension)
}

// newTask builds the task for a selected source file. Differently-cased source
// names that map to the same destination are not deduplicated; the last write wins.
func (p *Planner) newTask(path, rel string) Task {
	name := filepath.Base(rel)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	dest := filepath.Join(p.outputRoot, filepath.Dir(rel), stem+"."+p.extension)
	return Task{
		SourcePath:      path,
		DestinationPath: dest,
		TargetFormat:    p.extension,
		Quality:         p.opts.Quality,
		Resize:          p.opts.Resize,
	}
}

// --- excludeMatcher ---

type excludeMatcher struct {
	patterns []excludePattern
}

type excludePattern struct {
	pattern     string // cleaned pattern using '/' separators
	origPattern string // original pattern for reporting
	negated     bool
	isDirOnly   bool
	isRooted    bool // pattern started with '/'
}

// newExcludeMatcher processes gitignore-style patterns relative to the input directory.
// Patterns are expected to have passed util.ValidatePattern.
func newExcludeMatcher(rawPatterns []string) *excludeMatcher {
	m := &excludeMatcher{}
	for _, raw := range rawPatterns {
		ep := excludePattern{origPattern: raw}
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "!") {
			ep.negated = true
			trimmed = strings.TrimSpace(trimmed[1:])
		}
		if strings.HasPrefix(trimmed, "/") {
			ep.isRooted = true
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		if strings.HasSuffix(trimmed, "/") {
			ep.isDirOnly = true
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		ep.pattern = filepath.ToSlash(trimmed)
		if ep.pattern == "" {
			continue
		}
		m.patterns = append(m.patterns, ep)
	}
	return m
}

// Match checks whether a path relative to the input directory is excluded.
// The last matching pattern wins, so later negations re-include.
func (m *excludeMatcher) Match(relativePath string, isDir bool) bool {
	excluded := false
	for _, ep := range m.patterns {
		if ep.isDirOnly && !isDir {
			continue
		}
		if util.MatchesPattern(ep.pattern, relativePath, ep.isRooted) {
			excluded = !ep.negated
		}
	}
	return excluded
}

// LastMatchPattern returns the original pattern that excluded the path, or "".
func (m *excludeMatcher) LastMatchPattern(relativePath string, isDir bool) string {
	last := ""
	excluded := false
	for _, ep := range m.patterns {
		if ep.isDirOnly && !isDir {
			continue
		}
		if util.MatchesPattern(ep.pattern, relativePath, ep.isRooted) {
			last = ep.origPattern
			excluded = !ep.negated
		}
	}
	if excluded {
		return last
	}
	return ""
}

func (m *excludeMatcher) patternCount() int {
	return len(m.patterns)
}
