package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Report summarizes the result of a single run.
type Report struct {
	SchemaVersion string        `json:"schemaVersion"`
	RunID         string        `json:"runId"`
	Summary       ReportSummary `json:"summary"`
	Outcomes      []Outcome     `json:"outcomes"`
	Errors        []ErrorInfo   `json:"errors"`
}

// ReportSummary contains aggregated statistics for a run.
type ReportSummary struct {
	InputPath      string    `json:"inputPath,omitempty"`
	OutputPath     string    `json:"outputPath,omitempty"`
	TargetFormat   string    `json:"targetFormat,omitempty"`
	ProfileUsed    string    `json:"profileUsed,omitempty"`
	ConfigFilePath string    `json:"configFilePath,omitempty"`
	Status         RunStatus `json:"status"`
	Counts
	// NotRun counts planned tasks that produced no outcome (cancelled runs only).
	NotRun          int       `json:"notRun"`
	Workers         int       `json:"workers"`
	StartTime       time.Time `json:"startTime"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// ErrorInfo details a single failed conversion.
type ErrorInfo struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func newReport(runID string, opts ControllerOptions, st State, outcomes []Outcome) Report {
	r := Report{
		SchemaVersion: ReportSchemaVersion,
		RunID:         runID,
		Summary: ReportSummary{
			InputPath:       opts.InputPath,
			OutputPath:      opts.OutputPath,
			TargetFormat:    opts.TargetFormat,
			Status:          st.Status,
			Counts:          st.Counts,
			NotRun:          st.Total - st.Completed,
			Workers:         st.Workers,
			StartTime:       st.StartTime,
			DurationSeconds: st.Elapsed.Seconds(),
		},
		Outcomes: outcomes,
		Errors:   []ErrorInfo{},
	}
	if r.Outcomes == nil {
		r.Outcomes = []Outcome{}
	}
	for _, o := range outcomes {
		if !o.Success {
			r.Errors = append(r.Errors, ErrorInfo{Path: o.SourcePath, Error: o.Error})
		}
	}
	return r
}

// SummaryLine renders the counters as "Total: T, Succeeded: S, Failed: F".
func (r Report) SummaryLine() string {
	return fmt.Sprintf("Total: %d, Succeeded: %d, Failed: %d", r.Summary.Total, r.Summary.Succeeded, r.Summary.Failed)
}

// ElapsedLine renders the total wall time of the run.
func (r Report) ElapsedLine() string {
	return fmt.Sprintf("Total time: %.2f seconds", r.Summary.DurationSeconds)
}

// Err maps the report to the run's overall result: ErrRunCancelled for a
// cancelled run, ErrConversionFailures when any conversion failed, else nil.
func (r Report) Err() error {
	switch {
	case r.Summary.Status == RunCancelled:
		return fmt.Errorf("%w: %d of %d tasks did not run", ErrRunCancelled, r.Summary.NotRun, r.Summary.Total)
	case r.Summary.Failed > 0:
		return fmt.Errorf("%w: %d of %d", ErrConversionFailures, r.Summary.Failed, r.Summary.Total)
	}
	return nil
}

// WriteText prints the failure list, the summary line and the elapsed time.
func (r Report) WriteText(w io.Writer) error {
	if r.Summary.Status == RunCancelled {
		if _, err := fmt.Fprintf(w, "Run cancelled: %d task(s) not run\n", r.Summary.NotRun); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "Failed to convert %s: %s\n", e.Path, e.Error); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, r.SummaryLine()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, r.ElapsedLine())
	return err
}

// WriteJSON prints the full report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Write prints the report in the requested format.
func (r Report) Write(w io.Writer, format OutputFormat) error {
	if format == OutputFormatJSON {
		return r.WriteJSON(w)
	}
	return r.WriteText(w)
}
