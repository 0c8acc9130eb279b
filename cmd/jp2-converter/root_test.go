package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcirtsa/Jp2Converter/internal/testutil"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

// executeCommand executes a cobra command and captures its output.
func executeCommand(root *cobra.Command, args ...string) (stdout string, stderr string, err error) {
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	root.SetArgs(args)

	err = root.Execute()

	return stdoutBuf.String(), stderrBuf.String(), err
}

func TestRootCmdHelp(t *testing.T) {
	stdout, stderr, err := executeCommand(newRootCmd(), "--help")

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "jp2-converter INPUT_DIR OUTPUT_DIR FORMAT")
	assert.Contains(t, stdout, "jpg/jpeg")
	assert.Contains(t, stdout, "--version")
}

// TestRootCmdHelp_AllFlagsPresent verifies all defined flags appear in help output
func TestRootCmdHelp_AllFlagsPresent(t *testing.T) {
	cmd := newRootCmd()
	stdout, _, err := executeCommand(cmd, "--help")
	require.NoError(t, err)

	check := func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain flag --%s", f.Name)
		if f.Shorthand != "" {
			assert.Contains(t, stdout, "-"+f.Shorthand+",", "Help output should contain shorthand -%s", f.Shorthand)
		}
	}
	cmd.Flags().VisitAll(check)
	cmd.PersistentFlags().VisitAll(check)
}

func TestRootCmdVersion(t *testing.T) {
	testCmd := &cobra.Command{Use: "jp2-converter", Run: func(*cobra.Command, []string) {}}
	testCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", "test-1.2.3", "abc123", "2024-01-01")
	testCmd.SetVersionTemplate(`{{.Name}} version {{.Version}}` + "\n")

	stdout, stderr, err := executeCommand(testCmd, "--version")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, "jp2-converter version test-1.2.3 (commit: abc123, built: 2024-01-01)\n", stdout)
}

func TestRootCmdArgumentErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		errorMsg string
	}{
		{"no arguments", nil, "accepts 3 arg(s), received 0"},
		{"missing format", []string{"in", "out"}, "accepts 3 arg(s), received 2"},
		{"too many", []string{"in", "out", "png", "extra"}, "accepts 3 arg(s), received 4"},
		{"height without resize width", []string{"in", "out", "png", "600", "--resize", "800,600"}, "accepts 3 arg(s), received 4"},
		{"unknown flag", []string{"in", "out", "png", "--unknown-flag"}, "unknown flag: --unknown-flag"},
		{"invalid int", []string{"in", "out", "png", "--workers", "many"}, "invalid argument \"many\""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := executeCommand(newRootCmd(), tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error()+stderr, tc.errorMsg)
			assert.Equal(t, exitFailure, exitCode(err))
		})
	}
}

func TestRootCmdBatchRun(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "a.jp2"), 12, 12)
	testutil.CreateTestImage(t, filepath.Join(in, "nested", "b.jp2"), 12, 6)

	stdout, _, err := executeCommand(newRootCmd(), in, out, "tiff", "--workers", "2", "--no-tui", "--log-file", filepath.Join(root, "run.log"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Total: 2, Succeeded: 2, Failed: 0")

	format, cfg := testutil.DecodeConfigFile(t, filepath.Join(out, "nested", "b.tiff"))
	assert.Equal(t, "tiff", format)
	assert.Equal(t, 6, cfg.Height)
}

func TestRootCmdInvalidFormat(t *testing.T) {
	root := t.TempDir()
	_, _, err := executeCommand(newRootCmd(), root, filepath.Join(root, "out"), "gif")
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrConfigValidation)
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitCancelled, exitCode(converter.ErrRunCancelled))
	assert.Equal(t, exitCancelled, exitCode(fmt.Errorf("run: %w", converter.ErrRunCancelled)))
	assert.Equal(t, exitFailure, exitCode(converter.ErrConversionFailures))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
}

// A command that printed help must not affect the next execution.
func TestRootCmdFreshStatePerExecution(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "a.jp2"), 4, 4)

	stdout, _, err := executeCommand(newRootCmd(), "--help")
	require.NoError(t, err)
	require.Contains(t, stdout, "Usage:")

	stdout, _, err = executeCommand(newRootCmd(), in, out, "png", "--no-tui", "--log-file", filepath.Join(root, "run.log"))
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "Total: 1, Succeeded: 1, Failed: 0")

	_, _, err = executeCommand(newRootCmd(), "in", "out")
	assert.Error(t, err)
}

func TestRootCmdResizeWidthHeight(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "a.jp2"), 40, 30)
	logFile := filepath.Join(root, "run.log")

	_, _, err := executeCommand(newRootCmd(), in, out, "png", "--resize", "20", "10", "--no-tui", "--log-file", logFile)
	require.NoError(t, err)
	_, cfg := testutil.DecodeConfigFile(t, filepath.Join(out, "a.png"))
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)

	_, _, err = executeCommand(newRootCmd(), in, out, "png", "--resize", "8,6", "--no-tui", "--log-file", logFile)
	require.NoError(t, err)
	_, cfg = testutil.DecodeConfigFile(t, filepath.Join(out, "a.png"))
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 6, cfg.Height)
}
