package converter_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tcirtsa/Jp2Converter/internal/testutil"
	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

func baseOptions(in, out, format string) converter.Options {
	return converter.Options{
		InputPath:        in,
		OutputPath:       out,
		TargetFormat:     format,
		Recursive:        true,
		Workers:          2,
		ProgressInterval: 5 * time.Millisecond,
		EventHooks:       &converter.NoOpHooks{},
		Logger:           testutil.DiscardHandler(),
		ProfileName:      "ci",
		ConfigFilePath:   "/etc/jp2-converter.yaml",
	}
}

func TestConvertTree_EndToEnd(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "a.jp2"), 16, 16)
	testutil.CreateTestImage(t, filepath.Join(in, "sub", "b.jp2"), 16, 8)

	report, err := converter.ConvertTree(context.Background(), baseOptions(in, out, "png"))
	require.NoError(t, err)
	assert.NoError(t, report.Err())

	assert.Equal(t, converter.RunFinished, report.Summary.Status)
	assert.Equal(t, converter.Counts{Total: 2, Succeeded: 2, Completed: 2}, report.Summary.Counts)
	assert.Equal(t, "ci", report.Summary.ProfileUsed)
	assert.Equal(t, "/etc/jp2-converter.yaml", report.Summary.ConfigFilePath)

	format, cfg := testutil.DecodeConfigFile(t, filepath.Join(out, "a.png"))
	assert.Equal(t, "png", format)
	assert.Equal(t, 16, cfg.Width)
	format, cfg = testutil.DecodeConfigFile(t, filepath.Join(out, "sub", "b.png"))
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, cfg.Height)
}

func TestConvertTree_ResizeAndQuality(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "a.jp2"), 50, 40)

	opts := baseOptions(in, out, "jpg/jpeg")
	opts.Quality = 70
	opts.Resize = []int{25, 10}
	report, err := converter.ConvertTree(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Succeeded)

	format, cfg := testutil.DecodeConfigFile(t, filepath.Join(out, "a.jpg"))
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 25, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestConvertTree_FailuresAreReportedNotReturned(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateTestImage(t, filepath.Join(in, "good.jp2"), 4, 4)
	testutil.CreateDummyFile(t, filepath.Join(in, "bad.jp2"), "garbage")

	report, err := converter.ConvertTree(context.Background(), baseOptions(in, out, "bmp"))
	require.NoError(t, err)
	assert.Equal(t, converter.Counts{Total: 2, Succeeded: 1, Failed: 1, Completed: 2}, report.Summary.Counts)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, filepath.Join(in, "bad.jp2"), report.Errors[0].Path)
	assert.ErrorIs(t, report.Err(), converter.ErrConversionFailures)
	assert.FileExists(t, filepath.Join(out, "good.bmp"))
	assert.NoFileExists(t, filepath.Join(out, "bad.bmp"))
}

func TestConvertTree_NothingToDo(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	testutil.CreateDummyFile(t, filepath.Join(in, "readme.txt"), "no images here")

	report, err := converter.ConvertTree(context.Background(), baseOptions(in, out, "png"))
	assert.ErrorIs(t, err, converter.ErrNothingToDo)
	assert.Equal(t, converter.RunIdle, report.Summary.Status)
	assert.Equal(t, 0, report.Summary.Total)
	assert.Equal(t, "ci", report.Summary.ProfileUsed)
	assert.DirExists(t, out)
}

func TestConvertTree_PlanningErrorIsFatal(t *testing.T) {
	root := t.TempDir()
	conv := new(testutil.MockFileConverter)

	opts := baseOptions(filepath.Join(root, "missing"), filepath.Join(root, "out"), "png")
	opts.Converter = conv
	_, err := converter.ConvertTree(context.Background(), opts)
	assert.ErrorIs(t, err, converter.ErrPlanning)
	conv.AssertNotCalled(t, "Convert", mock.Anything)
}

func TestConvertTree_InjectedConverterAndHooks(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	createTree(t, in, "a.jp2", "b.jp2")

	conv := new(testutil.MockFileConverter)
	conv.On("Convert", mock.AnythingOfType("converter.Task")).Return(converter.Outcome{Success: true})
	hooks := testutil.NewRecordingHooks()

	opts := baseOptions(in, out, "tiff")
	opts.Converter = conv
	opts.EventHooks = hooks
	report, err := converter.ConvertTree(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Succeeded)
	conv.AssertNumberOfCalls(t, "Convert", 2)
	assert.Len(t, hooks.Planned(), 2)
	require.Len(t, hooks.Reports(), 1)
	assert.Equal(t, converter.RunFinished, hooks.Reports()[0].Summary.Status)
}

func TestConvertTree_CancelledContext(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	createTree(t, in, "a.jp2", "b.jp2", "c.jp2")

	g := testutil.NewGateConverter(3)
	defer g.Open()
	opts := baseOptions(in, out, "png")
	opts.Workers = 1
	opts.Converter = g

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-g.Started
		cancel()
		// Give the controller time to observe ctx before the in-flight unit returns.
		time.Sleep(100 * time.Millisecond)
		g.Open()
	}()
	report, err := converter.ConvertTree(ctx, opts)
	assert.ErrorIs(t, err, converter.ErrRunCancelled)
	assert.Equal(t, converter.RunCancelled, report.Summary.Status)
	assert.LessOrEqual(t, report.Summary.Completed, 3)
	assert.Len(t, g.Calls(), 1)
}

func TestConvertTree_CancelledWhilePlanning(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	createTree(t, in, "a.jp2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := converter.ConvertTree(ctx, baseOptions(in, out, "png"))
	assert.ErrorIs(t, err, converter.ErrRunCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Summary.Status, "no run was started")
}

func TestConvertTree_InvalidOptions(t *testing.T) {
	root := t.TempDir()
	valid := baseOptions(root, filepath.Join(root, "out"), "png")

	testCases := []struct {
		name   string
		mutate func(o *converter.Options)
	}{
		{"nil logger", func(o *converter.Options) { o.Logger = nil }},
		{"nil hooks", func(o *converter.Options) { o.EventHooks = nil }},
		{"empty input", func(o *converter.Options) { o.InputPath = "" }},
		{"empty output", func(o *converter.Options) { o.OutputPath = "" }},
		{"bad format", func(o *converter.Options) { o.TargetFormat = "gif" }},
		{"quality too high", func(o *converter.Options) { o.Quality = 101 }},
		{"quality negative", func(o *converter.Options) { o.Quality = -1 }},
		{"resize one value", func(o *converter.Options) { o.Resize = []int{100} }},
		{"resize negative", func(o *converter.Options) { o.Resize = []int{100, -1} }},
		{"negative workers", func(o *converter.Options) { o.Workers = -2 }},
		{"bad filter", func(o *converter.Options) { o.Filter = "sharpest" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.mutate(&opts)
			_, err := converter.ConvertTree(context.Background(), opts)
			assert.ErrorIs(t, err, converter.ErrConfigValidation)
		})
	}
}
