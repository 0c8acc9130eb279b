package converter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcirtsa/Jp2Converter/pkg/converter"
)

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		token     string
		format    converter.Format
		extension string
	}{
		{"png", converter.FormatPNG, "png"},
		{"PNG", converter.FormatPNG, "png"},
		{"jpg", converter.FormatJPEG, "jpg"},
		{"JPEG", converter.FormatJPEG, "jpeg"},
		{"jpg/jpeg", converter.FormatJPEG, "jpg"},
		{" bmp ", converter.FormatBMP, "bmp"},
		{"tiff", converter.FormatTIFF, "tiff"},
		{"tif", converter.FormatTIFF, "tif"},
	}
	for _, tc := range testCases {
		t.Run(tc.token, func(t *testing.T) {
			format, ext, err := converter.ParseFormat(tc.token)
			require.NoError(t, err)
			assert.Equal(t, tc.format, format)
			assert.Equal(t, tc.extension, ext)
		})
	}

	for _, bad := range []string{"", "gif", "jp2", "webp"} {
		_, _, err := converter.ParseFormat(bad)
		assert.ErrorIs(t, err, converter.ErrUnsupportedFormat, "token %q", bad)
	}
}

func TestFormat_SupportsQuality(t *testing.T) {
	assert.True(t, converter.FormatJPEG.SupportsQuality())
	assert.False(t, converter.FormatPNG.SupportsQuality())
	assert.False(t, converter.FormatBMP.SupportsQuality())
	assert.False(t, converter.FormatTIFF.SupportsQuality())
}

func TestResize_Enabled(t *testing.T) {
	assert.False(t, converter.Resize{}.Enabled())
	assert.False(t, converter.Resize{Width: 100}.Enabled())
	assert.False(t, converter.Resize{Height: 100}.Enabled())
	assert.True(t, converter.Resize{Width: 1, Height: 1}.Enabled())
	assert.Equal(t, "original", converter.Resize{Width: 0, Height: 10}.String())
	assert.Equal(t, "800x600", converter.Resize{Width: 800, Height: 600}.String())
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, converter.RunFinished.Terminal())
	assert.True(t, converter.RunCancelled.Terminal())
	assert.False(t, converter.RunIdle.Terminal())
	assert.False(t, converter.RunRunning.Terminal())
	assert.False(t, converter.RunPaused.Terminal())
}

func TestDefaultWorkerCounts(t *testing.T) {
	w := converter.DefaultWorkers()
	assert.GreaterOrEqual(t, w, 1)
	assert.LessOrEqual(t, w, converter.MaxCLIWorkers)

	p := converter.DefaultPoolSize()
	assert.GreaterOrEqual(t, p, 1)
	assert.LessOrEqual(t, p, converter.MaxPoolSize)
}

func TestOptions_ResizeSpec(t *testing.T) {
	opts := converter.Options{Resize: []int{640, 480}}
	assert.Equal(t, converter.Resize{Width: 640, Height: 480}, opts.ResizeSpec())

	opts.Resize = nil
	assert.False(t, opts.ResizeSpec().Enabled())

	opts = converter.Options{InputPath: "/in", OutputPath: "/out", TargetFormat: "png", Quality: 90, Recursive: true, ExcludePatterns: []string{"tmp/"}}
	po := opts.PlanOptions()
	assert.Equal(t, "/in", po.InputPath)
	assert.Equal(t, "/out", po.OutputPath)
	assert.Equal(t, 90, po.Quality)
	assert.True(t, po.Recursive)
	assert.Equal(t, []string{"tmp/"}, po.ExcludePatterns)
}

func TestNoOpHooks(t *testing.T) {
	var h converter.Hooks = &converter.NoOpHooks{}
	assert.NoError(t, h.OnTaskPlanned(converter.Task{}))
	assert.NoError(t, h.OnTaskStatusUpdate("a.jp2", converter.StatusSuccess, "", 0))
	assert.NoError(t, h.OnStateChange(converter.State{}))
	assert.NoError(t, h.OnRunComplete(converter.Report{}))
}
