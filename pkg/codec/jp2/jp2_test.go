//go:build !nojp2

package jp2

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// resetState undoes Shutdown so later tests in the package can decode again.
func resetState(t *testing.T) {
	t.Helper()
	orig := vipsShutdown
	t.Cleanup(func() {
		stateMu.Lock()
		shut, active = false, 0
		stateMu.Unlock()
		vipsShutdown = orig
	})
}

func TestFormatSniffing_MalformedData(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"jp2 signature box", boxMagic + "not a real image"},
		{"j2k codestream marker", codestreamMagic + "not a real image"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := image.DecodeConfig(strings.NewReader(tc.data))
			require.Error(t, err)
			assert.NotErrorIs(t, err, image.ErrFormat, "the registered decoder must claim the data")
			assert.True(t, strings.HasPrefix(err.Error(), "jp2:"), "unexpected error: %v", err)

			_, _, err = image.Decode(strings.NewReader(tc.data))
			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), "jp2:"), "unexpected error: %v", err)
		})
	}
}

func TestFormatSniffing_OtherFormatsUntouched(t *testing.T) {
	_, format, err := image.DecodeConfig(bytes.NewReader(encodePNG(t, 4, 3)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, _, err = image.DecodeConfig(strings.NewReader("plain text"))
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestDecode_RoundTrip(t *testing.T) {
	startup()
	ref, err := vips.NewImageFromBuffer(encodePNG(t, 12, 7))
	require.NoError(t, err)
	defer ref.Close()
	data, _, err := ref.ExportJp2k(vips.NewJp2kExportParams())
	if err != nil {
		t.Skipf("libvips built without JPEG 2000 support: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Contains(t, []string{"jp2", "j2k"}, format)
	assert.Equal(t, 12, cfg.Width)
	assert.Equal(t, 7, cfg.Height)

	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 7), img.Bounds())
}

func TestShutdown_SkippedWhileDecodeRunning(t *testing.T) {
	startup()
	resetState(t)
	calls := 0
	vipsShutdown = func() { calls++ }

	require.NoError(t, acquire())
	Shutdown()
	assert.Zero(t, calls, "libvips must stay up while a decode is running")
	release()

	_, err := Decode(bytes.NewReader([]byte(boxMagic)))
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = DecodeConfig(bytes.NewReader([]byte(boxMagic)))
	assert.ErrorIs(t, err, ErrShutdown)

	Shutdown()
	assert.Zero(t, calls, "a second call is a no-op")
}

func TestShutdown_Idle(t *testing.T) {
	startup()
	resetState(t)
	calls := 0
	vipsShutdown = func() { calls++ }

	Shutdown()
	Shutdown()
	assert.Equal(t, 1, calls)
}
