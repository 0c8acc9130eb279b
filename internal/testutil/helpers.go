package testutil

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile creates a dummy file with specified content at the given path,
// ensuring parent directories exist. It uses require assertions for test setup.
func CreateDummyFile(t *testing.T, path string, content string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	dir := filepath.Dir(fullPath)
	err := os.MkdirAll(dir, 0o755)
	require.NoError(t, err, "Failed to create directory %s for dummy file", dir)
	err = os.WriteFile(fullPath, []byte(content), 0o644)
	require.NoError(t, err, "Failed to write dummy file %s", fullPath)
}

// CreateDummyDir ensures a directory exists at the given path, creating parents if needed.
func CreateDummyDir(t *testing.T, path string) {
	t.Helper()
	fullPath := filepath.Clean(path)
	err := os.MkdirAll(fullPath, 0o755)
	require.NoError(t, err, "Failed to create dummy directory %s", fullPath)
}

// CreateTestImage writes a width x height gradient PNG to path, whatever its
// extension. Tests name these files *.jp2: decoding sniffs the content, so the
// converter treats them as readable sources without the cgo JPEG 2000 codec.
func CreateTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	CreateDummyDir(t, filepath.Dir(path))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / max(1, width)), G: uint8(y * 255 / max(1, height)), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err, "Failed to create test image %s", path)
	defer f.Close()
	require.NoError(t, png.Encode(f, img), "Failed to encode test image %s", path)
}

// DecodeConfigFile returns the format name and dimensions of an image file.
func DecodeConfigFile(t *testing.T, path string) (string, image.Config) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err, "Failed to open %s", path)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err, "Failed to decode config of %s", path)
	return format, cfg
}

// DiscardHandler returns a slog.Handler that drops every record.
func DiscardHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}
