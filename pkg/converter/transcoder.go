package converter

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
)

// FileConverter performs one file's decode -> resize -> encode.
// Implementations must never panic past Convert and must be safe for concurrent use.
type FileConverter interface {
	Convert(task Task) Outcome
}

// ConverterOptions configures an ImageConverter.
type ConverterOptions struct {
	Filter          string // resampling filter name, see ResampleFilter
	TIFFCompression string // "none" or "deflate"
}

// ImageConverter is the default FileConverter. It decodes any format registered
// with the image package (the jp2 codec registers JPEG 2000), resamples with
// imaging and encodes PNG/JPEG/BMP through imaging and TIFF through x/image/tiff.
type ImageConverter struct {
	filter          imaging.ResampleFilter
	tiffCompression tiff.CompressionType
	logger          *slog.Logger
}

var resampleFilters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// ResampleFilter resolves a filter name (case-insensitive). Empty selects DefaultFilter.
func ResampleFilter(name string) (imaging.ResampleFilter, error) {
	if name == "" {
		name = DefaultFilter
	}
	f, ok := resampleFilters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("%w: unknown resample filter %q", ErrConfigValidation, name)
	}
	return f, nil
}

// FilterNames lists the accepted resample filter names.
func FilterNames() []string {
	return []string{"lanczos", "catmullrom", "mitchell", "linear", "box", "nearest"}
}

// TIFFCompression resolves a TIFF compression name. Empty selects DefaultTIFFCompression.
func TIFFCompression(name string) (tiff.CompressionType, error) {
	if name == "" {
		name = DefaultTIFFCompression
	}
	switch strings.ToLower(name) {
	case "none":
		return tiff.Uncompressed, nil
	case "deflate":
		return tiff.Deflate, nil
	}
	return tiff.Uncompressed, fmt.Errorf("%w: unknown tiff compression %q (allowed: none, deflate)", ErrConfigValidation, name)
}

// NewImageConverter creates an ImageConverter. A nil handler discards logs.
func NewImageConverter(opts ConverterOptions, loggerHandler slog.Handler) (*ImageConverter, error) {
	filter, err := ResampleFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	compression, err := TIFFCompression(opts.TIFFCompression)
	if err != nil {
		return nil, err
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &ImageConverter{
		filter:          filter,
		tiffCompression: compression,
		logger:          slog.New(loggerHandler).With(slog.String("component", "converter")),
	}, nil
}

// Convert executes a single task. Every failure, including a panic inside a
// codec, is returned as a negative Outcome.
func (c *ImageConverter) Convert(task Task) (out Outcome) {
	startTime := time.Now()
	out = Outcome{SourcePath: task.SourcePath, DestinationPath: task.DestinationPath}
	stage := ErrDecode

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Err = fmt.Errorf("%w: %s: panic: %v", stage, task.SourcePath, r)
		}
		out.Duration = time.Since(startTime)
		if out.Err != nil {
			out.Error = out.Err.Error()
		}
		c.logger.Debug("Conversion finished",
			slog.String("source", task.SourcePath),
			slog.String("destination", task.DestinationPath),
			slog.Bool("success", out.Success),
			slog.Duration("duration", out.Duration),
			slog.String("error", out.Error),
		)
	}()

	format, _, err := ParseFormat(task.TargetFormat)
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrEncode, err)
		return out
	}

	img, err := decodeFile(task.SourcePath)
	if err != nil {
		out.Err = fmt.Errorf("%w: %s: %w", ErrDecode, task.SourcePath, err)
		return out
	}
	stage = ErrEncode

	if task.Resize.Enabled() {
		b := img.Bounds()
		c.logger.Debug("Resizing image", slog.String("source", task.SourcePath),
			slog.String("from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy())), slog.String("to", task.Resize.String()))
		img = imaging.Resize(img, task.Resize.Width, task.Resize.Height, c.filter)
	}

	if err := writeAtomic(task.DestinationPath, func(w io.Writer) error {
		return c.encode(w, img, format, task.Quality)
	}); err != nil {
		out.Err = fmt.Errorf("%w: %s: %w", ErrEncode, task.DestinationPath, err)
		return out
	}

	out.Success = true
	return out
}

// decodeFile reads the whole source into memory.
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imaging.Decode(bufio.NewReader(f))
}

func (c *ImageConverter) encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatJPEG:
		if quality > 0 {
			return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
		}
		return imaging.Encode(w, img, imaging.JPEG)
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatBMP:
		return imaging.Encode(w, img, imaging.BMP)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{
			Compression: c.tiffCompression,
			Predictor:   c.tiffCompression == tiff.Deflate,
		})
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// writeAtomic writes through a temporary sibling file and renames it into place,
// so a failed encode never leaves a partial destination behind.
func writeAtomic(dest string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, fs.FileMode(0o644)); err != nil {
		return err
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return err
	}
	committed = true
	return nil
}
