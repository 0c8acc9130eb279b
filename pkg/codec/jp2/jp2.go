// Package jp2 registers a JPEG 2000 decoder with the image package, backed by
// libvips through govips. Import it for its side effect:
//
//	import _ "github.com/tcirtsa/Jp2Converter/pkg/codec/jp2"
//
// libvips must be built with OpenJPEG support.
package jp2

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

const (
	// boxMagic is the signature box that starts every .jp2 file.
	boxMagic = "\x00\x00\x00\x0cjP  \r\n\x87\n"
	// codestreamMagic starts a raw J2K codestream (SOC followed by SIZ).
	codestreamMagic = "\xff\x4f\xff\x51"
)

// ErrShutdown is returned by decodes attempted after Shutdown.
var ErrShutdown = errors.New("jp2: decoder shut down")

var (
	startOnce sync.Once
	started   bool
	logger    = slog.New(slog.NewTextHandler(io.Discard, nil))
	loggerMu  sync.RWMutex

	// stateMu guards active and shut.
	stateMu sync.Mutex
	active  int
	shut    bool

	vipsShutdown = vips.Shutdown
)

func init() {
	image.RegisterFormat("jp2", boxMagic, Decode, DecodeConfig)
	image.RegisterFormat("j2k", codestreamMagic, Decode, DecodeConfig)
}

// SetLogger routes libvips messages to handler. Call before the first decode;
// later calls only change the slog destination.
func SetLogger(handler slog.Handler) {
	if handler == nil {
		return
	}
	loggerMu.Lock()
	logger = slog.New(handler).With(slog.String("component", "vips"))
	loggerMu.Unlock()
}

func currentLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func startup() {
	startOnce.Do(func() {
		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			l := currentLogger()
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				l.Error(msg, slog.String("domain", domain))
			case vips.LogLevelWarning:
				l.Warn(msg, slog.String("domain", domain))
			default:
				l.Debug(msg, slog.String("domain", domain))
			}
		}, vips.LogLevelWarning)
		// The converter's worker pool provides the parallelism.
		vips.Startup(&vips.Config{ConcurrencyLevel: 1})
		started = true
	})
}

// acquire registers a decode. It fails once Shutdown has been called.
func acquire() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if shut {
		return ErrShutdown
	}
	active++
	return nil
}

func release() {
	stateMu.Lock()
	active--
	stateMu.Unlock()
}

// Shutdown releases libvips. Later decodes fail with ErrShutdown. If a decode
// is still running (one abandoned after a shutdown timeout), libvips is left
// up for process exit to reclaim.
func Shutdown() {
	startOnce.Do(func() {})
	stateMu.Lock()
	defer stateMu.Unlock()
	if shut {
		return
	}
	shut = true
	if !started {
		return
	}
	if active > 0 {
		currentLogger().Warn("Decodes still running, skipping libvips shutdown", slog.Int("active", active))
		return
	}
	vipsShutdown()
}

// Decode reads a JPEG 2000 image. libvips decodes it and hands the pixels
// back losslessly as PNG, which keeps 16-bit and alpha channels intact.
func Decode(r io.Reader) (image.Image, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()
	startup()
	ref, err := vips.NewImageFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("jp2: %w", err)
	}
	defer ref.Close()

	params := vips.NewPngExportParams()
	params.Compression = 0
	buf, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("jp2: export: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("jp2: %w", err)
	}
	return img, nil
}

// DecodeConfig reports the dimensions and an approximate color model.
func DecodeConfig(r io.Reader) (image.Config, error) {
	if err := acquire(); err != nil {
		return image.Config{}, err
	}
	defer release()
	startup()
	ref, err := vips.NewImageFromReader(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("jp2: %w", err)
	}
	defer ref.Close()

	model := color.Model(color.NRGBAModel)
	if ref.Bands() <= 2 {
		model = color.GrayModel
	}
	return image.Config{ColorModel: model, Width: ref.Width(), Height: ref.Height()}, nil
}
