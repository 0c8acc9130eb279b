//go:build !nojp2

package main

import (
	"log/slog"

	"github.com/tcirtsa/Jp2Converter/pkg/codec/jp2"
)

// The JPEG 2000 decoder needs cgo and libvips. Build with -tags nojp2 to
// leave it out (the binary then only converts images the stdlib can decode).
func init() {
	setupCodec = func(handler slog.Handler) func() {
		jp2.SetLogger(handler)
		return jp2.Shutdown
	}
}
