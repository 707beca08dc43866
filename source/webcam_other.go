//go:build !linux

package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zsiec/livecam/config"
)

// ErrNoMJPEG is returned when the device offers no Motion-JPEG format.
var ErrNoMJPEG = errors.New("source: device has no Motion-JPEG format")

// ErrUnsupported is returned by Webcam.Run on platforms without V4L2.
var ErrUnsupported = errors.New("source: webcam capture requires linux")

// Webcam is unavailable on this platform.
type Webcam struct {
	Device        string
	Width, Height uint32
	Settings      config.Provider
	Overlay       *Overlay
}

func NewWebcam(device string, settings config.Provider, overlay *Overlay, _ *slog.Logger) *Webcam {
	return &Webcam{Device: device, Settings: settings, Overlay: overlay}
}

func (w *Webcam) Run(context.Context, Publisher) error {
	return ErrUnsupported
}
