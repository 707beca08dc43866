//go:build linux

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/blackjack/webcam"

	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/media"
)

// V4L2 fourcc codes for compressed formats the camera can hand over as-is.
const (
	pixFmtMJPEG = webcam.PixelFormat('M' | 'J'<<8 | 'P'<<16 | 'G'<<24)
	pixFmtJPEG  = webcam.PixelFormat('J' | 'P'<<8 | 'E'<<16 | 'G'<<24)
)

// waitTimeout is the WaitForFrame timeout in seconds.
const waitTimeout = 1

// ErrNoMJPEG is returned when the device offers no Motion-JPEG format.
var ErrNoMJPEG = errors.New("source: device has no Motion-JPEG format")

// Webcam captures Motion-JPEG frames from a V4L2 device. Without an
// overlay, frames are published exactly as the camera encoded them;
// with one, each frame is decoded, drawn on and re-encoded.
type Webcam struct {
	Device        string
	Width, Height uint32 // preferred size; 0 picks the largest
	Settings      config.Provider
	Overlay       *Overlay

	log *slog.Logger
}

// NewWebcam creates a webcam source for device. If log is nil,
// slog.Default() is used.
func NewWebcam(device string, settings config.Provider, overlay *Overlay, log *slog.Logger) *Webcam {
	if log == nil {
		log = slog.Default()
	}
	return &Webcam{
		Device:   device,
		Settings: settings,
		Overlay:  overlay,
		log:      log.With("component", "webcam-source", "device", device),
	}
}

func (w *Webcam) open() (*webcam.Webcam, error) {
	cam, err := webcam.Open(w.Device)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", w.Device, err)
	}

	formats := cam.GetSupportedFormats()
	var pix webcam.PixelFormat
	var found bool
	for _, f := range []webcam.PixelFormat{pixFmtMJPEG, pixFmtJPEG} {
		if _, ok := formats[f]; ok {
			pix, found = f, true
			break
		}
	}
	if !found {
		cam.Close()
		return nil, ErrNoMJPEG
	}

	width, height := w.Width, w.Height
	if width == 0 || height == 0 {
		for _, size := range cam.GetSupportedFrameSizes(pix) {
			if size.MaxWidth*size.MaxHeight > width*height {
				width, height = size.MaxWidth, size.MaxHeight
			}
		}
	}

	_, gotW, gotH, err := cam.SetImageFormat(pix, width, height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("source: set format %s %dx%d: %w", formats[pix], width, height, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("source: start streaming: %w", err)
	}
	w.log.Info("webcam streaming", "format", formats[pix], "width", gotW, "height", gotH)
	return cam, nil
}

// Run captures until ctx is cancelled or the device fails. Frames arriving
// faster than the configured rate are read and discarded.
func (w *Webcam) Run(ctx context.Context, out Publisher) error {
	cam, err := w.open()
	if err != nil {
		return err
	}
	defer cam.Close()
	defer cam.StopStreaming()

	var last time.Time
	sizeHint := 0
	for ctx.Err() == nil {
		err := cam.WaitForFrame(waitTimeout)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			continue
		default:
			return fmt.Errorf("source: wait for frame: %w", err)
		}

		raw, err := cam.ReadFrame()
		if err != nil {
			return fmt.Errorf("source: read frame: %w", err)
		}
		interval, fps := captureInterval(w.Settings)
		if len(raw) == 0 || time.Since(last) < interval {
			continue
		}
		last = time.Now()

		// ReadFrame returns the driver's mmap buffer, reused on the next read.
		data := make([]byte, len(raw))
		copy(data, raw)

		if w.Overlay != nil {
			data, err = w.decorate(data, QualityForFPS(fps), sizeHint)
			if err != nil {
				w.log.Debug("overlay skipped for frame", "error", err)
				continue
			}
		}
		sizeHint = len(data)
		out.Publish(media.NewFrame(data))
	}
	return nil
}

func (w *Webcam) decorate(data []byte, quality, sizeHint int) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	img, ok := src.(draw.Image)
	if !ok {
		rgba := image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
		img = rgba
	}
	if err := w.Overlay.Draw(img); err != nil {
		return nil, err
	}
	return encodeJPEG(img, quality, sizeHint)
}
