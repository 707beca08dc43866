// Package source provides reference frame producers for running the live
// server outside of a camera application: a synthetic test pattern and a
// V4L2 webcam, both with an optional burned-in overlay.
package source

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"time"

	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/media"
)

// Publisher receives encoded frames. *broadcast.Broadcaster satisfies it.
type Publisher interface {
	Publish(frame *media.Frame)
}

// Source produces frames into a Publisher until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out Publisher) error
}

// JPEG quality used by the encoder. High frame rates trade detail for
// bandwidth.
const (
	QualityHighFPS = 25
	QualityDefault = 45
)

// QualityForFPS returns the JPEG quality for frames captured at fps.
func QualityForFPS(fps int) int {
	if fps >= 60 {
		return QualityHighFPS
	}
	return QualityDefault
}

// captureInterval is the spacing of produced frames. A disabled frame rate
// (0) falls back to the default so producers never spin.
func captureInterval(settings config.Provider) (time.Duration, int) {
	fps := settings.Load().FPS
	if fps <= 0 {
		fps = config.DefaultFPS
	}
	return time.Second / time.Duration(fps), fps
}

// encodeJPEG encodes img into a fresh buffer sized from the previous frame.
func encodeJPEG(img image.Image, quality, sizeHint int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
