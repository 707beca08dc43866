package source

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/media"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// SMPTE-style colour bars.
var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// Pattern generates colour bars with a sweeping marker, encoded as JPEG at
// the configured frame rate.
type Pattern struct {
	Width, Height int
	Settings      config.Provider
	Overlay       *Overlay // optional

	log   *slog.Logger
	frame uint64
}

// NewPattern creates a test pattern source of the given size; zero values
// select DefaultWidth and DefaultHeight. If log is nil, slog.Default() is
// used.
func NewPattern(width, height int, settings config.Provider, overlay *Overlay, log *slog.Logger) *Pattern {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pattern{
		Width:    width,
		Height:   height,
		Settings: settings,
		Overlay:  overlay,
		log:      log.With("component", "pattern-source"),
	}
}

// Render draws frame number n.
func (p *Pattern) Render(n uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	barW := (p.Width + len(bars) - 1) / len(bars)
	markerX := int(n*4) % p.Width
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := bars[x/barW]
			if y > p.Height*3/4 {
				// Greyscale ramp along the bottom quarter.
				v := uint8(x * 255 / p.Width)
				c = color.RGBA{v, v, v, 255}
			}
			if x >= markerX && x < markerX+8 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Run publishes frames until ctx is cancelled. Render and encode failures
// drop that frame only.
func (p *Pattern) Run(ctx context.Context, out Publisher) error {
	interval, _ := captureInterval(p.Settings)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("test pattern started", "width", p.Width, "height", p.Height)
	sizeHint := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, fps := captureInterval(p.Settings)
		if next != interval {
			interval = next
			ticker.Reset(interval)
		}

		p.frame++
		img := p.Render(p.frame)
		if p.Overlay != nil {
			if err := p.Overlay.Draw(img); err != nil {
				p.log.Warn("overlay failed", "error", err)
			}
		}
		data, err := encodeJPEG(img, QualityForFPS(fps), sizeHint)
		if err != nil {
			p.log.Warn("encode failed, dropping frame", "frame", p.frame, "error", err)
			continue
		}
		sizeHint = len(data)
		out.Publish(media.NewFrame(data))
	}
}
