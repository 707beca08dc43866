package source

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/math/fixed"
)

// TimestampLayout is the format of the burned-in capture time.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	overlayMargin  = 30
	overlayLeading = 10
	shadowOffset   = 2
)

var (
	boldOnce sync.Once
	boldFont *truetype.Font
	boldErr  error
)

func loadBold() (*truetype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = freetype.ParseFont(gobold.TTF)
	})
	return boldFont, boldErr
}

// Overlay burns a timestamp and a watermark line into the lower left corner
// of a frame, white on a black drop shadow. The text height scales with the
// frame width. It is not safe for concurrent use.
type Overlay struct {
	Text      string // watermark line; empty hides it
	Timestamp bool

	// Now supplies the time shown; time.Now when nil.
	Now func() time.Time

	font *truetype.Font
	ctx  *freetype.Context
}

// NewOverlay creates an overlay showing the timestamp and text.
func NewOverlay(text string) (*Overlay, error) {
	f, err := loadBold()
	if err != nil {
		return nil, fmt.Errorf("source: parse overlay font: %w", err)
	}
	ctx := freetype.NewContext()
	ctx.SetFont(f)
	ctx.SetDPI(72)
	return &Overlay{
		Text:      text,
		Timestamp: true,
		font:      f,
		ctx:       ctx,
	}, nil
}

// Lines returns the text lines drawn for t, bottom line first.
func (o *Overlay) Lines(t time.Time) []string {
	var lines []string
	if o.Timestamp {
		lines = append(lines, t.Format(TimestampLayout))
	}
	if o.Text != "" {
		lines = append(lines, o.Text)
	}
	return lines
}

// Draw renders the overlay onto img.
func (o *Overlay) Draw(img draw.Image) error {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	lines := o.Lines(now())
	if len(lines) == 0 {
		return nil
	}

	b := img.Bounds()
	size := float64(b.Dx()) / 20
	if size < 8 {
		size = 8
	}
	o.ctx.SetFontSize(size)
	o.ctx.SetDst(img)
	o.ctx.SetClip(b)

	y := b.Max.Y - overlayMargin
	for _, line := range lines {
		for _, pass := range []struct {
			c   color.Color
			off int
		}{
			{color.Black, shadowOffset},
			{color.White, 0},
		} {
			o.ctx.SetSrc(image.NewUniform(pass.c))
			pt := fixed.P(b.Min.X+overlayMargin+pass.off, y+pass.off)
			if _, err := o.ctx.DrawString(line, pt); err != nil {
				return fmt.Errorf("source: draw overlay: %w", err)
			}
		}
		y -= int(size) + overlayLeading
	}
	return nil
}
