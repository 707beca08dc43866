// Command liveprobe connects to a livecam stream and reports what it
// receives: frame count, sizes, and the observed frame rate.
//
// Usage:
//
//	go run ./cmd/liveprobe -url 'http://localhost:8080/live?pwd=secret' -frames 50
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-mjpeg"
)

func main() {
	url := flag.String("url", "http://localhost:8080/live", "live stream URL")
	frames := flag.Int("frames", 30, "frames to read before exiting (0 = until interrupted)")
	timeout := flag.Duration("timeout", 10*time.Second, "give up after this long")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	r, err := probe(ctx, *url, *frames)
	if r.Frames > 0 {
		fmt.Printf("frames=%d bytes=%d min=%d max=%d fps=%.1f\n",
			r.Frames, r.Bytes, r.MinSize, r.MaxSize, r.FPS())
	}
	if err != nil {
		slog.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

type result struct {
	Frames           int
	Bytes            int
	MinSize, MaxSize int
	First, Last      time.Time
}

func (r result) FPS() float64 {
	if r.Frames < 2 {
		return 0
	}
	return float64(r.Frames-1) / r.Last.Sub(r.First).Seconds()
}

func probe(ctx context.Context, url string, want int) (result, error) {
	var r result

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return r, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return r, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return r, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return r, fmt.Errorf("content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return r, fmt.Errorf("not a multipart stream: %s", mediaType)
	}

	// livecam advertises its delimiter including the leading dashes.
	dec := mjpeg.NewDecoder(resp.Body, strings.TrimLeft(params["boundary"], "-"))
	for want == 0 || r.Frames < want {
		data, err := dec.DecodeRaw()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return r, nil
			}
			return r, fmt.Errorf("after %d frames: %w", r.Frames, err)
		}
		now := time.Now()
		if r.Frames == 0 {
			r.First, r.MinSize = now, len(data)
		}
		r.Last = now
		r.Frames++
		r.Bytes += len(data)
		r.MinSize = min(r.MinSize, len(data))
		r.MaxSize = max(r.MaxSize, len(data))
		slog.Debug("frame", "n", r.Frames, "size", len(data))
	}
	return r, nil
}
