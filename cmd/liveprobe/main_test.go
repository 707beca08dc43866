package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	livemjpeg "github.com/zsiec/livecam/mjpeg"
)

func TestProbeCountsFrames(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", livemjpeg.ContentType)
		pw := livemjpeg.NewPartWriter(w)
		for _, n := range []int{100, 300, 200} {
			if _, err := pw.WritePart("image/jpeg", bytes.Repeat([]byte{0xff}, n)); err != nil {
				return
			}
		}
		io.WriteString(w, livemjpeg.Boundary+"--\r\n")
	}))
	defer srv.Close()

	r, err := probe(context.Background(), srv.URL, 3)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if r.Frames != 3 {
		t.Errorf("frames: got %d, want 3", r.Frames)
	}
	if r.Bytes != 600 || r.MinSize != 100 || r.MaxSize != 300 {
		t.Errorf("sizes: got bytes=%d min=%d max=%d", r.Bytes, r.MinSize, r.MaxSize)
	}
}

func TestProbeReportsRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Password Required or Incorrect.", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := probe(context.Background(), srv.URL, 1)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("got %v, want a 401 error", err)
	}
}
