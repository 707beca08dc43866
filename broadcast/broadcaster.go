// Package broadcast holds the single most recent frame and hands it to any
// number of concurrent readers.
//
// The producer never waits on readers: [Broadcaster.Publish] replaces the
// slot and wakes everyone blocked in [Broadcaster.WaitForNext]. A reader that
// falls behind simply observes the newest frame on its next call and skips
// everything in between. There is no per-reader queue.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/livecam/media"
)

// Snapshot is a frame together with the version the broadcaster assigned to
// it on publish. Versions start at 1 and increase by one per publish.
type Snapshot struct {
	Frame   *media.Frame
	Version uint64
}

// Stats is a point-in-time view of publisher activity.
type Stats struct {
	Published     uint64    `json:"published"`
	LastPublished time.Time `json:"lastPublished,omitempty"`
	LastFrameSize int       `json:"lastFrameSize"`
}

// slot is immutable once stored. ready is closed when the slot is replaced,
// which is how waiters learn that a newer version exists.
type slot struct {
	frame   *media.Frame
	version uint64
	ready   chan struct{}
}

// Broadcaster is the single point of truth for the current frame. The zero
// value is not usable; construct with [New].
type Broadcaster struct {
	log *slog.Logger

	// pubMu serializes publishers so that version numbers and channel closes
	// stay in order. Readers never take it.
	pubMu sync.Mutex
	cur   atomic.Pointer[slot]

	lastPublished atomic.Int64
}

// New creates an empty Broadcaster. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	b := &Broadcaster{log: log.With("component", "broadcaster")}
	b.cur.Store(&slot{ready: make(chan struct{})})
	return b
}

// Publish replaces the current frame. It never blocks on readers and is safe
// to call concurrently with any number of Latest and WaitForNext calls.
func (b *Broadcaster) Publish(frame *media.Frame) {
	if frame == nil {
		return
	}

	b.pubMu.Lock()
	prev := b.cur.Load()
	next := &slot{
		frame:   frame,
		version: prev.version + 1,
		ready:   make(chan struct{}),
	}
	b.cur.Store(next)
	close(prev.ready)
	b.pubMu.Unlock()

	b.lastPublished.Store(time.Now().UnixNano())
	if next.version == 1 {
		b.log.Info("first frame published", "bytes", frame.Len())
	}
}

// Latest returns the most recently published frame, or false if nothing has
// been published yet.
func (b *Broadcaster) Latest() (Snapshot, bool) {
	s := b.cur.Load()
	if s.frame == nil {
		return Snapshot{}, false
	}
	return Snapshot{Frame: s.frame, Version: s.version}, true
}

// WaitForNext returns the current frame if its version is newer than
// afterVersion, otherwise blocks until such a frame is published or ctx is
// done. Pass 0 to get the first available frame.
func (b *Broadcaster) WaitForNext(ctx context.Context, afterVersion uint64) (Snapshot, error) {
	for {
		s := b.cur.Load()
		if s.frame != nil && s.version > afterVersion {
			return Snapshot{Frame: s.frame, Version: s.version}, nil
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// Stats returns publisher counters.
func (b *Broadcaster) Stats() Stats {
	s := b.cur.Load()
	st := Stats{Published: s.version}
	if s.frame != nil {
		st.LastFrameSize = s.frame.Len()
	}
	if ns := b.lastPublished.Load(); ns != 0 {
		st.LastPublished = time.Unix(0, ns)
	}
	return st
}
