package stream

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zsiec/livecam/broadcast"
	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/internal/session"
	"github.com/zsiec/livecam/mjpeg"
)

const unauthorizedBody = "Password Required or Incorrect."

// authorize checks the pwd query parameter against cfg. Open mode accepts
// every request.
func authorize(cfg config.ServerConfig, q url.Values) error {
	if !cfg.PasswordEnabled {
		return nil
	}
	vals, ok := q["pwd"]
	if !ok || len(vals) == 0 {
		return &AuthError{Reason: AuthMissing}
	}
	if subtle.ConstantTimeCompare([]byte(vals[0]), []byte(cfg.Password)) != 1 {
		return &AuthError{Reason: AuthMismatch}
	}
	return nil
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	if r.ProtoMajor < 2 {
		h.Set("Connection", "close")
	}
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, unauthorizedBody)
}

func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// begin registers a viewer session and authenticates it. It returns nil
// after it has already answered the request: 503 while shutting down, 401
// on a bad credential. The caller must release a non-nil session.
func (in *instance) begin(w http.ResponseWriter, r *http.Request, transport string) *session.Session {
	if !in.track() {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return nil
	}
	sess := in.registry.Create(r.RemoteAddr, transport)
	sess.SetState(session.Authenticating)

	if err := authorize(in.srv.settings.Load(), r.URL.Query()); err != nil {
		sess.SetState(session.Rejected)
		in.log.Info("viewer rejected", "session", sess.ID, "remote", r.RemoteAddr, "error", err)
		writeUnauthorized(w, r)
		in.release(sess)
		return nil
	}
	return sess
}

func (in *instance) release(sess *session.Session) {
	in.registry.Remove(sess)
	in.sessions.Done()
}

// sendFunc writes one frame to a viewer using the settings of the current
// pacing tick.
type sendFunc func(snap broadcast.Snapshot, cfg config.ServerConfig) error

// pump delivers frames to one viewer until ctx is done or send fails. Each
// frame is newer than the previous one, and consecutive sends are at least
// one frame interval apart. FPS is re-read on every tick.
func (in *instance) pump(ctx context.Context, sess *session.Session, send sendFunc) error {
	var (
		lastSent time.Time
		timer    *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		cfg := in.srv.settings.Load()
		if iv := cfg.FrameInterval(); iv > 0 && !lastSent.IsZero() {
			if wait := iv - time.Since(lastSent); wait > 0 {
				if timer == nil {
					timer = time.NewTimer(wait)
				} else {
					timer.Reset(wait)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		snap, err := in.srv.frames.WaitForNext(ctx, sess.LastVersion())
		if err != nil {
			return err
		}
		if err := send(snap, in.srv.settings.Load()); err != nil {
			return &ConnectionError{Session: sess.ID, Err: err}
		}
		lastSent = time.Now()
		sess.RecordSent(snap.Version, snap.Frame.Len())
	}
}

// finish logs why a session ended.
func (in *instance) finish(sess *session.Session, err error) {
	sess.SetState(session.Closing)
	args := []any{"session", sess.ID, "remote", sess.RemoteAddr, "frames", sess.Stats().FramesSent}
	var connErr *ConnectionError
	switch {
	case errors.As(err, &connErr):
		in.log.Debug("viewer connection failed", append(args, "error", connErr.Err)...)
	case in.ctx.Err() != nil:
		in.log.Debug("viewer closed by server stop", args...)
	default:
		in.log.Info("viewer disconnected", args...)
	}
}

func (in *instance) handleLive(w http.ResponseWriter, r *http.Request) {
	sess := in.begin(w, r, "http")
	if sess == nil {
		return
	}
	defer in.release(sess)

	ctx, cancel := in.sessionContext(r.Context())
	defer cancel()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", mjpeg.ContentType)
	setNoCache(h)
	w.WriteHeader(http.StatusOK)
	// Headers go out before the first frame so that a viewer arriving early
	// is held open rather than timing out.
	if err := rc.Flush(); err != nil {
		in.finish(sess, &ConnectionError{Session: sess.ID, Err: err})
		return
	}

	sess.SetState(session.Streaming)
	in.log.Info("viewer connected", "session", sess.ID, "remote", r.RemoteAddr, "proto", r.Proto, "sessions", in.registry.Count())

	pw := mjpeg.NewPartWriter(w)
	err := in.pump(ctx, sess, func(snap broadcast.Snapshot, cfg config.ServerConfig) error {
		if cfg.WriteTimeout > 0 {
			err := rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if _, err := pw.WritePart(cfg.ContentType, snap.Frame.Data); err != nil {
			return err
		}
		return rc.Flush()
	})
	in.finish(sess, err)
}
