package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsiec/livecam/broadcast"
	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/internal/session"
)

const (
	wsReadLimit    = 512
	wsCloseTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	// Viewers are embedded in arbitrary pages, same as <img src="/live">.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleLiveWS streams frames as binary WebSocket messages, one frame per
// message. Pacing and ordering match /live.
func (in *instance) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	sess := in.begin(w, r, "ws")
	if sess == nil {
		return
	}
	defer in.release(sess)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		in.finish(sess, &ConnectionError{Session: sess.ID, Err: err})
		return
	}
	defer in.hold(conn)()

	ctx, cancel := in.sessionContext(r.Context())
	defer cancel()

	// The hijacked connection no longer cancels the request context, so a
	// reader goroutine watches for the client going away.
	readDone := make(chan struct{})
	conn.SetReadLimit(wsReadLimit)
	go func() {
		defer close(readDone)
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sess.SetState(session.Streaming)
	in.log.Info("viewer connected", "session", sess.ID, "remote", r.RemoteAddr, "proto", "websocket", "sessions", in.registry.Count())

	err = in.pump(ctx, sess, func(snap broadcast.Snapshot, cfg config.ServerConfig) error {
		if cfg.WriteTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
				return err
			}
		}
		return conn.WriteMessage(websocket.BinaryMessage, snap.Frame.Data)
	})
	in.finish(sess, err)

	code := websocket.CloseNormalClosure
	if in.ctx.Err() != nil {
		code = websocket.CloseGoingAway
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(wsCloseTimeout))
	conn.Close()
	<-readDone
}
