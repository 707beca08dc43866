// Package notify turns live server lifecycle changes into log lines and
// MQTT status messages for whatever hosts the server.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zsiec/livecam/stream"
)

// Event types carried in Event.Type.
const (
	EventStarted   = "started"
	EventStopped   = "stopped"
	EventBindError = "bind_error"
)

// Event is the JSON payload published for every lifecycle change.
type Event struct {
	Type  string    `json:"event"`
	Addr  string    `json:"addr,omitempty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

func newEvent(typ string) Event {
	return Event{Type: typ, Time: time.Now().UTC()}
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Log writes lifecycle changes to a slog logger.
type Log struct {
	log *slog.Logger
}

// NewLog creates a Log notifier. If log is nil, slog.Default() is used.
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "lifecycle")}
}

func (l *Log) OnStarted(addr string) {
	l.log.Info("live server started", "addr", addr)
}

func (l *Log) OnStopped() {
	l.log.Info("live server stopped")
}

func (l *Log) OnBindError(err error) {
	l.log.Error("live server could not bind", "error", err)
}

var (
	_ stream.Lifecycle = (*Log)(nil)
	_ stream.Lifecycle = (*MQTT)(nil)
)

type multi []stream.Lifecycle

// Multi fans every notification out to ls in order. Nil entries are
// dropped.
func Multi(ls ...stream.Lifecycle) stream.Lifecycle {
	out := make(multi, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (m multi) OnStarted(addr string) {
	for _, l := range m {
		l.OnStarted(addr)
	}
}

func (m multi) OnStopped() {
	for _, l := range m {
		l.OnStopped()
	}
}

func (m multi) OnBindError(err error) {
	for _, l := range m {
		l.OnBindError(err)
	}
}
