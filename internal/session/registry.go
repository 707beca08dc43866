// Package session tracks the viewer connections of a stream server: one
// Session per accepted request, walked through its state machine by the
// handler that owns it, and listed by the registry for status reporting.
package session

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is a position in the per-connection state machine.
type State int32

const (
	Accepted State = iota
	Authenticating
	Rejected
	Streaming
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Authenticating:
		return "authenticating"
	case Rejected:
		return "rejected"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Rejected || s == Closed
}

// Session is one viewer connection. Only the owning handler mutates it;
// counters are atomic so the registry can read them concurrently.
type Session struct {
	ID          string
	RemoteAddr  string
	Transport   string
	ConnectedAt time.Time

	state       atomic.Int32
	lastVersion atomic.Uint64
	framesSent  atomic.Uint64
	skipped     atomic.Uint64
	bytesSent   atomic.Uint64
}

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// SetState moves the session to next. Transitions out of a terminal state
// are ignored and reported as false.
func (s *Session) SetState(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur).Terminal() {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// LastVersion is the broadcaster version of the last frame written, 0 before
// the first one.
func (s *Session) LastVersion() uint64 { return s.lastVersion.Load() }

// RecordSent accounts for one written frame of n payload bytes. Versions
// between the previous frame and this one were skipped.
func (s *Session) RecordSent(version uint64, n int) {
	prev := s.lastVersion.Swap(version)
	if prev != 0 && version > prev+1 {
		s.skipped.Add(version - prev - 1)
	}
	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(n))
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remoteAddr"`
	Transport     string    `json:"transport"`
	State         string    `json:"state"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastVersion   uint64    `json:"lastVersion"`
	FramesSent    uint64    `json:"framesSent"`
	FramesSkipped uint64    `json:"framesSkipped"`
	BytesSent     uint64    `json:"bytesSent"`
}

// Stats snapshots the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		ID:            s.ID,
		RemoteAddr:    s.RemoteAddr,
		Transport:     s.Transport,
		State:         s.State().String(),
		ConnectedAt:   s.ConnectedAt,
		LastVersion:   s.lastVersion.Load(),
		FramesSent:    s.framesSent.Load(),
		FramesSkipped: s.skipped.Load(),
		BytesSent:     s.bytesSent.Load(),
	}
}

// Registry holds the sessions of one server instance.
type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. If log is nil, slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "session-registry"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session in the Accepted state.
func (r *Registry) Create(remoteAddr, transport string) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		Transport:   transport,
		ConnectedAt: time.Now(),
	}
	s.state.Store(int32(Accepted))

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.log.Debug("session accepted", "id", s.ID, "remote", remoteAddr, "transport", transport, "sessions", n)
	return s
}

// Remove drops the session and marks it Closed unless it already reached a
// terminal state.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	_, ok := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.SetState(Closed)
	r.log.Debug("session removed", "id", s.ID, "state", s.State(), "frames", s.framesSent.Load())
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Streaming returns the number of sessions currently streaming.
func (r *Registry) Streaming() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.State() == Streaming {
			n++
		}
	}
	return n
}

// List returns stats for every registered session, oldest first.
func (r *Registry) List() []Stats {
	r.mu.RLock()
	out := make([]Stats, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
