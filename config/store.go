package config

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Provider supplies the current settings snapshot. It is what the server
// consults at request time and at every pacing tick.
type Provider interface {
	Load() ServerConfig
}

// ChangeFunc is called after the Store swaps in a new snapshot.
type ChangeFunc func(old, cur ServerConfig)

// Store is the live settings holder shared by every collaborator. Reads are
// a single atomic pointer load; updates swap the whole snapshot.
type Store struct {
	log *slog.Logger
	cur atomic.Pointer[ServerConfig]

	mu        sync.Mutex // serializes updates and guards listeners
	listeners []ChangeFunc
}

// NewStore creates a Store holding initial. If log is nil, slog.Default()
// is used.
func NewStore(initial ServerConfig, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{log: log.With("component", "config")}
	s.cur.Store(&initial)
	return s
}

// Load returns a copy of the current snapshot.
func (s *Store) Load() ServerConfig {
	return *s.cur.Load()
}

// Replace validates cfg and swaps it in. In-flight connections pick the new
// values up at their next pacing tick; parameters they already acted on,
// such as the password check, are not revisited.
func (s *Store) Replace(cfg ServerConfig) error {
	return s.Update(func(c *ServerConfig) { *c = cfg })
}

// Update applies fn to a copy of the current snapshot and stores the result
// if it validates. Concurrent updates are applied one at a time.
func (s *Store) Update(fn func(*ServerConfig)) error {
	s.mu.Lock()
	next := *s.cur.Load()
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	old := *s.cur.Swap(&next)
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	if old == next {
		return nil
	}
	s.log.Info("settings updated",
		"port", next.Port,
		"fps", next.FPS,
		"password_enabled", next.PasswordEnabled,
		"secure_port", next.SecurePort)
	for _, l := range listeners {
		l(old, next)
	}
	return nil
}

// OnChange registers fn to run after every update that changes a value.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
