// Package stream serves the broadcaster's latest frame to HTTP viewers as a
// multipart/x-mixed-replace MJPEG stream.
//
// A Server is constructed once and may be started and stopped any number of
// times. Each Start creates a fresh instance with its own listener, session
// registry and cancellation context; Stop tears that instance down within
// the configured drain timeout.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/livecam/broadcast"
	"github.com/zsiec/livecam/certs"
	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/internal/session"
)

// readHeaderTimeout bounds how long a client may take to send its request
// headers.
const readHeaderTimeout = 10 * time.Second

// FrameSource is the broadcaster as seen by the server.
type FrameSource interface {
	Latest() (broadcast.Snapshot, bool)
	WaitForNext(ctx context.Context, afterVersion uint64) (broadcast.Snapshot, error)
	Stats() broadcast.Stats
}

// Options configures a Server. Frames and Settings are required.
type Options struct {
	Frames    FrameSource
	Settings  config.Provider
	Lifecycle Lifecycle

	// Cert serves the HTTP/3 mirror. When nil and the mirror is enabled, a
	// self-signed certificate is generated on first use.
	Cert *certs.CertInfo

	Log *slog.Logger
}

// Server is the live stream HTTP server.
type Server struct {
	base      *slog.Logger
	log       *slog.Logger
	frames    FrameSource
	settings  config.Provider
	lifecycle Lifecycle

	opMu sync.Mutex // serializes Start, Stop and their Lifecycle callbacks
	cert *certs.CertInfo

	mu   sync.Mutex // guards inst
	inst *instance
}

// NewServer creates a stopped Server. If Log is nil, slog.Default() is used.
func NewServer(opts Options) (*Server, error) {
	if opts.Frames == nil {
		return nil, errors.New("stream: Frames is required")
	}
	if opts.Settings == nil {
		return nil, errors.New("stream: Settings is required")
	}
	if opts.Lifecycle == nil {
		opts.Lifecycle = NopLifecycle{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Server{
		base:      opts.Log,
		log:       opts.Log.With("component", "stream-server"),
		frames:    opts.Frames,
		settings:  opts.Settings,
		lifecycle: opts.Lifecycle,
		cert:      opts.Cert,
	}, nil
}

// instance is one started incarnation of the server.
type instance struct {
	srv      *Server
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	registry *session.Registry

	http      *http.Server
	addr      string
	serveDone chan struct{}

	h3     *http3.Server
	h3ln   *quic.EarlyListener
	h3Addr string
	h3Done chan struct{}

	mu          sync.Mutex // guards closing, hijacked, forceClosed and sessions.Add
	closing     bool
	hijacked    map[io.Closer]struct{}
	forceClosed bool
	sessions    sync.WaitGroup
}

// Start binds the configured address and begins serving. Calling Start on a
// running server does nothing and returns nil. A bind failure is returned as
// a *BindError, reported to the Lifecycle, and leaves the server stopped.
func (s *Server) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.current() != nil {
		return nil
	}

	cfg := s.settings.Load()
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return s.bindFailed(&BindError{Addr: cfg.Addr(), Err: err})
	}

	ctx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		srv:       s,
		log:       s.log,
		ctx:       ctx,
		cancel:    cancel,
		registry:  session.NewRegistry(s.base),
		addr:      ln.Addr().String(),
		serveDone: make(chan struct{}),
	}
	handler := inst.routes()

	if cfg.SecurePort > 0 {
		if err := s.listenSecure(inst, cfg, handler); err != nil {
			cancel()
			ln.Close()
			return s.bindFailed(err)
		}
	}

	inst.http = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		defer close(inst.serveDone)
		if err := inst.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			inst.log.Error("live server stopped serving", "error", err)
		}
	}()

	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()
	s.log.Info("live server listening", "addr", inst.addr, "secure_addr", inst.h3Addr)
	s.lifecycle.OnStarted(inst.addr)
	return nil
}

func (s *Server) bindFailed(err error) error {
	s.log.Error("failed to bind live server", "error", err)
	s.lifecycle.OnBindError(err)
	return err
}

// Stop cancels every viewer session and the accept loop, waits up to the
// configured drain timeout for connections to finish, then closes whatever
// is still open. Stop on a stopped server does nothing.
func (s *Server) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	inst := s.inst
	s.inst = nil
	s.mu.Unlock()
	if inst == nil {
		return nil
	}

	err := inst.shutdown(s.settings.Load().DrainTimeout)
	s.log.Info("live server stopped", "addr", inst.addr)
	s.lifecycle.OnStopped()
	return err
}

// Restart stops the server if it is running and starts it again with the
// current settings. It is how a port change takes effect.
func (s *Server) Restart() error {
	if err := s.Stop(); err != nil {
		s.log.Warn("error while stopping for restart", "error", err)
	}
	return s.Start()
}

func (in *instance) shutdown(drain time.Duration) error {
	in.mu.Lock()
	in.closing = true
	in.mu.Unlock()

	in.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	var errs []error
	if err := in.http.Shutdown(ctx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
		in.log.Debug("drain timeout elapsed, closing remaining connections", "drain", drain)
		if err := in.http.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if in.h3 != nil {
		if err := in.h3.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stream: close http3: %w", err))
		}
		in.h3ln.Close()
		<-in.h3Done
	}
	<-in.serveDone

	// Hijacked connections are invisible to http.Server; close whatever is
	// still open once the drain deadline passes.
	done := make(chan struct{})
	go func() {
		in.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if n := in.closeHijacked(); n > 0 {
			in.log.Debug("force-closed hijacked connections", "count", n)
		}
		<-done
	}
	return errors.Join(errs...)
}

// hold registers a connection taken over from net/http so that shutdown can
// close it. The returned func unregisters it. A connection handed over
// after the drain deadline is closed at once.
func (in *instance) hold(c io.Closer) func() {
	in.mu.Lock()
	if in.forceClosed {
		in.mu.Unlock()
		c.Close()
		return func() {}
	}
	if in.hijacked == nil {
		in.hijacked = make(map[io.Closer]struct{})
	}
	in.hijacked[c] = struct{}{}
	in.mu.Unlock()
	return func() {
		in.mu.Lock()
		delete(in.hijacked, c)
		in.mu.Unlock()
	}
}

func (in *instance) closeHijacked() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.forceClosed = true
	for c := range in.hijacked {
		c.Close()
	}
	return len(in.hijacked)
}

// track registers a request as in flight. It returns false once shutdown
// has begun.
func (in *instance) track() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closing {
		return false
	}
	in.sessions.Add(1)
	return true
}

// sessionContext is cancelled when either the request ends or the instance
// is stopped.
func (in *instance) sessionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(in.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Running reports whether the server is started.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst != nil
}

// Addr returns the bound address of the primary listener, or "" when
// stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return ""
	}
	return s.inst.addr
}

// SecureAddr returns the bound address of the HTTP/3 mirror, or "" when it
// is disabled or the server is stopped.
func (s *Server) SecureAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return ""
	}
	return s.inst.h3Addr
}

// ViewerCount returns the number of sessions currently streaming.
func (s *Server) ViewerCount() int {
	inst := s.current()
	if inst == nil {
		return 0
	}
	return inst.registry.Streaming()
}

// Viewers returns per-session stats, oldest first.
func (s *Server) Viewers() []session.Stats {
	inst := s.current()
	if inst == nil {
		return []session.Stats{}
	}
	return inst.registry.List()
}

func (s *Server) current() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst
}

func (in *instance) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /live", in.handleLive)
	mux.HandleFunc("GET /live/ws", in.handleLiveWS)
	mux.HandleFunc("GET /snapshot", in.handleSnapshot)
	mux.HandleFunc("GET /api/status", in.handleStatus)
	return corsMiddleware(mux)
}
