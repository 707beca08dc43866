package stream

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zsiec/livecam/broadcast"
	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/internal/session"
)

// Status is the JSON body of /api/status.
type Status struct {
	Running         bool            `json:"running"`
	Addr            string          `json:"addr"`
	SecureAddr      string          `json:"secureAddr,omitempty"`
	FPS             int             `json:"fps"`
	PasswordEnabled bool            `json:"passwordEnabled"`
	Viewers         int             `json:"viewers"`
	Sessions        []session.Stats `json:"sessions"`
	Broadcaster     broadcast.Stats `json:"broadcaster"`
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// handleSnapshot answers with the latest frame as a single image.
func (in *instance) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cfg := in.srv.settings.Load()
	if err := authorize(cfg, r.URL.Query()); err != nil {
		writeUnauthorized(w, r)
		return
	}

	snap, ok := in.srv.frames.Latest()
	if !ok {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, ErrNoFrame.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", cfg.ContentType)
	h.Set("Content-Length", strconv.Itoa(snap.Frame.Len()))
	h.Set("X-Frame-Version", strconv.FormatUint(snap.Version, 10))
	setNoCache(h)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(snap.Frame.Data)
	}
}

func (in *instance) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := in.srv.settings.Load()
	if err := authorize(cfg, r.URL.Query()); err != nil {
		writeUnauthorized(w, r)
		return
	}

	in.mu.Lock()
	running := !in.closing
	in.mu.Unlock()

	writeJSON(w, http.StatusOK, Status{
		Running:         running,
		Addr:            in.addr,
		SecureAddr:      in.h3Addr,
		FPS:             cfg.FPS,
		PasswordEnabled: cfg.PasswordEnabled,
		Viewers:         in.registry.Streaming(),
		Sessions:        in.registry.List(),
		Broadcaster:     in.srv.frames.Stats(),
	})
}

// LiveURL formats the address viewers open, including the password when
// protection is enabled.
func LiveURL(host string, cfg config.ServerConfig) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
		Path:   "/live",
	}
	if cfg.PasswordEnabled {
		u.RawQuery = url.Values{"pwd": {cfg.Password}}.Encode()
	}
	return u.String()
}
