package stream

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/zsiec/livecam/config"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	open := config.Default()
	locked := config.Default()
	locked.PasswordEnabled = true
	locked.Password = "secret"

	tests := []struct {
		name   string
		cfg    config.ServerConfig
		query  string
		reason AuthReason
	}{
		{"open mode", open, "", ""},
		{"open mode ignores pwd", open, "pwd=whatever", ""},
		{"missing", locked, "", AuthMissing},
		{"other params only", locked, "user=admin", AuthMissing},
		{"wrong", locked, "pwd=Secret", AuthMismatch},
		{"empty", locked, "pwd=", AuthMismatch},
		{"prefix", locked, "pwd=secretx", AuthMismatch},
		{"exact", locked, "pwd=secret", ""},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		err := authorize(tt.cfg, q)
		if tt.reason == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		var authErr *AuthError
		if !errors.As(err, &authErr) || authErr.Reason != tt.reason {
			t.Errorf("%s: got %v, want reason %q", tt.name, err, tt.reason)
		}
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: error should match ErrUnauthorized", tt.name)
		}
	}
}

func TestLiveAuth(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.PasswordEnabled = true
	cfg.Password = "123456"
	env := newTestEnv(t, cfg)
	base := env.start(t)
	env.publish(payload(9, 100))

	for _, path := range []string{"/live", "/live?pwd=654321", "/live?pwd="} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status got %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
		}
		if string(body) != "Password Required or Incorrect." {
			t.Errorf("%s: body got %q", path, body)
		}
		if !resp.Close {
			t.Errorf("%s: connection should be closed after rejection", path)
		}
	}

	resp, br := openLive(t, base+"/live?pwd=123456")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with password: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if data := readPartWithin(t, br, 2*time.Second); len(data) != 100 {
		t.Errorf("payload: got %d bytes, want 100", len(data))
	}
}

func TestLivePasswordChangeAppliesToNewRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, testConfig())
	base := env.start(t)
	env.publish(payload(1, 10))

	_, br := openLive(t, base+"/live")
	readPartWithin(t, br, 2*time.Second)

	if err := env.settings.Update(func(c *config.ServerConfig) {
		c.PasswordEnabled = true
		c.Password = "new"
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(base + "/live")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("new request: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// The viewer admitted before the change keeps streaming.
	env.publish(payload(2, 10))
	if data := readPartWithin(t, br, 2*time.Second); data[0] != 2 {
		t.Errorf("existing viewer: got frame %d, want 2", data[0])
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, testConfig())
	base := env.start(t)

	resp, err := http.Get(base + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before first frame: got %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Errorf("Retry-After: got %q, want %q", resp.Header.Get("Retry-After"), "1")
	}

	env.publish(payload(5, 300))
	resp, err = http.Get(base + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("content type: got %q", resp.Header.Get("Content-Type"))
	}
	if len(body) != 300 || body[0] != 5 {
		t.Errorf("body: got %d bytes", len(body))
	}
	if resp.Header.Get("X-Frame-Version") != "1" {
		t.Errorf("version: got %q, want %q", resp.Header.Get("X-Frame-Version"), "1")
	}
}

func TestSnapshotRequiresPassword(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.PasswordEnabled = true
	cfg.Password = "pw"
	env := newTestEnv(t, cfg)
	base := env.start(t)
	env.publish(payload(1, 10))

	resp, err := http.Get(base + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, testConfig())
	base := env.start(t)
	env.publish(payload(1, 42))

	_, br := openLive(t, base+"/live")
	readPartWithin(t, br, 2*time.Second)

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running {
		t.Error("running should be true")
	}
	if st.Addr != env.srv.Addr() {
		t.Errorf("addr: got %q, want %q", st.Addr, env.srv.Addr())
	}
	if st.Viewers != 1 || len(st.Sessions) != 1 {
		t.Fatalf("viewers: got %d (%d sessions), want 1", st.Viewers, len(st.Sessions))
	}
	if st.Sessions[0].FramesSent < 1 || st.Sessions[0].Transport != "http" {
		t.Errorf("session: got %+v", st.Sessions[0])
	}
	if st.Broadcaster.Published != 1 || st.Broadcaster.LastFrameSize != 42 {
		t.Errorf("broadcaster: got %+v", st.Broadcaster)
	}
}

func TestLiveURL(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if got := LiveURL("192.168.1.5", cfg); got != "http://192.168.1.5:8080/live" {
		t.Errorf("open: got %q", got)
	}

	cfg.PasswordEnabled = true
	cfg.Password = "a b&c"
	if got := LiveURL("192.168.1.5", cfg); got != "http://192.168.1.5:8080/live?pwd=a+b%26c" {
		t.Errorf("protected: got %q", got)
	}

	if got := LiveURL("::1", config.Default()); got != "http://[::1]:8080/live" {
		t.Errorf("ipv6: got %q", got)
	}
}
