package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/livecam/broadcast"
	"github.com/zsiec/livecam/config"
	"github.com/zsiec/livecam/notify"
	"github.com/zsiec/livecam/source"
	"github.com/zsiec/livecam/stream"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(); err != nil {
		slog.Error("livecam exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	configFile := os.Getenv("CONFIG_FILE")
	initial, err := loadSettings(configFile)
	if err != nil {
		return err
	}
	settings := config.NewStore(initial, nil)

	lifecycle := []stream.Lifecycle{notify.NewLog(nil)}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := notify.DialMQTT(dialCtx, notify.MQTTConfig{
			Broker:   broker,
			ClientID: envOr("MQTT_CLIENT_ID", "livecam"),
			Topic:    envOr("MQTT_TOPIC", notify.DefaultTopic),
			QoS:      1,
		}, nil)
		dialCancel()
		if err != nil {
			// Status messages are optional; the stream still works without them.
			slog.Warn("mqtt notifier disabled", "error", err)
		} else {
			defer n.Close()
			lifecycle = append(lifecycle, n)
		}
	}

	frames := broadcast.New(nil)
	srv, err := stream.NewServer(stream.Options{
		Frames:    frames,
		Settings:  settings,
		Lifecycle: notify.Multi(lifecycle...),
	})
	if err != nil {
		return err
	}

	src, err := newSource(settings)
	if err != nil {
		return err
	}

	settings.OnChange(func(old, cur config.ServerConfig) {
		if old.Host == cur.Host && old.Port == cur.Port && old.SecurePort == cur.SecurePort {
			return
		}
		slog.Info("listen address changed, restarting live server", "from", old.Addr(), "to", cur.Addr())
		if err := srv.Restart(); err != nil {
			slog.Error("restart failed", "error", err)
		}
	})

	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			slog.Warn("error stopping live server", "error", err)
		}
	}()

	cfg := settings.Load()
	slog.Info("livecam starting",
		"version", version,
		"addr", srv.Addr(),
		"secure_addr", srv.SecureAddr(),
		"fps", cfg.FPS,
		"password", cfg.PasswordEnabled,
		"url", stream.LiveURL(lanAddr(), cfg),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := src.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("source: %w", err)
		}
		return nil
	})

	if configFile != "" {
		w := config.NewWatcher(configFile, settings, loadSettings, nil)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}

// loadSettings reads the optional settings file and applies environment
// overrides on top. It also serves as the hot-reload loader, so overrides
// survive a file change.
func loadSettings(path string) (config.ServerConfig, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return config.ServerConfig{}, err
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}

func newSource(settings config.Provider) (source.Source, error) {
	var overlay *source.Overlay
	if text, ok := os.LookupEnv("OVERLAY_TEXT"); !ok || text != "" {
		var err error
		if overlay, err = source.NewOverlay(envOr("OVERLAY_TEXT", "NexCam")); err != nil {
			return nil, err
		}
	}

	switch kind := envOr("SOURCE", "pattern"); kind {
	case "pattern":
		return source.NewPattern(0, 0, settings, overlay, nil), nil
	case "webcam":
		return source.NewWebcam(envOr("WEBCAM_DEVICE", "/dev/video0"), settings, overlay, nil), nil
	default:
		return nil, fmt.Errorf("unknown SOURCE %q (want pattern or webcam)", kind)
	}
}

// lanAddr returns the first non-loopback IPv4 address, for printing a URL
// other devices on the network can open.
func lanAddr() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() {
			if ip4 := ipn.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "localhost"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
