package stream

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/livecam/certs"
	"github.com/zsiec/livecam/config"
)

const h3IdleTimeout = 30 * time.Second

// listenSecure binds the HTTP/3 mirror for inst and starts serving it. The
// UDP socket is opened synchronously so that a busy port surfaces as a
// *BindError from Start. s.opMu must be held.
func (s *Server) listenSecure(inst *instance, cfg config.ServerConfig, handler http.Handler) error {
	addr := cfg.SecureAddr()

	if s.cert == nil {
		cert, err := certs.Generate(certs.MaxValidity, cfg.Host)
		if err != nil {
			return fmt.Errorf("stream: certificate for %s: %w", addr, err)
		}
		s.cert = cert
		s.log.Info("generated certificate for HTTP/3 mirror",
			"fingerprint", cert.FingerprintBase64(),
			"expires", cert.NotAfter.Format(time.RFC3339),
		)
	}

	tlsConf := http3.ConfigureTLSConfig(&tls.Config{
		Certificates: []tls.Certificate{s.cert.TLSCert},
	})
	quicConf := &quic.Config{
		MaxIdleTimeout: h3IdleTimeout,
	}

	ln, err := quic.ListenAddrEarly(addr, tlsConf, quicConf)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	inst.h3ln = ln
	inst.h3Addr = ln.Addr().String()
	inst.h3Done = make(chan struct{})
	inst.h3 = &http3.Server{
		Handler:    handler,
		TLSConfig:  tlsConf,
		QUICConfig: quicConf,
	}

	go func() {
		defer close(inst.h3Done)
		if err := inst.h3.ServeListener(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) && !errors.Is(err, quic.ErrServerClosed) {
			inst.log.Error("HTTP/3 mirror stopped serving", "error", err)
		}
	}()
	return nil
}
