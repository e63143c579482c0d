package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// server owns the registry shared by all sessions and the HTTP server
// that feeds it.
type server struct {
	cfg      config
	reg      *registry
	ticker   *mTicker
	sessions sync.WaitGroup
	http     *http.Server
}

func newServer(cfg config) *server {
	s := &server{
		cfg: cfg,
		reg: newRegistry(cfg.MaxConns),
	}
	if cfg.PingInterval > 0 {
		s.ticker = newMTicker(cfg.PingInterval)
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, s.reg, s.ticker, &s.sessions),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// run binds cfg.Addr and serves until ctx is cancelled. Failing to bind is
// the only error that is not a shutdown error.
func (s *server) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.stopTicker()
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *server) serve(ctx context.Context, ln net.Listener) error {
	log.Printf("listening on %s, websocket endpoint %s", ln.Addr(), s.cfg.WSPath)

	errc := make(chan error, 1)
	go func() {
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		s.stopTicker()
		return err
	case <-ctx.Done():
	}
	return s.shutdown()
}

// shutdown stops accepting requests, closes every registered connection
// and waits for their sessions to end.
func (s *server) shutdown() error {
	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	n := s.reg.closeAll()
	log.Printf("closed %d connections", n)
	s.stopTicker()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("waiting for sessions: %w", ctx.Err()))
	}
	return err
}

func (s *server) stopTicker() {
	if s.ticker != nil {
		s.ticker.stop()
	}
}
