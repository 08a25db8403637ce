// Package server implements the weatherline wire protocol: a TCP listener
// accepting line-oriented, colon-delimited commands, one goroutine per
// connection, over shared user and weather stores.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/nimbusline/weatherline/internal/observability"
	"github.com/nimbusline/weatherline/internal/provision"
	"github.com/nimbusline/weatherline/internal/store"
)

// Server owns the accept loop and the shared state every session handler
// works against.
type Server struct {
	addr        string
	users       *store.UserStore
	weather     *store.WeatherStore
	provisioner *provision.Service
	sink        domain.Sink
	radius      float64
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock

	listener net.Listener
	ready    atomic.Bool

	// stop cancels the serve context. Set once Serve runs; any session's
	// STOP command and external shutdown share it, so stopping is
	// idempotent and only affects future accepts.
	stop context.CancelFunc
}

// Options carries the collaborators a Server needs.
type Options struct {
	Addr        string
	Users       *store.UserStore
	Weather     *store.WeatherStore
	Provisioner *provision.Service
	Sink        domain.Sink
	Radius      float64
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Clock       clockwork.Clock
}

// New creates a Server. Nil options get safe defaults: a noop sink, the
// default radius, the real clock.
func New(opts Options) *Server {
	if opts.Sink == nil {
		opts.Sink = domain.NoopSink{}
	}
	if opts.Radius <= 0 {
		opts.Radius = domain.DefaultNearestRadius
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Server{
		addr:        opts.Addr,
		users:       opts.Users,
		weather:     opts.Weather,
		provisioner: opts.Provisioner,
		sink:        opts.Sink,
		radius:      opts.Radius,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
	}
}

// Addr returns the bound listener address, valid once Serve has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// CheckReadiness reports whether the listener is accepting connections.
func (s *Server) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("listener is not accepting connections")
	}
	return nil
}

// Serve binds the listener and accepts until the context is cancelled,
// either externally or by a session's STOP command. Open sessions are not
// forcibly closed; they run until their peer disconnects.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.stop = cancel

	// Unblock Accept when the context goes.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.ready.Store(true)
	s.metrics.ServerRunning.Set(1)
	defer func() {
		s.ready.Store(false)
		s.metrics.ServerRunning.Set(0)
	}()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("server stopped accepting connections")
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.metrics.ConnectionsTotal.Inc()
		go s.handleConn(ctx, conn)
	}
}

// requestStop flips the shared cancellation. CancelFunc is safe to call
// from any number of sessions; only the first has an effect.
func (s *Server) requestStop() {
	if s.stop != nil {
		s.stop()
	}
}
