package mockproxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Server.
type Option func(*Server)

// WithMode sets the mock plane's behavior on a match miss. Default ModeMock.
func WithMode(m Mode) Option {
	return func(s *Server) { s.mode = m }
}

// WithControlAddr sets the control plane's listen address. Default
// "127.0.0.1:0".
func WithControlAddr(addr string) Option {
	return func(s *Server) { s.controlAddr = addr }
}

// WithMockAddr sets the mock plane's listen address. Default "127.0.0.1:0".
func WithMockAddr(addr string) Option {
	return func(s *Server) { s.mockAddr = addr }
}

// WithLogger sets the zerolog.Logger used for connection and proxy errors.
// Default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server wires together the control plane, the mock plane, and the
// sequentialState they share.
type Server struct {
	mode        Mode
	controlAddr string
	mockAddr    string
	log         zerolog.Logger

	state *sequentialState

	controlListener net.Listener
	mockListener    net.Listener
	controlSrv      *http.Server
	mockSrv         *http.Server
}

// New creates a Server with the given options applied. Call Start to bind
// its listeners.
func New(opts ...Option) *Server {
	s := &Server{
		controlAddr: "127.0.0.1:0",
		mockAddr:    "127.0.0.1:0",
		log:         zerolog.Nop(),
		state:       newSequentialState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds both listeners and begins serving. It does not block; call
// Shutdown to stop serving. Ports are resolved and
// available via ControlAddr/MockAddr immediately after Start returns.
func (s *Server) Start() error {
	cl, err := net.Listen("tcp", s.controlAddr)
	if err != nil {
		return err
	}
	s.controlListener = cl

	ml, err := net.Listen("tcp", s.mockAddr)
	if err != nil {
		_ = cl.Close()
		return err
	}
	s.mockListener = ml

	mockPort := ml.Addr().(*net.TCPAddr).Port

	control := newControlHandler(s.state, mockPort)
	mock := newMockHandler(s.state, s.mode, s.log)

	s.controlSrv = &http.Server{Handler: corsMiddleware(control)}
	s.mockSrv = &http.Server{Handler: corsMiddleware(mock)}

	go s.serve(s.controlSrv, s.controlListener, "control")
	go s.serve(s.mockSrv, s.mockListener, "mock")

	return nil
}

func (s *Server) serve(srv *http.Server, l net.Listener, name string) {
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error().Err(err).Str("plane", name).Msg("listener stopped")
	}
}

// ControlAddr returns the bound address of the control plane listener.
func (s *Server) ControlAddr() net.Addr {
	if s.controlListener == nil {
		return nil
	}
	return s.controlListener.Addr()
}

// MockAddr returns the bound address of the mock plane listener.
func (s *Server) MockAddr() net.Addr {
	if s.mockListener == nil {
		return nil
	}
	return s.mockListener.Addr()
}

// Shutdown gracefully drains both listeners, waiting up to the context
// deadline for in-flight connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var errControl, errMock error
	done := make(chan struct{}, 2)
	go func() { errControl = s.controlSrv.Shutdown(ctx); done <- struct{}{} }()
	go func() { errMock = s.mockSrv.Shutdown(ctx); done <- struct{}{} }()
	<-done
	<-done
	if errControl != nil {
		return errControl
	}
	return errMock
}

// ShutdownTimeout is the grace period cmd/mockproxy allows in-flight
// connections to finish draining before forcing shutdown.
const ShutdownTimeout = 5 * time.Second
