package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

const (
	DefaultPort            = 9000
	DefaultShutdownTimeout = 5 * time.Second
)

// Config is fixed once the server starts.
type Config struct {
	Host            string
	Port            int
	Debug           bool
	ErrorSentenceID string
	// ReadTimeout closes a connection idle for this long. Zero disables it.
	ReadTimeout time.Duration
	// MaxConnections caps concurrent connections. Zero is unbounded.
	MaxConnections  int
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		ErrorSentenceID: DefaultErrorSentenceID,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.ErrorSentenceID == "" {
		c.ErrorSentenceID = DefaultErrorSentenceID
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server accepts TCP connections and serves one worker goroutine per peer.
type Server struct {
	cfg      Config
	registry *Registry

	mu         sync.Mutex
	hooks      Hooks
	started    bool
	ln         net.Listener
	dispatcher *Dispatcher
	acceptDone chan struct{}

	stopping    atomic.Bool
	activeConns atomic.Int64

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// New returns a server with the default missing, checksum, and error hooks installed.
func New(cfg Config) *Server {
	cfg = cfg.WithDefaults()
	reg := NewRegistry()
	return &Server{
		cfg:      cfg,
		registry: reg,
		hooks:    DefaultHooks(reg, cfg.ErrorSentenceID),
		conns:    make(map[net.Conn]struct{}),
	}
}

func (s *Server) Config() Config {
	return s.cfg
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Hooks returns a copy of the current hook slots.
func (s *Server) Hooks() Hooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}

func (s *Server) ActiveConnections() int64 {
	return s.activeConns.Load()
}

// Addr is the bound listener address, or nil before start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Server) Handle(id string, h Handler) error {
	return s.mutate(func() error { return s.registry.Register(id, h) })
}

// HandleFunc registers fn for id. A nil fn mutes id.
func (s *Server) HandleFunc(id string, fn HandlerFunc) error {
	if fn == nil {
		return s.Mute(id)
	}
	return s.Handle(id, fn)
}

// Mute registers id without a handler so it routes to the missing hook.
func (s *Server) Mute(id string) error {
	return s.Handle(id, nil)
}

func (s *Server) Unhandle(id string) error {
	return s.mutate(func() error {
		s.registry.Unregister(id)
		return nil
	})
}

func (s *Server) SetPreHandler(fn PreHandlerFunc) error {
	return s.setHook(func(h *Hooks) { h.Pre = fn })
}

func (s *Server) SetPostHandler(fn PostHandlerFunc) error {
	return s.setHook(func(h *Hooks) { h.Post = fn })
}

func (s *Server) SetMissingHandler(fn MissingHandlerFunc) error {
	return s.setHook(func(h *Hooks) { h.Missing = fn })
}

func (s *Server) SetChecksumHandler(fn ChecksumHandlerFunc) error {
	return s.setHook(func(h *Hooks) { h.Checksum = fn })
}

func (s *Server) SetErrorHandler(fn ErrorHandlerFunc) error {
	return s.setHook(func(h *Hooks) { h.Error = fn })
}

func (s *Server) SetContextCreator(fn ContextCreatorFunc) error {
	return s.setHook(func(h *Hooks) { h.ContextCreator = fn })
}

func (s *Server) SetStreamer(fn StreamerFunc) error {
	return s.setHook(func(h *Hooks) { h.Streamer = fn })
}

func (s *Server) setHook(apply func(h *Hooks)) error {
	return s.mutate(func() error {
		apply(&s.hooks)
		return nil
	})
}

func (s *Server) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServerStarted
	}
	return fn()
}

// Start binds the configured address and accepts in the background.
func (s *Server) Start() error {
	if s.Started() {
		return ErrServerStarted
	}
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return err
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if err := s.begin(ln); err != nil {
		_ = ln.Close()
		return err
	}
	go func() {
		if err := s.acceptLoop(context.Background(), ln); err != nil {
			log.Error().Err(err).Msg("nmea.server accept loop ended")
		}
	}()
	return nil
}

// Serve accepts on ln until ctx ends or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.begin(ln); err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.acceptDone:
		}
	}()
	return s.acceptLoop(ctx, ln)
}

// Run starts the server, blocks until ctx ends, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) begin(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServerStarted
	}
	s.started = true
	s.ln = ln
	s.acceptDone = make(chan struct{})
	s.dispatcher = NewDispatcher(s.registry, s.hooks)
	log.Info().
		Str("addr", ln.Addr().String()).
		Strs("sentence_ids", s.registry.IDs()).
		Msg("nmea.server listening")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	defer close(s.acceptDone)
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warn().Err(err).Msg("nmea.server accept timeout")
				continue
			}
			return err
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Shutdown stops accepting, wakes idle connections, and waits for workers
// to finish until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	acceptDone := s.acceptDone
	s.mu.Unlock()
	if !started {
		return ErrServerNotStarted
	}

	s.stop()
	select {
	case <-acceptDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("nmea.server stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Int64("active_clients", s.activeConns.Load()).Msg("nmea.server shutdown timed out")
		return ctx.Err()
	}
}

func (s *Server) stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.wakeAllConns()
}

// trackConn registers conn with the wait group unless shutdown has begun.
func (s *Server) trackConn(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.stopping.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

// wakeAllConns unblocks pending reads without interrupting a running handler.
func (s *Server) wakeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	now := time.Now()
	for conn := range s.conns {
		_ = conn.SetReadDeadline(now)
	}
}
