// Package server implements the privd TCP daemon: a loopback listener that
// authenticates each connection with the shared secret and runs one shell
// command per connection.
//
// Wire protocol, one request per connection:
//
//	client → server: <token>\n<command>\n
//	server → client: <response>
//
// Protocol errors are written as a single newline-terminated "Error: ..."
// line. Command results are written as-is, without a trailing newline.
// The server closes the connection after every response.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/xdg/privd/internal/audit"
	"github.com/xdg/privd/internal/clog"
	"github.com/xdg/privd/internal/config"
	"github.com/xdg/privd/internal/executor"
	"github.com/xdg/privd/internal/metrics"
	"github.com/xdg/privd/internal/slots"
	"github.com/xdg/privd/internal/token"
)

var (
	// ErrNotLoopback is returned by Start when the configured host is not a
	// loopback address.
	ErrNotLoopback = errors.New("refusing to listen on non-loopback address")

	// ErrShutdownTimeout is returned by Shutdown when connections were still
	// being handled after the grace period and had to be cut off.
	ErrShutdownTimeout = errors.New("shutdown grace period expired")

	// ErrAlreadyStarted is returned by Start on a server that was started
	// before.
	ErrAlreadyStarted = errors.New("server already started")
)

// Bounds on discarding unread client input before a connection is closed.
const (
	drainTimeout = time.Second
	drainLimit   = 1 << 20
)

// Config holds the server's resolved settings.
type Config struct {
	Host string
	Port int // 0 picks a free port

	MaxCommandLength int
	MaxConcurrent    int
	Workers          int
	QueueSize        int

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SlotWait      time.Duration
	ShutdownGrace time.Duration

	// AcceptRate limits new connections per second; zero disables the
	// limiter. AcceptBurst defaults to the rate rounded up.
	AcceptRate  float64
	AcceptBurst int

	Denylist []string
}

// DefaultConfig returns a Config populated from config.Default().
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom converts a validated file configuration into a server Config.
func ConfigFrom(cfg *config.Config) Config {
	l := cfg.Limits
	return Config{
		Host:             cfg.Listen.Host,
		Port:             cfg.Listen.Port,
		MaxCommandLength: l.MaxCommandLength,
		MaxConcurrent:    l.MaxConcurrent,
		Workers:          l.Workers,
		QueueSize:        l.QueueSize,
		ReadTimeout:      config.ParseDuration(l.ReadTimeout),
		WriteTimeout:     config.ParseDuration(l.WriteTimeout),
		SlotWait:         config.ParseDuration(l.SlotWait),
		ShutdownGrace:    config.ParseDuration(l.ShutdownGrace),
		AcceptRate:       l.AcceptRate,
		AcceptBurst:      l.AcceptBurst,
		Denylist:         append([]string(nil), cfg.Denylist...),
	}
}

// State is the server lifecycle stage.
type State int32

// Server lifecycle stages.
const (
	StateStarting State = iota
	StateListening
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Server accepts connections and hands each to a fixed pool of workers.
type Server struct {
	cfg      Config
	secret   token.Secret
	executor executor.Executor
	gate     *slots.Gate
	denylist *Denylist
	metrics  *metrics.Registry
	audit    *audit.Logger
	limiter  *rate.Limiter
	log      *clog.Logger

	listener net.Listener
	started  time.Time
	state    atomic.Int32

	// active counts accepted connections that have not finished.
	active atomic.Int64
	// pending counts connections handed to the pool that have not finished;
	// it never exceeds Workers+QueueSize.
	pending atomic.Int64
	conns   chan net.Conn

	// stopping is cancelled when shutdown begins; running is cancelled when
	// the grace period is over and kills running commands.
	stopping      context.Context
	cancelStop    context.CancelFunc
	running       context.Context
	cancelRunning context.CancelFunc

	acceptDone chan struct{}
	workers    sync.WaitGroup
	// lingering counts connections being drained before close.
	lingering sync.WaitGroup

	mu      sync.Mutex // protects tracked
	tracked map[net.Conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records server activity in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = reg
	}
}

// WithAudit records every request in l.
func WithAudit(l *audit.Logger) Option {
	return func(s *Server) {
		s.audit = l
	}
}

// WithLogger sets the logger. Defaults to the global clog logger.
func WithLogger(l *clog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithGate shares an existing execution slot gate instead of creating one
// sized to Config.MaxConcurrent.
func WithGate(g *slots.Gate) Option {
	return func(s *Server) {
		s.gate = g
	}
}

// New creates a server. exec runs every command that passes validation.
func New(cfg Config, secret token.Secret, exec executor.Executor, opts ...Option) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	s := &Server{
		cfg:        cfg,
		secret:     secret,
		executor:   exec,
		denylist:   NewDenylist(cfg.Denylist),
		acceptDone: make(chan struct{}),
		tracked:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.gate == nil {
		s.gate = slots.New(cfg.MaxConcurrent)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	if s.log == nil {
		s.log = clog.Default()
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = int(cfg.AcceptRate + 0.999)
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}

	s.stopping, s.cancelStop = context.WithCancel(context.Background())
	s.running, s.cancelRunning = context.WithCancel(context.Background())
	s.conns = make(chan net.Conn, cfg.Workers+cfg.QueueSize)
	return s
}

// Start binds the listener and begins serving in the background.
// It refuses any host that is not a loopback address.
func (s *Server) Start() error {
	if !config.IsLoopbackHost(s.cfg.Host) {
		return fmt.Errorf("%w: %q", ErrNotLoopback, s.cfg.Host)
	}
	if s.State() != StateStarting || s.listener != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	for i := 0; i < s.cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}

	s.state.Store(int32(StateListening))
	go s.acceptLoop()

	s.log.Info("listening on %s (workers=%d slots=%d)", listener.Addr(), s.cfg.Workers, s.gate.Size())
	return nil
}

// Shutdown stops accepting connections and waits for in-flight ones to
// finish, up to the configured grace period or until ctx is done. Anything
// still running after that is killed, its connection closed, and
// ErrShutdownTimeout returned.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateListening), int32(StateShuttingDown)) {
		return nil
	}
	s.log.Info("shutting down (active=%d)", s.active.Load())

	s.cancelStop()
	_ = s.listener.Close()
	<-s.acceptDone

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		s.lingering.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()

	var err error
	select {
	case <-done:
	case <-grace.C:
		err = ErrShutdownTimeout
	case <-ctx.Done():
		err = ErrShutdownTimeout
	}

	s.cancelRunning()
	if err != nil {
		n := s.closeTracked()
		s.log.Warn("grace period expired, closed %d connection(s)", n)
	}

	s.state.Store(int32(StateStopped))
	s.log.Info("stopped")
	return err
}

// Addr returns the listener's address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns the current lifecycle stage.
func (s *Server) State() State {
	return State(s.state.Load())
}

// ActiveConnections returns the number of accepted connections that have
// not yet been answered.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Uptime returns the time since Start.
func (s *Server) Uptime() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Gate returns the execution slot gate.
func (s *Server) Gate() *slots.Gate {
	return s.gate
}

func (s *Server) shuttingDown() bool {
	return s.stopping.Err() != nil
}

// acceptLoop accepts connections until the listener is closed. It is the
// only sender on s.conns and closes it on exit.
func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	defer close(s.conns)

	capacity := int64(s.cfg.Workers + s.cfg.QueueSize)
	var backoff time.Duration

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				s.log.Error("listener closed unexpectedly: %v", err)
				return
			}
			backoff = nextAcceptBackoff(backoff)
			s.log.Warn("accept failed, retrying in %v: %v", backoff, err)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.active.Add(1)
		s.metrics.ActiveConnections.Inc()
		s.track(conn)
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		if s.limiter != nil && !s.limiter.Allow() {
			s.reject(conn, metrics.ConnRateLimited)
			continue
		}

		if s.pending.Add(1) > capacity {
			s.pending.Add(-1)
			s.reject(conn, metrics.ConnBusy)
			continue
		}
		s.metrics.Connection(metrics.ConnAccepted)
		s.conns <- conn
	}
}

// nextAcceptBackoff doubles the wait after a failed Accept, from 5ms up to
// one second.
func nextAcceptBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// reject answers conn with the busy line from the accept loop and closes it.
func (s *Server) reject(conn net.Conn, result string) {
	s.metrics.Connection(result)
	s.log.Debug("rejected %s: %s", conn.RemoteAddr(), result)

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_, _ = conn.Write([]byte(msgServerBusy + "\n"))
	s.finish(conn)
}

func (s *Server) worker() {
	defer s.workers.Done()
	for conn := range s.conns {
		s.handle(conn)
	}
}

// release frees the pool capacity held by conn, then finishes it. Capacity
// is returned before the close so a client that sees EOF can immediately
// be served again.
func (s *Server) release(conn net.Conn) {
	s.pending.Add(-1)
	s.finish(conn)
}

// finish drops conn from the active count and closes it in the
// background, so neither a worker nor the accept loop waits on the drain.
func (s *Server) finish(conn net.Conn) {
	s.active.Add(-1)
	s.metrics.ActiveConnections.Dec()

	s.lingering.Add(1)
	go func() {
		defer s.lingering.Done()
		closeConn(conn)
		s.untrack(conn)
	}()
}

// closeConn half-closes conn, discards whatever the client is still
// sending for at most drainTimeout, then closes it. Closing a socket with
// unread input makes the kernel answer with RST, and the client may then
// lose the response it has not read yet.
func closeConn(conn net.Conn) {
	if hc, ok := conn.(interface{ CloseWrite() error }); ok && hc.CloseWrite() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
		_, _ = io.Copy(io.Discard, io.LimitReader(conn, drainLimit))
	}
	_ = conn.Close()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, conn)
}

// closeTracked closes every connection still open and returns how many
// there were.
func (s *Server) closeTracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tracked)
	for conn := range s.tracked {
		_ = conn.Close()
	}
	return n
}
