package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/protocol"
	"github.com/muurk/freeathome/internal/sysap"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by commands while no SysAP session is up
var ErrNotConnected = errors.New("session: not connected")

// Default reconnect timing
const (
	DefaultInitialInterval = 1 * time.Second
	DefaultMaxInterval     = 60 * time.Second
)

// State is the connection state of a Session
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one live SysAP session. *sysap.Client implements it.
type Conn interface {
	GetConfig(ctx context.Context) ([]byte, error)
	SetDatapoint(ctx context.Context, serial, channel, datapoint, value string) error
	OnUpdate(h sysap.UpdateHandler)
	Done() <-chan struct{}
	Err() error
	Close() error
}

// DialFunc opens a new Conn
type DialFunc func(ctx context.Context) (Conn, error)

// Dialer adapts a sysap.Config into a DialFunc
func Dialer(cfg sysap.Config) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		return sysap.Dial(ctx, cfg)
	}
}

// Options configures a Session
type Options struct {
	Dial DialFunc

	// Rooms overrides the floorplan room names (optional)
	Rooms engine.RoomResolver

	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnStateChange is called on every state transition
	OnStateChange func(from, to State)
}

// Session keeps an Engine in sync with a SysAP across reconnects. Every
// successful connect is followed by a full rebuild of the device set.
type Session struct {
	opts   Options
	engine *engine.Engine

	mu    sync.RWMutex
	conn  Conn
	state State

	// ctx of the running Run call, used for update dispatch
	runCtx context.Context
}

// New creates a session and its engine. The session is both the engine's
// configuration fetcher and its datapoint setter, forwarding to whichever
// connection is current.
func New(opts Options) *Session {
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	s := &Session{opts: opts, runCtx: context.Background()}
	s.engine = engine.New(engine.Options{
		Fetcher: s,
		Rooms:   opts.Rooms,
		Setter:  s,
	})
	return s
}

// Engine returns the engine fed by this session
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether a SysAP session is up
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	old := s.state
	s.state = state
	cb := s.opts.OnStateChange
	s.mu.Unlock()

	if old != state {
		logging.Debug("Session state changed",
			zap.String("from", old.String()),
			zap.String("to", state.String()),
		)
		if cb != nil {
			cb(old, state)
		}
	}
}

func (s *Session) current() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) setConn(c Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// GetConfig fetches the configuration over the current connection
func (s *Session) GetConfig(ctx context.Context) ([]byte, error) {
	c := s.current()
	if c == nil {
		return nil, ErrNotConnected
	}
	return c.GetConfig(ctx)
}

// SetDatapoint writes a datapoint over the current connection
func (s *Session) SetDatapoint(ctx context.Context, serial, channel, datapoint, value string) error {
	c := s.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.SetDatapoint(ctx, serial, channel, datapoint, value)
}

// Run connects and keeps the session alive until ctx is cancelled. It
// returns ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	defer s.setState(StateClosed)

	s.setState(StateConnecting)
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			return err
		}
		s.setState(StateConnected)

		select {
		case <-ctx.Done():
			s.setConn(nil)
			_ = conn.Close()
			return ctx.Err()
		case <-conn.Done():
			s.setConn(nil)
			logging.Warn("SysAP session lost, reconnecting", zap.Error(conn.Err()))
			s.setState(StateReconnecting)
		}
	}
}

// connect dials until a connection is up and the device set is rebuilt
func (s *Session) connect(ctx context.Context) (Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = 0

	var conn Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := s.opts.Dial(ctx)
		if err != nil {
			return err
		}

		// Updates that race the rebuild are queued by the engine
		c.OnUpdate(s.handleUpdate)
		s.setConn(c)

		if err := s.engine.FindDevices(ctx, true); err != nil {
			s.setConn(nil)
			_ = c.Close()
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn("SysAP connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if conn != nil {
			s.setConn(nil)
			_ = conn.Close()
		}
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	logging.Info("SysAP session ready",
		zap.Int("attempts", attempt),
		zap.Int("devices", s.engine.Snapshot().Len()),
	)
	return conn, nil
}

func (s *Session) handleUpdate(fragment []byte) {
	s.mu.RLock()
	ctx := s.runCtx
	s.mu.RUnlock()

	if err := s.engine.UpdateDevices(ctx, fragment); err != nil {
		if protocol.IsUpdateParseError(err) {
			logging.Warn("Discarding malformed update fragment", zap.Error(err))
			return
		}
		logging.Error("Failed to apply update fragment", zap.Error(err))
	}
}
