package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/protocol"
	"github.com/muurk/freeathome/internal/sysap"
)

const (
	// DefaultPort matches the SysAP XMPP-over-WebSocket port
	DefaultPort = 5280

	// DefaultSerial is reported in settings.json when none is configured
	DefaultSerial = "ABB28CBC3651"

	shutdownTimeout = 10 * time.Second
)

// Config holds the simulator configuration
type Config struct {
	Host string
	Port int

	// Document is the configuration document served by getAll
	Document []byte

	// Users maps JID localparts to passwords. Display names in
	// settings.json equal the localpart unless Names overrides them.
	Users map[string]string
	Names map[string]string

	Serial string
	Name   string

	// TravelTime delays the end-of-travel update after a cover move
	TravelTime time.Duration

	// PingInterval sends XMPP pings to idle clients (0 disables)
	PingInterval time.Duration

	// CaptureDir receives a JSONL log of every stanza (empty = disabled)
	CaptureDir string
}

// Server is a SysAP stand-in: it serves settings.json and the
// XMPP-over-WebSocket endpoint backed by a Model.
type Server struct {
	config   *Config
	model    *Model
	capture  *capture
	upgrader websocket.Upgrader

	httpServer *http.Server
	wg         sync.WaitGroup
	mu         sync.Mutex
	sessions   map[string]*session
}

// New creates a Server for config
func New(config *Config) (*Server, error) {
	if len(config.Document) == 0 {
		return nil, errors.New("simulator: no configuration document")
	}
	if len(config.Users) == 0 {
		return nil, errors.New("simulator: at least one user is required")
	}
	if config.Serial == "" {
		config.Serial = DefaultSerial
	}
	if config.Name == "" {
		config.Name = "SysAP"
	}

	model, err := NewModel(config.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration document: %w", err)
	}

	s := &Server{
		config:   config,
		model:    model,
		capture:  newCapture(config.CaptureDir),
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"xmpp"},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
	}

	logging.Info("Simulator model loaded",
		zap.Int("devices", len(model.Project().Devices)),
		zap.Int("channels", model.Channels()),
		zap.Int("users", len(config.Users)),
	)
	return s, nil
}

// Model returns the simulated device state
func (s *Server) Model() *Model {
	return s.model
}

// ListenAndServe listens on the configured address and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	logging.Info("Simulator listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("serial", s.config.Serial),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops accepting connections, closes every session and waits
// for their goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down simulator...")

	s.mu.Lock()
	srv := s.httpServer
	for addr, sess := range s.sessions {
		logging.Info("Closing active session", zap.String("remote_addr", addr))
		sess.close()
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All sessions closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// ActiveSessions returns the number of connected clients
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var settings sysap.Settings
	settings.Flags.Version = "2.6.0"
	settings.Flags.SerialNumber = s.config.Serial
	settings.Flags.Name = s.config.Name

	localparts := make([]string, 0, len(s.config.Users))
	for lp := range s.config.Users {
		localparts = append(localparts, lp)
	}
	sort.Strings(localparts)
	for _, lp := range localparts {
		name := lp
		if n, ok := s.config.Names[lp]; ok {
			name = n
		}
		settings.Users = append(settings.Users, sysap.User{Name: name, JID: lp + "@" + protocol.Domain})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		logging.Warn("Failed to write settings", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	sess := newSession(s, conn, r.RemoteAddr)

	s.mu.Lock()
	s.sessions[sess.remoteAddr] = sess
	s.mu.Unlock()
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.remoteAddr)
			s.mu.Unlock()
		}()
		sess.run()
	}()
}

// broadcast pushes the first update batch to every session that announced
// presence. Later batches follow from a goroutine after the configured
// travel time.
func (s *Server) broadcast(batches [][]protocol.DatapointUpdate) {
	if len(batches) == 0 {
		return
	}
	s.push(batches[0])
	if len(batches) == 1 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, batch := range batches[1:] {
			if s.config.TravelTime > 0 {
				time.Sleep(s.config.TravelTime)
			}
			s.push(batch)
		}
	}()
}

func (s *Server) push(batch []protocol.DatapointUpdate) {
	event := protocol.BuildUpdateEvent(protocol.BuildUpdate(batch))

	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.isSubscribed() {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := sess.write(event); err != nil {
			logging.Debug("Failed to push update",
				zap.String("remote_addr", sess.remoteAddr),
				zap.Error(err),
			)
		}
	}
}
