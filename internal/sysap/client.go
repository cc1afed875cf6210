package sysap

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/project"
	"github.com/muurk/freeathome/internal/protocol"
	"github.com/muurk/freeathome/internal/version"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the SysAP
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the SysAP
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size accepted; getAll answers are large
	maxMessageSize = 16 << 20

	// DefaultPort is the SysAP XMPP-over-WebSocket port
	DefaultPort = 5280

	// DefaultPath is the SysAP XMPP-over-WebSocket endpoint
	DefaultPath = "/xmpp-websocket"

	// DefaultResource is the XMPP resource bound by this client
	DefaultResource = "freeathome"

	// DefaultRequestTimeout bounds a single RPC round trip
	DefaultRequestTimeout = 30 * time.Second
)

// Sentinel errors
var (
	ErrClosed             = errors.New("sysap: connection closed")
	ErrAuthFailed         = errors.New("sysap: authentication failed")
	ErrNoSupportedSASL    = errors.New("sysap: no supported SASL mechanism offered")
	ErrUnexpectedResponse = errors.New("sysap: unexpected response")
)

// Config describes how to reach and authenticate with a SysAP
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://192.168.1.10:5280/xmpp-websocket
	URL string

	// Username is the JID localpart used for SASL (see LookupJID)
	Username string
	Password string

	// Resource is the XMPP resource to bind (default: DefaultResource)
	Resource string

	// Language of names in the configuration document (default "de")
	Language string

	// RequestTimeout bounds RPC calls without their own deadline
	RequestTimeout time.Duration

	// Dialer overrides the WebSocket dialer (tests)
	Dialer *websocket.Dialer
}

// WebsocketURL builds the default endpoint for a SysAP host
func WebsocketURL(host string) string {
	return fmt.Sprintf("ws://%s:%d%s", host, DefaultPort, DefaultPath)
}

// UpdateHandler receives raw <update> fragments pushed by the SysAP
type UpdateHandler func(fragment []byte)

// Client is an authenticated XMPP session with the SysAP. It implements
// the configuration fetch and datapoint setter used by the engine. All
// methods are safe for concurrent use.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	jid  string

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.IQ

	handlerMu sync.RWMutex
	onUpdate  UpdateHandler

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the SysAP, authenticates, binds a resource and announces
// presence. The returned client is ready to issue RPC calls and receive
// update events.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sysap: missing URL")
	}
	if cfg.Resource == "" {
		cfg.Resource = DefaultResource
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.Subprotocols = []string{"xmpp"}
		dialer = &d
	}

	logging.Info("Connecting to SysAP", zap.String("url", cfg.URL))
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, http.Header{"User-Agent": {version.UserAgent()}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (HTTP %d): %w", cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	if tlsConn, ok := conn.UnderlyingConn().(*tls.Conn); ok {
		logging.LogTLSHandshake(cfg.URL, tlsConn.ConnectionState())
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[string]chan *protocol.IQ),
		done:    make(chan struct{}),
	}

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.LogConnection(cfg.URL, "xmpp_session_established")
	logging.Info("SysAP session established", zap.String("jid", c.jid))

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// JID returns the full JID bound for this session
func (c *Client) JID() string {
	return c.jid
}

// handshake runs stream open, SASL, stream restart, bind and presence
func (c *Client) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}

	features, err := c.openStream()
	if err != nil {
		return err
	}
	if err := c.authenticate(features); err != nil {
		return err
	}

	// authenticated stream restart
	if _, err := c.openStream(); err != nil {
		return err
	}

	bindID := protocol.GenerateStanzaID()
	if err := c.write(protocol.BuildBind(bindID, c.cfg.Resource)); err != nil {
		return err
	}
	s, err := c.expect(protocol.KindIQ)
	if err != nil {
		return fmt.Errorf("resource bind: %w", err)
	}
	if err := s.IQ.Err(); err != nil {
		return fmt.Errorf("resource bind: %w", err)
	}
	c.jid = s.IQ.BoundJID()

	if err := c.write(protocol.BuildPresence()); err != nil {
		return err
	}
	return c.conn.SetReadDeadline(time.Time{})
}

// openStream sends <open> and reads the server's <open> and <features>
func (c *Client) openStream() (*protocol.Features, error) {
	if err := c.write(protocol.BuildOpen(protocol.Domain)); err != nil {
		return nil, err
	}
	if _, err := c.expect(protocol.KindOpen); err != nil {
		return nil, fmt.Errorf("stream open: %w", err)
	}
	s, err := c.expect(protocol.KindFeatures)
	if err != nil {
		return nil, fmt.Errorf("stream features: %w", err)
	}
	return s.Features, nil
}

func (c *Client) authenticate(features *protocol.Features) error {
	switch {
	case features.HasMechanism(MechanismSCRAMSHA1):
		return c.authSCRAM()
	case features.HasMechanism(MechanismPlain):
		return c.authPlain()
	default:
		return fmt.Errorf("%w (offered: %s)", ErrNoSupportedSASL, strings.Join(features.Mechanisms, ", "))
	}
}

func (c *Client) authPlain() error {
	logging.Debug("Authenticating", zap.String("mechanism", MechanismPlain))
	if err := c.write(protocol.BuildAuth(MechanismPlain, plainPayload(c.cfg.Username, c.cfg.Password))); err != nil {
		return err
	}
	s, err := c.read()
	if err != nil {
		return err
	}
	return saslOutcome(s)
}

func (c *Client) authSCRAM() error {
	logging.Debug("Authenticating", zap.String("mechanism", MechanismSCRAMSHA1))
	scram := newSCRAMClient(c.cfg.Username, c.cfg.Password, "")

	first := base64.StdEncoding.EncodeToString([]byte(scram.ClientFirst()))
	if err := c.write(protocol.BuildAuth(MechanismSCRAMSHA1, first)); err != nil {
		return err
	}

	s, err := c.read()
	if err != nil {
		return err
	}
	if s.Kind != protocol.KindChallenge {
		return saslOutcome(s)
	}
	serverFirst, err := base64.StdEncoding.DecodeString(s.Text)
	if err != nil {
		return fmt.Errorf("%w: undecodable challenge", ErrAuthFailed)
	}
	final, err := scram.ClientFinal(string(serverFirst))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err := c.write(protocol.BuildResponse(base64.StdEncoding.EncodeToString([]byte(final)))); err != nil {
		return err
	}

	s, err = c.read()
	if err != nil {
		return err
	}
	if err := saslOutcome(s); err != nil {
		return err
	}
	serverFinal, err := base64.StdEncoding.DecodeString(s.Text)
	if err != nil {
		return fmt.Errorf("%w: undecodable success payload", ErrAuthFailed)
	}
	if err := scram.VerifyServerFinal(string(serverFinal)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return nil
}

func saslOutcome(s *protocol.Stanza) error {
	switch s.Kind {
	case protocol.KindSuccess:
		return nil
	case protocol.KindFailure:
		return fmt.Errorf("%w: %s", ErrAuthFailed, s.Condition)
	default:
		return fmt.Errorf("%w: <%s> during authentication", ErrUnexpectedResponse, s.Name.Local)
	}
}

// read reads and decodes one message during the handshake
func (c *Client) read() (*protocol.Stanza, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	logging.LogStanza(c.cfg.URL, "RECV", data)
	return protocol.ParseStanza(data)
}

func (c *Client) expect(kind protocol.StanzaKind) (*protocol.Stanza, error) {
	s, err := c.read()
	if err != nil {
		return nil, err
	}
	if s.Kind != kind {
		return nil, fmt.Errorf("%w: got <%s>, want <%s>", ErrUnexpectedResponse, s.Name.Local, kind)
	}
	return s, nil
}

// write sends one stanza; writes are serialised
func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	logging.LogStanza(c.cfg.URL, "SEND", data)
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// OnUpdate sets the handler for pushed update fragments. The handler runs
// on the read goroutine, so fragments are delivered one at a time in
// arrival order.
func (c *Client) OnUpdate(h UpdateHandler) {
	c.handlerMu.Lock()
	c.onUpdate = h
	c.handlerMu.Unlock()
}

func (c *Client) readLoop() {
	defer c.shutdown(ErrClosed)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("SysAP connection lost", zap.Error(err))
			} else {
				logging.Debug("SysAP connection closed", zap.Error(err))
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		logging.LogStanza(c.cfg.URL, "RECV", data)

		s, err := protocol.ParseStanza(data)
		if err != nil {
			logging.Warn("Discarding undecodable stanza", zap.Error(err))
			continue
		}
		if s.Kind == protocol.KindClose {
			logging.Info("SysAP closed the stream")
			return
		}
		c.dispatch(s)
	}
}

func (c *Client) dispatch(s *protocol.Stanza) {
	switch s.Kind {
	case protocol.KindIQ:
		if s.IQ.IsPing() {
			if err := c.write(protocol.BuildPong(s.IQ.ID, s.IQ.From)); err != nil {
				logging.Warn("Failed to answer ping", zap.Error(err))
			}
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[s.IQ.ID]
		delete(c.pending, s.IQ.ID)
		c.pendingMu.Unlock()
		if !ok {
			logging.Debug("Unsolicited iq", zap.String("id", s.IQ.ID), zap.String("type", s.IQ.Type))
			return
		}
		ch <- s.IQ

	case protocol.KindMessage:
		c.handlerMu.RLock()
		h := c.onUpdate
		c.handlerMu.RUnlock()
		for _, fragment := range s.Message.UpdateFragments() {
			if h != nil {
				h(fragment)
			}
		}

	default:
		logging.Debug("Ignoring stanza", zap.String("kind", s.Kind.String()))
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				logging.Debug("Ping failed", zap.Error(err))
				c.shutdown(fmt.Errorf("%w: ping: %v", ErrClosed, err))
				return
			}
		}
	}
}

// Call issues an XML-RPC method and returns its first result
func (c *Client) Call(ctx context.Context, method string, params ...any) (string, error) {
	id := protocol.GenerateStanzaID()
	data, err := protocol.BuildRPC(id, method, params...)
	if err != nil {
		return "", err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	ch := make(chan *protocol.IQ, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	select {
	case <-c.done:
		return "", c.Err()
	default:
	}
	if err := c.write(data); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case iq := <-ch:
		if err := iq.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", method, err)
		}
		result, err := protocol.ParseMethodResponse(iq.QueryPayload())
		if err != nil {
			return "", fmt.Errorf("%s: %w", method, err)
		}
		return result, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return "", c.Err()
	}
}

// GetConfig fetches the full configuration document
func (c *Client) GetConfig(ctx context.Context) ([]byte, error) {
	result, err := c.Call(ctx, protocol.MethodGetAll, protocol.GetAllParamsFor(c.cfg.Language)...)
	if err != nil {
		return nil, err
	}
	logging.Debug("Configuration fetched", zap.Int("bytes", len(result)))
	return []byte(result), nil
}

// SetDatapoint writes a raw value to serial/channel/datapoint
func (c *Client) SetDatapoint(ctx context.Context, serial, channel, datapoint, value string) error {
	logging.Info("Setting datapoint",
		zap.String("serial", serial),
		zap.String("channel", channel),
		zap.String("datapoint", datapoint),
		zap.String("value", value),
	)
	_, err := c.Call(ctx, protocol.MethodSetDatapoint, project.DatapointID(serial, channel, datapoint), value)
	return err
}

// Done is closed when the session ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the session ended, or nil while it is alive
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = reason
		c.errMu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

// Close ends the XMPP stream and the WebSocket connection
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	_ = c.write(protocol.BuildClose())
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.shutdown(ErrClosed)
	logging.LogConnection(c.cfg.URL, "closed")
	return nil
}
