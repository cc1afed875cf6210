package simulator

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/protocol"
)

const (
	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// Time allowed between client messages or pings
	readWait = 120 * time.Second

	maxMessageSize = 1 << 20
)

// XML-RPC fault codes returned by the simulator
const (
	faultUnknownMethod = 1
	faultBadParams     = 2
	faultWriteFailed   = 3
)

// session is one client connection. The stream runs through the usual
// XMPP stages: open, SASL PLAIN, restart, bind, presence.
type session struct {
	server     *Server
	conn       *websocket.Conn
	remoteAddr string

	writeMu sync.Mutex

	authenticated bool
	localpart     string
	subscribed    atomic.Bool

	messages  atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

type xmlAuth struct {
	Mechanism string `xml:"mechanism,attr"`
	Payload   string `xml:",chardata"`
}

type xmlBindRequest struct {
	Bind *struct {
		Resource string `xml:"resource"`
	} `xml:"bind"`
}

func newSession(s *Server, conn *websocket.Conn, remoteAddr string) *session {
	return &session{
		server:     s,
		conn:       conn,
		remoteAddr: remoteAddr,
		done:       make(chan struct{}),
	}
}

func (s *session) run() {
	logging.LogConnection(s.remoteAddr, "connection_accepted")
	defer func() {
		s.close()
		logging.LogConnection(s.remoteAddr, "connection_closed")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if s.server.config.PingInterval > 0 {
		go s.pingLoop(s.server.config.PingInterval)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Connection closed or error reading message",
					zap.String("remote_addr", s.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readWait))

		n := s.messages.Add(1)
		logging.LogStanza(s.remoteAddr, "RECV", data)
		s.server.capture.record(s.remoteAddr, n, directionReceived, data)

		stanza, err := protocol.ParseStanza(data)
		if err != nil {
			logging.Warn("Discarding undecodable stanza",
				zap.String("remote_addr", s.remoteAddr),
				zap.Error(err),
			)
			logging.LogRawBytes("Undecodable stanza", data)
			continue
		}
		if !s.handle(stanza) {
			return
		}
	}
}

// handle processes one stanza and reports whether the stream stays open
func (s *session) handle(stanza *protocol.Stanza) bool {
	switch {
	case stanza.Kind == protocol.KindOpen:
		return s.openStream()

	case stanza.Kind == protocol.KindClose:
		_ = s.write(protocol.BuildClose())
		return false

	case stanza.Name.Local == "auth":
		return s.authenticate(stanza.Raw)

	case stanza.Kind == protocol.KindPresence:
		if s.localpart != "" {
			s.subscribed.Store(true)
			logging.LogConnection(s.remoteAddr, "presence_announced")
		}
		return true

	case stanza.Kind == protocol.KindIQ:
		return s.handleIQ(stanza)

	default:
		logging.Debug("Ignoring stanza",
			zap.String("remote_addr", s.remoteAddr),
			zap.String("element", stanza.Name.Local),
		)
		return true
	}
}

func (s *session) openStream() bool {
	if err := s.write(protocol.BuildOpenReply(uuid.NewString())); err != nil {
		return false
	}
	features := protocol.BuildBindFeatures()
	if !s.authenticated {
		features = protocol.BuildMechanisms("PLAIN")
	}
	return s.write(features) == nil
}

func (s *session) authenticate(raw []byte) bool {
	var auth xmlAuth
	if err := xml.Unmarshal(raw, &auth); err != nil || !strings.EqualFold(auth.Mechanism, "PLAIN") {
		_ = s.write(protocol.BuildFailure("invalid-mechanism"))
		return false
	}

	localpart, ok := s.checkPlain(strings.TrimSpace(auth.Payload))
	if !ok {
		logging.Warn("Authentication failed", zap.String("remote_addr", s.remoteAddr))
		_ = s.write(protocol.BuildFailure("not-authorized"))
		return false
	}

	s.authenticated = true
	s.localpart = localpart
	logging.Info("Client authenticated",
		zap.String("remote_addr", s.remoteAddr),
		zap.String("user", localpart),
	)
	return s.write(protocol.BuildSuccess("")) == nil
}

// checkPlain validates a base64 "authzid NUL authcid NUL password" payload
func (s *session) checkPlain(payload string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	parts := strings.Split(string(decoded), "\x00")
	if len(parts) != 3 {
		return "", false
	}
	user, password := parts[1], parts[2]
	expected, ok := s.server.config.Users[user]
	if !ok || expected != password {
		return "", false
	}
	return user, true
}

func (s *session) handleIQ(stanza *protocol.Stanza) bool {
	iq := stanza.IQ
	if iq.Type == "result" || iq.Type == "error" {
		return true
	}
	if !s.authenticated {
		return s.write(protocol.BuildIQError(iq.ID, "auth", "not-authorized")) == nil
	}

	if iq.Bind != nil {
		var req xmlBindRequest
		_ = xml.Unmarshal(stanza.Raw, &req)
		resource := "rpc"
		if req.Bind != nil && strings.TrimSpace(req.Bind.Resource) != "" {
			resource = strings.TrimSpace(req.Bind.Resource)
		}
		jid := s.localpart + "@" + protocol.Domain + "/" + resource
		logging.LogConnection(s.remoteAddr, "resource_bound")
		return s.write(protocol.BuildBindResult(iq.ID, jid)) == nil
	}

	if iq.IsPing() {
		return s.write(protocol.BuildPong(iq.ID, "")) == nil
	}

	payload := iq.QueryPayload()
	if payload == nil {
		return s.write(protocol.BuildIQError(iq.ID, "cancel", "feature-not-implemented")) == nil
	}

	response, batches := s.call(payload)
	if err := s.write(protocol.BuildRPCResult(iq.ID, response)); err != nil {
		return false
	}
	s.server.broadcast(batches)
	return true
}

// call runs an XML-RPC method call and returns the methodResponse plus any
// update batches to broadcast afterwards.
func (s *session) call(payload []byte) ([]byte, [][]protocol.DatapointUpdate) {
	method, params, err := protocol.ParseMethodCall(payload)
	if err != nil {
		return protocol.BuildFault(faultBadParams, err.Error()), nil
	}

	switch method {
	case protocol.MethodGetAll:
		doc, err := s.server.model.Document()
		if err != nil {
			return protocol.BuildFault(faultWriteFailed, err.Error()), nil
		}
		return protocol.BuildMethodResponse(string(doc)), nil

	case protocol.MethodSetDatapoint:
		if len(params) != 2 {
			return protocol.BuildFault(faultBadParams, "setDatapoint expects id and value"), nil
		}
		batches, err := s.server.model.Write(params[0], params[1])
		if err != nil {
			logging.Warn("Rejected datapoint write",
				zap.String("remote_addr", s.remoteAddr),
				zap.String("datapoint", params[0]),
				zap.Error(err),
			)
			return protocol.BuildFault(faultWriteFailed, err.Error()), nil
		}
		logging.Info("Datapoint written",
			zap.String("remote_addr", s.remoteAddr),
			zap.String("datapoint", params[0]),
			zap.String("value", params[1]),
		)
		return protocol.BuildMethodResponse("OK"), batches

	default:
		return protocol.BuildFault(faultUnknownMethod, "unknown method "+method), nil
	}
}

func (s *session) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.isSubscribed() {
				continue
			}
			if err := s.write(protocol.BuildPing(uuid.NewString())); err != nil {
				return
			}
		}
	}
}

func (s *session) isSubscribed() bool {
	return s.subscribed.Load()
}

func (s *session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	n := s.messages.Add(1)
	logging.LogStanza(s.remoteAddr, "SEND", data)
	s.server.capture.record(s.remoteAddr, n, directionSent, data)
	return nil
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
