package sysap

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/freeathome/internal/protocol"
	"golang.org/x/crypto/pbkdf2"
)

const (
	fakeUser     = "6f1a2b3c-installer"
	fakePassword = "secret"
	fakeSalt     = "c2FsdHlzYWx0c2FsdA=="
	fakeServerID = "server-nonce-part"
)

// fakeSysAP is a scripted XMPP-over-WebSocket peer
type fakeSysAP struct {
	t          *testing.T
	mechanisms []string
	config     string
	pingFirst  bool

	srv *httptest.Server

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	sets    []string
	used    string
	ready   chan struct{}
}

func newFakeSysAP(t *testing.T, mechanisms ...string) *fakeSysAP {
	t.Helper()
	f := &fakeSysAP{
		t:          t,
		mechanisms: mechanisms,
		config:     `<project><devices/></project>`,
		ready:      make(chan struct{}),
	}
	return f
}

// clientConfig starts the server on first use, so fields set by a test
// before dialing are visible to the serving goroutine.
func (f *fakeSysAP) clientConfig() Config {
	if f.srv == nil {
		f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
		f.t.Cleanup(f.srv.Close)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + DefaultPath
	return Config{URL: url, Username: fakeUser, Password: fakePassword, RequestTimeout: 5 * time.Second}
}

func (f *fakeSysAP) send(s string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(s))
}

func (f *fakeSysAP) readRaw() ([]byte, bool) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	return data, true
}

// push sends an update fragment as a pubsub event
func (f *fakeSysAP) push(fragment string) {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(fragment))
	f.send(`<message xmlns="jabber:client" from="pubsub.busch-jaeger.de"><event xmlns="http://jabber.org/protocol/pubsub#event"><items node="http://abb.com/protocol/update"><item><update xmlns="http://abb.com/protocol/update"><data>` + escaped.String() + `</data></update></item></items></event></message>`)
}

// hangUp drops the connection without a stream close
func (f *fakeSysAP) hangUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
	}
}

func (f *fakeSysAP) mechanismUsed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

func (f *fakeSysAP) recordedSets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func (f *fakeSysAP) features(withBind bool) string {
	if withBind {
		return `<stream:features xmlns:stream="http://etherx.jabber.org/streams"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/></stream:features>`
	}
	var mechs strings.Builder
	for _, m := range f.mechanisms {
		mechs.WriteString("<mechanism>" + m + "</mechanism>")
	}
	return `<stream:features xmlns:stream="http://etherx.jabber.org/streams"><mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl">` + mechs.String() + `</mechanisms></stream:features>`
}

func (f *fakeSysAP) serve(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{Subprotocols: []string{"xmpp"}}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer func() { _ = conn.Close() }()

	openReply := `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="busch-jaeger.de" id="s1" version="1.0"/>`

	if _, ok := f.readRaw(); !ok {
		return
	}
	f.send(openReply)
	f.send(f.features(false))

	if !f.authenticate() {
		return
	}

	if _, ok := f.readRaw(); !ok {
		return
	}
	f.send(openReply)
	f.send(f.features(true))

	data, ok := f.readRaw()
	if !ok {
		return
	}
	s, err := protocol.ParseStanza(data)
	if err != nil || s.Kind != protocol.KindIQ {
		f.t.Errorf("expected bind iq, got %s", data)
		return
	}
	f.send(fmt.Sprintf(`<iq xmlns="jabber:client" type="result" id="%s"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>%s@busch-jaeger.de/freeathome</jid></bind></iq>`, s.IQ.ID, fakeUser))

	if data, ok = f.readRaw(); !ok || !strings.HasPrefix(string(data), "<presence") {
		f.t.Errorf("expected presence, got %s", data)
		return
	}

	if f.pingFirst {
		f.send(`<iq xmlns="jabber:client" type="get" id="ping-1" from="busch-jaeger.de"><ping xmlns="urn:xmpp:ping"/></iq>`)
		data, ok = f.readRaw()
		if !ok {
			return
		}
		pong, err := protocol.ParseStanza(data)
		if err != nil || pong.Kind != protocol.KindIQ || pong.IQ.ID != "ping-1" || pong.IQ.Type != "result" {
			f.t.Errorf("expected pong, got %s", data)
		}
	}
	close(f.ready)

	for {
		data, ok := f.readRaw()
		if !ok {
			return
		}
		s, err := protocol.ParseStanza(data)
		if err != nil {
			f.t.Errorf("client sent undecodable stanza: %s", data)
			return
		}
		switch s.Kind {
		case protocol.KindClose:
			f.send(`<close xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`)
			return
		case protocol.KindIQ:
			f.answerRPC(s.IQ)
		}
	}
}

type fakeMethodCall struct {
	Method string   `xml:"methodName"`
	Params []string `xml:"params>param>value>string"`
}

func (f *fakeSysAP) answerRPC(iq *protocol.IQ) {
	var call fakeMethodCall
	if err := xml.Unmarshal(iq.QueryPayload(), &call); err != nil {
		f.t.Errorf("bad methodCall: %v", err)
		return
	}

	switch call.Method {
	case protocol.MethodGetAll:
		f.respond(iq.ID, f.config)
	case protocol.MethodSetDatapoint:
		f.mu.Lock()
		f.sets = append(f.sets, strings.Join(call.Params, "="))
		f.mu.Unlock()
		f.respond(iq.ID, "OK")
	case "RemoteInterface.missing":
		f.send(fmt.Sprintf(`<iq xmlns="jabber:client" type="result" id="%s"><query xmlns="jabber:iq:rpc"><methodResponse><fault><value><struct><member><name>faultCode</name><value><int>3</int></value></member><member><name>faultString</name><value><string>no such method</string></value></member></struct></value></fault></methodResponse></query></iq>`, iq.ID))
	case "RemoteInterface.forbidden":
		f.send(fmt.Sprintf(`<iq xmlns="jabber:client" type="error" id="%s"><error type="auth"><forbidden xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`, iq.ID))
	case "RemoteInterface.silent":
		// never answered
	}
}

func (f *fakeSysAP) respond(id, result string) {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(result))
	f.send(fmt.Sprintf(`<iq xmlns="jabber:client" type="result" id="%s" from="mrha@busch-jaeger.de/rpc"><query xmlns="jabber:iq:rpc"><methodResponse><params><param><value><string>%s</string></value></param></params></methodResponse></query></iq>`, id, escaped.String()))
}

type saslElement struct {
	XMLName   xml.Name
	Mechanism string `xml:"mechanism,attr"`
	Payload   string `xml:",chardata"`
}

func (f *fakeSysAP) readSASL() (saslElement, []byte, bool) {
	var el saslElement
	data, ok := f.readRaw()
	if !ok {
		return el, nil, false
	}
	if err := xml.Unmarshal(data, &el); err != nil {
		f.t.Errorf("bad SASL element %s: %v", data, err)
		return el, nil, false
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(el.Payload))
	if err != nil {
		f.t.Errorf("bad SASL payload %q: %v", el.Payload, err)
		return el, nil, false
	}
	return el, payload, true
}

func (f *fakeSysAP) fail() {
	f.send(`<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><not-authorized/></failure>`)
}

func (f *fakeSysAP) authenticate() bool {
	el, payload, ok := f.readSASL()
	if !ok {
		return false
	}
	f.mu.Lock()
	f.used = el.Mechanism
	f.mu.Unlock()

	switch el.Mechanism {
	case MechanismPlain:
		if string(payload) != "\x00"+fakeUser+"\x00"+fakePassword {
			f.fail()
			return false
		}
		f.send(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)
		return true

	case MechanismSCRAMSHA1:
		clientFirst := string(payload)
		if !strings.HasPrefix(clientFirst, "n,,") {
			f.fail()
			return false
		}
		clientFirstBare := strings.TrimPrefix(clientFirst, "n,,")
		attrs := parseSCRAMAttributes(clientFirstBare)
		if attrs["n"] != fakeUser {
			f.fail()
			return false
		}
		serverFirst := "r=" + attrs["r"] + fakeServerID + ",s=" + fakeSalt + ",i=4096"
		f.send(`<challenge xmlns="urn:ietf:params:xml:ns:xmpp-sasl">` + base64.StdEncoding.EncodeToString([]byte(serverFirst)) + `</challenge>`)

		_, payload, ok := f.readSASL()
		if !ok {
			return false
		}
		clientFinal := string(payload)
		i := strings.LastIndex(clientFinal, ",p=")
		if i < 0 {
			f.fail()
			return false
		}
		withoutProof := clientFinal[:i]
		proof, _ := base64.StdEncoding.DecodeString(clientFinal[i+3:])

		salt, _ := base64.StdEncoding.DecodeString(fakeSalt)
		salted := pbkdf2.Key([]byte(fakePassword), salt, 4096, sha1.Size, sha1.New)
		authMessage := clientFirstBare + "," + serverFirst + "," + withoutProof

		storedKey := sha1.Sum(hmacSHA1(salted, []byte("Client Key")))
		signature := hmacSHA1(storedKey[:], []byte(authMessage))
		if len(proof) != len(signature) {
			f.fail()
			return false
		}
		clientKey := make([]byte, len(proof))
		for j := range proof {
			clientKey[j] = proof[j] ^ signature[j]
		}
		if sum := sha1.Sum(clientKey); !bytes.Equal(sum[:], storedKey[:]) {
			f.fail()
			return false
		}

		serverSig := hmacSHA1(hmacSHA1(salted, []byte("Server Key")), []byte(authMessage))
		f.send(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl">` + base64.StdEncoding.EncodeToString([]byte("v="+base64.StdEncoding.EncodeToString(serverSig))) + `</success>`)
		return true
	}

	f.fail()
	return false
}
