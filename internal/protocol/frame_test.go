package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseStanza_Kinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		want StanzaKind
	}{
		{"open", `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="busch-jaeger.de" id="1" version="1.0"/>`, KindOpen},
		{"close", `<close xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`, KindClose},
		{"presence", `<presence xmlns="jabber:client" from="mrha@busch-jaeger.de/rpc"/>`, KindPresence},
		{"success", `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`, KindSuccess},
		{"unknown", `<stream:error xmlns:stream="http://etherx.jabber.org/streams"/>`, KindUnknown},
		{"leading whitespace", "\n  <close/>", KindClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseStanza([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseStanza() error = %v", err)
			}
			if s.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", s.Kind, tt.want)
			}
		})
	}
}

func TestParseStanza_Errors(t *testing.T) {
	for _, data := range []string{"", "   ", "<iq", "plain text"} {
		if _, err := ParseStanza([]byte(data)); err == nil {
			t.Errorf("ParseStanza(%q) error = nil, want error", data)
		}
	}
}

func TestParseStanza_Features(t *testing.T) {
	data := `<stream:features xmlns:stream="http://etherx.jabber.org/streams">
		<mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl">
			<mechanism>SCRAM-SHA-1</mechanism>
			<mechanism>PLAIN</mechanism>
		</mechanisms>
	</stream:features>`

	s, err := ParseStanza([]byte(data))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.Kind != KindFeatures || s.Features == nil {
		t.Fatalf("Kind = %v, Features = %v", s.Kind, s.Features)
	}
	if !s.Features.HasMechanism("SCRAM-SHA-1") || !s.Features.HasMechanism("plain") {
		t.Errorf("Mechanisms = %v", s.Features.Mechanisms)
	}
	if s.Features.HasMechanism("DIGEST-MD5") {
		t.Error("HasMechanism(DIGEST-MD5) = true")
	}
	if s.Features.Bind != nil {
		t.Error("Bind offered before authentication")
	}

	s, err = ParseStanza([]byte(`<stream:features xmlns:stream="http://etherx.jabber.org/streams"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/></stream:features>`))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.Features.Bind == nil {
		t.Error("Bind = nil, want offered")
	}
}

func TestParseStanza_ChallengeAndFailure(t *testing.T) {
	s, err := ParseStanza([]byte(`<challenge xmlns="urn:ietf:params:xml:ns:xmpp-sasl"> cj1meWtv </challenge>`))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.Kind != KindChallenge || s.Text != "cj1meWtv" {
		t.Errorf("challenge = %v %q", s.Kind, s.Text)
	}

	s, err = ParseStanza([]byte(`<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><text>bad</text><not-authorized/></failure>`))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.Kind != KindFailure || s.Condition != "not-authorized" {
		t.Errorf("failure = %v %q", s.Kind, s.Condition)
	}
}

func TestParseStanza_IQ(t *testing.T) {
	bind := `<iq xmlns="jabber:client" type="result" id="b1"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>installer@busch-jaeger.de/fah</jid></bind></iq>`
	s, err := ParseStanza([]byte(bind))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.IQ.ID != "b1" || s.IQ.Type != "result" {
		t.Errorf("IQ = %+v", s.IQ)
	}
	if got := s.IQ.BoundJID(); got != "installer@busch-jaeger.de/fah" {
		t.Errorf("BoundJID() = %q", got)
	}
	if s.IQ.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.IQ.Err())
	}
	if s.IQ.QueryPayload() != nil {
		t.Error("QueryPayload() != nil for bind result")
	}

	rpc := `<iq xmlns="jabber:client" type="result" id="r1" from="mrha@busch-jaeger.de/rpc"><query xmlns="jabber:iq:rpc"><methodResponse><params><param><value><string>ok</string></value></param></params></methodResponse></query></iq>`
	s, err = ParseStanza([]byte(rpc))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	payload := s.IQ.QueryPayload()
	if !strings.HasPrefix(string(payload), "<methodResponse>") {
		t.Fatalf("QueryPayload() = %q", payload)
	}
	result, err := ParseMethodResponse(payload)
	if err != nil || result != "ok" {
		t.Errorf("ParseMethodResponse() = %q, %v", result, err)
	}
}

func TestIQ_Err(t *testing.T) {
	data := `<iq xmlns="jabber:client" type="error" id="x9"><error type="cancel"><item-not-found xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`
	s, err := ParseStanza([]byte(data))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}

	var se *StanzaError
	if !errors.As(s.IQ.Err(), &se) {
		t.Fatalf("Err() = %v, want *StanzaError", s.IQ.Err())
	}
	if se.ID != "x9" || se.Type != "cancel" || se.Condition != "item-not-found" {
		t.Errorf("StanzaError = %+v", se)
	}

	s, _ = ParseStanza([]byte(`<iq type="error" id="x10"/>`))
	if !errors.As(s.IQ.Err(), &se) || se.Condition != "undefined-condition" {
		t.Errorf("Err() without <error> = %v", s.IQ.Err())
	}
}

func TestMessage_UpdateFragments(t *testing.T) {
	data := `<message xmlns="jabber:client" from="pubsub.busch-jaeger.de" type="headline">
		<event xmlns="http://jabber.org/protocol/pubsub#event">
			<items node="http://abb.com/protocol/update">
				<item>
					<update xmlns="http://abb.com/protocol/update">
						<data>&lt;update&gt;&lt;device serialNumber=&quot;ABB700C12345&quot;&gt;&lt;channels&gt;&lt;channel i=&quot;ch0000&quot;&gt;&lt;outputs&gt;&lt;dataPoint i=&quot;odp0002&quot;&gt;&lt;value&gt;10&lt;/value&gt;&lt;/dataPoint&gt;&lt;/outputs&gt;&lt;/channel&gt;&lt;/channels&gt;&lt;/device&gt;&lt;/update&gt;</data>
					</update>
				</item>
			</items>
			<items node="http://abb.com/protocol/log">
				<item><update><data>&lt;update/&gt;</data></update></item>
			</items>
		</event>
	</message>`

	s, err := ParseStanza([]byte(data))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if s.Kind != KindMessage {
		t.Fatalf("Kind = %v, want message", s.Kind)
	}

	fragments := s.Message.UpdateFragments()
	if len(fragments) != 1 {
		t.Fatalf("len(fragments) = %d, want 1", len(fragments))
	}

	updates, err := ParseUpdate(fragments[0])
	if err != nil {
		t.Fatalf("ParseUpdate() error = %v", err)
	}
	if len(updates) != 1 || updates[0].ID() != "ABB700C12345/ch0000/odp0002" || updates[0].Value != "10" {
		t.Errorf("updates = %v", updates)
	}
}

func TestMessage_UpdateFragmentsSkipsEmptyData(t *testing.T) {
	s, err := ParseStanza([]byte(`<message><event><items node="http://abb.com/protocol/update">
		<item><update><data>   </data></update></item>
		<item/>
		<item><update><data>&lt;update/&gt;</data></update></item>
	</items></event></message>`))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if got := len(s.Message.UpdateFragments()); got != 1 {
		t.Errorf("len(UpdateFragments()) = %d, want 1", got)
	}

	if (*Message)(nil).UpdateFragments() != nil {
		t.Error("nil message yielded fragments")
	}

	s, _ = ParseStanza([]byte(`<message type="chat"><body>hi</body></message>`))
	if s.Message.UpdateFragments() != nil {
		t.Error("plain message yielded fragments")
	}
}

func TestIQ_IsPing(t *testing.T) {
	s, err := ParseStanza([]byte(`<iq type="get" id="ping1" from="busch-jaeger.de"><ping xmlns="urn:xmpp:ping"/></iq>`))
	if err != nil {
		t.Fatalf("ParseStanza() error = %v", err)
	}
	if !s.IQ.IsPing() {
		t.Error("IsPing() = false")
	}
	s, _ = ParseStanza([]byte(`<iq type="result" id="r1"/>`))
	if s.IQ.IsPing() {
		t.Error("IsPing() = true for a result")
	}
}

func TestStanzaKind_String(t *testing.T) {
	if KindIQ.String() != "iq" || KindUnknown.String() != "unknown" {
		t.Errorf("String() = %q, %q", KindIQ.String(), KindUnknown.String())
	}
}
