package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// XML namespaces used on the SysAP stream
const (
	NSFraming     = "urn:ietf:params:xml:ns:xmpp-framing"
	NSClient      = "jabber:client"
	NSSASL        = "urn:ietf:params:xml:ns:xmpp-sasl"
	NSBind        = "urn:ietf:params:xml:ns:xmpp-bind"
	NSStanzas     = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NSRPC         = "jabber:iq:rpc"
	NSPing        = "urn:xmpp:ping"
	NSCaps        = "http://jabber.org/protocol/caps"
	NSPubSubEvent = "http://jabber.org/protocol/pubsub#event"
	NSUpdate      = "http://abb.com/protocol/update"
)

// Fixed addresses on the SysAP
const (
	Domain     = "busch-jaeger.de"
	RPCJID     = "mrha@busch-jaeger.de/rpc"
	CapsNode   = "http://gonicus.de/caps"
	UpdateNode = NSUpdate
)

// StanzaKind identifies the top-level element of a WebSocket message
type StanzaKind int

const (
	KindUnknown StanzaKind = iota
	KindOpen
	KindClose
	KindFeatures
	KindChallenge
	KindSuccess
	KindFailure
	KindIQ
	KindMessage
	KindPresence
)

var kindNames = map[string]StanzaKind{
	"open":      KindOpen,
	"close":     KindClose,
	"features":  KindFeatures,
	"challenge": KindChallenge,
	"success":   KindSuccess,
	"failure":   KindFailure,
	"iq":        KindIQ,
	"message":   KindMessage,
	"presence":  KindPresence,
}

// String returns the element name for the kind
func (k StanzaKind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Stanza is one decoded top-level element from the stream. Exactly one of the
// typed fields is set, matching Kind. Open and Close carry no payload.
type Stanza struct {
	Kind StanzaKind
	Name xml.Name
	Raw  []byte

	Features *Features
	IQ       *IQ
	Message  *Message

	// Text is the base64 payload of <challenge> and <success>
	Text string

	// Condition is the SASL failure condition (e.g. "not-authorized")
	Condition string
}

// Features lists what the server offers after an <open>
type Features struct {
	Mechanisms []string  `xml:"mechanisms>mechanism"`
	Bind       *struct{} `xml:"bind"`
}

// HasMechanism reports whether the server offers the SASL mechanism
func (f *Features) HasMechanism(name string) bool {
	for _, m := range f.Mechanisms {
		if strings.EqualFold(strings.TrimSpace(m), name) {
			return true
		}
	}
	return false
}

// IQ is an info/query stanza
type IQ struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
	From string `xml:"from,attr"`
	To   string `xml:"to,attr"`
	Bind *struct {
		JID string `xml:"jid"`
	} `xml:"bind"`
	Query *struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"query"`
	Ping  *struct{}       `xml:"ping"`
	Error *xmlStanzaError `xml:"error"`
}

type xmlStanzaError struct {
	Type       string `xml:"type,attr"`
	Conditions []struct {
		XMLName xml.Name
	} `xml:",any"`
}

// Err returns a *StanzaError for type="error" answers, nil otherwise
func (iq *IQ) Err() error {
	if iq.Type != "error" {
		return nil
	}
	se := &StanzaError{ID: iq.ID, Type: "cancel", Condition: "undefined-condition"}
	if iq.Error != nil {
		if iq.Error.Type != "" {
			se.Type = iq.Error.Type
		}
		for _, c := range iq.Error.Conditions {
			if c.XMLName.Space == NSStanzas && c.XMLName.Local != "text" {
				se.Condition = c.XMLName.Local
				break
			}
		}
	}
	return se
}

// BoundJID returns the JID from a resource-binding result
func (iq *IQ) BoundJID() string {
	if iq.Bind == nil {
		return ""
	}
	return strings.TrimSpace(iq.Bind.JID)
}

// IsPing reports whether the iq is a server-initiated XMPP ping
func (iq *IQ) IsPing() bool {
	return iq.Type == "get" && iq.Ping != nil
}

// QueryPayload returns the contents of the <query> child, or nil
func (iq *IQ) QueryPayload() []byte {
	if iq.Query == nil {
		return nil
	}
	return bytes.TrimSpace(iq.Query.Inner)
}

// Message is a <message> stanza. Only PubSub events are decoded.
type Message struct {
	From  string `xml:"from,attr"`
	Type  string `xml:"type,attr"`
	Event *struct {
		Items []struct {
			Node  string `xml:"node,attr"`
			Items []struct {
				Update *struct {
					Data string `xml:"data"`
				} `xml:"update"`
			} `xml:"item"`
		} `xml:"items"`
	} `xml:"event"`
}

type xmlSASLFailure struct {
	Conditions []struct {
		XMLName xml.Name
	} `xml:",any"`
}

// ParseStanza decodes a single WebSocket message into a Stanza. Unknown
// top-level elements are returned with KindUnknown rather than as an error.
func ParseStanza(data []byte) (*Stanza, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty stanza")
	}

	name, err := rootName(data)
	if err != nil {
		return nil, fmt.Errorf("malformed stanza: %w", err)
	}

	s := &Stanza{Kind: kindNames[name.Local], Name: name, Raw: data}

	switch s.Kind {
	case KindFeatures:
		s.Features = &Features{}
		err = xml.Unmarshal(data, s.Features)
	case KindIQ:
		s.IQ = &IQ{}
		err = xml.Unmarshal(data, s.IQ)
	case KindMessage:
		s.Message = &Message{}
		err = xml.Unmarshal(data, s.Message)
	case KindChallenge, KindSuccess:
		var text struct {
			Value string `xml:",chardata"`
		}
		err = xml.Unmarshal(data, &text)
		s.Text = strings.TrimSpace(text.Value)
	case KindFailure:
		var f xmlSASLFailure
		err = xml.Unmarshal(data, &f)
		for _, c := range f.Conditions {
			if c.XMLName.Local != "text" {
				s.Condition = c.XMLName.Local
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode <%s>: %w", name.Local, err)
	}
	return s, nil
}

// rootName returns the name of the first start element
func rootName(data []byte) (xml.Name, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.Name{}, fmt.Errorf("no element found")
		}
		if err != nil {
			return xml.Name{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name, nil
		}
	}
}
