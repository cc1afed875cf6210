package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
	"github.com/muurk/freeathome/internal/project"
)

// ClientCapsVersion is advertised in the presence caps element
const ClientCapsVersion = "1.0"

// GenerateStanzaID returns a unique id for an outgoing iq
func GenerateStanzaID() string {
	return uuid.NewString()
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// BuildOpen builds the RFC 7395 stream <open> element
func BuildOpen(domain string) []byte {
	return []byte(fmt.Sprintf(`<open xmlns="%s" to="%s" version="1.0"/>`, NSFraming, escape(domain)))
}

// BuildClose builds the RFC 7395 stream <close> element
func BuildClose() []byte {
	return []byte(fmt.Sprintf(`<close xmlns="%s"/>`, NSFraming))
}

// BuildAuth builds a SASL <auth> element; payload is already base64 encoded.
// An empty payload is sent as "=" per RFC 6120.
func BuildAuth(mechanism, payload string) []byte {
	if payload == "" {
		payload = "="
	}
	return []byte(fmt.Sprintf(`<auth xmlns="%s" mechanism="%s">%s</auth>`, NSSASL, escape(mechanism), escape(payload)))
}

// BuildResponse builds a SASL <response> to a server challenge
func BuildResponse(payload string) []byte {
	return []byte(fmt.Sprintf(`<response xmlns="%s">%s</response>`, NSSASL, escape(payload)))
}

// BuildBind builds the resource binding iq
func BuildBind(id, resource string) []byte {
	inner := ""
	if resource != "" {
		inner = "<resource>" + escape(resource) + "</resource>"
	}
	return []byte(fmt.Sprintf(`<iq xmlns="%s" type="set" id="%s"><bind xmlns="%s">%s</bind></iq>`,
		NSClient, escape(id), NSBind, inner))
}

// BuildPresence announces the client with the entity caps the SysAP expects
// before it starts pushing update events.
func BuildPresence() []byte {
	return []byte(fmt.Sprintf(`<presence xmlns="%s"><c xmlns="%s" node="%s" ver="%s" ext=""/></presence>`,
		NSClient, NSCaps, CapsNode, ClientCapsVersion))
}

// BuildRPC wraps an XML-RPC method call in an iq addressed to the SysAP RPC
// endpoint.
func BuildRPC(id, method string, params ...any) ([]byte, error) {
	call, err := BuildMethodCall(method, params...)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<iq xmlns="%s" type="set" to="%s" id="%s"><query xmlns="%s">`,
		NSClient, RPCJID, escape(id), NSRPC)
	buf.Write(call)
	buf.WriteString("</query></iq>")
	return buf.Bytes(), nil
}

// BuildGetAll builds the full configuration request
func BuildGetAll(id string) ([]byte, error) {
	return BuildRPC(id, MethodGetAll, GetAllParams...)
}

// BuildSetDatapoint builds a datapoint write for serial/channel/datapoint
func BuildSetDatapoint(id, serial, channel, datapoint, value string) ([]byte, error) {
	return BuildRPC(id, MethodSetDatapoint, project.DatapointID(serial, channel, datapoint), value)
}

// BuildPong answers a server-initiated XMPP ping
func BuildPong(id, to string) []byte {
	if to == "" {
		return []byte(fmt.Sprintf(`<iq xmlns="%s" type="result" id="%s"/>`, NSClient, escape(id)))
	}
	return []byte(fmt.Sprintf(`<iq xmlns="%s" type="result" id="%s" to="%s"/>`, NSClient, escape(id), escape(to)))
}
