package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// Builders for the SysAP side of the stream. The simulator uses them; the
// client never sends these.

// BuildOpenReply answers a client <open>
func BuildOpenReply(streamID string) []byte {
	return []byte(fmt.Sprintf(`<open xmlns="%s" from="%s" id="%s" version="1.0"/>`, NSFraming, Domain, escape(streamID)))
}

// BuildMechanisms lists SASL mechanisms before authentication
func BuildMechanisms(mechanisms ...string) []byte {
	var b strings.Builder
	for _, m := range mechanisms {
		b.WriteString("<mechanism>" + escape(m) + "</mechanism>")
	}
	return []byte(fmt.Sprintf(`<stream:features xmlns:stream="http://etherx.jabber.org/streams"><mechanisms xmlns="%s">%s</mechanisms></stream:features>`, NSSASL, b.String()))
}

// BuildBindFeatures offers resource binding after authentication
func BuildBindFeatures() []byte {
	return []byte(fmt.Sprintf(`<stream:features xmlns:stream="http://etherx.jabber.org/streams"><bind xmlns="%s"/></stream:features>`, NSBind))
}

// BuildSuccess reports SASL success; payload is base64 or empty
func BuildSuccess(payload string) []byte {
	return []byte(fmt.Sprintf(`<success xmlns="%s">%s</success>`, NSSASL, escape(payload)))
}

// BuildFailure reports a SASL failure condition such as "not-authorized"
func BuildFailure(condition string) []byte {
	return []byte(fmt.Sprintf(`<failure xmlns="%s"><%s/></failure>`, NSSASL, condition))
}

// BuildBindResult confirms the bound full JID
func BuildBindResult(id, jid string) []byte {
	return []byte(fmt.Sprintf(`<iq xmlns="%s" type="result" id="%s"><bind xmlns="%s"><jid>%s</jid></bind></iq>`,
		NSClient, escape(id), NSBind, escape(jid)))
}

// BuildRPCResult wraps a methodResponse in an iq result from the RPC JID
func BuildRPCResult(id string, methodResponse []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<iq xmlns="%s" type="result" id="%s" from="%s"><query xmlns="%s">`,
		NSClient, escape(id), RPCJID, NSRPC)
	buf.Write(methodResponse)
	buf.WriteString("</query></iq>")
	return buf.Bytes()
}

// BuildIQError answers an iq with a stanza error
func BuildIQError(id, errType, condition string) []byte {
	return []byte(fmt.Sprintf(`<iq xmlns="%s" type="error" id="%s"><error type="%s"><%s xmlns="%s"/></error></iq>`,
		NSClient, escape(id), escape(errType), condition, NSStanzas))
}

// BuildPing builds a server-initiated XMPP ping
func BuildPing(id string) []byte {
	return []byte(fmt.Sprintf(`<iq xmlns="%s" type="get" id="%s" from="%s"><ping xmlns="%s"/></iq>`,
		NSClient, escape(id), Domain, NSPing))
}

// BuildUpdate encodes datapoint values as an <update> fragment. Consecutive
// updates of the same device and channel share their elements.
func BuildUpdate(updates []DatapointUpdate) []byte {
	var buf bytes.Buffer
	buf.WriteString("<update>")

	serial, channel := "", ""
	closeDevice := func() {
		if channel != "" {
			buf.WriteString("</channel>")
			channel = ""
		}
		if serial != "" {
			buf.WriteString("</channels></device>")
			serial = ""
		}
	}

	for _, u := range updates {
		if u.Serial != serial {
			closeDevice()
			serial = u.Serial
			fmt.Fprintf(&buf, `<device serialNumber="%s" commissioningState="ready"><channels>`, escape(serial))
		}
		if u.Channel != channel {
			if channel != "" {
				buf.WriteString("</channel>")
			}
			channel = u.Channel
			fmt.Fprintf(&buf, `<channel i="%s">`, escape(channel))
		}
		fmt.Fprintf(&buf, `<%s><dataPoint i="%s"><value>%s</value></dataPoint></%s>`,
			u.Direction, escape(u.Datapoint), escape(u.Value), u.Direction)
	}
	closeDevice()

	buf.WriteString("</update>")
	return buf.Bytes()
}

// BuildUpdateEvent wraps an <update> fragment in the PubSub message the
// SysAP pushes to subscribed clients.
func BuildUpdateEvent(fragment []byte) []byte {
	return []byte(fmt.Sprintf(`<message xmlns="%s" from="pubsub.%s"><event xmlns="%s"><items node="%s"><item><update xmlns="%s"><data>%s</data></update></item></items></event></message>`,
		NSClient, Domain, NSPubSubEvent, UpdateNode, NSUpdate, escape(string(fragment))))
}
