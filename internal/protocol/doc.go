// Package protocol implements the SysAP wire format.
//
// The free@home System Access Point speaks XMPP over WebSocket (RFC 7395):
// every WebSocket text message carries exactly one complete XML element.
// On top of that stream the SysAP offers two things this client uses:
//
//   - XML-RPC calls wrapped in <iq type="set"> stanzas addressed to
//     mrha@busch-jaeger.de/rpc (RemoteInterface.getAll,
//     RemoteInterface.setDatapoint)
//   - PubSub events on the node http://abb.com/protocol/update, whose
//     <data> element carries an escaped <update> fragment
//
// # Message Layers
//
//	WebSocket text message
//	  └── XMPP element (frame.go: ParseStanza)
//	        ├── <iq>      → <query> → <methodResponse> (rpc.go)
//	        └── <message> → <event> → <update><data> (handler.go)
//	                                     └── <update> fragment (parser.go)
//
// # Update Fragments
//
// An update fragment lists changed datapoints grouped by device and channel:
//
//	<update>
//	  <device serialNumber="ABB700C12345">
//	    <channels>
//	      <channel i="ch0000">
//	        <outputs>
//	          <dataPoint i="odp0002"><value>10</value></dataPoint>
//	        </outputs>
//	      </channel>
//	    </channels>
//	  </device>
//	</update>
//
// ParseUpdate flattens this into DatapointUpdate pairs in document order.
// Malformed fragments produce an *UpdateParseError before any pair is
// returned, so callers can apply all-or-nothing.
//
// # Construction
//
// constructor.go builds the outgoing stanzas (stream open, SASL auth,
// resource bind, presence, RPC calls). All builders escape their inputs.
//
// # Thread Safety
//
// All functions in this package are stateless and safe for concurrent use.
package protocol
