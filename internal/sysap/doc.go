// Package sysap is the network client for a free@home System Access Point.
//
// Dial opens an XMPP-over-WebSocket session (gorilla/websocket, subprotocol
// "xmpp"), authenticates with SCRAM-SHA-1 or PLAIN, binds a resource and
// announces presence so the SysAP starts pushing update events. The Client
// then serves as both the configuration fetcher and the datapoint setter
// of the engine:
//
//	settings, _ := sysap.FetchSettings(ctx, nil, "192.168.1.10")
//	jid, _ := settings.LookupJID("installer")
//	client, err := sysap.Dial(ctx, sysap.Config{
//		URL:      sysap.WebsocketURL("192.168.1.10"),
//		Username: sysap.Localpart(jid),
//		Password: password,
//	})
//
// Writes are serialised with a mutex; responses are matched to requests by
// stanza id. Update fragments are delivered on the read goroutine in
// arrival order.
package sysap
