// Package simulator implements a stand-in System Access Point.
//
// It serves /settings.json and the XMPP-over-WebSocket endpoint on a single
// HTTP listener, authenticates clients with SASL PLAIN against a fixed user
// table and answers the two RPC methods the client uses:
//
//   - RemoteInterface.getAll returns the configuration document with the
//     current datapoint values substituted in.
//   - RemoteInterface.setDatapoint stores the value and pushes <update>
//     events to every client that announced presence.
//
// Writes to input datapoints are mirrored onto the paired outputs of the
// same channel the way actuators report back: a switch on/off input sets
// the switch state output, a cover position input sets the current
// position, and a cover move input reports movement and then the final
// position once the configured travel time has passed.
//
// Usage:
//
//	srv, err := simulator.New(&simulator.Config{
//		Port:     5280,
//		Document: doc,
//		Users:    map[string]string{"installer": "secret"},
//	})
//	if err != nil {
//		return err
//	}
//	return srv.ListenAndServe(ctx)
//
// With CaptureDir set, every stanza in both directions is appended to a
// capture-<timestamp>.jsonl file for later inspection.
package simulator
