// Package session keeps an engine.Engine synchronised with a SysAP over
// an unreliable network.
//
// Run dials the SysAP, rebuilds the device set from a fresh configuration
// and streams pushed update fragments into the engine. When the connection
// drops it reconnects with exponential backoff (cenkalti/backoff) and
// rebuilds again, since updates missed while offline cannot be replayed.
//
//	s := session.New(session.Options{Dial: session.Dialer(cfg)})
//	go s.Run(ctx)
//	for _, d := range s.Engine().GetDevices(devices.CategorySwitch) {
//		fmt.Println(d.Name(), d.State())
//	}
package session
