// Package devices turns a parsed SysAP project into typed device objects.
//
// Each channel's function id selects zero or more templates from a closed
// table (functions.go). A template fixes the object kind (sensor, binary
// sensor, switch, cover, scene), its subtype tag, the output datapoint it
// watches and the suffix of its lookup key. Channels whose function id is
// not in the table map to KindUnmodeled and produce no object.
//
// Build returns a Set holding the objects in document order together with
// the datapoint Index used to route live updates:
//
//	set := devices.Build(proj, rooms, client)
//	for _, d := range set.Index().Lookup("ABB700C12345/ch0000/odp0002") {
//		d.Update("ABB700C12345/ch0000/odp0002", "10")
//	}
//
// Device state is a last-write-wins register. Reads are safe concurrently
// with Update; commands go through the Setter and never touch local state.
package devices
