// Package project parses the SysAP configuration document.
//
// The System Access Point answers RemoteInterface.getAll with one XML
// document describing the whole installation: a floorplan (floors and rooms)
// and every device with its channels and datapoints. Parse turns that
// document into a plain tree that the devices package builds on:
//
//	Project
//	├── Floors   (uid, name, rooms)
//	└── Devices  (serialNumber, deviceId, firmware)
//	    └── Channels (ch0000, functionId, floor/room)
//	        ├── Inputs  (idp0000 ...)
//	        └── Outputs (odp0000 ...)
//
// Parsing is structural only. Function and device identifiers the client does
// not model are kept as-is; deciding what to do with them is left to the
// device factory.
//
// A document that is not well-formed XML, has the wrong root element, or is
// missing a serial number or channel/datapoint identifier yields a
// *ConfigParseError and no Project at all.
package project
