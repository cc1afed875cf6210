// Package history records device state changes in InfluxDB.
//
// A Recorder follows engine events and writes one point per state change:
//
//	freeathome_state,lookup_key=ABB700000001/ch0000,category=switch,... state="1",value=1
//
// Tags carry the lookup key, category, subtype, serial, channel and the
// datapoint that changed. The raw state is always a string field; numeric
// states are also written as a float "value" field. A cover's movement
// datapoint is written as a "movement" field next to the unchanged
// position in "state".
//
// The recorder only exports history. Device state is still rebuilt from
// the SysAP on every connect and never read back from InfluxDB.
package history
