// Package mqttbridge mirrors the free@home device model onto an MQTT
// broker.
//
// Each device object gets a small topic tree under its lookup key:
//
//	<prefix>/<serial>/<channel>/attributes   retained JSON description
//	<prefix>/<serial>/<channel>/state        raw state, retained by default
//	<prefix>/<serial>/<channel>/movement     cover movement (0, 2, 3), covers only
//	<prefix>/<serial>/<channel>/set          commands (ON, OFF, OPEN, 40, ...)
//	<prefix>/status                          online/offline (last will)
//
// Client wraps paho.mqtt.golang and restores subscriptions after a broker
// reconnect. Bridge consumes engine events and routes commands through
// devices.Execute.
package mqttbridge
