package project

import "strings"

// Direction is the data-flow direction of a datapoint
type Direction int

const (
	// Input datapoints are command sinks (idpXXXX)
	Input Direction = iota
	// Output datapoints are state sources (odpXXXX)
	Output
)

// String returns the XML element name used for the direction
func (d Direction) String() string {
	if d == Output {
		return "outputs"
	}
	return "inputs"
}

// Project is the parsed configuration document
type Project struct {
	// Floors is the floorplan in document order
	Floors []Floor

	// Devices in document order
	Devices []Device
}

// Floor is the top level of the location tree
type Floor struct {
	UID   string
	Name  string
	Rooms []Room
}

// Room is a location inside a floor
type Room struct {
	UID  string
	Name string
}

// Device is a physical (or SysAP-virtual) device
type Device struct {
	SerialNumber string
	DeviceID     string // Hardware type id, e.g. "100A"
	Firmware     string
	DisplayName  string
	Floor        string // Floor uid from the device attributes (may be empty)
	Room         string // Room uid from the device attributes (may be empty)
	Attributes   map[string]string
	Channels     []Channel
}

// Channel is one functional unit of a device
type Channel struct {
	ID          string // e.g. "ch0000"
	FunctionID  string // Raw hex function id, e.g. "0041"
	DisplayName string
	Floor       string
	Room        string
	Attributes  map[string]string
	Inputs      []Datapoint
	Outputs     []Datapoint
}

// Datapoint is one value slot of a channel
type Datapoint struct {
	ID        string // e.g. "odp0002"
	PairingID string
	Value     string
	Direction Direction
}

// DatapointID returns the fully-qualified identifier serial/channel/datapoint
func DatapointID(serial, channel, datapoint string) string {
	return serial + "/" + channel + "/" + datapoint
}

// SplitDatapointID splits a fully-qualified identifier into its parts
func SplitDatapointID(id string) (serial, channel, datapoint string, ok bool) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Device returns the device with the given serial number
func (p *Project) Device(serial string) (*Device, bool) {
	for i := range p.Devices {
		if p.Devices[i].SerialNumber == serial {
			return &p.Devices[i], true
		}
	}
	return nil, false
}

// RoomNames returns the floorplan as floor uid -> room uid -> room name
func (p *Project) RoomNames() map[string]map[string]string {
	names := make(map[string]map[string]string, len(p.Floors))
	for _, floor := range p.Floors {
		rooms := make(map[string]string, len(floor.Rooms))
		for _, room := range floor.Rooms {
			rooms[room.UID] = room.Name
		}
		names[floor.UID] = rooms
	}
	return names
}

// Channel returns the channel with the given id
func (d *Device) Channel(id string) (*Channel, bool) {
	for i := range d.Channels {
		if d.Channels[i].ID == id {
			return &d.Channels[i], true
		}
	}
	return nil, false
}

// Output returns the output datapoint with the given id
func (c *Channel) Output(id string) (Datapoint, bool) {
	for _, dp := range c.Outputs {
		if dp.ID == id {
			return dp, true
		}
	}
	return Datapoint{}, false
}

// Input returns the input datapoint with the given id
func (c *Channel) Input(id string) (Datapoint, bool) {
	for _, dp := range c.Inputs {
		if dp.ID == id {
			return dp, true
		}
	}
	return Datapoint{}, false
}

// Location returns the channel's floor and room uids, falling back to the
// device-level attributes when the channel does not carry its own.
func (c *Channel) Location(d *Device) (floor, room string) {
	floor, room = c.Floor, c.Room
	if floor == "" && room == "" {
		floor, room = d.Floor, d.Room
	}
	return floor, room
}
