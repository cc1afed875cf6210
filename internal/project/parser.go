package project

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Well-known <attribute name="..."> keys
const (
	AttrDisplayName = "displayName"
	AttrFloor       = "floor"
	AttrRoom        = "room"
	AttrFunctionID  = "functionId"
	AttrPairingID   = "pairingId"
)

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlProject struct {
	XMLName xml.Name    `xml:"project"`
	Floors  []xmlFloor  `xml:"floorplan>floor"`
	Devices []xmlDevice `xml:"devices>device"`
}

type xmlFloor struct {
	UID   string    `xml:"uid,attr"`
	Name  string    `xml:"name,attr"`
	Rooms []xmlRoom `xml:"room"`
}

type xmlRoom struct {
	UID  string `xml:"uid,attr"`
	Name string `xml:"name,attr"`
}

type xmlDevice struct {
	SerialNumber string         `xml:"serialNumber,attr"`
	DeviceID     string         `xml:"deviceId,attr"`
	Firmware     string         `xml:"sv,attr"`
	Attributes   []xmlAttribute `xml:"attribute"`
	Channels     []xmlChannel   `xml:"channels>channel"`
}

type xmlChannel struct {
	ID         string         `xml:"i,attr"`
	Attributes []xmlAttribute `xml:"attribute"`
	Inputs     []xmlDatapoint `xml:"inputs>dataPoint"`
	Outputs    []xmlDatapoint `xml:"outputs>dataPoint"`
}

type xmlDatapoint struct {
	ID         string         `xml:"i,attr"`
	Attributes []xmlAttribute `xml:"attribute"`
	Value      string         `xml:"value"`
}

// decodeDocument decodes the root element into v and requires that only
// whitespace, comments and processing instructions follow it.
func decodeDocument(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected <%s> after the root element", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errors.New("unexpected text after the root element")
			}
		}
	}
}

// Parse converts the full configuration document into a Project.
// It fails with *ConfigParseError on malformed XML or missing identifiers.
func Parse(data []byte) (*Project, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newParseError("empty configuration document", nil)
	}

	var doc xmlProject
	if err := decodeDocument(data, &doc); err != nil {
		return nil, newParseError("malformed configuration XML", err)
	}

	p := &Project{
		Floors:  make([]Floor, 0, len(doc.Floors)),
		Devices: make([]Device, 0, len(doc.Devices)),
	}

	for _, f := range doc.Floors {
		floor := Floor{UID: f.UID, Name: f.Name, Rooms: make([]Room, 0, len(f.Rooms))}
		for _, r := range f.Rooms {
			floor.Rooms = append(floor.Rooms, Room{UID: r.UID, Name: r.Name})
		}
		p.Floors = append(p.Floors, floor)
	}

	seen := make(map[string]bool, len(doc.Devices))
	for i, d := range doc.Devices {
		device, err := convertDevice(d)
		if err != nil {
			if pe, ok := err.(*ConfigParseError); ok && pe.Serial == "" {
				pe.Message = fmt.Sprintf("%s (device #%d)", pe.Message, i+1)
			}
			return nil, err
		}
		if seen[device.SerialNumber] {
			return nil, &ConfigParseError{Message: "duplicate device serial number", Serial: device.SerialNumber}
		}
		seen[device.SerialNumber] = true
		p.Devices = append(p.Devices, device)
	}

	return p, nil
}

func convertDevice(d xmlDevice) (Device, error) {
	serial := strings.TrimSpace(d.SerialNumber)
	if serial == "" {
		return Device{}, newParseError("device without serialNumber", nil)
	}

	attrs := attributeMap(d.Attributes)
	device := Device{
		SerialNumber: serial,
		DeviceID:     strings.TrimSpace(d.DeviceID),
		Firmware:     strings.TrimSpace(d.Firmware),
		DisplayName:  attrs[AttrDisplayName],
		Floor:        attrs[AttrFloor],
		Room:         attrs[AttrRoom],
		Attributes:   attrs,
		Channels:     make([]Channel, 0, len(d.Channels)),
	}

	seen := make(map[string]bool, len(d.Channels))
	for _, c := range d.Channels {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return Device{}, &ConfigParseError{Message: "channel without id", Serial: serial}
		}
		if seen[id] {
			return Device{}, &ConfigParseError{Message: "duplicate channel id", Serial: serial, Channel: id}
		}
		seen[id] = true

		channel, err := convertChannel(serial, id, c)
		if err != nil {
			return Device{}, err
		}
		device.Channels = append(device.Channels, channel)
	}

	return device, nil
}

func convertChannel(serial, id string, c xmlChannel) (Channel, error) {
	attrs := attributeMap(c.Attributes)
	channel := Channel{
		ID:          id,
		FunctionID:  attrs[AttrFunctionID],
		DisplayName: attrs[AttrDisplayName],
		Floor:       attrs[AttrFloor],
		Room:        attrs[AttrRoom],
		Attributes:  attrs,
	}

	var err error
	if channel.Inputs, err = convertDatapoints(serial, id, c.Inputs, Input); err != nil {
		return Channel{}, err
	}
	if channel.Outputs, err = convertDatapoints(serial, id, c.Outputs, Output); err != nil {
		return Channel{}, err
	}
	return channel, nil
}

func convertDatapoints(serial, channel string, in []xmlDatapoint, dir Direction) ([]Datapoint, error) {
	out := make([]Datapoint, 0, len(in))
	for _, dp := range in {
		id := strings.TrimSpace(dp.ID)
		if id == "" {
			return nil, &ConfigParseError{
				Message: fmt.Sprintf("datapoint without id in %s", dir),
				Serial:  serial,
				Channel: channel,
			}
		}
		attrs := attributeMap(dp.Attributes)
		out = append(out, Datapoint{
			ID:        id,
			PairingID: attrs[AttrPairingID],
			Value:     strings.TrimSpace(dp.Value),
			Direction: dir,
		})
	}
	return out, nil
}

// attributeMap flattens <attribute name="k">v</attribute> children. The first
// occurrence of a name wins.
func attributeMap(attrs []xmlAttribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if _, exists := m[a.Name]; exists {
			continue
		}
		m[a.Name] = strings.TrimSpace(a.Value)
	}
	return m
}
