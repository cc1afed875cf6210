package devices

import (
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/project"
	"go.uber.org/zap"
)

// Build creates the device objects and datapoint index for a project.
// Devices and channels are visited in document order, so the same project
// always yields the same objects and lookup keys. Channels with an unknown
// function id are skipped.
func Build(p *project.Project, rooms RoomNames, setter Setter) *Set {
	set := NewSet()
	if p == nil {
		return set
	}

	skipped := 0
	for i := range p.Devices {
		dev := &p.Devices[i]
		for j := range dev.Channels {
			ch := &dev.Channels[j]
			objs := newChannelDevices(dev, ch, rooms, setter)
			if len(objs) == 0 {
				skipped++
				continue
			}
			for _, d := range objs {
				if !set.add(d) {
					logging.Warn("Duplicate lookup key, keeping first device object",
						zap.String("lookup_key", d.LookupKey()),
					)
				}
			}
		}
	}

	logging.Debug("Device set built",
		zap.Int("devices", set.Len()),
		zap.Int("indexed_datapoints", set.Index().Len()),
		zap.Int("skipped_channels", skipped),
	)
	return set
}

// newChannelDevices instantiates every template registered for the
// channel's function id.
func newChannelDevices(dev *project.Device, ch *project.Channel, rooms RoomNames, setter Setter) []Device {
	templates := templatesFor(ch.FunctionID)
	if len(templates) == 0 {
		logging.Debug("Skipping unmodeled channel",
			zap.String("serial", dev.SerialNumber),
			zap.String("channel", ch.ID),
			zap.String("function_id", ch.FunctionID),
		)
		return nil
	}

	baseName := channelBaseName(dev, ch)
	floor, room := ch.Location(dev)
	roomName := rooms.Room(floor, room)
	info := DeviceInfo{
		Identifiers: []Identifier{{Domain: IdentifierDomain, ID: dev.SerialNumber}},
		Name:        baseName + " (" + dev.SerialNumber + ")",
		Model:       ModelName(dev.DeviceID),
		SWVersion:   dev.Firmware,
	}

	out := make([]Device, 0, len(templates))
	for _, t := range templates {
		dp, ok := ch.Output(t.watch)
		if !ok {
			logging.Debug("Channel lacks watched output, skipping template",
				zap.String("serial", dev.SerialNumber),
				zap.String("channel", ch.ID),
				zap.String("datapoint", t.watch),
				zap.String("type", t.subtype),
			)
			continue
		}

		key := dev.SerialNumber + "/" + ch.ID
		if t.suffix != "" {
			key += "/" + t.suffix
		}
		name := displayName(baseName, roomName, t)

		if d := newDevice(key, name, t, dev.SerialNumber, ch, info, dp.Value, setter); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func newDevice(key, name string, t template, serial string, ch *project.Channel, info DeviceInfo, initial string, setter Setter) Device {
	switch t.kind {
	case KindSensor:
		d := &Sensor{}
		d.init(key, name, t, serial, ch.ID, info, initial, setter)
		return d
	case KindBinarySensor:
		d := &BinarySensor{}
		d.init(key, name, t, serial, ch.ID, info, initial, setter)
		return d
	case KindSwitch:
		d := &Switch{}
		d.init(key, name, t, serial, ch.ID, info, initial, setter)
		return d
	case KindCover:
		d := &Cover{movementID: project.DatapointID(serial, ch.ID, t.extra)}
		d.init(key, name, t, serial, ch.ID, info, initial, setter)
		movement := MovementStopped
		if dp, ok := ch.Output(t.extra); ok {
			movement = dp.Value
		}
		d.movement.Store(movement)
		return d
	case KindScene:
		d := &Scene{}
		d.init(key, name, t, serial, ch.ID, info, initial, setter)
		return d
	default:
		return nil
	}
}

// channelBaseName picks the channel name, then the device name, then the
// serial number.
func channelBaseName(dev *project.Device, ch *project.Channel) string {
	switch {
	case ch.DisplayName != "":
		return ch.DisplayName
	case dev.DisplayName != "":
		return dev.DisplayName
	default:
		return dev.SerialNumber
	}
}

// displayName formats "<base> (<room>)[_<subtype>]"
func displayName(baseName, roomName string, t template) string {
	name := baseName
	if roomName != "" {
		name += " (" + roomName + ")"
	}
	if t.named {
		name += "_" + t.subtype
	}
	return name
}
