package devices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/muurk/freeathome/internal/project"
)

// IdentifierDomain is the namespace of every device identifier
const IdentifierDomain = "freeathome"

// ErrNoSetter is returned by commands when no outward setter was configured
var ErrNoSetter = errors.New("devices: no datapoint setter configured")

// Setter issues a raw value to a datapoint on the SysAP. Implementations
// must be safe for concurrent use.
type Setter interface {
	SetDatapoint(ctx context.Context, serial, channel, datapoint, value string) error
}

// RoomNames maps floor uid -> room uid -> display name
type RoomNames map[string]map[string]string

// Room returns the display name of a room, or "" when unknown
func (r RoomNames) Room(floor, room string) string {
	if r == nil || room == "" {
		return ""
	}
	return r[floor][room]
}

// Identifier is one (domain, id) pair identifying the physical device
type Identifier struct {
	Domain string
	ID     string
}

// DeviceInfo describes the physical device behind a device object
type DeviceInfo struct {
	Identifiers []Identifier
	Name        string
	Model       string
	SWVersion   string
}

// Device is the externally visible, typed representation of a channel
// function.
type Device interface {
	LookupKey() string
	Name() string
	Type() string
	Kind() Kind
	Category() Category
	SerialNumber() string
	ChannelID() string
	DeviceInfo() DeviceInfo

	// State returns the last observed raw value of the watched datapoint
	State() string

	// Datapoints returns the fully-qualified output datapoints this object
	// is indexed under.
	Datapoints() []string

	// Update applies a raw value for one of the object's datapoints. It
	// returns the previous value and whether anything changed.
	Update(datapointID, value string) (old string, changed bool)

	// SetDatapoint forwards a raw value for one of the channel's datapoints
	// to the SysAP. Local state is left alone; the echo arrives via Update.
	SetDatapoint(ctx context.Context, datapoint, value string) error
}

// base carries the fields shared by every variant
type base struct {
	key     string
	name    string
	subtype string
	kind    Kind
	serial  string
	channel string
	info    DeviceInfo
	watch   string // fully-qualified watched datapoint
	setter  Setter
	state   atomic.Value // string
}

func (b *base) init(key, name string, t template, serial, channel string, info DeviceInfo, initial string, setter Setter) {
	b.key = key
	b.name = name
	b.subtype = t.subtype
	b.kind = t.kind
	b.serial = serial
	b.channel = channel
	b.info = info
	b.watch = project.DatapointID(serial, channel, t.watch)
	b.setter = setter
	b.state.Store(initial)
}

func (b *base) LookupKey() string      { return b.key }
func (b *base) Name() string           { return b.name }
func (b *base) Type() string           { return b.subtype }
func (b *base) Kind() Kind             { return b.kind }
func (b *base) Category() Category     { return b.kind.Category() }
func (b *base) SerialNumber() string   { return b.serial }
func (b *base) ChannelID() string      { return b.channel }
func (b *base) Datapoints() []string   { return []string{b.watch} }
func (b *base) State() string          { return b.state.Load().(string) }
func (b *base) String() string         { return fmt.Sprintf("%s %s (%s)", b.kind, b.key, b.name) }
func (b *base) DeviceInfo() DeviceInfo { return b.info.clone() }

func (b *base) Update(datapointID, value string) (string, bool) {
	if datapointID != b.watch {
		return "", false
	}
	old := b.state.Swap(value).(string)
	return old, old != value
}

func (b *base) SetDatapoint(ctx context.Context, datapoint, value string) error {
	if b.setter == nil {
		return ErrNoSetter
	}
	return b.setter.SetDatapoint(ctx, b.serial, b.channel, datapoint, value)
}

func (i DeviceInfo) clone() DeviceInfo {
	out := i
	out.Identifiers = append([]Identifier(nil), i.Identifiers...)
	return out
}

// Sensor is a multi-level sensor (lux, rain, temperature, windstrength)
type Sensor struct {
	base
}

// Value returns the state as a number
func (s *Sensor) Value() (float64, error) {
	return strconv.ParseFloat(s.State(), 64)
}

// BinarySensor is a two-state sensor (motion, window/door, alarms)
type BinarySensor struct {
	base
}

// IsOn reports whether the sensor is triggered
func (s *BinarySensor) IsOn() bool {
	return s.State() == "1"
}

// Switch is a switch actuator channel
type Switch struct {
	base
}

// IsOn reports whether the actuator output is on
func (s *Switch) IsOn() bool {
	return s.State() == "1"
}

// TurnOn switches the actuator on
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.SetDatapoint(ctx, dpSwitch, "1")
}

// TurnOff switches the actuator off
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.SetDatapoint(ctx, dpSwitch, "0")
}

// Cover movement states reported on odp0000
const (
	MovementStopped = "0"
	MovementClosing = "2"
	MovementOpening = "3"
)

// Cover is a shutter, blind, attic window or awning actuator. State is the
// position reported by the SysAP (0 = open, 100 = closed).
type Cover struct {
	base
	movementID string
	movement   atomic.Value // string
}

// Datapoints returns both the position and the movement datapoint
func (c *Cover) Datapoints() []string {
	return []string{c.watch, c.movementID}
}

// Update applies position or movement values
func (c *Cover) Update(datapointID, value string) (string, bool) {
	if datapointID == c.movementID {
		old := c.movement.Swap(value).(string)
		return old, old != value
	}
	return c.base.Update(datapointID, value)
}

// MovementDatapoint is the fully-qualified movement datapoint
func (c *Cover) MovementDatapoint() string {
	return c.movementID
}

// Movement returns the raw movement state
func (c *Cover) Movement() string {
	return c.movement.Load().(string)
}

// IsOpening reports whether the cover is moving up
func (c *Cover) IsOpening() bool { return c.Movement() == MovementOpening }

// IsClosing reports whether the cover is moving down
func (c *Cover) IsClosing() bool { return c.Movement() == MovementClosing }

// Position returns the closed percentage
func (c *Cover) Position() (int, error) {
	return strconv.Atoi(c.State())
}

// IsClosed reports whether the cover is fully closed
func (c *Cover) IsClosed() bool {
	p, err := c.Position()
	return err == nil && p >= 100
}

// Open moves the cover up
func (c *Cover) Open(ctx context.Context) error {
	return c.SetDatapoint(ctx, dpCoverMove, "0")
}

// Close moves the cover down
func (c *Cover) Close(ctx context.Context) error {
	return c.SetDatapoint(ctx, dpCoverMove, "1")
}

// Stop halts a moving cover
func (c *Cover) Stop(ctx context.Context) error {
	return c.SetDatapoint(ctx, dpCoverStop, "1")
}

// SetPosition moves the cover to a closed percentage between 0 and 100
func (c *Cover) SetPosition(ctx context.Context, position int) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("position %d out of range 0-100", position)
	}
	return c.SetDatapoint(ctx, dpCoverPosition, strconv.Itoa(position))
}

// Scene is a SysAP scene
type Scene struct {
	base
}

// Activate triggers the scene
func (s *Scene) Activate(ctx context.Context) error {
	return s.SetDatapoint(ctx, dpOut0, "1")
}
