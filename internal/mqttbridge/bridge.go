package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultPrefix is the topic prefix when none is configured
	DefaultPrefix = "freeathome"

	defaultCommandTimeout = 10 * time.Second
	eventBuffer           = 256
)

// Source is the part of the engine the bridge reads from
type Source interface {
	Devices() []devices.Device
	Device(lookupKey string) (devices.Device, bool)
	Subscribe(l engine.Listener) (unsubscribe func())
}

// Options configures a Bridge
type Options struct {
	Broker Broker
	Source Source

	Prefix string
	QoS    byte
	Retain bool

	// CommandTimeout bounds each command sent to the SysAP
	CommandTimeout time.Duration
}

// Bridge mirrors device objects onto MQTT. Every state change is published
// to <prefix>/<lookup key>/state and commands are accepted on
// <prefix>/<lookup key>/set.
type Bridge struct {
	opts   Options
	topics Topics
	events chan engine.Event
}

// Attributes is the JSON document published for each device object
type Attributes struct {
	LookupKey string   `json:"lookup_key"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Category  string   `json:"category"`
	Serial    string   `json:"serial"`
	Channel   string   `json:"channel"`
	Model     string   `json:"model,omitempty"`
	Device    string   `json:"device,omitempty"`
	Commands  []string `json:"commands,omitempty"`
}

// New creates a bridge. Broker and Source are required.
func New(opts Options) (*Bridge, error) {
	if opts.Broker == nil || opts.Source == nil {
		return nil, fmt.Errorf("mqttbridge: broker and source are required")
	}
	if opts.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	return &Bridge{
		opts:   opts,
		topics: Topics{Prefix: opts.Prefix},
		events: make(chan engine.Event, eventBuffer),
	}, nil
}

// Topics returns the topic layout in use
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Run publishes the current device set, then follows engine events until
// ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for _, filter := range b.topics.SetFilters() {
		if err := b.opts.Broker.Subscribe(filter, b.opts.QoS, b.commandHandler(ctx)); err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
	}

	// Engine listeners run on the dispatching goroutine, so they only queue
	unsubscribe := b.opts.Source.Subscribe(b.enqueue)
	defer unsubscribe()

	b.PublishAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) enqueue(ev engine.Event) {
	select {
	case b.events <- ev:
	default:
		logging.Warn("MQTT bridge event queue full, dropping event",
			zap.String("type", ev.Type.String()),
		)
	}
}

func (b *Bridge) handleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventStateChanged:
		if ev.Device == nil {
			return
		}
		if err := b.publishChange(ev); err != nil {
			logging.Warn("Failed to publish state",
				zap.String("lookup_key", ev.Device.LookupKey()),
				zap.String("datapoint", ev.Datapoint),
				zap.Error(err),
			)
		}
	case engine.EventRebuilt:
		b.PublishAll()
	}
}

// publishChange sends a cover's movement to its own topic. Every other
// change republishes the object's state, which is always the watched
// datapoint.
func (b *Bridge) publishChange(ev engine.Event) error {
	key := ev.Device.LookupKey()
	if c, ok := ev.Device.(*devices.Cover); ok && ev.Datapoint == c.MovementDatapoint() {
		return b.publishMovement(key, c.Movement())
	}
	return b.publishState(key, ev.Device.State())
}

// PublishAll publishes attributes and state for every device object
func (b *Bridge) PublishAll() {
	all := b.opts.Source.Devices()
	failed := 0
	for _, d := range all {
		if err := b.publishDevice(d); err != nil {
			failed++
			logging.Warn("Failed to publish device",
				zap.String("lookup_key", d.LookupKey()),
				zap.Error(err),
			)
		}
	}
	logging.Info("Published device set",
		zap.Int("devices", len(all)),
		zap.Int("failed", failed),
	)
}

func (b *Bridge) publishDevice(d devices.Device) error {
	attrs, err := json.Marshal(AttributesOf(d))
	if err != nil {
		return err
	}
	if err := b.opts.Broker.Publish(b.topics.Attributes(d.LookupKey()), attrs, b.opts.QoS, true); err != nil {
		return err
	}
	if err := b.publishState(d.LookupKey(), d.State()); err != nil {
		return err
	}
	if c, ok := d.(*devices.Cover); ok {
		return b.publishMovement(d.LookupKey(), c.Movement())
	}
	return nil
}

func (b *Bridge) publishState(lookupKey, value string) error {
	return b.opts.Broker.Publish(b.topics.State(lookupKey), []byte(value), b.opts.QoS, b.opts.Retain)
}

func (b *Bridge) publishMovement(lookupKey, value string) error {
	return b.opts.Broker.Publish(b.topics.Movement(lookupKey), []byte(value), b.opts.QoS, b.opts.Retain)
}

func (b *Bridge) commandHandler(ctx context.Context) MessageHandler {
	return func(topic string, payload []byte) error {
		return b.HandleCommand(ctx, topic, payload)
	}
}

// HandleCommand routes a payload received on a Set topic to the device
// object's command methods.
func (b *Bridge) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	key, ok := b.topics.LookupKeyFromSet(topic)
	if !ok {
		return fmt.Errorf("not a command topic: %s", topic)
	}
	d, ok := b.opts.Source.Device(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.CommandTimeout)
	defer cancel()

	logging.Debug("MQTT command received",
		zap.String("lookup_key", key),
		zap.String("command", string(payload)),
	)
	return devices.Execute(ctx, d, string(payload))
}

// AttributesOf describes a device object for the attributes topic
func AttributesOf(d devices.Device) Attributes {
	info := d.DeviceInfo()
	return Attributes{
		LookupKey: d.LookupKey(),
		Name:      d.Name(),
		Type:      d.Type(),
		Category:  string(d.Category()),
		Serial:    d.SerialNumber(),
		Channel:   d.ChannelID(),
		Model:     info.Model,
		Device:    info.Name,
		Commands:  devices.Commands(d),
	}
}
