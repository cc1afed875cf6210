package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	luxKey    = "ABB700C12345/ch0000"
	switchKey = "ABB700C12345/ch0003"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return data
}

type staticFetcher []byte

func (f staticFetcher) GetConfig(context.Context) ([]byte, error) { return f, nil }

type recordingSetter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingSetter) SetDatapoint(_ context.Context, serial, channel, datapoint, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, serial+"/"+channel+"/"+datapoint+"="+value)
	return nil
}

func (r *recordingSetter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type message struct {
	payload  string
	retained bool
}

type fakeBroker struct {
	mu         sync.Mutex
	published  map[string]message
	handlers   map[string]MessageHandler
	publishErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		published: make(map[string]message),
		handlers:  make(map[string]MessageHandler),
	}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published[topic] = message{string(payload), retained}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, h MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) get(topic string) (message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.published[topic]
	return m, ok
}

func (b *fakeBroker) handler(topic string) MessageHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[topic]
}

func newEngine(t *testing.T, name string, setter devices.Setter) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Options{Fetcher: staticFetcher(fixture(t, name)), Setter: setter})
	require.NoError(t, e.FindDevices(context.Background(), false))
	return e
}

func runBridge(t *testing.T, opts Options) *Bridge {
	t.Helper()
	b, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return b
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Broker: newFakeBroker(), Source: engine.New(engine.Options{}), QoS: 3})
	assert.ErrorIs(t, err, ErrInvalidQoS)

	b, err := New(Options{Broker: newFakeBroker(), Source: engine.New(engine.Options{})})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefix, b.Topics().Prefix)
}

func TestRun_PublishesDeviceSet(t *testing.T) {
	broker := newFakeBroker()
	e := newEngine(t, "100A_movement_detector_actuator_1gang.xml", nil)
	b := runBridge(t, Options{Broker: broker, Source: e, Prefix: "fah", Retain: true})

	require.Eventually(t, func() bool {
		_, ok := broker.get(b.Topics().State(luxKey))
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	state, _ := broker.get("fah/" + luxKey + "/state")
	assert.Equal(t, message{"20", true}, state)

	raw, ok := broker.get("fah/" + switchKey + "/attributes")
	require.True(t, ok)
	assert.True(t, raw.retained)

	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(raw.payload), &attrs))
	assert.Equal(t, switchKey, attrs.LookupKey)
	assert.Equal(t, "switch", attrs.Category)
	assert.Equal(t, []string{"ON", "OFF"}, attrs.Commands)

	assert.NotNil(t, broker.handler("fah/+/+/set"))
	assert.NotNil(t, broker.handler("fah/+/+/+/set"))
}

func TestRun_PublishesStateChanges(t *testing.T) {
	broker := newFakeBroker()
	e := newEngine(t, "100A_movement_detector_actuator_1gang.xml", nil)
	b := runBridge(t, Options{Broker: broker, Source: e})

	topic := b.Topics().State(luxKey)
	require.Eventually(t, func() bool {
		_, ok := broker.get(topic)
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, e.UpdateDevices(context.Background(), fixture(t, "100A_update_movement_detector.xml")))

	assert.Eventually(t, func() bool {
		m, _ := broker.get(topic)
		return m.payload == "10"
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHandleCommand(t *testing.T) {
	setter := &recordingSetter{}
	e := newEngine(t, "mixed_actuators.xml", setter)
	b, err := New(Options{Broker: newFakeBroker(), Source: e})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.HandleCommand(ctx, "freeathome/ABB200000001/ch0000/set", []byte("ON")))
	require.NoError(t, b.HandleCommand(ctx, "freeathome/ABB200000002/ch0000/set", []byte("40")))
	assert.Equal(t, []string{
		"ABB200000001/ch0000/idp0000=1",
		"ABB200000002/ch0000/idp0002=40",
	}, setter.all())

	err = b.HandleCommand(ctx, "freeathome/ABB999999999/ch0000/set", []byte("ON"))
	assert.ErrorIs(t, err, ErrUnknownDevice)

	err = b.HandleCommand(ctx, "freeathome/ABB200000003/ch0000/set", []byte("ON"))
	assert.ErrorIs(t, err, devices.ErrUnsupportedCommand)

	err = b.HandleCommand(ctx, "freeathome/ABB200000001/ch0000/state", []byte("ON"))
	assert.Error(t, err)
	assert.Len(t, setter.all(), 2)
}

func TestRun_RoutesSubscribedCommands(t *testing.T) {
	broker := newFakeBroker()
	setter := &recordingSetter{}
	e := newEngine(t, "100A_movement_detector_actuator_1gang.xml", setter)
	runBridge(t, Options{Broker: broker, Source: e})

	var h MessageHandler
	require.Eventually(t, func() bool {
		h = broker.handler("freeathome/+/+/set")
		return h != nil
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h("freeathome/"+switchKey+"/set", []byte("off")))
	assert.Equal(t, []string{"ABB700C12345/ch0003/idp0000=0"}, setter.all())
}

func TestPublishAll_ToleratesBrokerErrors(t *testing.T) {
	broker := newFakeBroker()
	broker.publishErr = errors.New("broker down")
	e := newEngine(t, "100A_movement_detector_actuator_1gang.xml", nil)
	b, err := New(Options{Broker: broker, Source: e})
	require.NoError(t, err)

	assert.NotPanics(t, b.PublishAll)
	_, ok := broker.get(b.Topics().State(luxKey))
	assert.False(t, ok)
}

func TestRun_CoverMovementKeepsPosition(t *testing.T) {
	const coverKey = "ABB200000002/ch0000"
	broker := newFakeBroker()
	e := newEngine(t, "mixed_actuators.xml", nil)
	b := runBridge(t, Options{Broker: broker, Source: e})

	require.Eventually(t, func() bool {
		_, ok := broker.get(b.Topics().Movement(coverKey))
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	opening := []byte(`<update>
  <device serialNumber="ABB200000002" commissioningState="ready">
    <channels>
      <channel i="ch0000">
        <outputs>
          <dataPoint i="odp0000"><value>3</value></dataPoint>
        </outputs>
      </channel>
    </channels>
  </device>
</update>`)
	require.NoError(t, e.UpdateDevices(context.Background(), opening))

	assert.Eventually(t, func() bool {
		m, _ := broker.get(b.Topics().Movement(coverKey))
		return m.payload == devices.MovementOpening
	}, 5*time.Second, 5*time.Millisecond)

	state, ok := broker.get(b.Topics().State(coverKey))
	require.True(t, ok)
	assert.Equal(t, "35", state.payload)
}
