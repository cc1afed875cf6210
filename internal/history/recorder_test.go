package history

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/project"
)

// fakeInflux answers pings and collects line protocol bodies
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	query  []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.Header().Set("X-Influxdb-Version", "2.7.0")
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/write"):
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.query = append(f.query, r.URL.RawQuery)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func testDevice(t *testing.T, lookupKey string) devices.Device {
	t.Helper()
	doc, err := os.ReadFile(filepath.Join("..", "..", "testdata", "mixed_actuators.xml"))
	require.NoError(t, err)
	p, err := project.Parse(doc)
	require.NoError(t, err)
	d, ok := devices.Build(p, nil, nil).Get(lookupKey)
	require.True(t, ok, lookupKey)
	return d
}

func connect(t *testing.T, fake *fakeInflux) *Recorder {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	r, err := Connect(context.Background(), Config{
		URL:    ts.URL,
		Token:  "token",
		Org:    "home",
		Bucket: "freeathome",
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "http://127.0.0.1:8086"})
	assert.True(t, errors.Is(err, ErrIncompleteConfig))
}

func TestConnect_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := Connect(context.Background(), Config{URL: url, Org: "home", Bucket: "b"})
	assert.True(t, errors.Is(err, ErrConnectionFailed))
}

func TestNewPoint(t *testing.T) {
	d := testDevice(t, "ABB200000001/ch0000")
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	p := newPoint(DefaultMeasurement, engine.Event{
		Type:      engine.EventStateChanged,
		Device:    d,
		Datapoint: "ABB200000001/ch0000/odp0000",
		Old:       "0",
		New:       "1",
	}, ts)
	require.NotNil(t, p)
	assert.Equal(t, DefaultMeasurement, p.Name())
	assert.Equal(t, ts, p.Time())

	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "ABB200000001/ch0000", tags["lookup_key"])
	assert.Equal(t, "switch", tags["category"])
	assert.Equal(t, "ABB200000001", tags["serial"])
	assert.Equal(t, "ch0000", tags["channel"])
	assert.Equal(t, "ABB200000001/ch0000/odp0000", tags["datapoint"])

	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "1", fields["state"])
	assert.Equal(t, 1.0, fields["value"])
}

func TestNewPoint_CoverMovement(t *testing.T) {
	c, ok := testDevice(t, "ABB200000002/ch0000").(*devices.Cover)
	require.True(t, ok)

	p := newPoint(DefaultMeasurement, engine.Event{
		Type:      engine.EventStateChanged,
		Device:    c,
		Datapoint: c.MovementDatapoint(),
		Old:       devices.MovementStopped,
		New:       devices.MovementOpening,
	}, time.Now())
	require.NotNil(t, p)

	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, devices.MovementOpening, fields["movement"])
	assert.Equal(t, "35", fields["state"])
	assert.NotContains(t, fields, "value")
}

func TestNewPoint_NonNumericAndIgnored(t *testing.T) {
	d := testDevice(t, "ABB200000001/ch0000")

	p := newPoint(DefaultMeasurement, engine.Event{Type: engine.EventStateChanged, Device: d, New: "on"}, time.Now())
	require.NotNil(t, p)
	for _, f := range p.FieldList() {
		assert.NotEqual(t, "value", f.Key)
	}

	assert.Nil(t, newPoint(DefaultMeasurement, engine.Event{Type: engine.EventRebuilt}, time.Now()))
	assert.Nil(t, newPoint(DefaultMeasurement, engine.Event{Type: engine.EventStateChanged}, time.Now()))
}

func TestRecorder_RecordAndFlush(t *testing.T) {
	fake := &fakeInflux{}
	r := connect(t, fake)
	d := testDevice(t, "ABB200000001/ch0000")

	r.Record(engine.Event{Type: engine.EventStateChanged, Device: d, New: "1"}, time.Now())
	r.Record(engine.Event{Type: engine.EventRebuilt}, time.Now())
	r.Flush()

	assert.Equal(t, int64(1), r.Written())
	body := fake.written()
	assert.Contains(t, body, "freeathome_state,")
	assert.Contains(t, body, "lookup_key=ABB200000001/ch0000")
	assert.Contains(t, body, `state="1"`)

	fake.mu.Lock()
	assert.Contains(t, fake.query[0], "bucket=freeathome")
	assert.Contains(t, fake.query[0], "org=home")
	fake.mu.Unlock()
}

func TestRecorder_CloseTwice(t *testing.T) {
	r := connect(t, &fakeInflux{})
	r.Close()
	r.Close()

	r.Record(engine.Event{Type: engine.EventStateChanged, Device: testDevice(t, "ABB200000001/ch0000"), New: "1"}, time.Now())
	assert.Zero(t, r.Written())
}

// eventSource hands its listener to the test
type eventSource struct {
	mu       sync.Mutex
	listener engine.Listener
}

func (s *eventSource) Subscribe(l engine.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listener = nil
	}
}

func (s *eventSource) emit(ev engine.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return false
	}
	s.listener(ev)
	return true
}

func TestRecorder_Run(t *testing.T) {
	r := connect(t, &fakeInflux{})
	d := testDevice(t, "ABB200000001/ch0000")
	src := &eventSource{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, src) }()

	require.Eventually(t, func() bool {
		return src.emit(engine.Event{Type: engine.EventStateChanged, Device: d, New: "1"})
	}, time.Second, 10*time.Millisecond)
	src.emit(engine.Event{Type: engine.EventRebuilt})

	require.Eventually(t, func() bool { return r.Written() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, src.emit(engine.Event{Type: engine.EventStateChanged, Device: d}))
}
