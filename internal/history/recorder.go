package history

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/engine"
	"github.com/muurk/freeathome/internal/logging"
)

const (
	// DefaultMeasurement names the points written for state changes
	DefaultMeasurement = "freeathome_state"

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
	defaultPingTimeout   = 5 * time.Second
	eventBuffer          = 256
)

// Config configures a Recorder
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	Measurement   string
	BatchSize     uint
	FlushInterval time.Duration
}

// Source is the part of the engine the recorder follows
type Source interface {
	Subscribe(l engine.Listener) (unsubscribe func())
}

// Recorder writes every device state change to InfluxDB as a point.
// Writes are batched and non-blocking; failures are logged.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      Config
	events   chan engine.Event

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
}

// Connect creates the InfluxDB client and checks the server answers a ping
func Connect(ctx context.Context, cfg Config) (*Recorder, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, ErrIncompleteConfig
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	r := &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		events:   make(chan engine.Event, eventBuffer),
	}
	go r.handleWriteErrors(r.writeAPI.Errors())

	logging.Info("Connected to InfluxDB",
		zap.String("url", cfg.URL),
		zap.String("org", cfg.Org),
		zap.String("bucket", cfg.Bucket),
	)
	return r, nil
}

func (r *Recorder) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		logging.Warn("InfluxDB write failed", zap.Error(err))
	}
}

// Run records engine events until ctx is cancelled
func (r *Recorder) Run(ctx context.Context, src Source) error {
	unsubscribe := src.Subscribe(r.enqueue)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			r.Record(ev, time.Now())
		}
	}
}

func (r *Recorder) enqueue(ev engine.Event) {
	if ev.Type != engine.EventStateChanged {
		return
	}
	select {
	case r.events <- ev:
	default:
		logging.Warn("History event queue full, dropping event")
	}
}

// Record queues one state change. Events other than state changes are
// ignored.
func (r *Recorder) Record(ev engine.Event, ts time.Time) {
	p := newPoint(r.cfg.Measurement, ev, ts)
	if p == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.writeAPI.WritePoint(p)
	r.written.Add(1)
}

// Written returns the number of points queued so far
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Flush blocks until queued points are sent
func (r *Recorder) Flush() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.closed {
		r.writeAPI.Flush()
	}
}

// Close flushes pending points and releases the client. Safe to call twice.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.writeAPI.Flush()
	r.client.Close()
}

// newPoint tags a state change with the device object's identity. The raw
// state is kept as a string field; numeric states also get a float field so
// they can be graphed.
func newPoint(measurement string, ev engine.Event, ts time.Time) *write.Point {
	if ev.Type != engine.EventStateChanged || ev.Device == nil {
		return nil
	}
	d := ev.Device

	tags := map[string]string{
		"lookup_key": d.LookupKey(),
		"category":   string(d.Category()),
		"type":       d.Type(),
		"serial":     d.SerialNumber(),
		"channel":    d.ChannelID(),
	}
	if ev.Datapoint != "" {
		tags["datapoint"] = ev.Datapoint
	}

	fields := map[string]interface{}{}
	if c, ok := d.(*devices.Cover); ok && ev.Datapoint == c.MovementDatapoint() {
		fields["movement"] = ev.New
		fields["state"] = d.State()
	} else {
		fields["state"] = ev.New
		if v, err := strconv.ParseFloat(ev.New, 64); err == nil {
			fields["value"] = v
		}
	}

	return write.NewPoint(measurement, tags, fields, ts)
}
