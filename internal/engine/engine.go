package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/muurk/freeathome/internal/devices"
	"github.com/muurk/freeathome/internal/logging"
	"github.com/muurk/freeathome/internal/project"
	"github.com/muurk/freeathome/internal/protocol"
	"go.uber.org/zap"
)

// ErrNoFetcher is returned by FindDevices when the engine has no
// configuration source.
var ErrNoFetcher = errors.New("engine: no configuration fetcher")

// ConfigFetcher returns the full SysAP configuration document
type ConfigFetcher interface {
	GetConfig(ctx context.Context) ([]byte, error)
}

// RoomResolver returns display names for floor/room uids
type RoomResolver interface {
	RoomNames(ctx context.Context) (devices.RoomNames, error)
}

// Options configures an Engine
type Options struct {
	Fetcher ConfigFetcher

	// Rooms overrides the floorplan of the fetched configuration. When nil
	// or failing, the floorplan is used.
	Rooms RoomResolver

	// Setter receives device commands
	Setter devices.Setter
}

// Engine is the device-model synchronisation engine
type Engine struct {
	opts Options

	current atomic.Pointer[devices.Set]
	loaded  atomic.Bool

	// rebuildMu serialises rebuilds among themselves
	rebuildMu sync.Mutex

	// mu guards dispatch, the rebuild flag and the pending queue
	mu         sync.Mutex
	rebuilding bool
	pending    [][]protocol.DatapointUpdate

	listenersMu sync.RWMutex
	listeners   []subscription // registration order
	nextID      int
}

// New creates an engine with an empty device set
func New(opts Options) *Engine {
	e := &Engine{
		opts: opts,
	}
	e.current.Store(devices.NewSet())
	return e
}

// Loaded reports whether a configuration has been installed
func (e *Engine) Loaded() bool {
	return e.loaded.Load()
}

// FindDevices rebuilds the device set from a fresh configuration fetch.
// Without force it is a no-op once a configuration has been loaded. On
// failure the previous set stays installed and the error is returned.
func (e *Engine) FindDevices(ctx context.Context, force bool) error {
	if !force && e.loaded.Load() {
		return nil
	}
	if e.opts.Fetcher == nil {
		return ErrNoFetcher
	}

	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	e.mu.Lock()
	e.rebuilding = true
	e.mu.Unlock()

	set, err := e.build(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebuilding = false

	if err == nil {
		e.current.Store(set)
		e.loaded.Store(true)
	}

	// Queued fragments go to whatever set is installed now
	queued := e.pending
	e.pending = nil
	for _, updates := range queued {
		e.dispatchLocked(updates)
	}

	if err != nil {
		logging.Error("Device discovery failed, keeping previous device set",
			zap.Error(err),
			zap.Int("queued_fragments", len(queued)),
		)
		return err
	}

	logging.Info("Device set rebuilt",
		zap.Int("devices", set.Len()),
		zap.Int("indexed_datapoints", set.Index().Len()),
		zap.Int("queued_fragments", len(queued)),
	)
	e.notify(Event{Type: EventRebuilt})
	return nil
}

func (e *Engine) build(ctx context.Context) (*devices.Set, error) {
	data, err := e.opts.Fetcher.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch configuration: %w", err)
	}

	proj, err := project.Parse(data)
	if err != nil {
		return nil, err
	}

	rooms := devices.RoomNames(proj.RoomNames())
	if e.opts.Rooms != nil {
		resolved, err := e.opts.Rooms.RoomNames(ctx)
		if err != nil {
			logging.Warn("Room name lookup failed, using floorplan", zap.Error(err))
		} else {
			rooms = resolved
		}
	}

	return devices.Build(proj, rooms, e.opts.Setter), nil
}

// UpdateDevices applies an update fragment. The fragment is parsed in full
// first; a malformed fragment returns *protocol.UpdateParseError and leaves
// all state untouched. Datapoints without a device object are ignored.
func (e *Engine) UpdateDevices(ctx context.Context, fragment []byte) error {
	updates, err := protocol.ParseUpdate(fragment)
	if err != nil {
		return err
	}
	e.Apply(updates)
	return nil
}

// Apply dispatches already parsed updates in order
func (e *Engine) Apply(updates []protocol.DatapointUpdate) {
	if len(updates) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rebuilding {
		e.pending = append(e.pending, updates)
		logging.Debug("Rebuild in progress, queued update fragment",
			zap.Int("datapoints", len(updates)),
			zap.Int("queued_fragments", len(e.pending)),
		)
		return
	}
	e.dispatchLocked(updates)
}

func (e *Engine) dispatchLocked(updates []protocol.DatapointUpdate) {
	index := e.current.Load().Index()
	for _, u := range updates {
		id := u.ID()
		targets := index.Lookup(id)
		if len(targets) == 0 {
			logging.Debug("Ignoring update for unknown datapoint",
				zap.String("datapoint", id),
				zap.String("value", u.Value),
			)
			continue
		}
		for _, d := range targets {
			old, changed := d.Update(id, u.Value)
			if !changed {
				continue
			}
			e.notify(Event{
				Type:      EventStateChanged,
				Device:    d,
				Datapoint: id,
				Old:       old,
				New:       u.Value,
			})
		}
	}
}

// GetDevices returns the live device objects of a category. An empty
// category returns every object.
func (e *Engine) GetDevices(category devices.Category) []devices.Device {
	return e.current.Load().ByCategory(category)
}

// Devices returns every live device object
func (e *Engine) Devices() []devices.Device {
	return e.current.Load().All()
}

// Device returns the live object for a lookup key
func (e *Engine) Device(lookupKey string) (devices.Device, bool) {
	return e.current.Load().Get(lookupKey)
}

// Snapshot returns the currently installed set
func (e *Engine) Snapshot() *devices.Set {
	return e.current.Load()
}
