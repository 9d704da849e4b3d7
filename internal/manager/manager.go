// Package manager coordinates device discovery, connection lifecycle, attribute
// reads and notification subscriptions on top of a device.Transport.
//
// A Manager is constructed explicitly and is safe for concurrent use. Every
// failing public operation publishes a matching event on the bus and also
// returns the error.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/bledb"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/registry"
	"github.com/srg/blemgr/internal/retry"
)

// Options configures New. Only Transport is required.
type Options struct {
	Transport device.Transport
	Store     registry.Store
	Bus       *events.Bus
	Resolver  *bledb.Resolver
	Logger    *logrus.Logger

	Retry            retry.Policy
	ReadAllOnConnect bool
	ConnectTimeout   time.Duration
}

// CachedValue is the last raw value seen for a characteristic.
type CachedValue struct {
	Value     []byte
	Timestamp time.Time
}

// Manager is the central coordinator.
type Manager struct {
	transport device.Transport
	registry  *registry.Registry
	bus       *events.Bus
	resolver  *bledb.Resolver
	logger    *logrus.Logger

	retry          retry.Policy
	readAll        bool
	connectTimeout time.Duration

	// last value per characteristic uuid, shared across devices
	cache *hashmap.Map[string, CachedValue]

	customMu sync.RWMutex
	custom   []CustomCharacteristic

	subsMu    sync.Mutex
	subs      map[subscriptionKey]*subscription
	nextSubID atomic.Uint64

	stateMu  sync.Mutex
	states   map[string]device.State
	monitors map[string]func()

	// serializes connect, disconnect and remove per device id
	locksMu     sync.Mutex
	deviceLocks map[string]*sync.Mutex

	now func() time.Time
}

// New builds a manager. The device list is empty until Load is called.
func New(opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, errors.New("manager: transport is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = bledb.New()
	}

	return &Manager{
		transport:      opts.Transport,
		registry:       registry.New(opts.Store, bus, logger),
		bus:            bus,
		resolver:       resolver,
		logger:         logger,
		retry:          opts.Retry,
		readAll:        opts.ReadAllOnConnect,
		connectTimeout: opts.ConnectTimeout,
		cache:          hashmap.New[string, CachedValue](),
		subs:           make(map[subscriptionKey]*subscription),
		states:         make(map[string]device.State),
		monitors:       make(map[string]func()),
		deviceLocks:    make(map[string]*sync.Mutex),
		now:            time.Now,
	}, nil
}

// SetClock replaces the time source for last-seen and value stamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.registry.SetClock(now)
}

// Bus returns the event bus every manager event is published on.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// Load reads the persisted device list.
func (m *Manager) Load() error {
	return m.registry.Load()
}

// Devices returns a deep copy of every known device.
func (m *Manager) Devices() []device.Device {
	return m.registry.Devices()
}

// Filter returns deep copies of the devices matching f.
func (m *Manager) Filter(f registry.Filter) []device.Device {
	return m.registry.Filter(f)
}

// Device returns a copy of one device.
func (m *Manager) Device(id string) (device.Device, bool) {
	return m.registry.Get(id)
}

// IsAvailable reports whether the transport has a usable adapter.
func (m *Manager) IsAvailable() bool {
	return m.transport.Available()
}

// ServiceName resolves a service uuid to its assigned name, or the uuid itself.
func (m *Manager) ServiceName(uuid string) string {
	return m.resolver.ServiceName(uuid)
}

// CharacteristicName resolves a characteristic uuid to its assigned name, or the uuid itself.
func (m *Manager) CharacteristicName(uuid string) string {
	return m.resolver.CharacteristicName(uuid)
}

// CharacteristicValue returns a copy of the last value read or notified for uuid.
func (m *Manager) CharacteristicValue(uuid string) (CachedValue, bool) {
	v, ok := m.cache.Get(device.CanonicalUUID(uuid))
	if !ok {
		return CachedValue{}, false
	}
	v.Value = append([]byte(nil), v.Value...)
	return v, true
}

// State returns the lifecycle state of a device. Devices that were only loaded
// from storage report Discovered, unknown ids report Unknown.
func (m *Manager) State(id string) device.State {
	m.stateMu.Lock()
	s, ok := m.states[id]
	m.stateMu.Unlock()
	if ok {
		return s
	}
	if _, known := m.registry.Get(id); known {
		return device.StateDiscovered
	}
	return device.StateUnknown
}

func (m *Manager) setState(id string, s device.State) {
	m.stateMu.Lock()
	prev := m.states[id]
	m.states[id] = s
	m.stateMu.Unlock()

	if prev != s {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"from":   prev,
			"to":     s,
		}).Debug("Device state changed")
	}
}

// Close disconnects every connected device. Stored devices are kept.
func (m *Manager) Close() error {
	var errs []error
	for _, d := range m.registry.Filter(registry.FilterConnected) {
		if err := m.Disconnect(context.Background(), d.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lockDevice takes the per-device lifecycle lock and returns its release.
func (m *Manager) lockDevice(id string) func() {
	m.locksMu.Lock()
	l, ok := m.deviceLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.deviceLocks[id] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// sessionFor returns the live session of id or ErrDeviceNotFound / ErrNotConnected.
func (m *Manager) sessionFor(id string) (device.Session, error) {
	if _, ok := m.registry.Get(id); !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	s, ok := m.registry.Session(id)
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, device.ErrNotConnected)
	}
	return s, nil
}

// fail publishes a generic error event and hands err back.
func (m *Manager) fail(err error) error {
	m.bus.Publish(events.Error{Err: err})
	return err
}
