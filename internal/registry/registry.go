// Package registry owns the canonical list of known devices and keeps it in
// sync with durable storage.
//
// Every structural mutation persists the list and publishes a DevicesChanged
// event carrying a deep copy. Callers never see the live list.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Filter selects a subset of the device list.
type Filter int

const (
	FilterAll Filter = iota
	FilterConnected
	FilterDisconnected
)

func (f Filter) String() string {
	switch f {
	case FilterConnected:
		return "connected"
	case FilterDisconnected:
		return "disconnected"
	default:
		return "all"
	}
}

// ParseFilter maps "all", "connected" and "disconnected" to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "all":
		return FilterAll, nil
	case "connected":
		return FilterConnected, nil
	case "disconnected":
		return FilterDisconnected, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q (want all, connected or disconnected)", s)
}

func (f Filter) match(d *device.Device) bool {
	switch f {
	case FilterConnected:
		return d.Connected
	case FilterDisconnected:
		return !d.Connected
	default:
		return true
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[string, *device.Device]

	// serializes snapshot+save so the newest snapshot is always the last one written
	persistMu sync.Mutex

	store  Store
	bus    *events.Bus
	logger *logrus.Logger
	now    func() time.Time
}

// New creates an empty registry. A nil bus or logger gets a default one.
func New(store Store, bus *events.Bus, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Registry{
		devices: orderedmap.New[string, *device.Device](),
		store:   store,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for last-seen stamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Load replaces the in-memory list with the stored one.
//
// Live sessions cannot be stored, so devices that are still present keep their
// session handle and discovered tree, and connected devices missing from the
// store are kept. On failure an Error event is published and
// the prior list is left untouched.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	loaded, err := r.store.Load()
	if err != nil {
		err = fmt.Errorf("failed to load device registry: %w", err)
		r.logger.WithField("error", err).Error("Registry load failed")
		r.bus.Publish(events.Error{Err: err})
		return err
	}

	next := orderedmap.New[string, *device.Device]()

	r.mu.Lock()
	for i := range loaded {
		d := loaded[i]
		if d.ID == "" {
			r.logger.Warn("Skipping stored device without id")
			continue
		}
		if prev, ok := r.devices.Get(d.ID); ok && prev.Session != nil {
			d.Session = prev.Session
			d.Services = prev.Clone().Services
		}
		d.Connected = d.Session != nil
		next.Set(d.ID, &d)
	}
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Session == nil {
			continue
		}
		if _, stored := next.Get(pair.Key); !stored {
			r.logger.WithField("device", pair.Key).Debug("Keeping connected device missing from the store")
			next.Set(pair.Key, pair.Value)
		}
	}
	r.devices = next
	r.mu.Unlock()

	r.logger.WithField("devices", next.Len()).Debug("Registry loaded")
	return nil
}

// Save writes the current list to the store. On failure an Error event is
// published and the error returned.
func (r *Registry) Save() error {
	if r.store == nil {
		return nil
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if err := r.store.Save(r.snapshot(FilterAll)); err != nil {
		err = fmt.Errorf("failed to save device registry: %w", err)
		r.logger.WithField("error", err).Error("Registry save failed")
		r.bus.Publish(events.Error{Err: err})
		return err
	}
	return nil
}

// commit persists and announces a structural change.
// Persistence failures are reported through Save and do not undo the change.
func (r *Registry) commit() {
	_ = r.Save()
	r.bus.Publish(events.DevicesChanged{Devices: r.snapshot(FilterAll)})
}

// UpsertFromDiscovery merges a scan result. A known id gets its last-seen stamp
// and connection flag refreshed (and its name, when the result carries one);
// an unknown id is appended as disconnected and seen now.
func (r *Registry) UpsertFromDiscovery(raw device.Device) device.Device {
	now := r.now()

	r.mu.Lock()
	d, ok := r.devices.Get(raw.ID)
	if ok {
		d.LastSeen = now
		d.Connected = d.Session != nil
		if raw.Name != "" {
			d.Name = raw.Name
		}
		if raw.Paired {
			d.Paired = true
		}
	} else {
		d = &device.Device{
			ID:       raw.ID,
			Name:     raw.Name,
			Paired:   raw.Paired,
			LastSeen: now,
		}
		r.devices.Set(d.ID, d)
	}
	out := d.Clone()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"device": raw.ID,
		"known":  ok,
	}).Debug("Device upserted from discovery")

	r.commit()
	return out
}

// Update applies fn to the device under the registry lock, then persists and
// publishes. fn must not call back into the registry.
func (r *Registry) Update(id string, fn func(d *device.Device)) (device.Device, error) {
	r.mu.Lock()
	d, ok := r.devices.Get(id)
	if !ok {
		r.mu.Unlock()
		return device.Device{}, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
	}
	fn(d)
	out := d.Clone()
	r.mu.Unlock()

	r.commit()
	return out, nil
}

// UpdateEach applies fn to every device, then persists and publishes once.
func (r *Registry) UpdateEach(fn func(d *device.Device)) {
	r.mu.Lock()
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
	}
	r.mu.Unlock()

	r.commit()
}

// Remove deletes a device. An unknown id is a no-op reported by the false result.
func (r *Registry) Remove(id string) (device.Device, bool) {
	r.mu.Lock()
	d, ok := r.devices.Delete(id)
	r.mu.Unlock()
	if !ok {
		return device.Device{}, false
	}

	r.commit()
	return d.Clone(), true
}

// StoreValue writes a read value into the device's tree. It is a cache write,
// not a structural change, so it neither persists nor publishes.
// Reports whether a matching characteristic was found.
func (r *Registry) StoreValue(id, charUUID string, value []byte, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices.Get(id)
	if !ok {
		return false
	}

	found := false
	for si := range d.Services {
		svc := &d.Services[si]
		if ci := svc.FindCharacteristic(charUUID); ci >= 0 {
			svc.Characteristics[ci].Value = append([]byte(nil), value...)
			svc.Characteristics[ci].LastUpdated = ts
			found = true
		}
	}
	return found
}

// Get returns a copy of the device.
func (r *Registry) Get(id string) (device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices.Get(id)
	if !ok {
		return device.Device{}, false
	}
	return d.Clone(), true
}

// Session returns the live session of a device, if any.
func (r *Registry) Session(id string) (device.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices.Get(id)
	if !ok || d.Session == nil {
		return nil, false
	}
	return d.Session, true
}

// Devices returns a deep copy of the full list in insertion order.
func (r *Registry) Devices() []device.Device {
	return r.snapshot(FilterAll)
}

// Filter returns a deep copy of the devices matching f.
func (r *Registry) Filter(f Filter) []device.Device {
	return r.snapshot(f)
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

func (r *Registry) snapshot(f Filter) []device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]device.Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		if f.match(pair.Value) {
			out = append(out, pair.Value.Clone())
		}
	}
	return out
}
