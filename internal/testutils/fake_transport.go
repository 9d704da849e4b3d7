package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/blemgr/internal/device"
)

// FakeTransport is an in-memory device.Transport driven by a declarative profile.
//
// Sessions it hands out record every notification registration so tests can
// observe the multiplexer, and let tests inject failures per operation.
type FakeTransport struct {
	mu          sync.Mutex
	available   bool
	peripherals []*FakePeripheral
	selected    string
	connectErrs map[string][]error
	sessions    map[string]*FakeSession
	opened      []*FakeSession
	connects    int
	gate        chan struct{}
}

// FakePeripheral is one simulated remote device.
type FakePeripheral struct {
	ID       string
	Name     string
	Identity string // reported by the session; defaults to ID
	Services []*FakeService
}

type FakeService struct {
	UUID            string
	Characteristics []*FakeCharacteristic
}

type FakeCharacteristic struct {
	UUID  string
	Props device.Properties
	Value []byte
}

// ----------------------------
// Builder
// ----------------------------

// FakeTransportBuilder configures a FakeTransport fluently:
//
//	ft := testutils.NewFakeTransport().
//	    WithPeripheral("D1", "Widget").
//	    WithService("180F").
//	    WithCharacteristic("2A19", "read,notify", []byte{50}).
//	    Build()
type FakeTransportBuilder struct {
	t *FakeTransport
}

// NewFakeTransport starts an available transport with no peripherals.
func NewFakeTransport() *FakeTransportBuilder {
	return &FakeTransportBuilder{t: &FakeTransport{
		available:   true,
		connectErrs: make(map[string][]error),
		sessions:    make(map[string]*FakeSession),
	}}
}

// WithPeripheral adds a peripheral; following WithService calls attach to it.
func (b *FakeTransportBuilder) WithPeripheral(id, name string) *FakeTransportBuilder {
	b.t.peripherals = append(b.t.peripherals, &FakePeripheral{ID: id, Name: name, Identity: id})
	return b
}

// WithIdentity overrides the identity the last peripheral's sessions report.
func (b *FakeTransportBuilder) WithIdentity(identity string) *FakeTransportBuilder {
	b.lastPeripheral("WithIdentity").Identity = identity
	return b
}

// WithService adds a service to the last added peripheral.
func (b *FakeTransportBuilder) WithService(uuid string) *FakeTransportBuilder {
	p := b.lastPeripheral("WithService")
	p.Services = append(p.Services, &FakeService{UUID: device.CanonicalUUID(uuid)})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
// properties is a comma separated list such as "read,notify".
func (b *FakeTransportBuilder) WithCharacteristic(uuid, properties string, value []byte) *FakeTransportBuilder {
	p := b.lastPeripheral("WithCharacteristic")
	if len(p.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	svc := p.Services[len(p.Services)-1]
	svc.Characteristics = append(svc.Characteristics, &FakeCharacteristic{
		UUID:  device.CanonicalUUID(uuid),
		Props: device.ParseProperties(properties),
		Value: append([]byte(nil), value...),
	})
	return b
}

// WithSelected makes RequestDevice pick the given peripheral instead of the first one.
func (b *FakeTransportBuilder) WithSelected(id string) *FakeTransportBuilder {
	b.t.selected = id
	return b
}

// Unavailable makes the transport report no adapter.
func (b *FakeTransportBuilder) Unavailable() *FakeTransportBuilder {
	b.t.available = false
	return b
}

func (b *FakeTransportBuilder) Build() *FakeTransport {
	return b.t
}

func (b *FakeTransportBuilder) lastPeripheral(op string) *FakePeripheral {
	if len(b.t.peripherals) == 0 {
		panic(op + ": no peripheral added yet, call WithPeripheral first")
	}
	return b.t.peripherals[len(b.t.peripherals)-1]
}

// ----------------------------
// device.Transport
// ----------------------------

func (t *FakeTransport) Available() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

// RequestDevice returns the selected peripheral, or the first one.
func (t *FakeTransport) RequestDevice(ctx context.Context) (device.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.available {
		return device.Device{}, device.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return device.Device{}, err
	}
	for _, p := range t.peripherals {
		if t.selected == "" || p.ID == t.selected {
			return device.Device{ID: p.ID, Name: p.Name}, nil
		}
	}
	return device.Device{}, fmt.Errorf("no device selected")
}

// Connect opens a new session. Queued failures from FailConnect are returned first.
// While HoldConnects is in effect calls block until released.
func (t *FakeTransport) Connect(ctx context.Context, id string) (device.Session, error) {
	t.mu.Lock()
	t.connects++
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if errs := t.connectErrs[id]; len(errs) > 0 {
		t.connectErrs[id] = errs[1:]
		return nil, errs[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, p := range t.peripherals {
		if p.ID == id {
			s := newFakeSession(p)
			t.sessions[id] = s
			t.opened = append(t.opened, s)
			return s, nil
		}
	}
	return nil, fmt.Errorf("peripheral %s is out of range", id)
}

// HoldConnects blocks every following Connect until the returned release is called.
func (t *FakeTransport) HoldConnects() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.gate = nil
			t.mu.Unlock()
			close(gate)
		})
	}
}

// OpenSessions counts sessions handed out and not closed yet.
func (t *FakeTransport) OpenSessions() int {
	t.mu.Lock()
	opened := append([]*FakeSession(nil), t.opened...)
	t.mu.Unlock()

	n := 0
	for _, s := range opened {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// FailConnect queues errors returned by the next Connect calls for id.
func (t *FakeTransport) FailConnect(id string, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErrs[id] = append(t.connectErrs[id], errs...)
}

// Session returns the most recent session opened for id, or nil.
func (t *FakeTransport) Session(id string) *FakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

// Connects returns the number of Connect calls.
func (t *FakeTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}
