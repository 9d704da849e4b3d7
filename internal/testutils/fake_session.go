package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/srg/blemgr/internal/device"
)

// Operation names accepted by FakeSession.FailNext.
const (
	OpServices        = "services"
	OpService         = "service"
	OpCharacteristics = "characteristics"
	OpRead            = "read"
	OpWrite           = "write"
	OpStart           = "start"
	OpStop            = "stop"
	OpClose           = "close"
)

type fakeRemoteService struct {
	svc *FakeService
}

func (s fakeRemoteService) UUID() string { return s.svc.UUID }

type fakeRemoteCharacteristic struct {
	char *FakeCharacteristic
}

func (c fakeRemoteCharacteristic) UUID() string                  { return c.char.UUID }
func (c fakeRemoteCharacteristic) Properties() device.Properties { return c.char.Props }

// FakeSession is a device.Session over a FakePeripheral. It also implements
// device.DisconnectNotifier.
type FakeSession struct {
	mu         sync.Mutex
	peripheral *FakePeripheral
	closed     bool
	dropped    bool
	droppedCh  chan struct{}
	handlers   map[string]device.NotificationHandler
	starts     map[string]int
	stops      map[string]int
	reads      map[string]int
	writes     map[string][][]byte
	failures   map[string][]error
	closeCalls int
}

func newFakeSession(p *FakePeripheral) *FakeSession {
	return &FakeSession{
		peripheral: p,
		droppedCh:  make(chan struct{}),
		handlers:   make(map[string]device.NotificationHandler),
		starts:     make(map[string]int),
		stops:      make(map[string]int),
		reads:      make(map[string]int),
		writes:     make(map[string][][]byte),
		failures:   make(map[string][]error),
	}
}

func failureKey(op, uuid string) string {
	if uuid == "" {
		return op
	}
	return op + ":" + device.CanonicalUUID(uuid)
}

// FailNext queues errors for the next calls of op. uuid scopes the failure to a
// service (OpService, OpCharacteristics) or characteristic (OpRead, OpWrite,
// OpStart, OpStop); pass "" for unscoped operations.
func (s *FakeSession) FailNext(op, uuid string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := failureKey(op, uuid)
	s.failures[k] = append(s.failures[k], errs...)
}

// must be called with s.mu held
func (s *FakeSession) popFailure(op, uuid string) error {
	k := failureKey(op, uuid)
	errs := s.failures[k]
	if len(errs) == 0 {
		return nil
	}
	s.failures[k] = errs[1:]
	return errs[0]
}

// must be called with s.mu held
func (s *FakeSession) checkLive() error {
	if s.dropped {
		return fmt.Errorf("link lost: %w", device.ErrSessionClosed)
	}
	if s.closed {
		return device.ErrNotConnected
	}
	return nil
}

func (s *FakeSession) ID() string {
	return s.peripheral.Identity
}

func (s *FakeSession) PrimaryServices(ctx context.Context) ([]device.RemoteService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := s.popFailure(OpServices, ""); err != nil {
		return nil, err
	}
	out := make([]device.RemoteService, 0, len(s.peripheral.Services))
	for _, svc := range s.peripheral.Services {
		out = append(out, fakeRemoteService{svc: svc})
	}
	return out, nil
}

func (s *FakeSession) PrimaryService(ctx context.Context, uuid string) (device.RemoteService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := s.popFailure(OpService, uuid); err != nil {
		return nil, err
	}
	for _, svc := range s.peripheral.Services {
		if device.SameUUID(svc.UUID, uuid) {
			return fakeRemoteService{svc: svc}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (s *FakeSession) Characteristics(ctx context.Context, svc device.RemoteService) ([]device.RemoteCharacteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := s.popFailure(OpCharacteristics, svc.UUID()); err != nil {
		return nil, err
	}
	fs, ok := svc.(fakeRemoteService)
	if !ok {
		return nil, errors.New("foreign service handle")
	}
	out := make([]device.RemoteCharacteristic, 0, len(fs.svc.Characteristics))
	for _, c := range fs.svc.Characteristics {
		out = append(out, fakeRemoteCharacteristic{char: c})
	}
	return out, nil
}

func (s *FakeSession) Characteristic(ctx context.Context, svc device.RemoteService, uuid string) (device.RemoteCharacteristic, error) {
	chars, err := s.Characteristics(ctx, svc)
	if err != nil {
		return nil, err
	}
	for _, c := range chars {
		if device.SameUUID(c.UUID(), uuid) {
			return c, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svc.UUID(), uuid}}
}

func (s *FakeSession) ReadValue(ctx context.Context, c device.RemoteCharacteristic) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return nil, err
	}
	s.reads[c.UUID()]++
	if err := s.popFailure(OpRead, c.UUID()); err != nil {
		return nil, err
	}
	fc := c.(fakeRemoteCharacteristic).char
	if !fc.Props.CanRead() {
		return nil, fmt.Errorf("characteristic %s does not support read", fc.UUID)
	}
	return append([]byte(nil), fc.Value...), nil
}

func (s *FakeSession) WriteValue(ctx context.Context, c device.RemoteCharacteristic, data []byte, withResponse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return err
	}
	if err := s.popFailure(OpWrite, c.UUID()); err != nil {
		return err
	}
	fc := c.(fakeRemoteCharacteristic).char
	if !fc.Props.CanWrite() {
		return fmt.Errorf("characteristic %s does not support write", fc.UUID)
	}
	fc.Value = append([]byte(nil), data...)
	s.writes[fc.UUID] = append(s.writes[fc.UUID], append([]byte(nil), data...))
	return nil
}

func (s *FakeSession) StartNotifications(ctx context.Context, c device.RemoteCharacteristic, handler device.NotificationHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return err
	}
	if err := s.popFailure(OpStart, c.UUID()); err != nil {
		return err
	}
	if !c.Properties().Has(device.PropNotify) && !c.Properties().Has(device.PropIndicate) {
		return fmt.Errorf("characteristic %s: %w", c.UUID(), device.ErrUnsupported)
	}
	if _, exists := s.handlers[c.UUID()]; exists {
		return fmt.Errorf("characteristic %s already has a notification registration", c.UUID())
	}
	s.handlers[c.UUID()] = handler
	s.starts[c.UUID()]++
	return nil
}

func (s *FakeSession) StopNotifications(ctx context.Context, c device.RemoteCharacteristic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.popFailure(OpStop, c.UUID()); err != nil {
		return err
	}
	if _, exists := s.handlers[c.UUID()]; !exists {
		return fmt.Errorf("characteristic %s has no notification registration", c.UUID())
	}
	delete(s.handlers, c.UUID())
	s.stops[c.UUID()]++
	return nil
}

// Close ends the session and drops every registration.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeCalls++
	s.closed = true
	s.handlers = make(map[string]device.NotificationHandler)
	return s.popFailure(OpClose, "")
}

func (s *FakeSession) Disconnected() <-chan struct{} {
	return s.droppedCh
}

// ----------------------------
// Simulation and probes
// ----------------------------

// Drop simulates an unexpected link loss.
func (s *FakeSession) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropped {
		s.dropped = true
		close(s.droppedCh)
	}
}

// Notify delivers data through the registered handler, reporting whether one existed.
func (s *FakeSession) Notify(charUUID string, data []byte) bool {
	uuid := device.CanonicalUUID(charUUID)

	s.mu.Lock()
	h := s.handlers[uuid]
	s.mu.Unlock()

	if h == nil {
		return false
	}
	h(uuid, append([]byte(nil), data...))
	return true
}

// SetValue changes the value returned by subsequent reads.
func (s *FakeSession) SetValue(charUUID string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uuid := device.CanonicalUUID(charUUID)
	for _, svc := range s.peripheral.Services {
		for _, c := range svc.Characteristics {
			if c.UUID == uuid {
				c.Value = append([]byte(nil), value...)
			}
		}
	}
}

// ActiveNotifications returns 1 when charUUID has a live registration, else 0.
func (s *FakeSession) ActiveNotifications(charUUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[device.CanonicalUUID(charUUID)]; ok {
		return 1
	}
	return 0
}

func (s *FakeSession) StartCalls(charUUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts[device.CanonicalUUID(charUUID)]
}

func (s *FakeSession) StopCalls(charUUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops[device.CanonicalUUID(charUUID)]
}

func (s *FakeSession) Reads(charUUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[device.CanonicalUUID(charUUID)]
}

// Writes returns every payload written to charUUID in order.
func (s *FakeSession) Writes(charUUID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes[device.CanonicalUUID(charUUID)]...)
}

func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeSession) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
