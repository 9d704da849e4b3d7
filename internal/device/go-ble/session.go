package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
)

type remoteService struct {
	svc *ble.Service
}

func (s remoteService) UUID() string { return device.CanonicalUUID(s.svc.UUID.String()) }

type remoteCharacteristic struct {
	char *ble.Characteristic
}

func (c remoteCharacteristic) UUID() string { return device.CanonicalUUID(c.char.UUID.String()) }

// Properties maps go-ble property bits, which share the GATT layout.
func (c remoteCharacteristic) Properties() device.Properties {
	return device.Properties(c.char.Property)
}

// Session is a device.Session over a go-ble client.
type Session struct {
	id      string
	client  client
	profile *ble.Profile
	logger  *logrus.Logger

	mu     sync.Mutex
	closed bool
	// registered notifications by characteristic uuid; true for indications
	subs map[string]bool
}

func newSession(requested string, cl client, profile *ble.Profile, logger *logrus.Logger) *Session {
	id := requested
	if addr := cl.Addr(); addr != nil && !strings.EqualFold(addr.String(), requested) {
		id = addr.String()
	}
	return &Session{
		id:      id,
		client:  cl,
		profile: profile,
		logger:  logger,
		subs:    make(map[string]bool),
	}
}

// ID returns the address the client reports.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return device.ErrNotConnected
	}
	return nil
}

func (s *Session) PrimaryServices(ctx context.Context) ([]device.RemoteService, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	out := make([]device.RemoteService, 0, len(s.profile.Services))
	for _, svc := range s.profile.Services {
		out = append(out, remoteService{svc: svc})
	}
	return out, nil
}

func (s *Session) PrimaryService(ctx context.Context, uuid string) (device.RemoteService, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	want := device.CanonicalUUID(uuid)
	for _, svc := range s.profile.Services {
		rs := remoteService{svc: svc}
		if rs.UUID() == want {
			return rs, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (s *Session) Characteristics(ctx context.Context, svc device.RemoteService) ([]device.RemoteCharacteristic, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rs, ok := svc.(remoteService)
	if !ok {
		return nil, fmt.Errorf("service %s does not belong to this session", svc.UUID())
	}
	out := make([]device.RemoteCharacteristic, 0, len(rs.svc.Characteristics))
	for _, c := range rs.svc.Characteristics {
		out = append(out, remoteCharacteristic{char: c})
	}
	return out, nil
}

func (s *Session) Characteristic(ctx context.Context, svc device.RemoteService, uuid string) (device.RemoteCharacteristic, error) {
	chars, err := s.Characteristics(ctx, svc)
	if err != nil {
		return nil, err
	}
	want := device.CanonicalUUID(uuid)
	for _, c := range chars {
		if c.UUID() == want {
			return c, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svc.UUID(), uuid}}
}

func (s *Session) handle(c device.RemoteCharacteristic) (*ble.Characteristic, error) {
	rc, ok := c.(remoteCharacteristic)
	if !ok {
		return nil, fmt.Errorf("characteristic %s does not belong to this session", c.UUID())
	}
	return rc.char, nil
}

// ReadValue reads a characteristic. go-ble does not take a context, so ctx is
// only checked before the call.
func (s *Session) ReadValue(ctx context.Context, c device.RemoteCharacteristic) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	bc, err := s.handle(c)
	if err != nil {
		return nil, err
	}
	data, err := s.client.ReadCharacteristic(bc)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

func (s *Session) WriteValue(ctx context.Context, c device.RemoteCharacteristic, data []byte, withResponse bool) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	bc, err := s.handle(c)
	if err != nil {
		return err
	}
	return NormalizeError(s.client.WriteCharacteristic(bc, data, !withResponse))
}

// StartNotifications subscribes with notify, or with indicate when that is the
// only flavor the characteristic offers.
func (s *Session) StartNotifications(ctx context.Context, c device.RemoteCharacteristic, handler device.NotificationHandler) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	bc, err := s.handle(c)
	if err != nil {
		return err
	}

	props := c.Properties()
	if !props.Has(device.PropNotify) && !props.Has(device.PropIndicate) {
		return fmt.Errorf("characteristic %s: %w", c.UUID(), device.ErrUnsupported)
	}
	ind := !props.Has(device.PropNotify)
	uuid := c.UUID()

	err = s.client.Subscribe(bc, ind, func(data []byte) {
		handler(uuid, append([]byte(nil), data...))
	})
	if err != nil {
		return NormalizeError(err)
	}

	s.mu.Lock()
	s.subs[uuid] = ind
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address":  s.id,
		"charUUID": uuid,
		"indicate": ind,
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

func (s *Session) StopNotifications(ctx context.Context, c device.RemoteCharacteristic) error {
	bc, err := s.handle(c)
	if err != nil {
		return err
	}
	uuid := c.UUID()

	s.mu.Lock()
	ind, ok := s.subs[uuid]
	delete(s.subs, uuid)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("characteristic %s has no notification registration", uuid)
	}

	if err := s.client.Unsubscribe(bc, ind); err != nil {
		return NormalizeError(err)
	}
	s.logger.WithFields(logrus.Fields{
		"address":  s.id,
		"charUUID": uuid,
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// Close cancels the connection. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = make(map[string]bool)
	s.mu.Unlock()

	if err := s.client.CancelConnection(); err != nil {
		s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	s.logger.WithField("address", s.id).Info("BLE device disconnected")
	return nil
}

// Disconnected reports link loss when the go-ble client exposes it (Darwin).
// Other clients return a channel that never fires.
func (s *Session) Disconnected() <-chan struct{} {
	if dc, ok := s.client.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	return nil
}
