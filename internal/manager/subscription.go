package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SubscriberID identifies one Subscribe call.
type SubscriberID uint64

// Callback receives decoded notification values.
type Callback func(value string)

type subscriptionKey struct {
	deviceID    string
	serviceUUID string
	charUUID    string
}

func newSubscriptionKey(id, svcUUID, charUUID string) subscriptionKey {
	return subscriptionKey{
		deviceID:    id,
		serviceUUID: device.CanonicalUUID(svcUUID),
		charUUID:    device.CanonicalUUID(charUUID),
	}
}

func (k subscriptionKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.deviceID, k.serviceUUID, k.charUUID)
}

// subscription is the single transport registration behind one key.
//
// opMu serializes install and teardown and guards every field except callbacks.
// callbacks has its own lock so deliveries never wait on a transport call.
type subscription struct {
	key subscriptionKey

	opMu    sync.Mutex
	active  bool
	pinned  bool // held by StartNotifications
	removed bool
	session device.Session
	remote  device.RemoteCharacteristic

	cbMu      sync.RWMutex
	callbacks *orderedmap.OrderedMap[SubscriberID, Callback]
}

func (s *subscription) subscriberCount() int {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	return s.callbacks.Len()
}

func (s *subscription) snapshot() []Callback {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	out := make([]Callback, 0, s.callbacks.Len())
	for pair := s.callbacks.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// acquire returns the locked entry for key, creating it when absent.
// An entry removed while we waited for its lock is replaced by a fresh one.
func (m *Manager) acquire(key subscriptionKey) *subscription {
	for {
		m.subsMu.Lock()
		sub, ok := m.subs[key]
		if !ok {
			sub = &subscription{
				key:       key,
				callbacks: orderedmap.New[SubscriberID, Callback](),
			}
			m.subs[key] = sub
		}
		m.subsMu.Unlock()

		sub.opMu.Lock()
		if !sub.removed {
			return sub
		}
		sub.opMu.Unlock()
	}
}

func (m *Manager) lookupSubscription(key subscriptionKey) *subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	return m.subs[key]
}

// must be called with sub.opMu held
func (m *Manager) forget(sub *subscription) {
	sub.removed = true
	m.subsMu.Lock()
	if m.subs[sub.key] == sub {
		delete(m.subs, sub.key)
	}
	m.subsMu.Unlock()
}

// install registers the transport handler for sub.
// must be called with sub.opMu held
func (m *Manager) install(ctx context.Context, sub *subscription) error {
	session, err := m.sessionFor(sub.key.deviceID)
	if err != nil {
		return err
	}

	remote, err := m.lookupCharacteristic(ctx, session, sub.key.serviceUUID, sub.key.charUUID)
	if err != nil {
		return &device.OperationError{Op: "subscribe " + sub.key.charUUID, Err: err}
	}
	if !remote.Properties().CanNotify() {
		return fmt.Errorf("characteristic %s does not support notifications: %w", sub.key.charUUID, device.ErrUnsupported)
	}

	handler := func(_ string, data []byte) {
		m.deliver(sub, remote, data)
	}
	if err := session.StartNotifications(ctx, remote, handler); err != nil {
		return &device.OperationError{Op: "start notifications " + sub.key.charUUID, Err: err}
	}

	sub.active = true
	sub.session = session
	sub.remote = remote
	m.logger.WithField("subscription", sub.key).Debug("Notifications started")
	return nil
}

// teardown removes the transport registration and forgets the entry. The entry
// is forgotten even when the transport refuses, since its session cannot be
// trusted afterwards.
// must be called with sub.opMu held
func (m *Manager) teardown(ctx context.Context, sub *subscription) error {
	var err error
	if sub.active {
		if stopErr := sub.session.StopNotifications(ctx, sub.remote); stopErr != nil {
			err = &device.OperationError{Op: "stop notifications " + sub.key.charUUID, Err: stopErr}
		}
		sub.active = false
		sub.session = nil
		sub.remote = nil
	}
	m.forget(sub)
	m.logger.WithField("subscription", sub.key).Debug("Notifications stopped")
	return err
}

func (m *Manager) deliver(sub *subscription, remote device.RemoteCharacteristic, data []byte) {
	char := m.recordValue(sub.key.deviceID, remote, data)
	m.bus.Publish(events.CharacteristicRead{
		DeviceID:       sub.key.deviceID,
		ServiceUUID:    sub.key.serviceUUID,
		Characteristic: char,
	})

	callbacks := sub.snapshot()
	if len(callbacks) == 0 {
		return
	}
	value := m.decode(sub.key.charUUID, data)
	for _, cb := range callbacks {
		m.invoke(sub.key, cb, value)
	}
}

func (m *Manager) invoke(key subscriptionKey, cb Callback, value string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithFields(logrus.Fields{
				"subscription": key,
				"panic":        r,
			}).Error("Subscriber panicked")
		}
	}()
	cb(value)
}

// StartNotifications makes sure a registration exists for the characteristic.
// Each notification updates the value cache and publishes CharacteristicRead.
// Calling it again for the same characteristic is a no-op.
func (m *Manager) StartNotifications(ctx context.Context, id, svcUUID, charUUID string) error {
	key := newSubscriptionKey(id, svcUUID, charUUID)
	sub := m.acquire(key)
	defer sub.opMu.Unlock()

	if !sub.active {
		if err := m.install(ctx, sub); err != nil {
			if !sub.pinned && sub.subscriberCount() == 0 {
				m.forget(sub)
			}
			return m.fail(err)
		}
	}
	sub.pinned = true
	return nil
}

// StopNotifications releases the hold taken by StartNotifications. The
// registration stays while Subscribe callbacks remain.
func (m *Manager) StopNotifications(ctx context.Context, id, svcUUID, charUUID string) error {
	sub := m.lookupSubscription(newSubscriptionKey(id, svcUUID, charUUID))
	if sub == nil {
		return nil
	}

	sub.opMu.Lock()
	defer sub.opMu.Unlock()
	if sub.removed {
		return nil
	}

	sub.pinned = false
	if sub.subscriberCount() > 0 {
		return nil
	}
	if err := m.teardown(ctx, sub); err != nil {
		return m.fail(err)
	}
	return nil
}

// Subscribe adds cb to the characteristic's subscribers. The first subscriber
// installs the transport registration. Values are decoded with the registered
// custom formatter, or as UTF-8 text.
func (m *Manager) Subscribe(ctx context.Context, id, svcUUID, charUUID string, cb Callback) (SubscriberID, error) {
	if cb == nil {
		return 0, m.fail(errors.New("subscribe: nil callback"))
	}

	key := newSubscriptionKey(id, svcUUID, charUUID)
	sub := m.acquire(key)
	defer sub.opMu.Unlock()

	if !sub.active {
		if err := m.install(ctx, sub); err != nil {
			if !sub.pinned && sub.subscriberCount() == 0 {
				m.forget(sub)
			}
			m.logger.WithFields(logrus.Fields{
				"subscription": key,
				"error":        err,
			}).Error("Subscribe failed")
			return 0, m.fail(err)
		}
	}

	subID := SubscriberID(m.nextSubID.Add(1))
	sub.cbMu.Lock()
	sub.callbacks.Set(subID, cb)
	count := sub.callbacks.Len()
	sub.cbMu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"subscription": key,
		"subscribers":  count,
	}).Debug("Subscriber added")
	return subID, nil
}

// Unsubscribe removes one subscriber. Removing the last one tears down the
// registration before returning. Unknown subscribers are ignored.
func (m *Manager) Unsubscribe(ctx context.Context, id, svcUUID, charUUID string, subID SubscriberID) error {
	sub := m.lookupSubscription(newSubscriptionKey(id, svcUUID, charUUID))
	if sub == nil {
		return nil
	}

	sub.opMu.Lock()
	defer sub.opMu.Unlock()
	if sub.removed {
		return nil
	}

	sub.cbMu.Lock()
	_, had := sub.callbacks.Delete(subID)
	remaining := sub.callbacks.Len()
	sub.cbMu.Unlock()

	if !had || remaining > 0 || sub.pinned {
		return nil
	}
	if err := m.teardown(ctx, sub); err != nil {
		m.logger.WithFields(logrus.Fields{
			"subscription": sub.key,
			"error":        err,
		}).Warn("Stopping notifications failed")
		return m.fail(err)
	}
	return nil
}

// ActiveRegistrations reports how many transport registrations exist for the
// characteristic: 0 or 1.
func (m *Manager) ActiveRegistrations(id, svcUUID, charUUID string) int {
	sub := m.lookupSubscription(newSubscriptionKey(id, svcUUID, charUUID))
	if sub == nil {
		return 0
	}
	sub.opMu.Lock()
	defer sub.opMu.Unlock()
	if sub.active {
		return 1
	}
	return 0
}

// Subscribers reports the number of Subscribe callbacks for the characteristic.
func (m *Manager) Subscribers(id, svcUUID, charUUID string) int {
	sub := m.lookupSubscription(newSubscriptionKey(id, svcUUID, charUUID))
	if sub == nil {
		return 0
	}
	return sub.subscriberCount()
}

// teardownDevice drops every subscription entry of a device, stopping the
// transport registrations it can.
func (m *Manager) teardownDevice(ctx context.Context, id string) error {
	m.subsMu.Lock()
	var owned []*subscription
	for key, sub := range m.subs {
		if key.deviceID == id {
			owned = append(owned, sub)
		}
	}
	m.subsMu.Unlock()

	var errs []error
	for _, sub := range owned {
		sub.opMu.Lock()
		if !sub.removed {
			if err := m.teardown(ctx, sub); err != nil {
				errs = append(errs, err)
			}
		}
		sub.opMu.Unlock()
	}
	return errors.Join(errs...)
}
