package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/groutine"
	"github.com/srg/blemgr/internal/retry"
	"golang.org/x/sync/errgroup"
)

// Scan runs the transport's device selection, records the result and tries to
// connect to it. A failed connect still returns the discovered device.
func (m *Manager) Scan(ctx context.Context) (device.Device, error) {
	if !m.transport.Available() {
		err := device.ErrUnavailable
		m.logger.WithField("error", err).Error("Scan failed")
		m.bus.Publish(events.ScanError{Err: err})
		return device.Device{}, err
	}

	raw, err := m.transport.RequestDevice(ctx)
	if err != nil {
		err = fmt.Errorf("device selection failed: %w", err)
		m.logger.WithField("error", err).Error("Scan failed")
		m.bus.Publish(events.ScanError{Err: err})
		return device.Device{}, err
	}

	d := m.registry.UpsertFromDiscovery(raw)
	if d.Session == nil {
		m.setState(d.ID, device.StateDiscovered)
	}
	m.logger.WithFields(logrus.Fields{
		"device": d.ID,
		"name":   d.Name,
	}).Info("Device discovered")

	connected, err := m.Connect(ctx, d.ID)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": d.ID,
			"error":  err,
		}).Warn("Discovered device could not be connected")
		if current, ok := m.registry.Get(d.ID); ok {
			return current, nil
		}
		return d, nil
	}
	return connected, nil
}

// Pair selects a device and opens a short-lived session to prove it is
// reachable, then records it as paired. No bonding is performed.
func (m *Manager) Pair(ctx context.Context) (device.Device, error) {
	if !m.transport.Available() {
		return device.Device{}, m.fail(device.ErrUnavailable)
	}

	raw, err := m.transport.RequestDevice(ctx)
	if err != nil {
		return device.Device{}, m.fail(fmt.Errorf("device selection failed: %w", err))
	}

	if _, connected := m.registry.Session(raw.ID); !connected {
		session, err := m.transport.Connect(ctx, raw.ID)
		if err != nil {
			return device.Device{}, m.fail(&device.OperationError{Op: "pair " + raw.ID, Err: err})
		}
		if err := session.Close(); err != nil {
			m.logger.WithFields(logrus.Fields{
				"device": raw.ID,
				"error":  err,
			}).Debug("Closing pairing session failed")
		}
	}

	raw.Paired = true
	d := m.registry.UpsertFromDiscovery(raw)
	if d.Session == nil {
		m.setState(d.ID, device.StateDiscovered)
	}

	m.logger.WithField("device", d.ID).Info("Device paired")
	m.bus.Publish(events.DevicePaired{Device: d})
	return d, nil
}

// Connect opens a session to a known device, discovers its attribute tree and
// primes device information and battery level. Connecting a device that already
// has a session returns it unchanged. Concurrent connects to one device share
// the first session.
func (m *Manager) Connect(ctx context.Context, id string) (device.Device, error) {
	unlock := m.lockDevice(id)
	defer unlock()

	d, ok := m.registry.Get(id)
	if !ok {
		return device.Device{}, m.connectFailed(id, fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id))
	}
	if d.Session != nil {
		return d, nil
	}

	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	logger := m.logger.WithField("device", id)
	logger.Info("Connecting...")
	m.setState(id, device.StateConnecting)

	session, err := retry.Do(ctx, m.retry, m.logger, "connect "+id, func(ctx context.Context) (device.Session, error) {
		return m.transport.Connect(ctx, id)
	})
	if err != nil {
		return device.Device{}, m.connectFailed(id, &device.OperationError{Op: "connect " + id, Err: err})
	}

	if got := session.ID(); got != id {
		m.closeQuietly(id, session)
		return device.Device{}, m.connectFailed(id,
			fmt.Errorf("%w: requested %s, connected to %s", device.ErrIdentityMismatch, id, got))
	}

	services, err := m.discover(ctx, id, session)
	if err != nil {
		m.closeQuietly(id, session)
		return device.Device{}, m.connectFailed(id, err)
	}

	d, err = m.registry.Update(id, func(d *device.Device) {
		d.Session = session
		d.Connected = true
		d.LastSeen = m.now()
		d.Services = services
	})
	if err != nil {
		m.closeQuietly(id, session)
		return device.Device{}, m.connectFailed(id, err)
	}

	for _, svc := range d.Services {
		m.bus.Publish(events.ServiceDiscovered{DeviceID: id, Service: svc.Clone()})
	}
	m.setState(id, device.StateConnected)
	m.watch(id, session)

	m.prime(ctx, id, session)
	if m.readAll {
		if err := m.ReadAllCharacteristics(ctx, id); err != nil {
			logger.WithField("error", err).Warn("Reading characteristics after connect failed")
		}
	}

	if current, ok := m.registry.Get(id); ok {
		d = current
	}
	logger.WithField("services", len(d.Services)).Info("Connected")
	m.bus.Publish(events.DeviceConnected{Device: d})
	return d, nil
}

func (m *Manager) connectFailed(id string, err error) error {
	m.logger.WithFields(logrus.Fields{
		"device": id,
		"error":  err,
	}).Error("Connect failed")
	if _, known := m.registry.Get(id); known {
		m.setState(id, device.StateDisconnected)
	}
	m.bus.Publish(events.ConnectError{DeviceID: id, Err: err})
	return err
}

// discover enumerates the attribute tree. A failure to list services fails the
// connect; a service whose characteristics cannot be listed is kept empty.
func (m *Manager) discover(ctx context.Context, id string, session device.Session) ([]device.Service, error) {
	remotes, err := session.PrimaryServices(ctx)
	if err != nil {
		return nil, &device.OperationError{Op: "discover services", Err: err}
	}

	services := make([]device.Service, 0, len(remotes))
	for _, rs := range remotes {
		uuid := device.CanonicalUUID(rs.UUID())
		svc := device.Service{UUID: uuid, Name: m.resolver.ServiceName(uuid)}

		chars, err := session.Characteristics(ctx, rs)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"device":  id,
				"service": uuid,
				"error":   err,
			}).Warn("Failed to list characteristics, skipping")
			services = append(services, svc)
			continue
		}

		for _, rc := range chars {
			cu := device.CanonicalUUID(rc.UUID())
			svc.Characteristics = append(svc.Characteristics, device.Characteristic{
				UUID:       cu,
				Name:       m.resolver.CharacteristicName(cu),
				Properties: rc.Properties(),
			})
		}
		m.logger.WithFields(logrus.Fields{
			"device":          id,
			"service":         uuid,
			"characteristics": len(svc.Characteristics),
		}).Debug("Service discovered")
		services = append(services, svc)
	}
	return services, nil
}

// prime reads device information and battery level right after connect.
// Failures are only logged.
func (m *Manager) prime(ctx context.Context, id string, session device.Session) {
	info, err := retry.Do(ctx, m.retry, m.logger, "read device information", func(ctx context.Context) (*device.Information, error) {
		return m.collectDeviceInformation(ctx, id, session)
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Debug("Device information not available")
		info = nil
	}

	level := m.readBattery(ctx, id, session)
	if info == nil && level == nil {
		return
	}

	_, _ = m.registry.Update(id, func(d *device.Device) {
		if info != nil {
			d.Info = info
		}
		if level != nil {
			d.Battery = level
		}
	})
}

// watch marks the device disconnected when the transport reports a link drop.
func (m *Manager) watch(id string, session device.Session) {
	notifier, ok := session.(device.DisconnectNotifier)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stateMu.Lock()
	if prev := m.monitors[id]; prev != nil {
		prev()
	}
	m.monitors[id] = cancel
	m.stateMu.Unlock()

	groutine.Go(ctx, "disconnect-monitor-"+id, func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-notifier.Disconnected():
			m.logger.WithField("monitor", groutine.Name(ctx)).Debug("Link loss reported")
			m.handleDrop(id, session)
		}
	})
}

func (m *Manager) unwatch(id string) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if cancel := m.monitors[id]; cancel != nil {
		cancel()
		delete(m.monitors, id)
	}
}

func (m *Manager) handleDrop(id string, session device.Session) {
	current, ok := m.registry.Session(id)
	if !ok || current != session {
		return
	}

	m.logger.WithField("device", id).Warn("Connection lost")
	m.unwatch(id)
	if err := m.teardownDevice(context.Background(), id); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Debug("Subscriptions of dropped device cleared with errors")
	}

	d, err := m.registry.Update(id, func(d *device.Device) {
		d.Session = nil
		d.Connected = false
	})
	if err != nil {
		return
	}
	m.setState(id, device.StateDisconnected)
	m.bus.Publish(events.DeviceDisconnected{Device: d})
}

// Disconnect closes the session of a device. Disconnecting a device without a
// session succeeds without side effects.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	unlock := m.lockDevice(id)
	defer unlock()

	d, ok := m.registry.Get(id)
	if !ok {
		err := fmt.Errorf("%w: %s", device.ErrDeviceNotFound, id)
		m.logger.WithField("device", id).Error("Disconnect failed: device not found")
		m.bus.Publish(events.DisconnectError{DeviceID: id, Err: err})
		return err
	}
	if d.Session == nil {
		return nil
	}

	logger := m.logger.WithField("device", id)
	logger.Info("Disconnecting...")
	m.setState(id, device.StateDisconnecting)
	m.unwatch(id)

	if err := m.teardownDevice(ctx, id); err != nil {
		logger.WithField("error", err).Warn("Stopping notifications before disconnect failed")
	}
	m.closeQuietly(id, d.Session)

	d, err := m.registry.Update(id, func(d *device.Device) {
		d.Session = nil
		d.Connected = false
	})
	if err != nil {
		m.bus.Publish(events.DisconnectError{DeviceID: id, Err: err})
		return err
	}

	m.setState(id, device.StateDisconnected)
	logger.Info("Disconnected")
	m.bus.Publish(events.DeviceDisconnected{Device: d})
	return nil
}

// Remove forgets a device, tearing down its subscriptions and session first.
// An unknown id reports false and publishes nothing.
func (m *Manager) Remove(ctx context.Context, id string) (device.Device, bool) {
	unlock := m.lockDevice(id)
	defer unlock()

	d, ok := m.registry.Get(id)
	if !ok {
		return device.Device{}, false
	}

	m.unwatch(id)
	if err := m.teardownDevice(ctx, id); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Warn("Stopping notifications before removal failed")
		m.bus.Publish(events.RemoveError{DeviceID: id, Err: err})
	}
	if d.Session != nil {
		m.closeQuietly(id, d.Session)
	}

	removed, ok := m.registry.Remove(id)
	if ok {
		m.setState(id, device.StateRemoved)
		m.logger.WithField("device", id).Info("Device removed")
	}
	return removed, ok
}

// Refresh reloads the stored list and probes the sessions of in-scope devices.
// An empty id puts every device in scope. Devices whose probe fails lose their
// session; every in-scope device is stamped as seen now. When the load fails the
// refresh runs on the in-memory list and the load error is returned.
func (m *Manager) Refresh(ctx context.Context, id string) error {
	loadErr := m.registry.Load()
	if loadErr != nil {
		m.logger.WithField("error", loadErr).Warn("Refreshing the in-memory device list")
	}

	inScope := func(d *device.Device) bool { return id == "" || d.ID == id }

	var (
		mu     sync.Mutex
		failed = make(map[string]device.Session)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range m.registry.Devices() {
		if !inScope(&d) || d.Session == nil {
			continue
		}
		devID, session := d.ID, d.Session
		g.Go(func() error {
			if _, err := session.PrimaryServices(gctx); err != nil {
				m.logger.WithFields(logrus.Fields{
					"device": devID,
					"error":  err,
				}).Warn("Liveness probe failed, dropping session")
				mu.Lock()
				failed[devID] = session
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for fid, session := range failed {
		if !m.dropUnreachable(ctx, fid, session) {
			delete(failed, fid)
		}
	}

	now := m.now()
	m.registry.UpdateEach(func(d *device.Device) {
		if !inScope(d) {
			return
		}
		if s, ok := failed[d.ID]; ok && d.Session == s {
			d.Session = nil
		}
		d.Connected = d.Session != nil
		d.LastSeen = now
	})

	for fid := range failed {
		m.setState(fid, device.StateDisconnected)
		if d, ok := m.registry.Get(fid); ok && !d.Connected {
			m.bus.Publish(events.DeviceDisconnected{Device: d})
		}
	}
	return loadErr
}

// dropUnreachable tears down a session whose probe failed, unless a concurrent
// disconnect or reconnect already replaced it. Reports whether it was torn down.
func (m *Manager) dropUnreachable(ctx context.Context, id string, session device.Session) bool {
	unlock := m.lockDevice(id)
	defer unlock()

	if current, ok := m.registry.Session(id); !ok || current != session {
		return false
	}
	m.unwatch(id)
	if err := m.teardownDevice(ctx, id); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Debug("Subscriptions of unreachable device cleared with errors")
	}
	m.closeQuietly(id, session)
	return true
}

func (m *Manager) closeQuietly(id string, session device.Session) {
	if err := session.Close(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Warn("Closing session failed")
	}
}
