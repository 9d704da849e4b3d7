package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/retry"
)

type informationItem struct {
	uuid   string
	key    string
	name   string
	format ValueFormatter
}

// Device Information Service characteristics read by ReadDeviceInformation.
var standardInformation = []informationItem{
	{uuid: "2a29", key: "manufacturerName", name: "Manufacturer Name"},
	{uuid: "2a24", key: "modelNumber", name: "Model Number"},
	{uuid: "2a25", key: "serialNumber", name: "Serial Number"},
	{uuid: "2a27", key: "hardwareRevision", name: "Hardware Revision"},
	{uuid: "2a26", key: "firmwareRevision", name: "Firmware Revision"},
	{uuid: "2a28", key: "softwareRevision", name: "Software Revision"},
	{uuid: "2a23", key: "systemId", name: "System ID", format: hexColon},
	{uuid: "2a2a", key: "ieee11073", name: "IEEE 11073"},
	{uuid: "2a50", key: "pnpId", name: "PnP ID", format: hexColon},
}

func hexColon(value []byte) (string, error) {
	parts := make([]string, len(value))
	for i, b := range value {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":"), nil
}

func (m *Manager) lookupCharacteristic(ctx context.Context, session device.Session, svcUUID, charUUID string) (device.RemoteCharacteristic, error) {
	svc, err := session.PrimaryService(ctx, device.CanonicalUUID(svcUUID))
	if err != nil {
		return nil, err
	}
	return session.Characteristic(ctx, svc, device.CanonicalUUID(charUUID))
}

// recordValue caches a value and writes it into the device tree. It returns the
// characteristic as carried by CharacteristicRead.
func (m *Manager) recordValue(id string, c device.RemoteCharacteristic, value []byte) device.Characteristic {
	uuid := device.CanonicalUUID(c.UUID())
	ts := m.now()

	m.cache.Set(uuid, CachedValue{Value: append([]byte(nil), value...), Timestamp: ts})
	m.registry.StoreValue(id, uuid, value, ts)

	return device.Characteristic{
		UUID:        uuid,
		Name:        m.resolver.CharacteristicName(uuid),
		Properties:  c.Properties(),
		Value:       append([]byte(nil), value...),
		LastUpdated: ts,
	}
}

// ReadCharacteristic reads one value from a connected device.
func (m *Manager) ReadCharacteristic(ctx context.Context, id, svcUUID, charUUID string) ([]byte, error) {
	session, err := m.sessionFor(id)
	if err != nil {
		return nil, m.fail(err)
	}

	var remote device.RemoteCharacteristic
	value, err := retry.Do(ctx, m.retry, m.logger, "read "+charUUID, func(ctx context.Context) ([]byte, error) {
		c, err := m.lookupCharacteristic(ctx, session, svcUUID, charUUID)
		if err != nil {
			return nil, err
		}
		remote = c
		return session.ReadValue(ctx, c)
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device":         id,
			"characteristic": charUUID,
			"error":          err,
		}).Error("Read failed")
		return nil, m.fail(&device.OperationError{Op: "read " + device.CanonicalUUID(charUUID), Err: err})
	}

	m.recordValue(id, remote, value)
	return value, nil
}

// WriteCharacteristic writes data to a connected device and publishes
// CharacteristicWrite on success.
func (m *Manager) WriteCharacteristic(ctx context.Context, id, svcUUID, charUUID string, data []byte, withResponse bool) error {
	session, err := m.sessionFor(id)
	if err != nil {
		return m.fail(err)
	}

	var remote device.RemoteCharacteristic
	err = retry.Run(ctx, m.retry, m.logger, "write "+charUUID, func(ctx context.Context) error {
		c, err := m.lookupCharacteristic(ctx, session, svcUUID, charUUID)
		if err != nil {
			return err
		}
		remote = c
		return session.WriteValue(ctx, c, data, withResponse)
	})
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device":         id,
			"characteristic": charUUID,
			"error":          err,
		}).Error("Write failed")
		return m.fail(&device.OperationError{Op: "write " + device.CanonicalUUID(charUUID), Err: err})
	}

	uuid := device.CanonicalUUID(remote.UUID())
	m.bus.Publish(events.CharacteristicWrite{
		DeviceID:    id,
		ServiceUUID: device.CanonicalUUID(svcUUID),
		Characteristic: device.Characteristic{
			UUID:        uuid,
			Name:        m.resolver.CharacteristicName(uuid),
			Properties:  remote.Properties(),
			Value:       append([]byte(nil), data...),
			LastUpdated: m.now(),
		},
	})
	return nil
}

// ReadBatteryLevel returns the battery percentage, or nil when the device does
// not expose one. Only a missing or disconnected device is an error.
func (m *Manager) ReadBatteryLevel(ctx context.Context, id string) (*int, error) {
	session, err := m.sessionFor(id)
	if err != nil {
		return nil, m.fail(err)
	}

	level := m.readBattery(ctx, id, session)
	if level != nil {
		_, _ = m.registry.Update(id, func(d *device.Device) {
			v := *level
			d.Battery = &v
		})
	}
	return level, nil
}

func (m *Manager) readBattery(ctx context.Context, id string, session device.Session) *int {
	c, err := m.lookupCharacteristic(ctx, session, device.BatteryService, device.BatteryLevel)
	if err != nil {
		m.logger.WithField("device", id).Debug("Battery level not available")
		return nil
	}
	value, err := session.ReadValue(ctx, c)
	if err != nil || len(value) == 0 {
		m.logger.WithFields(logrus.Fields{
			"device": id,
			"error":  err,
		}).Debug("Battery level not available")
		return nil
	}

	m.recordValue(id, c, value)
	level := min(int(value[0]), 100)
	return &level
}

// ReadDeviceInformation reads the Device Information Service and every
// registered custom characteristic. Items the device does not provide are skipped.
func (m *Manager) ReadDeviceInformation(ctx context.Context, id string) (*device.Information, error) {
	session, err := m.sessionFor(id)
	if err != nil {
		return nil, m.fail(err)
	}

	info, err := retry.Do(ctx, m.retry, m.logger, "read device information", func(ctx context.Context) (*device.Information, error) {
		return m.collectDeviceInformation(ctx, id, session)
	})
	if err != nil {
		return nil, m.fail(&device.OperationError{Op: "read device information", Err: err})
	}
	return info, nil
}

// RefreshDeviceInformation re-reads device information, stores it on the device
// and announces the updated device with DeviceConnected.
func (m *Manager) RefreshDeviceInformation(ctx context.Context, id string) (device.Device, error) {
	info, err := m.ReadDeviceInformation(ctx, id)
	if err != nil {
		return device.Device{}, err
	}

	d, err := m.registry.Update(id, func(d *device.Device) {
		d.Info = info
	})
	if err != nil {
		return device.Device{}, m.fail(err)
	}

	m.bus.Publish(events.DeviceConnected{Device: d})
	return d, nil
}

func (m *Manager) collectDeviceInformation(ctx context.Context, id string, session device.Session) (*device.Information, error) {
	svc, err := session.PrimaryService(ctx, device.DeviceInformation)
	if err != nil {
		return nil, err
	}

	items := append([]informationItem(nil), standardInformation...)
	for _, c := range m.CustomCharacteristics() {
		items = append(items, informationItem{uuid: c.UUID, key: c.Key, name: c.Name, format: c.Formatter})
	}

	info := &device.Information{}
	for _, item := range items {
		logger := m.logger.WithFields(logrus.Fields{
			"device":         id,
			"characteristic": item.name,
		})

		c, err := session.Characteristic(ctx, svc, device.CanonicalUUID(item.uuid))
		if err != nil {
			logger.Debug("Characteristic not available")
			continue
		}
		value, err := session.ReadValue(ctx, c)
		if err != nil {
			logger.WithField("error", err).Debug("Characteristic not readable")
			continue
		}

		text := decodeText(value)
		if item.format != nil {
			formatted, err := item.format(value)
			if err != nil {
				logger.WithField("error", err).Warn("Formatter failed, decoding as text")
			} else {
				text = formatted
			}
		}
		info.Set(item.key, text)
		logger.WithField("value", text).Debug("Device information read")
	}
	return info, nil
}

// ReadAllCharacteristics reads every readable characteristic of the device and
// publishes CharacteristicRead for each. Per-item failures are skipped.
func (m *Manager) ReadAllCharacteristics(ctx context.Context, id string) error {
	session, err := m.sessionFor(id)
	if err != nil {
		return m.fail(err)
	}

	services, err := session.PrimaryServices(ctx)
	if err != nil {
		return m.fail(&device.OperationError{Op: "read characteristics", Err: err})
	}

	for _, svc := range services {
		svcUUID := device.CanonicalUUID(svc.UUID())
		chars, err := session.Characteristics(ctx, svc)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"device":  id,
				"service": svcUUID,
				"error":   err,
			}).Warn("Failed to list characteristics, skipping")
			continue
		}

		for _, c := range chars {
			if !c.Properties().CanRead() {
				continue
			}
			value, err := session.ReadValue(ctx, c)
			if err != nil {
				m.logger.WithFields(logrus.Fields{
					"device":         id,
					"characteristic": c.UUID(),
					"error":          err,
				}).Warn("Failed to read characteristic, skipping")
				continue
			}

			char := m.recordValue(id, c, value)
			m.bus.Publish(events.CharacteristicRead{
				DeviceID:       id,
				ServiceUUID:    svcUUID,
				Characteristic: char,
			})
		}
	}
	return nil
}
