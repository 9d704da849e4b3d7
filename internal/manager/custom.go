package manager

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
)

// ValueFormatter renders a raw characteristic value for display.
type ValueFormatter func(value []byte) (string, error)

// CustomCharacteristic extends the device information read with a vendor
// characteristic and decodes its notifications.
// Key is the name the value is stored under in device.Information.Custom.
type CustomCharacteristic struct {
	UUID      string
	Key       string
	Name      string
	Formatter ValueFormatter
}

// RegisterCustomCharacteristic adds c unless a descriptor with the same UUID
// is already registered. Reports whether c was added.
func (m *Manager) RegisterCustomCharacteristic(c CustomCharacteristic) bool {
	c.UUID = device.CanonicalUUID(c.UUID)
	if c.Key == "" {
		c.Key = c.UUID
	}

	m.customMu.Lock()
	defer m.customMu.Unlock()

	for _, existing := range m.custom {
		if existing.UUID == c.UUID {
			return false
		}
	}
	m.custom = append(m.custom, c)

	m.logger.WithFields(logrus.Fields{
		"uuid": c.UUID,
		"key":  c.Key,
	}).Debug("Custom characteristic registered")
	return true
}

// UnregisterCustomCharacteristic removes the descriptor for uuid, if any.
func (m *Manager) UnregisterCustomCharacteristic(uuid string) bool {
	uuid = device.CanonicalUUID(uuid)

	m.customMu.Lock()
	defer m.customMu.Unlock()

	for i, c := range m.custom {
		if c.UUID == uuid {
			m.custom = append(m.custom[:i:i], m.custom[i+1:]...)
			return true
		}
	}
	return false
}

// CustomCharacteristics returns the registered descriptors in registration order.
func (m *Manager) CustomCharacteristics() []CustomCharacteristic {
	m.customMu.RLock()
	defer m.customMu.RUnlock()
	return append([]CustomCharacteristic(nil), m.custom...)
}

func (m *Manager) customFor(uuid string) (CustomCharacteristic, bool) {
	uuid = device.CanonicalUUID(uuid)

	m.customMu.RLock()
	defer m.customMu.RUnlock()

	for _, c := range m.custom {
		if c.UUID == uuid {
			return c, true
		}
	}
	return CustomCharacteristic{}, false
}

// decode renders a value with the registered formatter for uuid, falling back
// to UTF-8 when there is none or it fails.
func (m *Manager) decode(uuid string, value []byte) string {
	if c, ok := m.customFor(uuid); ok && c.Formatter != nil {
		s, err := c.Formatter(value)
		if err == nil {
			return s
		}
		m.logger.WithFields(logrus.Fields{
			"uuid":  c.UUID,
			"error": err,
		}).Warn("Custom formatter failed, decoding as text")
	}
	return decodeText(value)
}

func decodeText(value []byte) string {
	return strings.ToValidUTF8(string(value), "�")
}
