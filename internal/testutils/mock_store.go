package testutils

import (
	"github.com/srg/blemgr/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of registry.Store for persistence failure paths.
type MockStore struct {
	mock.Mock
}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) Load() ([]device.Device, error) {
	args := m.Called()
	devices, _ := args.Get(0).([]device.Device)
	return devices, args.Error(1)
}

func (m *MockStore) Save(devices []device.Device) error {
	args := m.Called(devices)
	return args.Error(0)
}
