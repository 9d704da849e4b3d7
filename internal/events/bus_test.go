package events

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/stretchr/testify/suite"
)

type BusTestSuite struct {
	suite.Suite
	bus *Bus
}

func (s *BusTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.bus = NewBus(logger)
}

// TestDeliveryOrder verifies that listeners run synchronously in registration order.
func (s *BusTestSuite) TestDeliveryOrder() {
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		s.bus.AddListener(KindDevicesChanged, func(Event) { order = append(order, i) })
	}

	s.bus.Publish(DevicesChanged{})
	s.Equal([]int{1, 2, 3}, order, "MUST deliver in registration order before Publish returns")
}

// TestPanickingListenerIsIsolated verifies that one failing listener does not stop the others.
//
// GOAL: Per-listener isolation during a single Publish
//
// TEST SCENARIO: listener 1 panics → listener 2 still receives the event
func (s *BusTestSuite) TestPanickingListenerIsIsolated() {
	delivered := false
	s.bus.AddListener(KindError, func(Event) { panic("listener failure") })
	s.bus.AddListener(KindError, func(Event) { delivered = true })

	s.NotPanics(func() { s.bus.Publish(Error{Err: errors.New("x")}) })
	s.True(delivered, "subsequent listener MUST still run")
}

// TestRemoveListener verifies removal and that kinds are routed independently.
func (s *BusTestSuite) TestRemoveListener() {
	count := 0
	id := s.bus.AddListener(KindDeviceConnected, func(Event) { count++ })
	s.bus.AddListener(KindDeviceDisconnected, func(Event) { count += 100 })

	s.bus.Publish(DeviceConnected{})
	s.bus.RemoveListener(KindDeviceConnected, id)
	s.bus.Publish(DeviceConnected{})
	s.bus.RemoveListener(KindDeviceConnected, id)

	s.Equal(1, count)
	s.Equal(0, s.bus.ListenerCount(KindDeviceConnected))
	s.Equal(1, s.bus.ListenerCount(KindDeviceDisconnected))
}

// TestRemoveDuringPublish verifies that a listener removing another mid-publish does not
// disturb the current delivery round.
func (s *BusTestSuite) TestRemoveDuringPublish() {
	var second ListenerID
	calls := 0
	s.bus.AddListener(KindDevicesChanged, func(Event) { s.bus.RemoveListener(KindDevicesChanged, second) })
	second = s.bus.AddListener(KindDevicesChanged, func(Event) { calls++ })

	s.bus.Publish(DevicesChanged{})
	s.bus.Publish(DevicesChanged{})
	s.Equal(1, calls, "removal MUST take effect from the next Publish")
}

// TestTypedListener verifies the generic On helper.
func (s *BusTestSuite) TestTypedListener() {
	var got device.Device
	On(s.bus, func(e DevicePaired) { got = e.Device })

	s.bus.Publish(DevicePaired{Device: device.Device{ID: "D1", Paired: true}})
	s.Equal("D1", got.ID)
	s.True(got.Paired)
}

// TestAddAll verifies that AddAll covers every kind.
func (s *BusTestSuite) TestAddAll() {
	var kinds []Kind
	ids := s.bus.AddAll(func(e Event) { kinds = append(kinds, e.Kind()) })
	s.Len(ids, len(Kinds))

	s.bus.Publish(ScanError{Err: device.ErrUnavailable})
	s.bus.Publish(CharacteristicWrite{DeviceID: "D1"})
	s.Equal([]Kind{KindScanError, KindCharacteristicWrite}, kinds)
}

func (s *BusTestSuite) TestErrorOf() {
	s.ErrorIs(ErrorOf(ConnectError{Err: device.ErrIdentityMismatch}), device.ErrIdentityMismatch)
	s.NoError(ErrorOf(DevicesChanged{}))
}

func TestBusTestSuite(t *testing.T) {
	suite.Run(t, new(BusTestSuite))
}
