package manager_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/manager"
	"github.com/srg/blemgr/internal/registry"
	"github.com/srg/blemgr/internal/retry"
	"github.com/srg/blemgr/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	batterySvc  = "180F"
	batteryChar = "2A19"
)

// recorder collects every published event. Link-drop events arrive from the
// monitor goroutine, hence the lock.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.AddAll(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

func (r *recorder) errors(kind events.Kind) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, e := range r.events {
		if e.Kind() == kind {
			out = append(out, events.ErrorOf(e))
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type ManagerTestSuite struct {
	testutils.FakeTransportSuite

	store *registry.MemoryStore
	mgr   *manager.Manager
	rec   *recorder
	ctx   context.Context
}

func (s *ManagerTestSuite) SetupTest() {
	s.FakeTransportSuite.SetupTest()
	s.ctx = context.Background()
	s.use(s.Transport, false)
}

func (s *ManagerTestSuite) TearDownTest() {
	if s.mgr != nil {
		_ = s.mgr.Close()
		s.mgr = nil
	}
	s.FakeTransportSuite.TearDownTest()
}

// use replaces the manager with one driving ft.
func (s *ManagerTestSuite) use(ft *testutils.FakeTransport, readAll bool) {
	if s.mgr != nil {
		_ = s.mgr.Close()
	}
	s.Transport = ft
	s.store = registry.NewMemoryStore()

	mgr, err := manager.New(manager.Options{
		Transport:        ft,
		Store:            s.store,
		Logger:           s.Logger,
		Retry:            retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		ReadAllOnConnect: readAll,
	})
	s.Require().NoError(err)
	s.mgr = mgr
	s.rec = newRecorder(mgr.Bus())
}

func (s *ManagerTestSuite) scanD1() device.Device {
	d, err := s.mgr.Scan(s.ctx)
	s.Require().NoError(err, "scan MUST succeed")
	s.Require().Equal("D1", d.ID)
	s.Require().True(d.Connected, "scanned device MUST be connected")
	return d
}

// ----------------------------
// Lifecycle
// ----------------------------

func (s *ManagerTestSuite) TestNewRequiresTransport() {
	_, err := manager.New(manager.Options{})
	s.Error(err, "manager without transport MUST be rejected")
}

func (s *ManagerTestSuite) TestScanConnectsAndResolvesNames() {
	// GOAL: Verify the end-to-end scan path discovers, connects and names the attribute tree
	//
	// TEST SCENARIO: Scan default peripheral → device connected with resolved names → battery in range

	d := s.scanD1()

	s.Equal("Widget", d.Name)
	s.Require().Len(d.Services, 1)
	s.Equal("Battery Service", d.Services[0].Name, "service name MUST be resolved")
	s.Require().Len(d.Services[0].Characteristics, 1)
	s.Equal("Battery Level", d.Services[0].Characteristics[0].Name, "characteristic name MUST be resolved")
	s.True(d.Services[0].Characteristics[0].Properties.CanNotify())

	s.Require().NotNil(d.Battery, "battery level MUST be primed on connect")
	s.Equal(50, *d.Battery)

	level, err := s.mgr.ReadBatteryLevel(s.ctx, "D1")
	s.Require().NoError(err)
	s.Require().NotNil(level)
	s.GreaterOrEqual(*level, 0)
	s.LessOrEqual(*level, 100)

	s.Equal(device.StateConnected, s.mgr.State("D1"))
	s.Equal(1, s.rec.count(events.KindServiceDiscovered))
	s.Equal(1, s.rec.count(events.KindDeviceConnected))
	s.Positive(s.rec.count(events.KindDevicesChanged))
	s.NotEmpty(s.store.Raw(), "registry MUST be persisted")
}

func (s *ManagerTestSuite) TestScanUnavailable() {
	s.use(testutils.NewFakeTransport().Unavailable().Build(), false)

	_, err := s.mgr.Scan(s.ctx)
	s.ErrorIs(err, device.ErrUnavailable)
	s.Len(s.rec.errors(events.KindScanError), 1, "unavailable adapter MUST publish ScanError")
	s.False(s.mgr.IsAvailable())
}

func (s *ManagerTestSuite) TestScanKeepsDeviceWhenConnectFails() {
	s.Transport.FailConnect("D1", errors.New("page timeout"))

	d, err := s.mgr.Scan(s.ctx)
	s.Require().NoError(err, "a failed connect MUST NOT fail the scan")
	s.Equal("D1", d.ID)
	s.False(d.Connected)
	s.Len(s.rec.errors(events.KindConnectError), 1)
	s.Len(s.mgr.Devices(), 1, "discovered device MUST be recorded")
}

func (s *ManagerTestSuite) TestConnectUnknownDevice() {
	_, err := s.mgr.Connect(s.ctx, "nope")
	s.ErrorIs(err, device.ErrDeviceNotFound)
	errs := s.rec.errors(events.KindConnectError)
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], device.ErrDeviceNotFound)
	s.Equal(device.StateUnknown, s.mgr.State("nope"))
}

func (s *ManagerTestSuite) TestConnectIdentityMismatch() {
	// GOAL: Verify a session reporting another identity is rejected and closed
	//
	// TEST SCENARIO: Peripheral D2 answers as D3 → ErrIdentityMismatch → stray session closed

	s.use(testutils.NewFakeTransport().
		WithPeripheral("D2", "Impostor").
		WithIdentity("D3").
		WithService(batterySvc).
		WithCharacteristic(batteryChar, "read", []byte{10}).
		Build(), false)

	_, err := s.mgr.Scan(s.ctx)
	s.Require().NoError(err)

	_, err = s.mgr.Connect(s.ctx, "D2")
	s.ErrorIs(err, device.ErrIdentityMismatch)
	s.True(s.Transport.Session("D2").Closed(), "stray session MUST be closed")

	d, ok := s.mgr.Device("D2")
	s.Require().True(ok)
	s.False(d.Connected)
	s.Nil(d.Session)
	s.Len(s.rec.errors(events.KindConnectError), 2)
}

func (s *ManagerTestSuite) TestConnectIsIdempotent() {
	s.scanD1()

	d, err := s.mgr.Connect(s.ctx, "D1")
	s.Require().NoError(err)
	s.True(d.Connected)
	s.Equal(1, s.Transport.Connects(), "connected device MUST NOT be dialled again")
}

func (s *ManagerTestSuite) TestConnectRetriesTransientFailures() {
	_, err := s.mgr.Pair(s.ctx)
	s.Require().NoError(err)
	s.Transport.FailConnect("D1", device.ErrBusy, device.ErrBusy)

	d, err := s.mgr.Connect(s.ctx, "D1")
	s.Require().NoError(err, "connect MUST succeed on the third attempt")
	s.True(d.Connected)
	s.Equal(4, s.Transport.Connects())
}

func (s *ManagerTestSuite) TestConnectRetryExhaustion() {
	_, err := s.mgr.Pair(s.ctx)
	s.Require().NoError(err)
	s.Transport.FailConnect("D1", device.ErrBusy, device.ErrBusy, device.ErrBusy)

	_, err = s.mgr.Connect(s.ctx, "D1")
	s.ErrorIs(err, device.ErrBusy, "exhausted retries MUST return the last error")
	var opErr *device.OperationError
	s.ErrorAs(err, &opErr)
	s.Len(s.rec.errors(events.KindConnectError), 1)
	s.Equal(device.StateDisconnected, s.mgr.State("D1"))
}

func (s *ManagerTestSuite) TestDisconnect() {
	s.scanD1()

	s.Require().NoError(s.mgr.Disconnect(s.ctx, "D1"))

	d, _ := s.mgr.Device("D1")
	s.False(d.Connected)
	s.Nil(d.Session)
	s.True(s.Transport.Session("D1").Closed(), "session MUST be closed")
	s.Equal(1, s.rec.count(events.KindDeviceDisconnected))
	s.Equal(device.StateDisconnected, s.mgr.State("D1"))

	s.NoError(s.mgr.Disconnect(s.ctx, "D1"), "disconnecting twice MUST succeed")
	s.Equal(1, s.rec.count(events.KindDeviceDisconnected))
	s.Equal(1, s.Transport.Session("D1").CloseCalls())
}

func (s *ManagerTestSuite) TestDisconnectUnknownDevice() {
	err := s.mgr.Disconnect(s.ctx, "nope")
	s.ErrorIs(err, device.ErrDeviceNotFound)
	s.Len(s.rec.errors(events.KindDisconnectError), 1)
}

func (s *ManagerTestSuite) TestDisconnectTearsDownSubscriptions() {
	s.scanD1()
	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)

	s.Require().NoError(s.mgr.Disconnect(s.ctx, "D1"))
	s.Equal(0, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
	s.Equal(0, s.mgr.Subscribers("D1", batterySvc, batteryChar))
	s.Equal(1, s.Transport.Session("D1").StopCalls(batteryChar), "registration MUST be stopped before close")
}

func (s *ManagerTestSuite) TestRemove() {
	// GOAL: Verify removal tears down subscriptions, closes the session and is idempotent
	//
	// TEST SCENARIO: Connect + subscribe → remove → nothing left → second remove reports false

	s.scanD1()
	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)
	s.rec.reset()

	removed, ok := s.mgr.Remove(s.ctx, "D1")
	s.Require().True(ok)
	s.Equal("D1", removed.ID)
	s.Empty(s.mgr.Devices())
	s.Equal(0, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
	s.Equal(1, s.Transport.Session("D1").StopCalls(batteryChar))
	s.True(s.Transport.Session("D1").Closed())
	s.Equal(1, s.rec.count(events.KindDevicesChanged))
	s.Equal(0, s.rec.count(events.KindRemoveError))
	s.Equal(device.StateRemoved, s.mgr.State("D1"))

	_, ok = s.mgr.Remove(s.ctx, "D1")
	s.False(ok, "removing twice MUST report false")
	s.Equal(1, s.rec.count(events.KindDevicesChanged), "no-op removal MUST NOT publish")
}

func (s *ManagerTestSuite) TestRemoveCompletesWhenTeardownFails() {
	s.scanD1()
	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)
	s.Transport.Session("D1").FailNext(testutils.OpStop, batteryChar, errors.New("stop refused"))

	_, ok := s.mgr.Remove(s.ctx, "D1")
	s.True(ok)
	s.Empty(s.mgr.Devices(), "removal MUST complete despite teardown failure")
	s.Len(s.rec.errors(events.KindRemoveError), 1)
}

func (s *ManagerTestSuite) TestPair() {
	d, err := s.mgr.Pair(s.ctx)
	s.Require().NoError(err)
	s.True(d.Paired)
	s.False(d.Connected)
	s.Equal(1, s.rec.count(events.KindDevicePaired))
	s.True(s.Transport.Session("D1").Closed(), "pairing session MUST be closed")
	s.Equal(device.StateDiscovered, s.mgr.State("D1"))
}

func (s *ManagerTestSuite) TestRefreshDropsUnresponsiveSessions() {
	// GOAL: Verify refresh probes live sessions and clears the ones that fail
	//
	// TEST SCENARIO: Connected device whose probe fails → refresh → disconnected, stamped, persisted once

	s.scanD1()
	s.Transport.Session("D1").FailNext(testutils.OpServices, "", errors.New("no response"))
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.mgr.SetClock(func() time.Time { return stamp })
	s.rec.reset()

	s.Require().NoError(s.mgr.Refresh(s.ctx, ""))

	d, ok := s.mgr.Device("D1")
	s.Require().True(ok)
	s.False(d.Connected, "failed probe MUST clear the connection")
	s.Nil(d.Session)
	s.True(d.LastSeen.Equal(stamp), "in-scope device MUST be stamped")
	s.Equal(1, s.rec.count(events.KindDevicesChanged), "refresh MUST publish once")
	s.Equal(1, s.rec.count(events.KindDeviceDisconnected), "dropped session MUST be announced")
	s.Equal(device.StateDisconnected, s.mgr.State("D1"))
	s.True(s.Transport.Session("D1").Closed(), "unreachable session MUST be closed")
}

func (s *ManagerTestSuite) TestRefreshContinuesWhenLoadFails() {
	// GOAL: A failing store does not stop refresh from probing, persisting and announcing
	//
	// TEST SCENARIO: store Load fails → Refresh → load error returned, in-memory device kept, saved, devicesChanged once

	store := testutils.NewMockStore()
	store.On("Save", mock.Anything).Return(nil)
	store.On("Load").Return(nil, errors.New("disk gone"))

	mgr, err := manager.New(manager.Options{Transport: s.Transport, Store: store, Logger: s.Logger})
	s.Require().NoError(err)
	defer func() { _ = mgr.Close() }()
	rec := newRecorder(mgr.Bus())

	_, err = mgr.Scan(s.ctx)
	s.Require().NoError(err)
	saves := func() int {
		n := 0
		for _, c := range store.Calls {
			if c.Method == "Save" {
				n++
			}
		}
		return n
	}
	savesBefore := saves()
	rec.reset()

	err = mgr.Refresh(s.ctx, "")
	s.Require().Error(err, "load failure MUST still be reported")
	s.Contains(err.Error(), "disk gone")

	d, ok := mgr.Device("D1")
	s.Require().True(ok, "prior in-memory list MUST be kept")
	s.True(d.Connected, "live session MUST survive the failed load")
	s.Equal(1, rec.count(events.KindError))
	s.Equal(1, rec.count(events.KindDevicesChanged), "refresh MUST publish at the end")
	s.Equal(savesBefore+1, saves(), "refresh MUST persist at the end")
}

func (s *ManagerTestSuite) TestRefreshKeepsLiveSessions() {
	s.scanD1()

	s.Require().NoError(s.mgr.Refresh(s.ctx, "D1"))

	d, _ := s.mgr.Device("D1")
	s.True(d.Connected)
	s.NotNil(d.Session)
	s.Len(s.mgr.Filter(registry.FilterConnected), 1)
	s.Empty(s.mgr.Filter(registry.FilterDisconnected))
}

func (s *ManagerTestSuite) TestConcurrentConnectSharesOneSession() {
	// GOAL: Two connects racing on one device open exactly one session
	//
	// TEST SCENARIO: known disconnected D1 → transport held → two Connect calls → release → one session, one event, nothing left open after Disconnect

	s.scanD1()
	s.Require().NoError(s.mgr.Disconnect(s.ctx, "D1"))
	s.rec.reset()

	release := s.Transport.HoldConnects()
	defer release()
	connectsBefore := s.Transport.Connects()

	var wg sync.WaitGroup
	results := make([]device.Device, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.mgr.Connect(s.ctx, "D1")
		}()
	}

	s.Eventually(func() bool {
		return s.Transport.Connects() == connectsBefore+1
	}, s.TestTimeout, 5*time.Millisecond, "first connect MUST reach the transport")
	time.Sleep(20 * time.Millisecond)
	s.Equal(connectsBefore+1, s.Transport.Connects(), "second connect MUST wait for the first")

	release()
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.NotNil(results[0].Session)
	s.True(results[0].Session == results[1].Session, "both callers MUST share one session")
	s.Equal(connectsBefore+1, s.Transport.Connects())
	s.Equal(1, s.rec.count(events.KindDeviceConnected), "connected MUST be announced once")

	s.Require().NoError(s.mgr.Disconnect(s.ctx, "D1"))
	s.Equal(0, s.Transport.OpenSessions(), "no session MUST outlive Disconnect")
}

func (s *ManagerTestSuite) TestLinkDropMarksDeviceDisconnected() {
	s.scanD1()
	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)

	s.Transport.Session("D1").Drop()

	s.Eventually(func() bool {
		d, _ := s.mgr.Device("D1")
		return !d.Connected
	}, s.TestTimeout, 10*time.Millisecond, "dropped link MUST mark the device disconnected")
	s.Eventually(func() bool {
		return s.rec.count(events.KindDeviceDisconnected) == 1
	}, s.TestTimeout, 10*time.Millisecond)
	s.Equal(0, s.mgr.Subscribers("D1", batterySvc, batteryChar))
}

func (s *ManagerTestSuite) TestLoadRestoresPersistedDevices() {
	s.scanD1()

	mgr, err := manager.New(manager.Options{Transport: s.Transport, Store: s.store, Logger: s.Logger})
	s.Require().NoError(err)
	s.Require().NoError(mgr.Load())

	devices := mgr.Devices()
	s.Require().Len(devices, 1)
	s.Equal("D1", devices[0].ID)
	s.False(devices[0].Connected, "restored device MUST NOT claim a session")
	s.Equal(device.StateDiscovered, mgr.State("D1"))
}

// ----------------------------
// Reads and writes
// ----------------------------

func (s *ManagerTestSuite) TestReadCharacteristicNotConnected() {
	_, err := s.mgr.Pair(s.ctx)
	s.Require().NoError(err)

	_, err = s.mgr.ReadCharacteristic(s.ctx, "D1", batterySvc, batteryChar)
	s.True(device.IsConnectionState(err, device.NotConnected), "read without session MUST fail with NotConnected")
	s.Len(s.rec.errors(events.KindError), 1)
}

func (s *ManagerTestSuite) TestReadCharacteristicUpdatesCache() {
	s.scanD1()
	s.Transport.Session("D1").SetValue(batteryChar, []byte{64})

	value, err := s.mgr.ReadCharacteristic(s.ctx, "D1", batterySvc, batteryChar)
	s.Require().NoError(err)
	s.Equal([]byte{64}, value)

	cached, ok := s.mgr.CharacteristicValue("00002a19-0000-1000-8000-00805f9b34fb")
	s.Require().True(ok)
	s.Equal([]byte{64}, cached.Value)

	cached.Value[0] = 0
	again, _ := s.mgr.CharacteristicValue(batteryChar)
	s.Equal([]byte{64}, again.Value, "cached value MUST be returned as a copy")

	d, _ := s.mgr.Device("D1")
	s.Equal([]byte{64}, d.Services[0].Characteristics[0].Value, "read MUST write through to the tree")
}

func (s *ManagerTestSuite) TestReadCharacteristicWrapsTransportFailure() {
	s.scanD1()
	s.Transport.Session("D1").FailNext(testutils.OpRead, batteryChar, errors.New("att error 0x0e"))

	_, err := s.mgr.ReadCharacteristic(s.ctx, "D1", batterySvc, batteryChar)
	var opErr *device.OperationError
	s.Require().ErrorAs(err, &opErr)
	errs := s.rec.errors(events.KindError)
	s.Require().Len(errs, 1)
	s.Equal(err, errs[0], "published error MUST match the returned one")
}

func (s *ManagerTestSuite) TestReadCharacteristicRetriesBusy() {
	s.scanD1()
	session := s.Transport.Session("D1")
	before := session.Reads(batteryChar)
	session.FailNext(testutils.OpRead, batteryChar, device.ErrBusy)

	value, err := s.mgr.ReadCharacteristic(s.ctx, "D1", batterySvc, batteryChar)
	s.Require().NoError(err)
	s.Equal([]byte{50}, value)
	s.Equal(2, session.Reads(batteryChar)-before, "busy read MUST be retried once")
}

func (s *ManagerTestSuite) TestReadCharacteristicMissing() {
	s.scanD1()

	_, err := s.mgr.ReadCharacteristic(s.ctx, "D1", batterySvc, "2A1A")
	s.True(device.IsNotFound(err), "missing characteristic MUST be reported as not found")
}

func (s *ManagerTestSuite) TestWriteCharacteristic() {
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Lamp").
		WithService("FFE0").
		WithCharacteristic("FFE1", "read,write", []byte{0}).
		Build(), false)
	s.scanD1()

	s.Require().NoError(s.mgr.WriteCharacteristic(s.ctx, "D1", "FFE0", "FFE1", []byte{1, 2}, true))
	s.Equal([][]byte{{1, 2}}, s.Transport.Session("D1").Writes("FFE1"))
	s.Equal(1, s.rec.count(events.KindCharacteristicWrite))

	value, err := s.mgr.ReadCharacteristic(s.ctx, "D1", "FFE0", "FFE1")
	s.Require().NoError(err)
	s.Equal([]byte{1, 2}, value)
}

func (s *ManagerTestSuite) TestBatteryLevelAbsent() {
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Sensor").
		WithService("181A").
		WithCharacteristic("2A6E", "read", []byte{0x10, 0x09}).
		Build(), false)
	s.scanD1()

	level, err := s.mgr.ReadBatteryLevel(s.ctx, "D1")
	s.NoError(err, "missing battery service MUST NOT be an error")
	s.Nil(level)
}

func (s *ManagerTestSuite) TestBatteryLevelNotConnected() {
	_, err := s.mgr.ReadBatteryLevel(s.ctx, "nope")
	s.ErrorIs(err, device.ErrDeviceNotFound)
}

func (s *ManagerTestSuite) TestReadDeviceInformation() {
	// GOAL: Verify the composite information read decodes text, hex ids and custom characteristics
	//
	// TEST SCENARIO: DIS with manufacturer, model, system id, PnP id and a custom item → decoded record

	custom := "12345678-1234-5678-1234-56789abcdef0"
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Widget").
		WithService("180A").
		WithCharacteristic("2A29", "read", []byte("Acme")).
		WithCharacteristic("2A24", "read", []byte("M-1")).
		WithCharacteristic("2A23", "read", []byte{0x01, 0x02, 0xab}).
		WithCharacteristic("2A50", "read", []byte{0x02, 0x5e, 0x04}).
		WithCharacteristic(custom, "read", []byte{42}).
		Build(), false)
	s.mgr.RegisterCustomCharacteristic(manager.CustomCharacteristic{
		UUID: custom,
		Key:  "answer",
		Name: "Answer",
		Formatter: func(v []byte) (string, error) {
			return strconv.Itoa(int(v[0])), nil
		},
	})

	d := s.scanD1()
	s.Require().NotNil(d.Info, "device information MUST be primed on connect")
	s.Equal("Acme", d.Info.ManufacturerName)

	info, err := s.mgr.ReadDeviceInformation(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal("Acme", info.ManufacturerName)
	s.Equal("M-1", info.ModelNumber)
	s.Empty(info.SerialNumber, "missing items MUST be skipped")
	s.Equal("01:02:ab", info.SystemID)
	s.Equal("02:5e:04", info.PnPID)
	s.Equal("42", info.Custom["answer"])
}

func (s *ManagerTestSuite) TestReadDeviceInformationWithoutService() {
	s.scanD1()

	_, err := s.mgr.ReadDeviceInformation(s.ctx, "D1")
	s.True(device.IsNotFound(err), "missing information service MUST abort the read")
	s.Len(s.rec.errors(events.KindError), 1)
}

func (s *ManagerTestSuite) TestRefreshDeviceInformation() {
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Widget").
		WithService("180A").
		WithCharacteristic("2A26", "read", []byte("1.0")).
		Build(), false)
	s.scanD1()
	s.Transport.Session("D1").SetValue("2A26", []byte("1.1"))
	s.rec.reset()

	d, err := s.mgr.RefreshDeviceInformation(s.ctx, "D1")
	s.Require().NoError(err)
	s.Equal("1.1", d.Info.FirmwareRevision)
	s.Equal(1, s.rec.count(events.KindDeviceConnected))
}

func (s *ManagerTestSuite) TestReadAllOnConnect() {
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Widget").
		WithService(batterySvc).
		WithCharacteristic(batteryChar, "read,notify", []byte{50}).
		WithService("180A").
		WithCharacteristic("2A29", "read", []byte("Acme")).
		WithService("FFE0").
		WithCharacteristic("FFE1", "write", nil).
		Build(), true)

	s.scanD1()
	s.Equal(2, s.rec.count(events.KindCharacteristicRead), "every readable characteristic MUST be swept")

	cached, ok := s.mgr.CharacteristicValue("2A29")
	s.Require().True(ok)
	s.Equal([]byte("Acme"), cached.Value)
	_, ok = s.mgr.CharacteristicValue("FFE1")
	s.False(ok, "write-only characteristic MUST NOT be read")
}

func (s *ManagerTestSuite) TestCustomCharacteristicRegistration() {
	c := manager.CustomCharacteristic{UUID: "FFF1", Key: "mode", Name: "Mode"}

	s.True(s.mgr.RegisterCustomCharacteristic(c))
	s.False(s.mgr.RegisterCustomCharacteristic(c), "registration MUST be idempotent by uuid")
	s.Len(s.mgr.CustomCharacteristics(), 1)

	s.True(s.mgr.UnregisterCustomCharacteristic("0000fff1-0000-1000-8000-00805f9b34fb"))
	s.False(s.mgr.UnregisterCustomCharacteristic("FFF1"))
	s.Empty(s.mgr.CustomCharacteristics())
}

// ----------------------------
// Subscriptions
// ----------------------------

func (s *ManagerTestSuite) TestSubscriptionReferenceCounting() {
	// GOAL: Verify one registration is shared by every subscriber of a characteristic
	//
	// TEST SCENARIO: Two subscribers → one start → both receive → first leaves (still active) → last leaves (stopped)

	s.scanD1()
	session := s.Transport.Session("D1")

	var mu sync.Mutex
	var got1, got2 []string
	id1, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(v string) {
		mu.Lock()
		got1 = append(got1, v)
		mu.Unlock()
	})
	s.Require().NoError(err)
	id2, err := s.mgr.Subscribe(s.ctx, "D1", "0x180f", "00002a19-0000-1000-8000-00805f9b34fb", func(v string) {
		mu.Lock()
		got2 = append(got2, v)
		mu.Unlock()
	})
	s.Require().NoError(err)
	s.NotEqual(id1, id2)

	s.Equal(1, session.StartCalls(batteryChar), "second subscriber MUST reuse the registration")
	s.Equal(2, s.mgr.Subscribers("D1", batterySvc, batteryChar))
	s.Equal(1, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))

	s.Require().True(session.Notify(batteryChar, []byte("42")))
	mu.Lock()
	s.Equal([]string{"42"}, got1)
	s.Equal([]string{"42"}, got2)
	mu.Unlock()

	s.Require().NoError(s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id1))
	s.Equal(1, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
	s.Equal(0, session.StopCalls(batteryChar))

	s.Require().NoError(s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id2))
	s.Equal(0, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar), "last unsubscribe MUST tear down")
	s.Equal(1, session.StopCalls(batteryChar))
	s.Equal(0, session.ActiveNotifications(batteryChar))
	s.False(session.Notify(batteryChar, []byte("43")))

	s.NoError(s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id2), "unknown subscriber MUST be ignored")
}

func (s *ManagerTestSuite) TestResubscribeAfterTeardown() {
	s.scanD1()
	session := s.Transport.Session("D1")

	id, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)
	s.Require().NoError(s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id))

	_, err = s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)
	s.Equal(2, session.StartCalls(batteryChar))
	s.Equal(1, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
}

func (s *ManagerTestSuite) TestSubscribeRequiresNotify() {
	s.use(testutils.NewFakeTransport().
		WithPeripheral("D1", "Sensor").
		WithService("181A").
		WithCharacteristic("2A6E", "read", []byte{0x10, 0x09}).
		Build(), false)
	s.scanD1()

	_, err := s.mgr.Subscribe(s.ctx, "D1", "181A", "2A6E", func(string) {})
	s.ErrorIs(err, device.ErrUnsupported)
	s.Len(s.rec.errors(events.KindError), 1)
	s.Equal(0, s.mgr.ActiveRegistrations("D1", "181A", "2A6E"))
	s.Equal(0, s.Transport.Session("D1").StartCalls("2A6E"))
}

func (s *ManagerTestSuite) TestSubscribeNotConnected() {
	_, err := s.mgr.Pair(s.ctx)
	s.Require().NoError(err)

	_, err = s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.True(device.IsConnectionState(err, device.NotConnected))
	s.Equal(0, s.mgr.Subscribers("D1", batterySvc, batteryChar))
}

func (s *ManagerTestSuite) TestSubscribeDecodesWithCustomFormatter() {
	s.mgr.RegisterCustomCharacteristic(manager.CustomCharacteristic{
		UUID: batteryChar,
		Key:  "battery",
		Formatter: func(v []byte) (string, error) {
			if len(v) == 0 {
				return "", errors.New("empty")
			}
			return fmt.Sprintf("%d%%", v[0]), nil
		},
	})
	s.scanD1()

	values := make(chan string, 2)
	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(v string) { values <- v })
	s.Require().NoError(err)

	session := s.Transport.Session("D1")
	session.Notify(batteryChar, []byte{77})
	s.Equal("77%", <-values)

	session.Notify(batteryChar, []byte{})
	s.Equal("", <-values, "failing formatter MUST fall back to text")

	cached, ok := s.mgr.CharacteristicValue(batteryChar)
	s.Require().True(ok)
	s.Empty(cached.Value)
	s.Equal(2, s.rec.count(events.KindCharacteristicRead))
}

func (s *ManagerTestSuite) TestPanickingSubscriberDoesNotStopFanOut() {
	s.scanD1()

	_, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) { panic("boom") })
	s.Require().NoError(err)
	values := make(chan string, 1)
	_, err = s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(v string) { values <- v })
	s.Require().NoError(err)

	s.Transport.Session("D1").Notify(batteryChar, []byte("ok"))
	s.Equal("ok", <-values)
}

func (s *ManagerTestSuite) TestStartNotificationsFeedsCache() {
	// GOAL: Verify low-level notifications update the cache and tree and share the registration
	//
	// TEST SCENARIO: start twice → one registration → notify → cached + event → stop → torn down

	s.scanD1()
	session := s.Transport.Session("D1")

	s.Require().NoError(s.mgr.StartNotifications(s.ctx, "D1", batterySvc, batteryChar))
	s.Require().NoError(s.mgr.StartNotifications(s.ctx, "D1", batterySvc, batteryChar))
	s.Equal(1, session.StartCalls(batteryChar))

	s.Require().True(session.Notify(batteryChar, []byte{61}))
	cached, ok := s.mgr.CharacteristicValue(batteryChar)
	s.Require().True(ok)
	s.Equal([]byte{61}, cached.Value)
	d, _ := s.mgr.Device("D1")
	s.Equal([]byte{61}, d.Services[0].Characteristics[0].Value)
	s.Equal(1, s.rec.count(events.KindCharacteristicRead))

	// a subscriber keeps the registration alive past StopNotifications
	id, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
	s.Require().NoError(err)
	s.Require().NoError(s.mgr.StopNotifications(s.ctx, "D1", batterySvc, batteryChar))
	s.Equal(1, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))

	s.Require().NoError(s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id))
	s.Equal(0, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
	s.Equal(1, session.StopCalls(batteryChar))
}

func (s *ManagerTestSuite) TestConcurrentSubscribeUnsubscribe() {
	s.scanD1()
	session := s.Transport.Session("D1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.mgr.Subscribe(s.ctx, "D1", batterySvc, batteryChar, func(string) {})
			if err != nil {
				return
			}
			_ = s.mgr.Unsubscribe(s.ctx, "D1", batterySvc, batteryChar, id)
		}()
	}
	wg.Wait()

	s.Equal(0, s.mgr.Subscribers("D1", batterySvc, batteryChar))
	s.Equal(0, s.mgr.ActiveRegistrations("D1", batterySvc, batteryChar))
	s.Equal(0, session.ActiveNotifications(batteryChar), "no registration MUST outlive its subscribers")
	s.Equal(session.StartCalls(batteryChar), session.StopCalls(batteryChar))
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
