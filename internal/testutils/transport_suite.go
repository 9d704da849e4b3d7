package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// FakeTransportSuite provides a reusable test suite with a simulated transport.
//
// Basic usage (default peripheral "D1" named "Widget" with a battery service):
//
//	type SimpleSuite struct {
//	    testutils.FakeTransportSuite
//	}
//
// Custom profile usage:
//
//	func (s *InspectSuite) SetupTest() {
//	    s.WithPeripheral("D1", "Heart").
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.FakeTransportSuite.SetupTest() // Call parent last to apply configuration
//	}
type FakeTransportSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration

	TransportBuilder *FakeTransportBuilder
	Transport        *FakeTransport
}

// SetupSuite is called once before all tests in the suite.
func (s *FakeTransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
}

// SetupTest builds the configured transport, falling back to the default profile.
func (s *FakeTransportSuite) SetupTest() {
	if s.TransportBuilder == nil {
		s.TransportBuilder = defaultTransportBuilder()
	}
	s.Transport = s.TransportBuilder.Build()
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the builder so the next test starts from scratch.
func (s *FakeTransportSuite) TearDownTest() {
	s.TransportBuilder = nil
	s.Transport = nil
}

// WithPeripheral starts (or continues) the transport profile with a new peripheral.
func (s *FakeTransportSuite) WithPeripheral(id, name string) *FakeTransportBuilder {
	if s.TransportBuilder == nil {
		s.TransportBuilder = NewFakeTransport()
	}
	return s.TransportBuilder.WithPeripheral(id, name)
}

// defaultTransportBuilder describes peripheral D1 with a Battery Service (180F)
// whose Battery Level (2A19) reads 50%.
func defaultTransportBuilder() *FakeTransportBuilder {
	return NewFakeTransport().
		WithPeripheral("D1", "Widget").
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50})
}
