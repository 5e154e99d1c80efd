//go:build test

package testutils

import (
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/wwj718/spherov2/adapter/goble"
)

// MockBLEPeripheralSuite is the base suite for tests that want a toy on
// the far side of the adapter without any radio involved. Before each
// test it swaps the goble device factory for one returning a mocked
// peripheral, and it restores the factory afterwards.
//
// Embedding it with no further setup yields a peripheral exposing the
// standard Sphero GATT profile that acknowledges every command. Suites
// needing their own profile or scan fixtures configure the builders in
// SetupTest and call the embedded SetupTest last:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().WithSpheroProfile().WithAutoAck()
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
//
//	func (s *ScanSuite) SetupTest() {
//	    adv := testutils.NewAdvertisementBuilder().WithName("SM-3E61").Build()
//	    s.WithAdvertisements().WithAdvertisements(adv).Build()
//	    s.MockBLEPeripheralSuite.SetupTest()
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	PeripheralBuilder     *PeripheralDeviceBuilder
	AdvertisementsBuilder *AdvertisementArrayBuilder[[]blelib.Advertisement]

	prevFactory func() (blelib.Device, error)
}

func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest builds the configured peripheral and installs it as the
// device factory. Without prior configuration the peripheral carries the
// standard profile with auto-ack.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder(s.T()).
			WithSpheroProfile().
			WithAutoAck()
	}
	if s.AdvertisementsBuilder != nil {
		s.PeripheralBuilder.
			WithScanAdvertisements().
			WithAdvertisements(s.AdvertisementsBuilder.Build()...).
			Build()
	}

	s.prevFactory = goble.DeviceFactory
	goble.DeviceFactory = func() (blelib.Device, error) {
		return s.PeripheralBuilder.Build(), nil
	}
	s.Logger.Debug("Mock peripheral installed as device factory")
}

// TearDownTest puts the factory back and drops the per-test builders so
// each test starts from a clean peripheral.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.prevFactory != nil {
		goble.DeviceFactory = s.prevFactory
		s.prevFactory = nil
	}
	s.PeripheralBuilder = nil
	s.AdvertisementsBuilder = nil
}

// WithPeripheral exposes the peripheral builder for custom profiles.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder(s.T())
	}
	return s.PeripheralBuilder
}

// WithAdvertisements exposes the collector feeding scan fixtures.
func (s *MockBLEPeripheralSuite) WithAdvertisements() *AdvertisementArrayBuilder[[]blelib.Advertisement] {
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = NewAdvertisementArrayBuilder[[]blelib.Advertisement]()
	}
	return s.AdvertisementsBuilder
}
