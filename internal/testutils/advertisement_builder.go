package testutils

import (
	"github.com/go-ble/ble"
	"github.com/wwj718/spherov2/internal/testutils/mocks"
)

// AdvertisementBuilder assembles a mocked ble.Advertisement one field at
// a time. Each With call records a stub and Build installs expectations
// for exactly the recorded fields, so code under test that reads a field
// the fixture never declared fails loudly instead of getting a silent
// zero value. The scanner suites lean on this: a fixture carrying only a
// name proves the scan path rejects foreign peripherals before ever
// touching their address.
type AdvertisementBuilder struct {
	stubs []func(*mocks.MockAdvertisement)
}

// NewAdvertisementBuilder returns a builder with no fields declared.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{}
}

func (b *AdvertisementBuilder) record(stub func(*mocks.MockAdvertisement)) *AdvertisementBuilder {
	b.stubs = append(b.stubs, stub)
	return b
}

// WithName declares the advertised local name.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	return b.record(func(m *mocks.MockAdvertisement) {
		m.On("LocalName").Return(name)
	})
}

// WithAddress declares the peripheral address.
func (b *AdvertisementBuilder) WithAddress(address string) *AdvertisementBuilder {
	return b.record(func(m *mocks.MockAdvertisement) {
		addr := &mocks.MockAddr{}
		addr.On("String").Return(address)
		m.On("Addr").Return(addr)
	})
}

// WithRSSI declares the received signal strength in dBm.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	return b.record(func(m *mocks.MockAdvertisement) {
		m.On("RSSI").Return(rssi)
	})
}

// WithConnectable declares whether the peripheral accepts connections.
func (b *AdvertisementBuilder) WithConnectable(connectable bool) *AdvertisementBuilder {
	return b.record(func(m *mocks.MockAdvertisement) {
		m.On("Connectable").Return(connectable)
	})
}

// Build materializes the mock with expectations for the declared fields.
// The builder stays reusable; every call yields a fresh mock.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}
	for _, stub := range b.stubs {
		stub(adv)
	}
	return adv
}

// AdvertisementArrayBuilder collects advertisements for a scan fixture
// in replay order. The type parameter picks what Build hands back: the
// bare slice, or a parent builder when attach is set, which is how
// PeripheralDeviceBuilder.WithScanAdvertisements chains the collector
// back into the device configuration.
type AdvertisementArrayBuilder[T any] struct {
	ads    []ble.Advertisement
	parent T
	attach func(T, []ble.Advertisement) T
}

// NewAdvertisementArrayBuilder returns a collector with no parent.
// Build on such a collector yields the advertisement slice itself, so T
// must be []ble.Advertisement.
func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{}
}

// WithAdvertisements appends advertisements in the order a scan will
// replay them.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...ble.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.ads = append(ab.ads, ads...)
	return ab
}

// Build hands the collected advertisements to the parent when one is
// attached, otherwise returns them as T.
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.attach != nil {
		return ab.attach(ab.parent, ab.ads)
	}
	var out any = ab.ads
	return out.(T)
}
