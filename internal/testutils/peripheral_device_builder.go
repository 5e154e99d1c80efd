package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
	"github.com/wwj718/spherov2/internal/packet"
	"github.com/wwj718/spherov2/internal/spherodb"
	"github.com/wwj718/spherov2/internal/testutils/mocks"
)

// CharacteristicConfig describes one mocked characteristic. Properties
// is a comma-separated subset of "read", "write", "notify"; empty means
// all three.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"`
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes one mocked GATT service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the whole profile a mocked peripheral exposes.
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// APIResponder scripts the peripheral side of the v2 protocol. It receives
// each complete frame written to the API characteristic and returns zero or
// more frames to notify back to the subscriber.
type APIResponder func(frame []byte) [][]byte

// AutoAck acknowledges every request that wants a response with an empty
// success payload. Fire-and-forget writes produce nothing.
func AutoAck(frame []byte) [][]byte {
	req, err := packet.Decode(frame)
	if err != nil || !req.RequestsResponse() {
		return nil
	}
	resp := &packet.Packet{
		Flags:     packet.FlagIsResponse,
		DeviceID:  req.DeviceID,
		CommandID: req.CommandID,
		Sequence:  req.Sequence,
		Error:     packet.ErrorSuccess,
	}
	return [][]byte{resp.Encode()}
}

// PeripheralDeviceBuilder builds a mocked BLE peripheral with full
// service/characteristic support and an optional scripted v2 responder.
type PeripheralDeviceBuilder struct {
	t                  *testing.T
	name               string
	profile            DeviceProfileConfig
	scanAdvertisements []blelib.Advertisement
	responder          APIResponder

	disconnected   chan struct{}
	disconnectOnce sync.Once

	mu      sync.Mutex
	subs    map[string]blelib.NotificationHandler
	pending []byte // partial API frame across chunked writes
	writes  [][]byte
}

// NewPeripheralDeviceBuilder creates a builder for an empty peripheral
// advertising itself as a Sphero Mini.
func NewPeripheralDeviceBuilder(t *testing.T) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		t:            t,
		name:         "SM-0000",
		disconnected: make(chan struct{}),
		subs:         make(map[string]blelib.NotificationHandler),
	}
}

// WithService appends an empty service to the profile.
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic appends a characteristic to the most recently added
// service.
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("testutils: WithCharacteristic before any WithService")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithSpheroProfile fills the profile with the GATT layout every
// Sphero-family toy exposes: the API service plus the DFU service
// carrying the anti-DoS characteristic.
func (b *PeripheralDeviceBuilder) WithSpheroProfile() *PeripheralDeviceBuilder {
	return b.FromJSON(`
	{
		"services": [
			{
				"uuid": %q,
				"characteristics": [
					{ "uuid": %q, "properties": "write,notify" }
				]
			},
			{
				"uuid": %q,
				"characteristics": [
					{ "uuid": %q, "properties": "read,write" },
					{ "uuid": %q, "properties": "read,write" }
				]
			}
		]
	}`, spherodb.APIService, spherodb.APICharacteristic,
		spherodb.DFUService, spherodb.DFUControlCharacteristic, spherodb.AntiDoSCharacteristic)
}

// WithAPIResponder installs the script answering API characteristic writes.
func (b *PeripheralDeviceBuilder) WithAPIResponder(fn APIResponder) *PeripheralDeviceBuilder {
	b.responder = fn
	return b
}

// WithAutoAck installs the AutoAck responder.
func (b *PeripheralDeviceBuilder) WithAutoAck() *PeripheralDeviceBuilder {
	return b.WithAPIResponder(AutoAck)
}

// FromJSON replaces the profile with one parsed from the formatted JSON
// document. Bad documents panic, which is what a broken fixture deserves.
func (b *PeripheralDeviceBuilder) FromJSON(format string, args ...any) *PeripheralDeviceBuilder {
	var profile DeviceProfileConfig
	doc := fmt.Sprintf(format, args...)
	if err := json.Unmarshal([]byte(doc), &profile); err != nil {
		panic(fmt.Sprintf("testutils: bad profile JSON: %v", err))
	}
	b.profile = profile
	return b
}

// WithScanAdvertisements starts collecting advertisements a Scan on the
// built device replays, chaining back to this builder on Build.
func (b *PeripheralDeviceBuilder) WithScanAdvertisements() *AdvertisementArrayBuilder[*PeripheralDeviceBuilder] {
	collector := NewAdvertisementArrayBuilder[*PeripheralDeviceBuilder]()
	collector.parent = b
	collector.attach = func(parent *PeripheralDeviceBuilder, ads []blelib.Advertisement) *PeripheralDeviceBuilder {
		parent.scanAdvertisements = append(parent.scanAdvertisements, ads...)
		return parent
	}
	return collector
}

// parseProperties turns a comma-separated property list into ble flags.
// Empty or unrecognized input grants everything.
func parseProperties(spec string) blelib.Property {
	all := blelib.CharRead | blelib.CharWrite | blelib.CharNotify
	var p blelib.Property
	for _, tok := range strings.Split(spec, ",") {
		switch strings.TrimSpace(tok) {
		case "read":
			p |= blelib.CharRead
		case "write":
			p |= blelib.CharWrite
		case "notify":
			p |= blelib.CharNotify
		}
	}
	if p == 0 {
		return all
	}
	return p
}

// gattProfile materializes the config into the ble.Profile DiscoverProfile
// hands back.
func (b *PeripheralDeviceBuilder) gattProfile() *blelib.Profile {
	profile := &blelib.Profile{}
	for _, svc := range b.profile.Services {
		service := &blelib.Service{UUID: blelib.MustParse(svc.UUID)}
		for _, char := range svc.Characteristics {
			service.Characteristics = append(service.Characteristics, &blelib.Characteristic{
				UUID:     blelib.MustParse(char.UUID),
				Property: parseProperties(char.Properties),
				Value:    char.Value,
			})
		}
		profile.Services = append(profile.Services, service)
	}
	return profile
}

// Build creates a mocked ble.Device with the configured profile.
func (b *PeripheralDeviceBuilder) Build() blelib.Device {
	device := &mocks.MockDevice{}
	client := &mocks.MockClient{}
	addr := &mocks.MockAddr{}
	addr.On("String").Return("aa:bb:cc:dd:ee:ff")

	profile := b.gattProfile()

	device.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	device.On("Stop").Return(nil)
	client.On("DiscoverProfile", true).Return(profile, nil)
	client.On("CancelConnection").Return(nil)
	client.On("Name").Return(b.name)
	client.On("Addr").Return(addr)
	client.On("Disconnected").Return((<-chan struct{})(b.disconnected))

	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			client.On("Subscribe", char, false, mock.Anything).Run(func(args mock.Arguments) {
				handler, _ := args.Get(2).(blelib.NotificationHandler)
				b.mu.Lock()
				b.subs[spherodb.NormalizeUUID(char.UUID.String())] = handler
				b.mu.Unlock()
			}).Return(nil)
			client.On("Unsubscribe", char, false).Return(nil)
			client.On("Unsubscribe", char, true).Return(nil)

			if char.Property&blelib.CharRead != 0 {
				client.On("ReadCharacteristic", char).Return(char.Value, nil)
			} else {
				client.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic %s is not readable", char.UUID))
			}

			if char.Property&blelib.CharWrite != 0 {
				client.On("WriteCharacteristic", char, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
					data, _ := args.Get(1).([]byte)
					b.handleWrite(char, data)
				}).Return(nil)
			} else {
				client.On("WriteCharacteristic", char, mock.Anything, mock.Anything).Return(fmt.Errorf("characteristic %s is not writable", char.UUID))
			}
		}
	}

	// Scan replays the configured advertisements into the handler.
	device.On("Scan", mock.Anything, mock.Anything, mock.MatchedBy(func(handler blelib.AdvHandler) bool {
		for _, adv := range b.scanAdvertisements {
			handler(adv)
		}
		return true
	})).Return(nil)

	if b.t != nil {
		b.t.Cleanup(b.Disconnect)
	}

	return device
}

// Disconnect simulates an out-of-band connection drop. Idempotent.
func (b *PeripheralDeviceBuilder) Disconnect() {
	b.disconnectOnce.Do(func() { close(b.disconnected) })
}

// Notify pushes a frame to the handler subscribed on the characteristic.
// Returns false when nothing has subscribed yet.
func (b *PeripheralDeviceBuilder) Notify(uuid string, frame []byte) bool {
	b.mu.Lock()
	handler := b.subs[spherodb.NormalizeUUID(uuid)]
	b.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(frame)
	return true
}

// Written returns every complete frame seen on the API characteristic.
func (b *PeripheralDeviceBuilder) Written() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.writes))
	copy(out, b.writes)
	return out
}

// handleWrite reassembles chunked API writes into frames and runs the
// responder on each one.
func (b *PeripheralDeviceBuilder) handleWrite(char *blelib.Characteristic, data []byte) {
	if spherodb.NormalizeUUID(char.UUID.String()) != spherodb.APICharacteristic {
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, data...)
	var frames [][]byte
	for {
		frame, rest, ok := splitFrame(b.pending)
		b.pending = rest
		if !ok {
			break
		}
		frames = append(frames, frame)
		b.writes = append(b.writes, frame)
	}
	responder := b.responder
	handler := b.subs[spherodb.APICharacteristic]
	b.mu.Unlock()

	if responder == nil || handler == nil {
		return
	}
	for _, frame := range frames {
		for _, resp := range responder(frame) {
			handler(resp)
		}
	}
}

// splitFrame cuts one complete frame off the front of buf. Bytes before
// the start delimiter are noise and get dropped.
func splitFrame(buf []byte) (frame, rest []byte, ok bool) {
	start := bytes.IndexByte(buf, packet.StartOfPacket)
	if start < 0 {
		return nil, nil, false
	}
	end := bytes.IndexByte(buf[start:], packet.EndOfPacket)
	if end < 0 {
		return nil, buf[start:], false
	}
	end += start
	out := make([]byte, end-start+1)
	copy(out, buf[start:end+1])
	return out, buf[end+1:], true
}
