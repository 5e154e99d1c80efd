//go:build test

package testutils

import (
	"encoding/json"
	"testing"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/suite"
	"github.com/wwj718/spherov2/internal/commands"
	"github.com/wwj718/spherov2/internal/packet"
	"github.com/wwj718/spherov2/internal/spherodb"
)

// PeripheralDeviceBuilderTestSuite tests PeripheralDeviceBuilder functionality
type PeripheralDeviceBuilderTestSuite struct {
	suite.Suite
}

// getBuiltProfile extracts the BLE profile from a built device
func (s *PeripheralDeviceBuilderTestSuite) getBuiltProfile(device blelib.Device) *blelib.Profile {
	client, _ := device.Dial(nil, nil)
	profile, _ := client.DiscoverProfile(true)
	return profile
}

// profileToJSON serializes BLE profile to JSON
func (s *PeripheralDeviceBuilderTestSuite) profileToJSON(profile *blelib.Profile) string {
	type characteristicJSON struct {
		UUID  string `json:"uuid"`
		Value []byte `json:"value,omitempty"`
	}
	type serviceJSON struct {
		UUID            string               `json:"uuid"`
		Characteristics []characteristicJSON `json:"characteristics"`
	}
	type profileJSON struct {
		Services []serviceJSON `json:"services"`
	}

	result := profileJSON{}
	for _, svc := range profile.Services {
		svcJSON := serviceJSON{UUID: svc.UUID.String()}
		for _, char := range svc.Characteristics {
			svcJSON.Characteristics = append(svcJSON.Characteristics, characteristicJSON{
				UUID:  char.UUID.String(),
				Value: char.Value,
			})
		}
		result.Services = append(result.Services, svcJSON)
	}

	jsonBytes, _ := json.MarshalIndent(result, "", "  ")
	return string(jsonBytes)
}

// subscribeAPI dials the built device and subscribes a collector to the
// API characteristic, returning the channel the collector feeds.
func (s *PeripheralDeviceBuilderTestSuite) subscribeAPI(device blelib.Device) (blelib.Client, *blelib.Characteristic, chan []byte) {
	client, err := device.Dial(nil, nil)
	s.Require().NoError(err)
	profile, err := client.DiscoverProfile(true)
	s.Require().NoError(err)

	var apiChar *blelib.Characteristic
	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			if spherodb.NormalizeUUID(char.UUID.String()) == spherodb.APICharacteristic {
				apiChar = char
			}
		}
	}
	s.Require().NotNil(apiChar, "Sphero profile MUST expose the API characteristic")

	received := make(chan []byte, 16)
	err = client.Subscribe(apiChar, false, func(data []byte) {
		received <- data
	})
	s.Require().NoError(err)
	return client, apiChar, received
}

func (s *PeripheralDeviceBuilderTestSuite) TestProfileConstruction() {
	s.Run("Fluent", func() {
		// GOAL: Verify WithService/WithCharacteristic build the profile DiscoverProfile returns
		//
		// TEST SCENARIO: Build one service with one characteristic → JSON comparison of the discovered profile

		builder := NewPeripheralDeviceBuilder(s.T()).
			WithService("1234").
			WithCharacteristic("5678", "read,notify", []byte{0x2A})

		device := builder.Build()
		profile := s.getBuiltProfile(device)

		expected := MustJSON(map[string]interface{}{
			"services": []interface{}{
				map[string]interface{}{
					"uuid": "1234",
					"characteristics": []interface{}{
						map[string]interface{}{"uuid": "5678", "value": []byte{0x2A}},
					},
				},
			},
		})
		NewJSONAsserter(s.T()).Assert(s.profileToJSON(profile), expected)
	})

	s.Run("SpheroLayout", func() {
		// GOAL: Verify WithSpheroProfile exposes the API service plus the DFU service with the anti-DoS characteristic
		//
		// TEST SCENARIO: Build the standard profile → discovered profile carries the well-known UUIDs

		device := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile().Build()
		profile := s.getBuiltProfile(device)

		uuids := map[string]bool{}
		for _, svc := range profile.Services {
			uuids[spherodb.NormalizeUUID(svc.UUID.String())] = true
			for _, char := range svc.Characteristics {
				uuids[spherodb.NormalizeUUID(char.UUID.String())] = true
			}
		}

		s.Assert().True(uuids[spherodb.APIService])
		s.Assert().True(uuids[spherodb.APICharacteristic])
		s.Assert().True(uuids[spherodb.DFUService])
		s.Assert().True(uuids[spherodb.AntiDoSCharacteristic])
	})
}

func (s *PeripheralDeviceBuilderTestSuite) TestAPIResponder() {
	s.Run("AutoAck", func() {
		// GOAL: Verify AutoAck answers a command frame with an empty success response carrying the same addressing
		//
		// TEST SCENARIO: Subscribe to the API characteristic, write an encoded wake command → ack arrives with matching seq

		builder := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile().WithAutoAck()
		device := builder.Build()
		client, apiChar, received := s.subscribeAPI(device)

		req := packet.New(commands.DevicePower, 0x0D)
		req.Sequence = 0x17
		s.Require().NoError(client.WriteCharacteristic(apiChar, req.Encode(), false))

		select {
		case frame := <-received:
			resp, err := packet.Decode(frame)
			s.Require().NoError(err)
			s.Assert().True(resp.IsResponse())
			s.Assert().Equal(byte(0x17), resp.Sequence)
			s.Assert().Equal(packet.ErrorSuccess, resp.Error)
			s.Assert().Equal(req.DeviceID, resp.DeviceID)
			s.Assert().Equal(req.CommandID, resp.CommandID)
		default:
			s.Fail("no response notified for the command")
		}

		written := builder.Written()
		s.Require().Len(written, 1)
		s.Assert().Equal(req.Encode(), written[0])
	})

	s.Run("ChunkedWrite", func() {
		// GOAL: Verify frames split across several writes are reassembled before the responder runs
		//
		// TEST SCENARIO: Write one frame in two chunks → exactly one frame recorded, one ack notified

		builder := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile().WithAutoAck()
		device := builder.Build()
		client, apiChar, received := s.subscribeAPI(device)

		frame := packet.New(commands.DeviceDriving, 0x07, 0x80, 0x00, 0x5A, 0x00).Encode()
		cut := len(frame) / 2
		s.Require().NoError(client.WriteCharacteristic(apiChar, frame[:cut], false))
		s.Assert().Empty(builder.Written(), "partial frame MUST NOT reach the responder")
		s.Require().NoError(client.WriteCharacteristic(apiChar, frame[cut:], false))

		s.Require().Len(builder.Written(), 1)
		s.Assert().Equal(frame, builder.Written()[0])
		s.Assert().Len(received, 1)
	})

	s.Run("FireAndForgetProducesNoAck", func() {
		// GOAL: Verify frames that do not request a response stay unanswered
		//
		// TEST SCENARIO: Write a frame with only the inactivity flag set → nothing notified back

		builder := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile().WithAutoAck()
		device := builder.Build()
		client, apiChar, received := s.subscribeAPI(device)

		req := packet.New(commands.DeviceDriving, 0x07)
		req.Flags = packet.FlagResetsInactivityTimeout
		s.Require().NoError(client.WriteCharacteristic(apiChar, req.Encode(), false))

		s.Assert().Len(builder.Written(), 1)
		s.Assert().Empty(received)
	})
}

func (s *PeripheralDeviceBuilderTestSuite) TestNotify() {
	// GOAL: Verify Notify pushes frames to the subscriber and reports when nothing listens
	//
	// TEST SCENARIO: Notify before subscription returns false; after subscribing the frame arrives verbatim

	builder := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile()
	device := builder.Build()

	event := packet.Packet{
		Flags:     packet.FlagResetsInactivityTimeout,
		DeviceID:  commands.DeviceSensor,
		CommandID: 0x12,
		Sequence:  packet.NotifySequence,
		Data:      []byte{0x01},
	}
	s.Assert().False(builder.Notify(spherodb.APICharacteristic, event.Encode()))

	_, _, received := s.subscribeAPI(device)
	s.Require().True(builder.Notify(spherodb.APICharacteristic, event.Encode()))

	select {
	case frame := <-received:
		s.Assert().Equal(event.Encode(), frame)
	default:
		s.Fail("notified frame did not reach the subscriber")
	}
}

func (s *PeripheralDeviceBuilderTestSuite) TestDisconnect() {
	// GOAL: Verify Disconnect closes the channel clients watch and stays idempotent
	//
	// TEST SCENARIO: Build, dial, Disconnect twice → channel reports closure exactly once

	builder := NewPeripheralDeviceBuilder(s.T()).WithSpheroProfile()
	device := builder.Build()
	client, _ := device.Dial(nil, nil)

	ch := client.Disconnected()
	select {
	case <-ch:
		s.Fail("channel MUST stay open until Disconnect")
	default:
	}

	builder.Disconnect()
	builder.Disconnect()

	select {
	case <-ch:
	default:
		s.Fail("channel MUST be closed after Disconnect")
	}
}

func (s *PeripheralDeviceBuilderTestSuite) TestScanAdvertisements() {
	// GOAL: Verify configured advertisements are replayed to the scan handler
	//
	// TEST SCENARIO: Attach two advertisements, run Scan → handler sees both names in order

	adv1 := NewAdvertisementBuilder().WithName("SM-3E61").WithAddress("AA:BB:CC:DD:EE:01").WithRSSI(-40).Build()
	adv2 := NewAdvertisementBuilder().WithName("D2-55A2").WithAddress("AA:BB:CC:DD:EE:02").WithRSSI(-62).Build()

	device := NewPeripheralDeviceBuilder(s.T()).
		WithSpheroProfile().
		WithScanAdvertisements().
		WithAdvertisements(adv1, adv2).
		Build().
		Build()

	var names []string
	err := device.Scan(nil, false, func(a blelib.Advertisement) {
		names = append(names, a.LocalName())
	})
	s.Require().NoError(err)
	s.Assert().Equal([]string{"SM-3E61", "D2-55A2"}, names)
}

func TestPeripheralDeviceBuilder(t *testing.T) {
	suite.Run(t, new(PeripheralDeviceBuilderTestSuite))
}
