//go:build test

package scanner_test

import (
	"context"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srgg/testify/depend"
	"github.com/stretchr/testify/require"
	"github.com/wwj718/spherov2/internal/testutils"
	"github.com/wwj718/spherov2/scanner"
	"github.com/wwj718/spherov2/toy"
)

type ScannerTestSuite struct {
	testutils.MockBLEPeripheralSuite

	adv1, adv2, adv3 blelib.Advertisement
	sm, d2, bb       scanner.Discovery
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.adv1 = testutils.NewAdvertisementBuilder().
		WithAddress("C0:F2:1D:70:A4:9E").
		WithName("SM-3E61").
		WithRSSI(-42).
		WithConnectable(true).
		Build()
	suite.sm = scanner.Discovery{Name: "SM-3E61", Address: "C0:F2:1D:70:A4:9E", Model: toy.ModelMini, RSSI: -42}

	suite.adv2 = testutils.NewAdvertisementBuilder().
		WithAddress("E3:8A:5C:22:B0:47").
		WithName("D2-55A2").
		WithRSSI(-61).
		WithConnectable(true).
		Build()
	suite.d2 = scanner.Discovery{Name: "D2-55A2", Address: "E3:8A:5C:22:B0:47", Model: toy.ModelR2D2, RSSI: -61}

	suite.adv3 = testutils.NewAdvertisementBuilder().
		WithAddress("F1:09:6B:D4:3E:55").
		WithName("BB-92F0").
		WithRSSI(-77).
		WithConnectable(true).
		Build()
	suite.bb = scanner.Discovery{Name: "BB-92F0", Address: "F1:09:6B:D4:3E:55", Model: toy.ModelBB8, RSSI: -77}

	// Non-Sphero peripheral that every scan must ignore, plus a repeat
	// of the first advertisement to exercise the updated-event path.
	speaker := testutils.NewAdvertisementBuilder().
		WithName("JBL Flip 5").
		Build()
	adv1Again := testutils.NewAdvertisementBuilder().
		WithAddress("C0:F2:1D:70:A4:9E").
		WithName("SM-3E61").
		WithRSSI(-41).
		Build()

	suite.WithAdvertisements().
		WithAdvertisements(suite.adv1, suite.adv2, suite.adv3, speaker, adv1Again).
		Build()

	suite.MockBLEPeripheralSuite.SetupTest()
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("creates scanner with provided logger", func() {
		s, err := scanner.NewScanner(suite.Logger)

		suite.NoError(err)
		suite.NotNil(s)
	})

	suite.Run("creates scanner with nil logger", func() {
		s, err := scanner.NewScanner(nil)

		suite.NoError(err)
		suite.NotNil(s)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.NotNil(opts)
	suite.Equal(10*time.Second, opts.Duration)
	suite.True(opts.DuplicateFilter)
	suite.Empty(opts.Models)
	suite.Empty(opts.Name)
	suite.Nil(opts.AllowList)
	suite.Nil(opts.BlockList)
}

func (suite *ScannerTestSuite) TestScannerFiltering() {
	tests := []struct {
		name        string
		scanOptions *scanner.ScanOptions
		expected    []scanner.Discovery
	}{
		{
			name:        "includes every toy with no filters",
			scanOptions: &scanner.ScanOptions{},
			expected:    []scanner.Discovery{suite.sm, suite.d2, suite.bb},
		},
		{
			name: "excludes toy on block list",
			scanOptions: &scanner.ScanOptions{
				BlockList: []string{"C0:F2:1D:70:A4:9E"},
			},
			expected: []scanner.Discovery{suite.d2, suite.bb},
		},
		{
			name: "includes only requested models",
			scanOptions: &scanner.ScanOptions{
				Models: []toy.Model{toy.ModelR2D2},
			},
			expected: []scanner.Discovery{suite.d2},
		},
		{
			name: "matches exact advertised name",
			scanOptions: &scanner.ScanOptions{
				Name: "BB-92F0",
			},
			expected: []scanner.Discovery{suite.bb},
		},
		{
			name: "includes toy on allow list",
			scanOptions: &scanner.ScanOptions{
				AllowList: []string{"C0:F2:1D:70:A4:9E"},
			},
			expected: []scanner.Discovery{suite.sm},
		},
		{
			name: "excludes toy not on allow list",
			scanOptions: &scanner.ScanOptions{
				AllowList: []string{"0A:0B:0C:0D:0E:0F"},
			},
			expected: []scanner.Discovery{},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			helper := testutils.NewTestHelper(suite.T())

			s, err := scanner.NewScanner(helper.Logger)
			require.NoError(suite.T(), err)

			if tt.scanOptions.Duration == 0 {
				tt.scanOptions.Duration = 100 * time.Millisecond
			}

			discovered, err := s.Scan(context.Background(), tt.scanOptions, nil)

			require.NoError(suite.T(), err, "Scan should complete without error")
			require.NotNil(suite.T(), discovered, "Discovery list should not be nil")

			// Expectations read in discovery order while Scan returns
			// address order, so compare the arrays order-insensitively.
			testutils.NewJSONAsserter(suite.T()).
				WithOptions(
					testutils.WithIgnoredFields("lastSeen"),
					testutils.WithIgnoreArrayOrder(true),
					testutils.WithIgnoreExtraKeys(false),
				).
				Assert(testutils.MustJSON(discovered), testutils.MustJSON(tt.expected))
		})
	}
}

func (suite *ScannerTestSuite) TestScannerEvents() {
	// The advertisement array replays in order, so the event stream is
	// deterministic: three new toys, then an update for the repeat.
	s, err := scanner.NewScanner(suite.Logger)
	require.NoError(suite.T(), err)

	_, err = s.Scan(context.Background(), &scanner.ScanOptions{Duration: 100 * time.Millisecond}, nil)
	require.NoError(suite.T(), err)

	type step struct {
		typ  scanner.DeviceEventType
		name string
		rssi int
	}
	want := []step{
		{scanner.EventNew, "SM-3E61", -42},
		{scanner.EventNew, "D2-55A2", -61},
		{scanner.EventNew, "BB-92F0", -77},
		{scanner.EventUpdated, "SM-3E61", -41},
	}

	for i, w := range want {
		select {
		case ev := <-s.Events():
			suite.Equal(w.typ, ev.Type, "event %d type", i)
			suite.Equal(w.name, ev.Discovery.Name, "event %d name", i)
			suite.Equal(w.rssi, ev.Discovery.RSSI, "event %d rssi", i)
		default:
			suite.FailNow("missing discovery event", "expected event %d (%s)", i, w.name)
		}
	}
}

func (suite *ScannerTestSuite) TestFindFirst() {
	suite.Run("returns first matching toy and stops early", func() {
		s, err := scanner.NewScanner(suite.Logger)
		require.NoError(suite.T(), err)

		// Generous duration: the early-stop path must win long before it.
		d, err := s.FindFirst(context.Background(), &scanner.ScanOptions{
			Duration: 30 * time.Second,
			Name:     "D2-55A2",
		})

		require.NoError(suite.T(), err)
		suite.Equal("D2-55A2", d.Name)
		suite.Equal(toy.ModelR2D2, d.Model)
	})

	suite.Run("reports not found after a full empty window", func() {
		s, err := scanner.NewScanner(suite.Logger)
		require.NoError(suite.T(), err)

		_, err = s.FindFirst(context.Background(), &scanner.ScanOptions{
			Duration: 100 * time.Millisecond,
			Name:     "SM-NOPE",
		})

		var nf *toy.NotFoundError
		require.ErrorAs(suite.T(), err, &nf)
		suite.Equal("toy", nf.Kind)
	})
}

func (suite *ScannerTestSuite) TestConnect() {
	// GOAL: Verify Connect runs the whole path end to end: dial, GATT
	// discovery, anti-DoS unlock, API subscription and a first command
	// answered by the scripted peripheral.
	d := scanner.Discovery{Name: "SM-3E61", Address: "C0:F2:1D:70:A4:9E", Model: toy.ModelMini}

	ty, err := scanner.Connect(context.Background(), d, &scanner.ConnectOptions{
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 2 * time.Second,
	}, suite.Logger)
	require.NoError(suite.T(), err)
	defer func() { _ = ty.Close() }()

	data, err := ty.Ping(context.Background(), nil)
	suite.NoError(err)
	suite.Empty(data)
}

// TestScannerTestSuite runs the test suite using testify/suite
func TestScannerTestSuite(t *testing.T) {
	depend.RunSuite(t, new(ScannerTestSuite))
}
