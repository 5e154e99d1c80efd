package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/wwj718/spherov2/internal/testutils"
	"github.com/wwj718/spherov2/scanner"
	"github.com/wwj718/spherov2/toy"
)

func scanFixtures(now time.Time) []scanner.Discovery {
	return []scanner.Discovery{
		{
			Name:     "D2-55A2",
			Address:  "aa:bb:cc:dd:ee:01",
			Model:    toy.ModelR2D2,
			RSSI:     -40,
			LastSeen: now.Add(-5 * time.Second),
		},
		{
			Name:     "SM-9C1F",
			Address:  "aa:bb:cc:dd:ee:02",
			Model:    toy.ModelMini,
			RSSI:     -67,
			LastSeen: now.Add(-62 * time.Second),
		},
	}
}

func TestRenderDiscoveryTable(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, renderDiscoveries(&buf, scanFixtures(now), "table", now))

	expected := `2 toy(s) discovered
NAME     MODEL        ADDRESS            RSSI     LAST SEEN
D2-55A2  R2-D2        aa:bb:cc:dd:ee:01  -40 dBm  5s ago
SM-9C1F  Sphero Mini  aa:bb:cc:dd:ee:02  -67 dBm  1m2s ago
`
	testutils.NewTextAsserter(t).Assert(buf.String(), expected)
}

func TestRenderDiscoveryTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderDiscoveries(&buf, nil, "table", time.Now()))
	require.Equal(t, "No toys discovered\n", buf.String())
}

func TestRenderDiscoveryJSON(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, renderDiscoveries(&buf, scanFixtures(now), "json", now))

	expected := `[
		{
			"name": "D2-55A2",
			"address": "aa:bb:cc:dd:ee:01",
			"model": "R2-D2",
			"rssi": -40,
			"lastSeen": "2025-06-01T11:59:55Z"
		},
		{
			"name": "SM-9C1F",
			"address": "aa:bb:cc:dd:ee:02",
			"model": "Sphero Mini",
			"rssi": -67,
			"lastSeen": "2025-06-01T11:58:58Z"
		}
	]`
	testutils.NewJSONAsserter(t).Assert(buf.String(), expected)
}

func TestRenderDiscoveryCSV(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, renderDiscoveries(&buf, scanFixtures(now), "csv", now))

	expected := `name,model,address,rssi,last_seen
D2-55A2,R2-D2,aa:bb:cc:dd:ee:01,-40,2025-06-01T11:59:55Z
SM-9C1F,Sphero Mini,aa:bb:cc:dd:ee:02,-67,2025-06-01T11:58:58Z
`
	testutils.NewTextAsserter(t).Assert(buf.String(), expected)
}
