package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Populated by the release build via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const rootLong = `Command-line tool for Sphero-family robots (BB-8, BB-9E, R2-D2, R2-Q5,
Sphero Mini, Sphero BOLT, Ollie) over Bluetooth Low Energy:

- Scan for nearby toys and identify their models
- Inspect firmware versions, MAC address, SKU and battery
- Drive: roll, spin in place, aim
- Set the LEDs, including droid dome, holoprojector and logic displays
- Stream live sensor data (location, velocity, IMU, collisions)
- Ping round-trip latency and put toys to sleep

Toys are addressed by their advertised name ("D2-55A2") or by model
keyword ("mini", "r2d2"); with no target the first toy found is used.`

// newRootCmd assembles the command tree. SilenceErrors is on because
// main prints its own clean error line without Cobra's "Error:" prefix.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sphero",
		Short:         "Sphero robot command-line tool",
		Long:          rootLong,
		Version:       buildVersion(),
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "Config file (YAML)")
	root.Flags().BoolP("version", "v", false, "Show version information")

	for _, sub := range []*cobra.Command{
		scanCmd, infoCmd, rollCmd, spinCmd, ledCmd, streamCmd, pingCmd, sleepCmd,
	} {
		root.AddCommand(sub)
	}
	return root
}

// buildVersion renders the ldflags triple as "v1.2.3 (abc1234, 2026-01-02)",
// degrading to the bare version when commit and date were not stamped.
func buildVersion() string {
	v := version
	if v != "" && v[0] >= '0' && v[0] <= '9' {
		v = "v" + v
	}
	var stamp []string
	if commit != "none" {
		stamp = append(stamp, commit)
	}
	if date != "unknown" {
		stamp = append(stamp, date)
	}
	if len(stamp) > 0 {
		v += " (" + strings.Join(stamp, ", ") + ")"
	}
	return v
}

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// Ctrl+C is a normal exit.
	default:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(1)
	}
}
