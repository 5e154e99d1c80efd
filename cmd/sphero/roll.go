package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// rollCmd represents the roll command
var rollCmd = &cobra.Command{
	Use:   "roll [target]",
	Short: "Roll a toy along a heading",
	Long: `Wake a toy, roll it at the given speed and heading for the duration,
stop, and put it back to sleep.

Negative speed rolls backward. While rolling, the drive command is
re-asserted continuously so the firmware's watchdog does not coast the
toy to a stop.

Examples:
  # Roll the first toy found, 2 seconds straight ahead
  sphero roll

  # A fast lap away and back
  sphero roll D2-55A2 -s 200 -d 3s
  sphero roll D2-55A2 -s 200 -d 3s -H 180`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoll,
}

var (
	rollHeading  int
	rollSpeed    int
	rollDuration time.Duration
)

func init() {
	rollCmd.Flags().IntVarP(&rollHeading, "heading", "H", 0, "Heading in degrees (0-359)")
	rollCmd.Flags().IntVarP(&rollSpeed, "speed", "s", 120, "Speed (-255..255, negative rolls backward)")
	rollCmd.Flags().DurationVarP(&rollDuration, "duration", "d", 2*time.Second, "How long to roll")
}

func runRoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if rollDuration <= 0 {
		return fmt.Errorf("duration must be positive, have %v", rollDuration)
	}

	var target string
	if len(args) == 1 {
		target = args[0]
	}
	cmd.SilenceUsage = true

	ctx, stop := signalContext(context.Background())
	defer stop()

	a, err := openSession(ctx, target, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.WithError(cerr).Debug("Close failed")
		}
	}()

	fmt.Printf("Rolling %s at speed %d, heading %d°, for %s\n", a.Toy().Name(), rollSpeed, rollHeading, rollDuration)
	if err := a.Roll(ctx, rollHeading, rollSpeed, rollDuration); err != nil {
		return err
	}

	if d := a.Distance(); d > 0 {
		fmt.Printf("Odometer: %.1f cm\n", d)
	}
	return nil
}
