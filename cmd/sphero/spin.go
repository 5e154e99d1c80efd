package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// spinCmd represents the spin command
var spinCmd = &cobra.Command{
	Use:   "spin [target]",
	Short: "Spin a toy in place",
	Long: `Turn a toy through an angle without moving. The heading walks
incrementally, so durations the robot's turning rate cannot meet are
stretched to the feasible minimum.

Examples:
  # One full turn over two seconds
  sphero spin

  # Quarter turn counter-clockwise
  sphero spin mini -a -90 -d 1s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSpin,
}

var (
	spinAngle    int
	spinDuration time.Duration
)

func init() {
	spinCmd.Flags().IntVarP(&spinAngle, "angle", "a", 360, "Angle in degrees (negative spins counter-clockwise)")
	spinCmd.Flags().DurationVarP(&spinDuration, "duration", "d", 2*time.Second, "Time for the whole turn")
}

func runSpin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
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

	fmt.Printf("Spinning %s through %d° over %s\n", a.Toy().Name(), spinAngle, spinDuration)
	if err := a.Spin(ctx, spinAngle, spinDuration); err != nil {
		return err
	}
	fmt.Printf("Final heading: %d°\n", a.Heading())
	return nil
}
