package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// sleepCmd represents the sleep command
var sleepCmd = &cobra.Command{
	Use:   "sleep [target]",
	Short: "Put a toy to sleep",
	Long: `Put a toy into soft sleep, or with --deep into the hibernation state
it ships in. A deep-sleeping toy wakes only from its charger.

Examples:
  sphero sleep
  sphero sleep D2-55A2 --deep`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSleep,
}

var sleepDeep bool

func init() {
	sleepCmd.Flags().BoolVar(&sleepDeep, "deep", false, "Hibernate instead of soft sleep")
}

func runSleep(cmd *cobra.Command, args []string) error {
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

	t, err := openToy(ctx, target, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil {
			logger.WithError(cerr).Debug("Close failed")
		}
	}()

	if sleepDeep {
		if err := t.DeepSleep(ctx); err != nil {
			return err
		}
		fmt.Printf("%s is hibernating; place it on the charger to wake it\n", t.Name())
		return nil
	}

	if err := t.Sleep(ctx); err != nil {
		return err
	}
	fmt.Printf("%s is asleep\n", t.Name())
	return nil
}
