package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping [target]",
	Short: "Measure command round-trip time to a toy",
	Long: `Send echo commands to a toy and report the round-trip time of each
reply, like ping for BLE.

Examples:
  sphero ping
  sphero ping D2-55A2 -c 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPing,
}

var pingCount int

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of echo commands to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if pingCount < 1 {
		return fmt.Errorf("count must be at least 1, have %d", pingCount)
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

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	var min, max, total time.Duration
	replies := 0

	for i := 0; i < pingCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		start := time.Now()
		echo, err := t.Ping(ctx, payload)
		rtt := time.Since(start)
		if err != nil {
			fmt.Printf("echo to %s: seq=%d error: %v\n", t.Name(), i, err)
			continue
		}
		if !bytes.Equal(echo, payload) {
			fmt.Printf("echo to %s: seq=%d corrupt payload % X\n", t.Name(), i, echo)
			continue
		}

		fmt.Printf("echo from %s: seq=%d time=%.1fms\n", t.Name(), i, float64(rtt.Microseconds())/1000)
		replies++
		total += rtt
		if min == 0 || rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
	}

	fmt.Printf("\n%d commands sent, %d replies\n", pingCount, replies)
	if replies > 0 {
		avg := total / time.Duration(replies)
		fmt.Printf("rtt min/avg/max = %.1f/%.1f/%.1f ms\n",
			float64(min.Microseconds())/1000,
			float64(avg.Microseconds())/1000,
			float64(max.Microseconds())/1000)
	}
	return nil
}
