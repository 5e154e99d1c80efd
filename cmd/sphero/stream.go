package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/wwj718/spherov2/edu"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream [target]",
	Short: "Stream live sensor data from a toy",
	Long: `Wake a toy and continuously display its sensor state: location,
velocity, acceleration, orientation and odometer, plus collision,
freefall and landing events as they happen. Runs until interrupted.

Examples:
  sphero stream
  sphero stream D2-55A2 -i 200ms`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

var streamInterval time.Duration

func init() {
	streamCmd.Flags().DurationVarP(&streamInterval, "interval", "i", 500*time.Millisecond, "Screen refresh interval")
}

// eventLog keeps the latest event lines for the stream display. Event
// callbacks run on the session's worker pool, so access is locked.
type eventLog struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func newEventLog(limit int) *eventLog {
	return &eventLog{limit: limit}
}

func (l *eventLog) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), line))
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if streamInterval <= 0 {
		return fmt.Errorf("interval must be positive, have %v", streamInterval)
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

	log := newEventLog(8)
	registerStreamEvents(a, log)

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			clearScreen()
			renderStream(os.Stdout, a, log.snapshot())
		}
	}
}

func registerStreamEvents(a *edu.API, log *eventLog) {
	alarm := color.New(color.FgRed, color.Bold)
	note := color.New(color.FgYellow)
	good := color.New(color.FgGreen)
	state := color.New(color.FgCyan)

	_, _ = a.Register(edu.EventCollision, func(ev edu.Event) {
		c := ev.Collision
		axis := "?"
		switch {
		case c.XAxis && c.YAxis:
			axis = "x+y"
		case c.XAxis:
			axis = "x"
		case c.YAxis:
			axis = "y"
		}
		log.add(alarm.Sprintf("collision  axis=%s speed=%d accel=(%.2f, %.2f, %.2f) g", axis, c.Speed, c.AccelerationX, c.AccelerationY, c.AccelerationZ))
	})
	_, _ = a.Register(edu.EventFreefall, func(edu.Event) {
		log.add(note.Sprint("freefall"))
	})
	_, _ = a.Register(edu.EventLanding, func(edu.Event) {
		log.add(good.Sprint("landing"))
	})
	_, _ = a.Register(edu.EventGyroMax, func(ev edu.Event) {
		log.add(alarm.Sprintf("gyro limit exceeded  axis=0x%02x", ev.GyroAxis))
	})
	_, _ = a.Register(edu.EventCharging, func(edu.Event) {
		log.add(state.Sprint("charging"))
	})
	_, _ = a.Register(edu.EventNotCharging, func(edu.Event) {
		log.add(state.Sprint("off charger"))
	})
}

func renderStream(w io.Writer, a *edu.API, events []string) {
	t := a.Toy()
	color.New(color.Bold).Fprintf(w, "%s (%s) - streaming, Ctrl+C to stop\n\n", t.Name(), t.Model())

	m := a.Motion()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Commanded\theading %d°, speed %d\n", m.Heading, m.Speed)

	if loc, ok := a.Location(); ok {
		fmt.Fprintf(tw, "Location\t(%.1f, %.1f) cm\n", loc.X, loc.Y)
		fmt.Fprintf(tw, "Odometer\t%.1f cm\n", a.Distance())
	}
	if v, ok := a.Velocity(); ok {
		fmt.Fprintf(tw, "Velocity\t(%.1f, %.1f) cm/s\n", v.X, v.Y)
	}
	if acc, ok := a.Acceleration(); ok {
		fmt.Fprintf(tw, "Acceleration\t(%.2f, %.2f, %.2f) g\n", acc.X, acc.Y, acc.Z)
	}
	if vacc, ok := a.VerticalAcceleration(); ok {
		fmt.Fprintf(tw, "Vertical accel\t%.2f g\n", vacc)
	}
	if gyro, ok := a.Gyroscope(); ok {
		fmt.Fprintf(tw, "Gyroscope\t(%.1f, %.1f, %.1f) °/s\n", gyro.X, gyro.Y, gyro.Z)
	}
	if att, ok := a.Orientation(); ok {
		fmt.Fprintf(tw, "Orientation\tpitch %.1f°, roll %.1f°, yaw %.1f°\n", att.Pitch, att.Roll, att.Yaw)
	}
	_ = tw.Flush()

	if len(events) > 0 {
		fmt.Fprintln(w)
		color.New(color.Bold).Fprintln(w, "Events")
		for _, line := range events {
			fmt.Fprintln(w, line)
		}
	}
}
