package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwj718/spherov2/edu"
)

// ledCmd represents the led command
var ledCmd = &cobra.Command{
	Use:   "led [target] <color>",
	Short: "Set a toy's LEDs",
	Long: `Set an LED channel to a color or brightness.

The main, front and back channels take a color: a name (red, green,
blue, white, orange, ...), a hex value (#ff8800), or three 0-255
numbers. The dome, holo, logic and aim channels take a single
brightness number (dome is 0-15, the rest 0-255).

Examples:
  # Main LED of the first toy found
  sphero led red
  sphero led 255 128 0

  # Front and back of a droid
  sphero led D2-55A2 '#00ff00' --channel front
  sphero led D2-55A2 blue --channel back

  # BB-9E dome brightness
  sphero led bb9e 12 --channel dome

  # Fade the main LED over two seconds
  sphero led purple --fade 2s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLED,
}

var (
	ledChannel string
	ledFade    time.Duration
	ledHold    time.Duration
)

func init() {
	ledCmd.Flags().StringVarP(&ledChannel, "channel", "c", "main", "LED channel (main, front, back, dome, holo, logic, aim)")
	ledCmd.Flags().DurationVar(&ledFade, "fade", 0, "Fade to the color over this duration (main channel only)")
	ledCmd.Flags().DurationVar(&ledHold, "hold", 10*time.Second, "How long to hold the color before the toy sleeps (0 sleeps immediately)")
}

// namedColors are the color words the CLI accepts.
var namedColors = map[string]edu.Color{
	"black":   {},
	"off":     {},
	"white":   {R: 255, G: 255, B: 255},
	"red":     {R: 255},
	"green":   {G: 255},
	"blue":    {B: 255},
	"yellow":  {R: 255, G: 255},
	"cyan":    {G: 255, B: 255},
	"magenta": {R: 255, B: 255},
	"orange":  {R: 255, G: 128},
	"purple":  {R: 128, B: 255},
	"pink":    {R: 255, G: 105, B: 180},
}

// parseColorSpec accepts a color name, a hex value, or three decimal
// channel values.
func parseColorSpec(args []string) (edu.Color, error) {
	switch len(args) {
	case 1:
		spec := strings.ToLower(args[0])
		if c, ok := namedColors[spec]; ok {
			return c, nil
		}
		return parseHexColor(spec)
	case 3:
		vals := make([]int, 3)
		for i, arg := range args {
			v, err := strconv.Atoi(arg)
			if err != nil {
				return edu.Color{}, fmt.Errorf("invalid channel value %q", arg)
			}
			vals[i] = v
		}
		return edu.RGB(vals[0], vals[1], vals[2]), nil
	default:
		return edu.Color{}, fmt.Errorf("color takes one name/hex value or three numbers, have %d arguments", len(args))
	}
}

func parseHexColor(spec string) (edu.Color, error) {
	hex := strings.TrimPrefix(spec, "#")
	if len(hex) != 6 {
		return edu.Color{}, fmt.Errorf("unknown color %q: use a name, #rrggbb, or three 0-255 numbers", spec)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return edu.Color{}, fmt.Errorf("invalid hex color %q", spec)
	}
	return edu.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// isLevelChannel reports whether the channel takes a single brightness
// number instead of a color.
func isLevelChannel(channel string) bool {
	switch channel {
	case "dome", "holo", "logic", "aim":
		return true
	}
	return false
}

// splitLEDArgs separates the optional leading target from the color or
// brightness arguments. A lone argument is always the value; with more,
// the first is the target exactly when the rest parse on their own.
func splitLEDArgs(args []string, level bool) (target string, value []string, err error) {
	needed := 1
	if !level && len(args) >= 3 && allNumeric(args[len(args)-3:]) {
		needed = 3
	}
	switch {
	case len(args) == needed:
		return "", args, nil
	case len(args) == needed+1:
		return args[0], args[1:], nil
	default:
		return "", nil, fmt.Errorf("unexpected arguments %v", args)
	}
}

func allNumeric(args []string) bool {
	for _, a := range args {
		if _, err := strconv.Atoi(a); err != nil {
			return false
		}
	}
	return true
}

func runLED(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	switch ledChannel {
	case "main", "front", "back", "dome", "holo", "logic", "aim":
	default:
		return fmt.Errorf("unknown channel %q: use main, front, back, dome, holo, logic or aim", ledChannel)
	}

	level := isLevelChannel(ledChannel)
	target, value, err := splitLEDArgs(args, level)
	if err != nil {
		return err
	}

	var c edu.Color
	var brightness int
	if level {
		brightness, err = strconv.Atoi(value[0])
		if err != nil {
			return fmt.Errorf("invalid brightness %q", value[0])
		}
	} else {
		c, err = parseColorSpec(value)
		if err != nil {
			return err
		}
	}
	if ledFade > 0 && ledChannel != "main" {
		return fmt.Errorf("--fade applies to the main channel only")
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

	switch ledChannel {
	case "main":
		if ledFade > 0 {
			from, _ := a.MainLED()
			err = a.Fade(ctx, from, c, ledFade)
		} else {
			err = a.SetMainLED(ctx, c)
		}
	case "front":
		err = a.SetFrontLED(ctx, c)
	case "back":
		err = a.SetBackLED(ctx, c)
	case "dome":
		err = a.SetDomeLEDs(ctx, brightness)
	case "holo":
		err = a.SetHoloProjectorLED(ctx, brightness)
	case "logic":
		err = a.SetLogicDisplayLEDs(ctx, brightness)
	case "aim":
		err = a.SetBackLEDBrightness(ctx, brightness)
	}
	if err != nil {
		return err
	}

	if level {
		fmt.Printf("Set %s %s to %d\n", a.Toy().Name(), ledChannel, brightness)
	} else {
		fmt.Printf("Set %s %s to #%02x%02x%02x\n", a.Toy().Name(), ledChannel, c.R, c.G, c.B)
	}

	// Closing the session sleeps the toy and the LEDs go dark with it,
	// so give the color some screen time first.
	if ledHold > 0 {
		fmt.Printf("Holding for %s (Ctrl+C to finish early)\n", ledHold)
		select {
		case <-ctx.Done():
		case <-time.After(ledHold):
		}
	}
	return nil
}
