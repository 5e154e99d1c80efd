package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wwj718/spherov2/toy"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info [target]",
	Short: "Show a toy's firmware, hardware and battery details",
	Long: `Connect to a toy, wake it, read its identity and power details, and
put it back to sleep.

Examples:
  # First toy found
  sphero info

  # A specific toy by advertised name
  sphero info D2-55A2

  # JSON output
  sphero info mini -f json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

var infoFormat string

func init() {
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "", "Output format (table, json); default from config")
}

// toyInfo is the queried device state, shaped for both renderers.
type toyInfo struct {
	Name       string  `json:"name"`
	Model      string  `json:"model"`
	Address    string  `json:"address"`
	MainApp    string  `json:"mainAppVersion"`
	Bootloader string  `json:"bootloaderVersion"`
	MacAddress string  `json:"macAddress"`
	SKU        string  `json:"sku"`
	BatteryV   float64 `json:"batteryVoltage"`
	Battery    string  `json:"batteryState"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if infoFormat != "" {
		format = infoFormat
	}
	switch format {
	case "table", "csv":
		format = "table"
	case "json":
	default:
		return fmt.Errorf("invalid format %q: must be table or json", format)
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

	info, err := queryToyInfo(ctx, t, logger)
	if err != nil {
		return err
	}

	if format == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}
	return renderToyInfo(os.Stdout, info)
}

// queryToyInfo wakes the toy, reads everything, and puts it back to
// sleep. Individual read failures leave their field blank rather than
// failing the whole report; only the wake is fatal.
func queryToyInfo(ctx context.Context, t *toy.Toy, logger *logrus.Logger) (*toyInfo, error) {
	if err := t.Wake(ctx); err != nil {
		return nil, fmt.Errorf("waking toy: %w", err)
	}
	defer func() {
		sleepCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.Sleep(sleepCtx); err != nil {
			logger.WithError(err).Debug("Sleep failed")
		}
	}()

	info := &toyInfo{
		Name:    t.Name(),
		Model:   t.Model().String(),
		Address: t.Address(),
	}

	if v, err := t.GetMainAppVersion(ctx); err == nil {
		info.MainApp = v.String()
	} else {
		logger.WithError(err).Warn("Main app version read failed")
	}
	if v, err := t.GetBootloaderVersion(ctx); err == nil {
		info.Bootloader = v.String()
	} else {
		logger.WithError(err).Warn("Bootloader version read failed")
	}
	if mac, err := t.GetMacAddress(ctx); err == nil {
		info.MacAddress = mac
	} else {
		logger.WithError(err).Warn("MAC address read failed")
	}
	if sku, err := t.GetThreeCharacterSku(ctx); err == nil {
		info.SKU = sku
	} else {
		logger.WithError(err).Warn("SKU read failed")
	}
	if v, err := t.GetBatteryVoltage(ctx); err == nil {
		info.BatteryV = v
	} else {
		logger.WithError(err).Warn("Battery voltage read failed")
	}
	if s, err := t.GetBatteryState(ctx); err == nil {
		info.Battery = s.String()
	} else {
		logger.WithError(err).Warn("Battery state read failed")
	}

	return info, nil
}

func renderToyInfo(w io.Writer, info *toyInfo) error {
	color.New(color.Bold).Fprintf(w, "%s (%s)\n", info.Name, info.Model)

	battery := ""
	if info.BatteryV > 0 || info.Battery != "" {
		battery = fmt.Sprintf("%.2f V (%s)", info.BatteryV, info.Battery)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct{ label, value string }{
		{"Address", info.Address},
		{"Main app", info.MainApp},
		{"Bootloader", info.Bootloader},
		{"MAC address", info.MacAddress},
		{"SKU", info.SKU},
		{"Battery", battery},
	}
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.label, r.value)
	}
	return tw.Flush()
}
