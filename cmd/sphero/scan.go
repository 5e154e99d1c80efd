package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/wwj718/spherov2/scanner"
	"github.com/wwj718/spherov2/toy"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Sphero toys",
	Long: `Scan for Sphero-family toys advertising nearby and display their
names, models, addresses and signal strength.

Examples:
  # One 10-second scan
  sphero scan

  # Scan longer, print JSON
  sphero scan -d 30s -f json

  # Only R2-D2 and Sphero Mini toys
  sphero scan --model r2d2 --model mini

  # Continuously rescan and refresh the table
  sphero scan -w`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanModels      []string
	scanName        string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "How long to scan (0 scans until interrupted)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json, csv); default from config")
	scanCmd.Flags().StringSliceVar(&scanModels, "model", nil, "Filter by model keyword (bb8, bb9e, r2d2, r2q5, mini, bolt, ollie)")
	scanCmd.Flags().StringVar(&scanName, "name", "", "Only the toy with this advertised name")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show toys with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide toys with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Drop repeated advertisements from the same toy")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Rescan continuously and refresh the table")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if scanFormat != "" {
		format = scanFormat
	}
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("invalid format %q: must be table, json or csv", format)
	}

	models := make([]toy.Model, 0, len(scanModels))
	for _, kw := range scanModels {
		m, ok := modelKeywords[kw]
		if !ok {
			return fmt.Errorf("unknown model keyword %q", kw)
		}
		models = append(models, m)
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// Runtime failures past this point are not usage errors.
	cmd.SilenceUsage = true

	opts := &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: scanNoDuplicate,
		Models:          models,
		Name:            scanName,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}
	if scanWatch {
		// Watch mode rescans until interrupted.
		opts.Duration = 0
	}

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	if scanWatch {
		return runWatchScan(ctx, s, opts, format)
	}
	return runSingleScan(ctx, s, opts, format)
}

func runSingleScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, format string) error {
	progress := newProgress("Scanning for Sphero toys", "Scanning", opts.Duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, opts, progress.Callback())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	progress.Stop()
	return renderDiscoveries(os.Stdout, devices, format, time.Now())
}

// runWatchScan keeps one scan running and redraws the table as toys come
// and go from the air.
func runWatchScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, format string) error {
	seen := make(map[string]scanner.Discovery)

	scanErrCh := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, opts, nil)
		scanErrCh <- err
	}()

	redraw := func() error {
		devices := make([]scanner.Discovery, 0, len(seen))
		for _, d := range seen {
			devices = append(devices, d)
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
		clearScreen()
		return renderDiscoveries(os.Stdout, devices, format, time.Now())
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return redraw()
		case err := <-scanErrCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return redraw()
		case ev := <-s.Events():
			seen[ev.Discovery.Address] = ev.Discovery
		case <-ticker.C:
			if err := redraw(); err != nil {
				return err
			}
		}
	}
}

func renderDiscoveries(w io.Writer, devices []scanner.Discovery, format string, now time.Time) error {
	switch format {
	case "json":
		return renderDiscoveryJSON(w, devices)
	case "csv":
		return renderDiscoveryCSV(w, devices)
	default:
		return renderDiscoveryTable(w, devices, now)
	}
}

func renderDiscoveryTable(w io.Writer, devices []scanner.Discovery, now time.Time) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No toys discovered")
		return err
	}

	// Color goes on the summary line, never inside tabwriter cells where
	// escape sequences would skew the column widths.
	color.New(color.Bold).Fprintf(w, "%d toy(s) discovered\n", len(devices))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODEL\tADDRESS\tRSSI\tLAST SEEN")
	for _, d := range devices {
		lastSeen := now.Sub(d.LastSeen).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d dBm\t%s ago\n",
			d.Name, d.Model, d.Address, d.RSSI, lastSeen)
	}
	return tw.Flush()
}

func renderDiscoveryJSON(w io.Writer, devices []scanner.Discovery) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func renderDiscoveryCSV(w io.Writer, devices []scanner.Discovery) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "model", "address", "rssi", "last_seen"}); err != nil {
		return err
	}
	for _, d := range devices {
		record := []string{
			d.Name,
			d.Model.String(),
			d.Address,
			strconv.Itoa(d.RSSI),
			d.LastSeen.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
