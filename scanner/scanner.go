// Package scanner discovers Sphero-family peripherals over BLE and opens
// toy sessions on them.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/wwj718/spherov2/adapter/goble"
	"github.com/wwj718/spherov2/internal/ringchan"
	"github.com/wwj718/spherov2/toy"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the toy was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// Discovery is one advertising Sphero-family peripheral.
type Discovery struct {
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Model    toy.Model `json:"model"`
	RSSI     int       `json:"rssi"`
	LastSeen time.Time `json:"lastSeen"`
}

type DeviceEvent struct {
	Type      DeviceEventType
	Discovery Discovery
}

// Scanner handles Sphero toy discovery
type Scanner struct {
	devices *hashmap.Map[string, Discovery]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior. Only peripherals whose
// advertised name carries a known model prefix are considered at all;
// the remaining fields narrow further.
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	Models          []toy.Model
	Name            string // exact advertised name
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new toy scanner
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}, nil
}

// Scan performs discovery with the provided options and returns every
// matching toy seen before the duration (or the context) ran out, sorted
// by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Discovery, error) {
	s.devices = hashmap.New[string, Discovery]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting toy scan...")

	progressCallback("Scanning")

	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = dev.Scan(ctx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("toy_count", s.devices.Len()).Info("Toy scan completed")

	progressCallback("Processing results")

	return s.makeDeviceList(), nil
}

// FindFirst scans until the first matching toy shows up, then stops the
// scan early. A full scan window with no match returns a NotFoundError.
func (s *Scanner) FindFirst(ctx context.Context, opts *ScanOptions) (Discovery, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanErr := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, opts, nil)
		scanErr <- err
	}()

	for {
		select {
		case ev := <-s.events.C():
			if ev.Type != EventNew {
				continue
			}
			cancel()
			<-scanErr
			return ev.Discovery, nil
		case err := <-scanErr:
			if err != nil {
				return Discovery{}, err
			}
			// The scan may finish with matches still buffered.
			for {
				ev, ok := s.events.TryReceive()
				if !ok {
					break
				}
				if ev.Type == EventNew {
					return ev.Discovery, nil
				}
			}
			return Discovery{}, &toy.NotFoundError{Kind: "toy", Key: describeFilter(opts)}
		}
	}
}

// handleAdvertisement updates existing or adds a new toy
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	name := adv.LocalName()
	model, ok := toy.TypeFromName(name)
	if !ok {
		return
	}
	if !s.shouldIncludeDevice(adv, model, s.scanOptions) {
		return
	}

	address := adv.Addr().String()
	d := Discovery{
		Name:     name,
		Address:  address,
		Model:    model,
		RSSI:     adv.RSSI(),
		LastSeen: time.Now(),
	}

	_, existing := s.devices.Get(address)
	s.devices.Set(address, d)

	event := DeviceEvent{Discovery: d}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"toy":     d.Name,
			"model":   d.Model,
			"address": d.Address,
			"rssi":    d.RSSI,
		}).Info("Discovered new toy")
		event.Type = EventNew
	}

	s.events.ForceSend(event)
}

// shouldIncludeDevice applies the model/name/allow/block filters
func (s *Scanner) shouldIncludeDevice(adv blelib.Advertisement, model toy.Model, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}

	if opts.Name != "" && adv.LocalName() != opts.Name {
		return false
	}

	if len(opts.Models) > 0 {
		matched := false
		for _, m := range opts.Models {
			if m == model {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	addr := adv.Addr().String()
	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// makeDeviceList returns a snapshot of discovered toys sorted by address
func (s *Scanner) makeDeviceList() []Discovery {
	devs := make([]Discovery, 0, s.devices.Len())

	s.devices.Range(func(key string, value Discovery) bool {
		devs = append(devs, value)
		return true
	})
	sort.Slice(devs, func(i, j int) bool {
		return devs[i].Address < devs[j].Address
	})

	return devs
}

// Events return a read-only channel of discovery events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

func describeFilter(opts *ScanOptions) string {
	if opts == nil {
		return "any"
	}
	if opts.Name != "" {
		return opts.Name
	}
	if len(opts.Models) > 0 {
		names := make([]string, 0, len(opts.Models))
		for _, m := range opts.Models {
			names = append(names, m.String())
		}
		return fmt.Sprintf("%v", names)
	}
	return "any"
}

// ConnectOptions tunes session establishment.
type ConnectOptions struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// Connect dials the discovered toy and establishes a session on it.
func Connect(ctx context.Context, d Discovery, opts *ConnectOptions, logger *logrus.Logger) (*toy.Toy, error) {
	if logger == nil {
		logger = logrus.New()
	}

	var bleOpts *goble.Options
	var toyOpts *toy.Options
	if opts != nil {
		bleOpts = &goble.Options{ConnectTimeout: opts.ConnectTimeout}
		toyOpts = &toy.Options{CommandTimeout: opts.CommandTimeout}
	}

	a, err := goble.Dial(ctx, d.Address, bleOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name, err)
	}

	t, err := toy.New(ctx, a, d.Model, toyOpts, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return t, nil
}

// Find runs one scan with a fresh scanner.
func Find(ctx context.Context, opts *ScanOptions, logger *logrus.Logger) ([]Discovery, error) {
	s, err := NewScanner(logger)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx, opts, nil)
}

// FindFirst returns the first matching toy seen by a fresh scanner.
func FindFirst(ctx context.Context, opts *ScanOptions, logger *logrus.Logger) (Discovery, error) {
	s, err := NewScanner(logger)
	if err != nil {
		return Discovery{}, err
	}
	return s.FindFirst(ctx, opts)
}

// FindByName waits for the toy advertising exactly this name.
func FindByName(ctx context.Context, name string, logger *logrus.Logger) (Discovery, error) {
	opts := DefaultScanOptions()
	opts.Name = name
	return FindFirst(ctx, opts, logger)
}
