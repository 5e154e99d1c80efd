package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/wwj718/spherov2/edu"
	"github.com/wwj718/spherov2/pkg/config"
	"github.com/wwj718/spherov2/scanner"
	"github.com/wwj718/spherov2/toy"
)

// modelKeywords maps the CLI's model shorthands to models. Prefix forms
// ("d2", "sm") match the advertised-name prefixes so either spelling
// works.
var modelKeywords = map[string]toy.Model{
	"bb8":   toy.ModelBB8,
	"bb-8":  toy.ModelBB8,
	"bb":    toy.ModelBB8,
	"bb9e":  toy.ModelBB9E,
	"bb-9e": toy.ModelBB9E,
	"gb":    toy.ModelBB9E,
	"r2d2":  toy.ModelR2D2,
	"r2-d2": toy.ModelR2D2,
	"d2":    toy.ModelR2D2,
	"r2q5":  toy.ModelR2Q5,
	"r2-q5": toy.ModelR2Q5,
	"q5":    toy.ModelR2Q5,
	"mini":  toy.ModelMini,
	"sm":    toy.ModelMini,
	"bolt":  toy.ModelBolt,
	"sb":    toy.ModelBolt,
	"ollie": toy.ModelOllie,
	"2b":    toy.ModelOllie,
}

// resolveTarget turns a CLI target argument into scan options. An
// advertised name ("D2-55A2") scans for that exact toy, a model keyword
// ("mini") for the first toy of that model, and an empty target for the
// first Sphero toy of any kind.
func resolveTarget(target string, cfg *config.Config) (*scanner.ScanOptions, error) {
	opts := scanner.DefaultScanOptions()
	opts.Duration = cfg.ScanTimeout

	if target == "" {
		return opts, nil
	}
	if _, ok := toy.TypeFromName(target); ok {
		opts.Name = target
		return opts, nil
	}
	if m, ok := modelKeywords[strings.ToLower(target)]; ok {
		opts.Models = []toy.Model{m}
		return opts, nil
	}
	return nil, fmt.Errorf("unknown target %q: use an advertised name like D2-55A2, a model keyword (bb8, bb9e, r2d2, r2q5, mini, bolt, ollie), or no target for any toy", target)
}

// findToy scans until the target shows up.
func findToy(ctx context.Context, target string, cfg *config.Config, logger *logrus.Logger) (scanner.Discovery, error) {
	opts, err := resolveTarget(target, cfg)
	if err != nil {
		return scanner.Discovery{}, err
	}

	progress := newProgress(fmt.Sprintf("Looking for %s", describeTarget(target)), "Scanning", cfg.ScanTimeout, "Found")
	progress.Start()
	defer progress.Stop()

	d, err := scanner.FindFirst(ctx, opts, logger)
	if err != nil {
		return scanner.Discovery{}, err
	}
	progress.Callback()("Found")
	return d, nil
}

func describeTarget(target string) string {
	if target == "" {
		return "any Sphero toy"
	}
	return target
}

// openToy finds the target and opens a bare command session on it. The
// caller owns the returned toy and must Close it.
func openToy(ctx context.Context, target string, cfg *config.Config, logger *logrus.Logger) (*toy.Toy, error) {
	d, err := findToy(ctx, target, cfg, logger)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Connecting to %s (%s, %s)...\n", d.Name, d.Model, d.Address)
	connOpts := &scanner.ConnectOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
	}
	return scanner.Connect(ctx, d, connOpts, logger)
}

// openSession finds the target and brings up a full edu session: the toy
// is woken and the keep-alive control loop runs until Close, which also
// puts the toy back to sleep.
func openSession(ctx context.Context, target string, cfg *config.Config, logger *logrus.Logger) (*edu.API, error) {
	t, err := openToy(ctx, target, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessionOpts := &edu.Options{
		KeepAliveInterval: cfg.KeepAliveInterval,
		EventQueueSize:    cfg.EventQueueSize,
		EventWorkers:      cfg.EventWorkers,
	}
	a, err := edu.Connect(ctx, t, sessionOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start session on %s: %w", t.Name(), err)
	}
	return a, nil
}

// signalContext derives a context cancelled by Ctrl+C or SIGTERM. The
// returned stop func releases the signal handler.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
