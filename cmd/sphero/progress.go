package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressTick = 100 * time.Millisecond
	eraseLine    = "\r\033[K"
)

// progressPrinter keeps one status line updated with the current phase
// and elapsed (or, given a deadline, remaining) seconds. It stays quiet
// when stdout is not a terminal, so piped output never carries control
// sequences.
//
// A progressPrinter is single-use: Start at most once, Stop exactly once
// (extra Stops are no-ops). Phases named in stopPhases shut the line
// down as soon as the Callback sees them.
type progressPrinter struct {
	prefix     string
	phase      atomic.Value
	stopPhases map[string]struct{}
	countdown  time.Duration // 0 counts up
	startTime  time.Time
	ticker     atomic.Pointer[time.Ticker]
	stopChan   chan struct{}
	done       chan struct{}
	started    atomic.Bool
	enabled    bool
}

// newProgress creates a count-up progress line. A non-zero countdown
// shows remaining time instead.
func newProgress(prefix, phase string, countdown time.Duration, stopPhases ...string) *progressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &progressPrinter{
		prefix:     prefix,
		stopPhases: stopSet,
		countdown:  countdown,
		enabled:    term.IsTerminal(int(os.Stdout.Fd())),
	}
	p.phase.Store(phase)
	return p
}

// Start begins updating the status line in a background goroutine.
func (p *progressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("progressPrinter.Start called more than once")
	}
	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressTick)
	p.ticker.Store(ticker)

	p.print(p.phase.Load().(string), 0)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				elapsed := time.Since(p.startTime)
				var seconds int
				if p.countdown > 0 {
					if remaining := p.countdown - elapsed; remaining > 0 {
						seconds = int(remaining.Seconds() + 0.5)
					}
				} else {
					seconds = int(elapsed.Seconds())
				}
				p.print(phase, seconds)
			}
		}
	}()
}

func (p *progressPrinter) print(phase string, seconds int) {
	if !p.enabled {
		return
	}
	if seconds > 0 {
		fmt.Printf("%s%s (%s %ds)", eraseLine, p.prefix, phase, seconds)
	} else {
		fmt.Printf("%s%s (%s...)", eraseLine, p.prefix, phase)
	}
}

// Callback returns a phase-update function safe to call from any
// goroutine. Stop phases shut the printer down immediately.
func (p *progressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop clears the status line. Safe to call multiple times and from
// multiple goroutines; only the first call does the work.
func (p *progressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}
	ticker.Stop()
	close(p.stopChan)
	<-p.done
	if p.enabled {
		fmt.Print(eraseLine)
	}
}
