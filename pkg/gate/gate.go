// Package gate drives the digital output that switches current to the
// heating element.
package gate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ericogr/heatingpad/pkg/ui"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var ErrNoPin = errors.New("gate pin not found")

// Gate is the write side of a digital output. Every periph gpio.PinOut
// satisfies it.
type Gate interface {
	Out(l gpio.Level) error
}

// Open initializes the host drivers and resolves the gate pin by name,
// e.g. "GPIO17".
func Open(name string) (gpio.PinOut, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoPin, name)
	}
	return p, nil
}

// DryRun is a Gate that never touches hardware. It keeps only the last level
// and logs each change of it.
type DryRun struct {
	name string

	mu    sync.Mutex
	level gpio.Level
	set   bool
}

func NewDryRun(name string) *DryRun {
	return &DryRun{name: name}
}

func (d *DryRun) Out(l gpio.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.set && d.level == l {
		return nil
	}
	d.level, d.set = l, true
	ui.Info("dry run: gate %s -> %s", d.name, l)
	return nil
}

// Level returns the last written level, Low if nothing was written.
func (d *DryRun) Level() gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Recorder is a Gate that keeps every level written to it, for tests that
// assert on the write sequence. Use DryRun for long running processes.
type Recorder struct {
	mu     sync.Mutex
	writes []gpio.Level
}

func (r *Recorder) Out(l gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, l)
	return nil
}

// Writes returns a copy of all levels written so far.
func (r *Recorder) Writes() []gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gpio.Level, len(r.writes))
	copy(out, r.writes)
	return out
}

// Level returns the last written level, Low if nothing was written.
func (r *Recorder) Level() gpio.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return gpio.Low
	}
	return r.writes[len(r.writes)-1]
}
