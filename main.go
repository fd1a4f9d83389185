package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/ericogr/heatingpad/pkg/config"
	"github.com/ericogr/heatingpad/pkg/gate"
	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/ericogr/heatingpad/pkg/metrics"
	"github.com/ericogr/heatingpad/pkg/output"
	"github.com/ericogr/heatingpad/pkg/output/console"
	"github.com/ericogr/heatingpad/pkg/output/mqtt"
	"github.com/ericogr/heatingpad/pkg/sensor"
	"github.com/ericogr/heatingpad/pkg/ui"
	"github.com/oklog/run"
)

type outputEntry struct {
	Out        output.Output
	Type       string
	IntervalMs int
	last       time.Time
}

func (e *outputEntry) due(now time.Time) bool {
	return e.last.IsZero() || now.Sub(e.last) >= time.Duration(e.IntervalMs)*time.Millisecond
}

// controlLoop runs one controller step per tick and fans the result out.
type controlLoop struct {
	ctrl      *heatingpad.Controller
	collector *metrics.Collector
	outputs   []*outputEntry
	now       func() time.Time
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		ui.Fatal("config: %v", err)
	}
	ui.SetDebug(cfg.Debug)

	if err := runController(context.Background(), cfg); err != nil {
		ui.Fatal("%v", err)
	}
}

func runController(ctx context.Context, cfg config.Config) error {
	driver, g, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	a := sensor.Channel(cfg.Sensor(0).Channel)
	b := sensor.Channel(cfg.Sensor(1).Channel)
	ctrl, err := heatingpad.New(g, driver, a, b)
	if err != nil {
		return err
	}
	// whatever happens, leave the pad off
	defer func() {
		if err := ctrl.Off(); err != nil {
			ui.Error("unable to switch the heating pad off: %v", err)
		}
	}()
	ctrl.SetTargetTemperature(cfg.TargetTemperature)
	ui.Info("sensor A on channel %d, sensor B on channel %d, target %d°C", a, b, cfg.TargetTemperature)

	interval := computeControlInterval(cfg)
	outs, err := initOutputs(&cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, o := range outs {
			_ = o.Out.Close()
		}
	}()

	loop := &controlLoop{ctrl: ctrl, collector: metrics.NewCollector(), outputs: outs, now: time.Now}

	var group run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		group.Add(func() error {
			ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
			defer ticker.Stop()
			loop.tick()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					loop.tick()
				}
			}
		}, func(error) {
			cancel()
		})
	}
	if cfg.Metrics.Listen != "" {
		handler, err := metrics.Handler(loop.collector)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		group.Add(func() error {
			ui.Info("serving metrics on %s", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = group.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		ui.Info("received %v, shutting down", sigErr.Signal)
		return nil
	}
	return err
}

// openHardware returns the sensor driver and the gate for cfg.
func openHardware(cfg config.Config) (sensor.Driver, gate.Gate, error) {
	if cfg.SensorType == config.SensorTypeSimulation {
		ui.Warning("using simulated heating pad")
		sim := sensor.NewSimulation(cfg)
		return sim, sim, nil
	}
	adc, err := sensor.NewADS1115(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DryRun {
		ui.Warning("dry run: gate %s will not be driven", cfg.GatePin)
		return adc, gate.NewDryRun(cfg.GatePin), nil
	}
	pin, err := gate.Open(cfg.GatePin)
	if err != nil {
		_ = adc.Close()
		return nil, nil, err
	}
	return adc, pin, nil
}

func (l *controlLoop) tick() {
	st, err := l.ctrl.Step()
	if err != nil {
		ui.Error("control step: %v", err)
	}
	for _, r := range st.Readings {
		switch r.Condition {
		case heatingpad.Failed:
			ui.Warning("sensor %d: %v", r.Index, r.Err)
		case heatingpad.Implausible:
			ui.Warning("sensor %d: implausible reading %.2f°C ignored", r.Index, r.Raw)
		}
	}
	ui.Debug("temperature=%.2f target=%d heating=%v", st.Temperature, st.Target, st.Heating())
	l.collector.Observe(st)

	now := l.now()
	for _, o := range l.outputs {
		if !o.due(now) {
			continue
		}
		o.last = now
		if err := o.Out.Publish(st); err != nil {
			ui.Error("%s output: %v", o.Type, err)
		}
	}
}

// computeControlInterval returns the step interval in ms. It is never shorter
// than the time needed to convert every populated sensor.
func computeControlInterval(cfg config.Config) int {
	interval := cfg.IntervalMs
	if cfg.SensorType == config.SensorTypeSimulation {
		return interval
	}
	minMs := int(sensor.ConversionTime(cfg) / time.Millisecond)
	if interval < minMs {
		ui.Warning("interval %dms is shorter than the sensor conversion time, using %dms", interval, minMs)
		interval = minMs
	}
	return interval
}

func initOutputs(cfg *config.Config) ([]*outputEntry, error) {
	entries := make([]*outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = cfg.IntervalMs
		}
		var out output.Output
		switch oc.Type {
		case config.OutputConsole:
			out = console.NewConsole()
		case config.OutputMQTT:
			if oc.MQTT == nil {
				return nil, errors.New("mqtt output without mqtt settings")
			}
			m, err := mqtt.NewMQTT(*oc.MQTT)
			if err != nil {
				return nil, err
			}
			out = m
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
		entries = append(entries, &outputEntry{Out: out, Type: oc.Type, IntervalMs: oc.IntervalMs})
	}
	return entries, nil
}
