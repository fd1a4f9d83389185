package main

import (
	"strings"
	"testing"
	"time"

	"github.com/ericogr/heatingpad/pkg/config"
	"github.com/ericogr/heatingpad/pkg/gate"
	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/ericogr/heatingpad/pkg/metrics"
	"github.com/ericogr/heatingpad/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type recordingOutput struct {
	published []heatingpad.Status
	closed    bool
}

func (o *recordingOutput) Publish(st heatingpad.Status) error {
	o.published = append(o.published, st)
	return nil
}

func (o *recordingOutput) Close() error {
	o.closed = true
	return nil
}

func TestComputeControlInterval(t *testing.T) {
	cfg := config.Config{SampleRate: 128, IntervalMs: 1000, SensorType: config.SensorTypeReal}
	cfg.Sensors = []config.SensorConfig{{Channel: 1}, {Channel: 2}}
	assert.Equal(t, 1000, computeControlInterval(cfg))

	// two sensors at 128 SPS need 18ms
	cfg.IntervalMs = 5
	assert.Equal(t, 18, computeControlInterval(cfg))

	// one sensor at 8 SPS needs 127ms
	cfg.Sensors = []config.SensorConfig{{Channel: 1, SampleRate: 8}, {Channel: 0}}
	assert.Equal(t, 127, computeControlInterval(cfg))

	// the simulation has no conversion time
	cfg.SensorType = config.SensorTypeSimulation
	assert.Equal(t, 5, computeControlInterval(cfg))
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{IntervalMs: 123, Outputs: []config.OutputConfig{{Type: config.OutputConsole}}}
	entries, err := initOutputs(&cfg)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 123, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, 123, entries[0].IntervalMs)
}

func TestInitOutputsRejectsUnknown(t *testing.T) {
	cfg := config.Config{IntervalMs: 100, Outputs: []config.OutputConfig{{Type: "influx"}}}
	_, err := initOutputs(&cfg)
	assert.Error(t, err)

	cfg.Outputs = []config.OutputConfig{{Type: config.OutputMQTT}}
	_, err = initOutputs(&cfg)
	assert.Error(t, err)
}

func TestOutputEntryDue(t *testing.T) {
	e := &outputEntry{IntervalMs: 1000}
	now := time.Date(2025, 9, 19, 14, 0, 0, 0, time.UTC)
	assert.True(t, e.due(now))

	e.last = now
	assert.False(t, e.due(now.Add(999*time.Millisecond)))
	assert.True(t, e.due(now.Add(time.Second)))
}

func newTestLoop(t *testing.T, ambient float64, target int, outs ...*outputEntry) (*controlLoop, *time.Time) {
	t.Helper()
	cfg := config.Config{
		Sensors:    []config.SensorConfig{{Channel: 1}, {Channel: 0}},
		Simulation: config.SimulationConfig{Ambient: ambient},
	}
	sim := sensor.NewSimulation(cfg)
	ctrl, err := heatingpad.New(sim, sim, 1, sensor.NoChannel)
	require.NoError(t, err)
	ctrl.SetTargetTemperature(target)

	now := time.Date(2025, 9, 19, 14, 0, 0, 0, time.UTC)
	loop := &controlLoop{
		ctrl:      ctrl,
		collector: metrics.NewCollector(),
		outputs:   outs,
		now:       func() time.Time { return now },
	}
	return loop, &now
}

func TestTickPublishesRespectingInterval(t *testing.T) {
	fast := &recordingOutput{}
	slow := &recordingOutput{}
	loop, now := newTestLoop(t, 30, 35,
		&outputEntry{Out: fast, Type: "fast", IntervalMs: 100},
		&outputEntry{Out: slow, Type: "slow", IntervalMs: 1000},
	)

	for i := 0; i < 10; i++ {
		loop.tick()
		*now = now.Add(100 * time.Millisecond)
	}

	assert.Len(t, fast.published, 10)
	assert.Len(t, slow.published, 1)
	assert.Equal(t, 30.0, fast.published[0].Temperature)
	assert.True(t, fast.published[0].Heating())
	expected := `
# HELP heatingpad_steps_total Number of control steps
# TYPE heatingpad_steps_total counter
heatingpad_steps_total 10
`
	assert.NoError(t, testutil.CollectAndCompare(loop.collector, strings.NewReader(expected), "heatingpad_steps_total"))
}

func TestTickSwitchesOffAboveTarget(t *testing.T) {
	out := &recordingOutput{}
	loop, _ := newTestLoop(t, 40, 35, &outputEntry{Out: out, Type: "test", IntervalMs: 1})

	loop.tick()

	require.Len(t, out.published, 1)
	assert.Equal(t, gpio.Low, out.published[0].Gate)
}

func TestOpenHardwareDryRunSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorTypeSimulation
	cfg.DryRun = true

	driver, g, err := openHardware(cfg)
	require.NoError(t, err)
	_, isRecorder := g.(*gate.Recorder)
	assert.False(t, isRecorder, "the simulation drives its own gate")
	assert.NoError(t, driver.Close())
}
