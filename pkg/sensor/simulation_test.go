package sensor

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/ericogr/heatingpad/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSimulation(model config.SimulationConfig) (*Simulation, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 9, 19, 14, 0, 0, 0, time.UTC)}
	cfg := config.Config{
		Sensors:    []config.SensorConfig{{Channel: 1}, {Channel: 2, CalibrationOffset: 2}},
		Simulation: model,
	}
	return newSimulation(cfg, clock.now, rand.New(rand.NewSource(1))), clock
}

func TestSimulationStartsAtAmbient(t *testing.T) {
	sim, _ := newTestSimulation(config.SimulationConfig{Ambient: 21, HeatRate: 1, CoolRate: 0.01})

	v, err := sim.Thermometer(1).ReadCelsius()
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)
}

func TestSimulationHeatsWhileHigh(t *testing.T) {
	sim, clock := newTestSimulation(config.SimulationConfig{Ambient: 20, HeatRate: 0.5})

	require.NoError(t, sim.Out(gpio.High))
	clock.advance(10 * time.Second)
	assert.InDelta(t, 25.0, sim.Temperature(), 1e-9)

	require.NoError(t, sim.Out(gpio.Low))
	clock.advance(10 * time.Second)
	assert.InDelta(t, 25.0, sim.Temperature(), 1e-9)
}

func TestSimulationCoolsTowardAmbient(t *testing.T) {
	sim, clock := newTestSimulation(config.SimulationConfig{Ambient: 20, HeatRate: 1, CoolRate: 0.1})

	require.NoError(t, sim.Out(gpio.High))
	clock.advance(20 * time.Second)
	hot := sim.Temperature()
	require.Greater(t, hot, 20.0)

	require.NoError(t, sim.Out(gpio.Low))
	for i := 0; i < 100; i++ {
		clock.advance(time.Second)
		cur := sim.Temperature()
		assert.LessOrEqual(t, cur, hot)
		assert.GreaterOrEqual(t, cur, 20.0)
		hot = cur
	}
}

func TestSimulationChannelCalibration(t *testing.T) {
	sim, _ := newTestSimulation(config.SimulationConfig{Ambient: 30})

	a, err := sim.Thermometer(1).ReadCelsius()
	require.NoError(t, err)
	b, err := sim.Thermometer(2).ReadCelsius()
	require.NoError(t, err)
	assert.Equal(t, 2.0, b-a)
}

func TestSimulationNoiseIsBounded(t *testing.T) {
	sim, _ := newTestSimulation(config.SimulationConfig{Ambient: 30, Noise: 0.5})

	for i := 0; i < 50; i++ {
		v, err := sim.Thermometer(1).ReadCelsius()
		require.NoError(t, err)
		assert.InDelta(t, 30.0, v, 0.5)
	}
}

func TestSimulationInvalidChannel(t *testing.T) {
	sim, _ := newTestSimulation(config.SimulationConfig{})

	_, err := sim.Thermometer(NoChannel).ReadCelsius()
	assert.True(t, errors.Is(err, ErrNoChannel))
}
