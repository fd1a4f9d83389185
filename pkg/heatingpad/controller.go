// Package heatingpad implements the bang-bang controller of a resistive
// heating pad: it reads up to two temperature sensors, takes the hottest
// valid reading and switches the gate.
//
// The controller is memoryless and has no deadband. Near the target the gate
// may change on every Step; callers that need hysteresis add it themselves.
package heatingpad

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/heatingpad/pkg/gate"
	"github.com/ericogr/heatingpad/pkg/sensor"
	"periph.io/x/conn/v3/gpio"
)

// Channels is the number of sensor slots a controller has.
const Channels = 2

var (
	// ErrNoSensor is returned for a sensor index outside 0..Channels-1.
	ErrNoSensor = errors.New("sensor index out of range")
	// ErrNotPopulated is returned when reading a sensor slot that has no
	// channel wired to it.
	ErrNotPopulated = errors.New("sensor not populated")
)

// Status is the outcome of one control step.
type Status struct {
	Timestamp   time.Time         `json:"timestamp"`
	Target      int               `json:"target"`
	Temperature float64           `json:"temperature"`
	Gate        gpio.Level        `json:"gate"`
	Readings    [Channels]Reading `json:"readings"`
}

// Heating reports whether the step switched the gate on.
func (s Status) Heating() bool { return s.Gate == gpio.High }

// Controller is not safe for concurrent use.
type Controller struct {
	gate     gate.Gate
	driver   sensor.Driver
	channels [Channels]sensor.Channel
	target   int
	now      func() time.Time
}

// New drives the gate Low and returns a controller reading sensors a and b.
// Pass sensor.NoChannel for a sensor that is not wired.
func New(g gate.Gate, driver sensor.Driver, a, b sensor.Channel) (*Controller, error) {
	c := &Controller{
		gate:     g,
		driver:   driver,
		channels: [Channels]sensor.Channel{a, b},
		now:      time.Now,
	}
	if err := c.Off(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetTargetTemperature stores the setpoint in °C. Any value is accepted; the
// gate is not touched until the next Step.
func (c *Controller) SetTargetTemperature(temp int) {
	c.target = temp
}

func (c *Controller) TargetTemperature() int {
	return c.target
}

// Channel returns the sensor identifier configured for idx.
func (c *Controller) Channel(idx int) sensor.Channel {
	if idx < 0 || idx >= Channels {
		return sensor.NoChannel
	}
	return c.channels[idx]
}

// Temperature returns the fused reading: the hottest valid sensor, or 0 when
// no sensor gives a valid reading.
func (c *Controller) Temperature() float64 {
	return fuse(c.readAll())
}

// ChannelTemperature returns the filtered reading of sensor idx. Absent,
// failing and implausible sensors all read 0.
func (c *Controller) ChannelTemperature(idx int) float64 {
	return c.ChannelReading(idx).Celsius
}

// ChannelReading reads sensor idx and classifies the result.
func (c *Controller) ChannelReading(idx int) Reading {
	r := Reading{Index: idx, Channel: c.Channel(idx)}
	if !r.Channel.Populated() {
		r.Condition = Absent
		return r
	}
	raw, err := c.RawTemperature(idx)
	r.Raw = raw
	switch {
	case err != nil:
		r.Condition = Failed
		r.Err = err
	case !Plausible(raw):
		r.Condition = Implausible
	default:
		r.Condition = Valid
		r.Celsius = raw
	}
	return r
}

// RawTemperature reads sensor idx without any filtering.
func (c *Controller) RawTemperature(idx int) (float64, error) {
	if idx < 0 || idx >= Channels {
		return 0, fmt.Errorf("%w: %d", ErrNoSensor, idx)
	}
	ch := c.channels[idx]
	if !ch.Populated() {
		return 0, fmt.Errorf("%w: %d", ErrNotPopulated, idx)
	}
	v, err := c.driver.Thermometer(ch).ReadCelsius()
	if err != nil {
		return 0, fmt.Errorf("read sensor %d (channel %d): %w", idx, ch, err)
	}
	return v, nil
}

// DefaultRawTemperature is RawTemperature of the first sensor.
func (c *Controller) DefaultRawTemperature() (float64, error) {
	return c.RawTemperature(0)
}

// Decide is the control law: High iff there is a valid reading t and it is
// at or below target.
func Decide(t float64, target int) gpio.Level {
	if t == 0 || t > float64(target) {
		return gpio.Low
	}
	return gpio.High
}

// Step reads all sensors, fuses them and drives the gate accordingly.
func (c *Controller) Step() (Status, error) {
	readings := c.readAll()
	st := Status{
		Timestamp:   c.now(),
		Target:      c.target,
		Temperature: fuse(readings),
	}
	copy(st.Readings[:], readings)
	st.Gate = Decide(st.Temperature, c.target)

	var err error
	if st.Gate == gpio.High {
		err = c.On()
	} else {
		err = c.Off()
	}
	return st, err
}

func (c *Controller) On() error {
	if err := c.gate.Out(gpio.High); err != nil {
		return fmt.Errorf("gate on: %w", err)
	}
	return nil
}

func (c *Controller) Off() error {
	if err := c.gate.Out(gpio.Low); err != nil {
		return fmt.Errorf("gate off: %w", err)
	}
	return nil
}

func (c *Controller) readAll() []Reading {
	out := make([]Reading, Channels)
	for i := range out {
		out[i] = c.ChannelReading(i)
	}
	return out
}
