package heatingpad

import (
	"errors"

	"github.com/ericogr/heatingpad/pkg/sensor"
	"periph.io/x/conn/v3/gpio"
)

var errBus = errors.New("i2c: remote I/O error")

// fakeDriver answers every read on a channel with a fixed value or error and
// counts reads per channel.
type fakeDriver struct {
	values map[sensor.Channel]float64
	errs   map[sensor.Channel]error
	reads  map[sensor.Channel]int
}

func newFakeDriver(values map[sensor.Channel]float64) *fakeDriver {
	return &fakeDriver{values: values, errs: map[sensor.Channel]error{}, reads: map[sensor.Channel]int{}}
}

func (d *fakeDriver) Thermometer(ch sensor.Channel) sensor.Thermometer {
	return fakeThermometer{d: d, ch: ch}
}

func (d *fakeDriver) Close() error { return nil }

type fakeThermometer struct {
	d  *fakeDriver
	ch sensor.Channel
}

func (t fakeThermometer) ReadCelsius() (float64, error) {
	t.d.reads[t.ch]++
	if err := t.d.errs[t.ch]; err != nil {
		return 0, err
	}
	return t.d.values[t.ch], nil
}

type failingGate struct{}

func (failingGate) Out(gpio.Level) error { return errors.New("gpio17: permission denied") }
