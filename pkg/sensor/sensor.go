package sensor

import "errors"

// Channel identifies an analog input feeding a temperature sensor. The zero
// value means the input is not populated; 1..4 select ADS1115 AIN0..AIN3.
type Channel int

const (
	NoChannel  Channel = 0
	MaxChannel Channel = 4
)

// ErrNoChannel is returned by thermometers handed out for a channel the
// driver has no input for.
var ErrNoChannel = errors.New("no such sensor channel")

// Populated reports whether c refers to a wired sensor.
func (c Channel) Populated() bool { return c != NoChannel }

func (c Channel) valid() bool { return c > NoChannel && c <= MaxChannel }

// Thermometer is a short-lived handle to one sensor. Drivers hand out a new
// one per read.
type Thermometer interface {
	ReadCelsius() (float64, error)
}

type Driver interface {
	Thermometer(ch Channel) Thermometer
	Close() error
}

type errThermometer struct{ err error }

func (e errThermometer) ReadCelsius() (float64, error) { return 0, e.err }
