package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/heatingpad/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// LM35 output is 10mV per degree Celsius.
	celsiusPerVolt = 100.0
)

// ADS1115 reads LM35-style sensors wired to the inputs of an ADS1115 ADC.
type ADS1115 struct {
	mu         sync.Mutex
	dev        *i2c.Dev
	bus        i2c.BusCloser
	settings   map[Channel]calibration
	sampleRate int
	pgaFS      float64
}

func NewADS1115(cfg config.Config) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return newADS1115(bus, uint16(cfg.I2C.Address), cfg), nil
}

func newADS1115(bus i2c.BusCloser, addr uint16, cfg config.Config) *ADS1115 {
	return &ADS1115{
		dev:        &i2c.Dev{Addr: addr, Bus: bus},
		bus:        bus,
		settings:   buildChannelSettings(cfg),
		sampleRate: cfg.SampleRate,
		pgaFS:      4.096,
	}
}

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115) Thermometer(ch Channel) Thermometer {
	if !ch.valid() {
		return errThermometer{fmt.Errorf("%w: %d", ErrNoChannel, ch)}
	}
	cal, ok := s.settings[ch]
	if !ok {
		cal = calibration{scale: 1, sampleRate: s.sampleRate}
	}
	return &ads1115Probe{adc: s, input: int(ch) - 1, cal: cal}
}

type ads1115Probe struct {
	adc   *ADS1115
	input int
	cal   calibration
}

func (p *ads1115Probe) ReadCelsius() (float64, error) {
	volts, err := p.adc.convert(p.input, p.cal.sampleRate)
	if err != nil {
		return 0, err
	}
	return p.cal.apply(volts * celsiusPerVolt), nil
}

// convert runs one single-shot conversion on the given input and returns
// the measured voltage.
func (s *ADS1115) convert(input, sampleRate int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msb, lsb, err := s.configForChannel(input, sampleRate)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	time.Sleep(conversionTime(sampleRate))
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return float64(raw) * s.pgaFS / 32768.0, nil
}

// conversionTime is one sample period plus a small margin.
func conversionTime(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	delayMs := int(1000.0/float64(sampleRate)) + 2
	return time.Duration(delayMs) * time.Millisecond
}

// ConversionTime returns how long reading every populated sensor takes.
func ConversionTime(cfg config.Config) time.Duration {
	var total time.Duration
	for _, c := range buildChannelSettings(cfg) {
		total += conversionTime(c.sampleRate)
	}
	return total
}

func (s *ADS1115) configForChannel(input int, sampleRate int) (byte, byte, error) {
	var mux byte
	switch input {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid input %d", input)
	}
	// PGA: use ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}
