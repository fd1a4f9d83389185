package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/heatingpad/pkg/config"
	"periph.io/x/conn/v3/gpio"
)

// Simulation models a heating pad with a first order thermal response. It is
// both the sensor driver and the gate: the pad heats while the gate is High
// and relaxes toward ambient otherwise.
type Simulation struct {
	mu       sync.Mutex
	model    config.SimulationConfig
	settings map[Channel]calibration
	temp     float64
	level    gpio.Level
	last     time.Time
	now      func() time.Time
	rnd      *rand.Rand
}

func NewSimulation(cfg config.Config) *Simulation {
	return newSimulation(cfg, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newSimulation(cfg config.Config, now func() time.Time, rnd *rand.Rand) *Simulation {
	return &Simulation{
		model:    cfg.Simulation,
		settings: buildChannelSettings(cfg),
		temp:     cfg.Simulation.Ambient,
		last:     now(),
		now:      now,
		rnd:      rnd,
	}
}

func (s *Simulation) Out(l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.level = l
	return nil
}

// Temperature returns the modelled pad temperature without noise or
// calibration.
func (s *Simulation) Temperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.temp
}

func (s *Simulation) Thermometer(ch Channel) Thermometer {
	if !ch.valid() {
		return errThermometer{fmt.Errorf("%w: %d", ErrNoChannel, ch)}
	}
	cal, ok := s.settings[ch]
	if !ok {
		cal = calibration{scale: 1}
	}
	return &simProbe{sim: s, cal: cal}
}

func (s *Simulation) Close() error { return nil }

// advance integrates the model up to now. Callers hold s.mu.
func (s *Simulation) advance() {
	now := s.now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if dt <= 0 {
		return
	}
	heat := 0.0
	if s.level == gpio.High {
		heat = s.model.HeatRate
	}
	k := s.model.CoolRate
	if k <= 0 {
		s.temp += heat * dt
		return
	}
	// exact solution of dT/dt = heat - k*(T - ambient)
	eq := s.model.Ambient + heat/k
	s.temp = eq + (s.temp-eq)*math.Exp(-k*dt)
}

type simProbe struct {
	sim *Simulation
	cal calibration
}

func (p *simProbe) ReadCelsius() (float64, error) {
	s := p.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	v := s.temp
	if s.model.Noise > 0 {
		v += (s.rnd.Float64()*2 - 1) * s.model.Noise
	}
	return p.cal.apply(v), nil
}
