package heatingpad

import "github.com/ericogr/heatingpad/pkg/sensor"

// Readings outside (MinPlausible, MaxPlausible] are treated as a
// disconnected or noisy sensor.
const (
	MinPlausible = 10.0
	MaxPlausible = 70.0
)

// Condition tells why a channel reading has the value it has. The collapsed
// Celsius value alone cannot distinguish these.
type Condition int

const (
	Absent Condition = iota
	Failed
	Implausible
	Valid
)

func (c Condition) String() string {
	switch c {
	case Absent:
		return "absent"
	case Failed:
		return "failed"
	case Implausible:
		return "implausible"
	case Valid:
		return "valid"
	default:
		return "unknown"
	}
}

func (c Condition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

type Reading struct {
	Index     int            `json:"index"`
	Channel   sensor.Channel `json:"channel"`
	Raw       float64        `json:"raw"`
	Celsius   float64        `json:"celsius"`
	Condition Condition      `json:"condition"`
	Err       error          `json:"-"`
}

// Plausible reports whether raw passes the validity filter. Exactly 0 never
// does.
func Plausible(raw float64) bool {
	return raw > MinPlausible && raw <= MaxPlausible
}

// Filter maps raw to itself if plausible and to 0 otherwise.
func Filter(raw float64) float64 {
	if !Plausible(raw) {
		return 0
	}
	return raw
}

// fuse returns the hottest valid reading, 0 if there is none.
func fuse(readings []Reading) float64 {
	hottest := 0.0
	for _, r := range readings {
		if r.Celsius > hottest {
			hottest = r.Celsius
		}
	}
	return hottest
}
