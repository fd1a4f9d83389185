package sensor

import "github.com/ericogr/heatingpad/pkg/config"

type calibration struct {
	scale      float64
	offset     float64
	sampleRate int
}

// buildChannelSettings extracts per-channel calibration from the config.
// Unpopulated sensors are skipped; a zero scale is treated as 1.
func buildChannelSettings(cfg config.Config) map[Channel]calibration {
	out := make(map[Channel]calibration)
	for _, s := range cfg.Sensors {
		ch := Channel(s.Channel)
		if !ch.Populated() {
			continue
		}
		c := calibration{scale: s.CalibrationScale, offset: s.CalibrationOffset, sampleRate: s.SampleRate}
		if c.scale == 0 {
			c.scale = 1
		}
		if c.sampleRate == 0 {
			c.sampleRate = cfg.SampleRate
		}
		out[ch] = c
	}
	return out
}

func (c calibration) apply(celsius float64) float64 {
	return celsius*c.scale + c.offset
}
