package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"

	// ADS1115 has four single-ended inputs, numbered 1..4 here.
	maxSensorChannel = 4
	maxSensors       = 2
)

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

// SensorConfig describes one temperature sensor. Channel 0 means the sensor
// is not populated.
type SensorConfig struct {
	Channel           int     `json:"channel" yaml:"channel"`
	CalibrationScale  float64 `json:"calibration_scale" yaml:"calibration_scale"`
	CalibrationOffset float64 `json:"calibration_offset" yaml:"calibration_offset"`
	SampleRate        int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type OutputConfig struct {
	Type       string      `json:"type" yaml:"type"`
	IntervalMs int         `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// SimulationConfig parametrizes the simulated pad. Rates are per second.
type SimulationConfig struct {
	Ambient  float64 `json:"ambient" yaml:"ambient"`
	HeatRate float64 `json:"heat_rate" yaml:"heat_rate"`
	CoolRate float64 `json:"cool_rate" yaml:"cool_rate"`
	Noise    float64 `json:"noise" yaml:"noise"`
}

type Config struct {
	I2C               I2CConfig        `json:"i2c" yaml:"i2c"`
	SampleRate        int              `json:"sample_rate" yaml:"sample_rate"`
	SensorType        string           `json:"sensor_type" yaml:"sensor_type"`
	GatePin           string           `json:"gate_pin" yaml:"gate_pin"`
	DryRun            bool             `json:"dry_run" yaml:"dry_run"`
	Sensors           []SensorConfig   `json:"sensors" yaml:"sensors"`
	TargetTemperature int              `json:"target_temperature" yaml:"target_temperature"`
	IntervalMs        int              `json:"interval_ms" yaml:"interval_ms"`
	Outputs           []OutputConfig   `json:"outputs" yaml:"outputs"`
	Metrics           MetricsConfig    `json:"metrics" yaml:"metrics"`
	Simulation        SimulationConfig `json:"simulation" yaml:"simulation"`
	Debug             bool             `json:"debug" yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		I2C:        I2CConfig{Bus: "1", Address: 0x48},
		SampleRate: 128,
		SensorType: SensorTypeReal,
		GatePin:    "GPIO17",
		Sensors: []SensorConfig{
			{Channel: 1, CalibrationScale: 1.0},
			{Channel: 0, CalibrationScale: 1.0},
		},
		IntervalMs: 1000,
		Outputs:    []OutputConfig{{Type: OutputConsole, IntervalMs: 1000}},
		Simulation: SimulationConfig{Ambient: 21, HeatRate: 0.5, CoolRate: 0.01, Noise: 0.2},
	}
}

// Sensor returns the configuration of sensor idx (0 = A, 1 = B). Missing
// entries are reported as unpopulated.
func (c Config) Sensor(idx int) SensorConfig {
	if idx < 0 || idx >= len(c.Sensors) {
		return SensorConfig{}
	}
	return c.Sensors[idx]
}

// LoadFromFlags loads configuration from the command line of the process.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load reads an optional JSON or YAML config file and applies flags on top.
// Flags override values present in the file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("heatingpad", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagSampleRate := fs.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagGatePin := fs.String("gate-pin", "", "GPIO driving the heating gate, e.g. GPIO17")
	flagDryRun := fs.Bool("dry-run", false, "Do not drive the gate pin, only log decisions")
	flagSensorA := fs.Int("sensor-a", -1, "ADS1115 input of sensor A (1-4, 0 = none)")
	flagSensorB := fs.Int("sensor-b", -1, "ADS1115 input of sensor B (1-4, 0 = none)")
	flagCalibration := fs.String("calibration", "", "Per-sensor scale, e.g. 0=1.0,1=0.98")
	flagCalOffset := fs.String("calibration-offset", "", "Per-sensor offset in °C, e.g. 0=0.5,1=-0.2")
	flagSampleRates := fs.String("sample-rates", "", "Per-sensor sample rate, e.g. 0=128,1=250")
	flagTarget := fs.Int("target", math.MinInt, "Target temperature in °C")
	flagInterval := fs.Int("interval-ms", -1, "Control step interval in ms")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic prefix")
	flagMetrics := fs.String("metrics-listen", "", "Address for the Prometheus endpoint, e.g. :9100")
	flagDebug := fs.Bool("debug", false, "Print debug messages")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagSampleRate != -1 {
		cfg.SampleRate = *flagSampleRate
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagGatePin != "" {
		cfg.GatePin = *flagGatePin
	}
	if *flagDryRun {
		cfg.DryRun = true
	}
	if *flagDebug {
		cfg.Debug = true
	}

	for len(cfg.Sensors) < maxSensors {
		cfg.Sensors = append(cfg.Sensors, SensorConfig{CalibrationScale: 1.0})
	}
	if *flagSensorA != -1 {
		cfg.Sensors[0].Channel = *flagSensorA
	}
	if *flagSensorB != -1 {
		cfg.Sensors[1].Channel = *flagSensorB
	}
	scales, err := parseKeyFloatMap(*flagCalibration)
	if err != nil {
		return cfg, fmt.Errorf("calibration: %w", err)
	}
	offsets, err := parseKeyFloatMap(*flagCalOffset)
	if err != nil {
		return cfg, fmt.Errorf("calibration-offset: %w", err)
	}
	rates, err := parseKeyIntMap(*flagSampleRates)
	if err != nil {
		return cfg, fmt.Errorf("sample-rates: %w", err)
	}
	for i := range cfg.Sensors {
		if v, ok := scales[i]; ok {
			cfg.Sensors[i].CalibrationScale = v
		}
		if v, ok := offsets[i]; ok {
			cfg.Sensors[i].CalibrationOffset = v
		}
		if v, ok := rates[i]; ok {
			cfg.Sensors[i].SampleRate = v
		}
	}

	if *flagTarget != math.MinInt {
		cfg.TargetTemperature = *flagTarget
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p), IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		outIntervals := map[string]int{}
		for _, p := range parseCSV(*flagOutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			if v, err := strconv.Atoi(strings.TrimSpace(kv[1])); err == nil {
				outIntervals[strings.TrimSpace(kv[0])] = v
			}
		}
		for i := range cfg.Outputs {
			if v, ok := outIntervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}

	// map mqtt flags onto every mqtt output, creating one if none exists
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" || *flagDiscovery != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
			if *flagDiscovery != "" {
				m.DiscoveryTopic = *flagDiscovery
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: OutputMQTT, IntervalMs: cfg.IntervalMs, MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagMetrics != "" {
		cfg.Metrics.Listen = *flagMetrics
	}

	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
		if cfg.Outputs[i].Type == OutputMQTT && cfg.Outputs[i].MQTT != nil {
			applyMQTTDefaults(cfg.Outputs[i].MQTT)
		}
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyMQTTDefaults(m *MQTTConfig) {
	if m.ClientID == "" {
		m.ClientID = "heatingpad"
	}
	if m.StateTopic == "" {
		m.StateTopic = "heatingpad/state"
	}
}

// Validate reports the first inconsistency in cfg.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	switch c.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if len(c.Sensors) > maxSensors {
		return fmt.Errorf("at most %d sensors are supported, got %d", maxSensors, len(c.Sensors))
	}
	used := map[int]int{}
	for i, s := range c.Sensors {
		if s.Channel < 0 || s.Channel > maxSensorChannel {
			return fmt.Errorf("sensor %d: channel %d out of range 0-%d", i, s.Channel, maxSensorChannel)
		}
		if s.Channel != 0 {
			if j, ok := used[s.Channel]; ok {
				return fmt.Errorf("sensor %d: channel %d already used by sensor %d", i, s.Channel, j)
			}
			used[s.Channel] = i
		}
		if s.SampleRate < 0 {
			return fmt.Errorf("sensor %d: sample rate must be >= 0", i)
		}
	}
	if c.SensorType == SensorTypeReal && !c.DryRun && c.GatePin == "" {
		return errors.New("gate-pin is required")
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole:
		case OutputMQTT:
			if o.MQTT == nil || o.MQTT.Server == "" {
				return errors.New("mqtt output requires a server")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKeyValues(s string, each func(k int, v string) error) error {
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("expected key=value, got %q", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", kv[0], err)
		}
		if err := each(k, strings.TrimSpace(kv[1])); err != nil {
			return err
		}
	}
	return nil
}

func parseKeyFloatMap(s string) (map[int]float64, error) {
	out := map[int]float64{}
	err := parseKeyValues(s, func(k int, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", v, err)
		}
		out[k] = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[int]int, error) {
	out := map[int]int{}
	err := parseKeyValues(s, func(k int, v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", v, err)
		}
		out[k] = i
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
