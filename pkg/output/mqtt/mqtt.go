package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/heatingpad/pkg/config"
	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/ericogr/heatingpad/pkg/output"
	"github.com/ericogr/heatingpad/pkg/ui"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "heatingpad"
	DefaultStateTopic = "heatingpad/state"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	keyPayloadOn           = "payload_on"
	keyPayloadOff          = "payload_off"
	unitCelsius            = "°C"
	deviceClassTemperature = "temperature"
	deviceClassHeat        = "heat"
	stateClassMeasurement  = "measurement"
	valueTemplateTemp      = "{{ value_json.temperature }}"
	valueTemplateTarget    = "{{ value_json.target }}"
	valueTemplateHeating   = "{{ 'ON' if value_json.heating else 'OFF' }}"

	disconnectQuiesceMs = 250
)

// publisher is the part of the paho client this output uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client     publisher
	stateTopic string
}

type sensorPayload struct {
	Index     int                  `json:"index"`
	Channel   int                  `json:"channel"`
	Raw       float64              `json:"raw"`
	Celsius   float64              `json:"celsius"`
	Condition heatingpad.Condition `json:"condition"`
}

type statePayload struct {
	Timestamp   time.Time       `json:"timestamp"`
	Target      int             `json:"target"`
	Temperature float64         `json:"temperature"`
	Heating     bool            `json:"heating"`
	Sensors     []sensorPayload `json:"sensors"`
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTTOutput(client, cfg), nil
}

func newMQTTOutput(client publisher, cfg config.MQTTConfig) *MQTTOutput {
	st := cfg.StateTopic
	if st == "" {
		st = DefaultStateTopic
	}
	m := &MQTTOutput{client: client, stateTopic: st}

	// Publish Home Assistant discovery payloads if requested
	if cfg.DiscoveryTopic != "" {
		for topic, payload := range discoveryPayloads(cfg, st) {
			if err := publishJSON(client, topic, true, payload); err != nil {
				ui.Warning("mqtt discovery publish error: %v", err)
			}
		}
	}
	return m
}

func (m *MQTTOutput) Publish(st heatingpad.Status) error {
	b, err := json.Marshal(newStatePayload(st))
	if err != nil {
		return err
	}
	token := m.client.Publish(m.stateTopic, 0, false, b)
	token.Wait()
	return token.Error()
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func newStatePayload(st heatingpad.Status) statePayload {
	p := statePayload{
		Timestamp:   st.Timestamp,
		Target:      st.Target,
		Temperature: st.Temperature,
		Heating:     st.Heating(),
		Sensors:     make([]sensorPayload, 0, len(st.Readings)),
	}
	for _, r := range st.Readings {
		if r.Condition == heatingpad.Absent {
			continue
		}
		p.Sensors = append(p.Sensors, sensorPayload{
			Index:     r.Index,
			Channel:   int(r.Channel),
			Raw:       r.Raw,
			Celsius:   r.Celsius,
			Condition: r.Condition,
		})
	}
	return p
}

// discoveryPayloads returns the retained Home Assistant config messages keyed
// by topic: the fused temperature, the target and the gate.
func discoveryPayloads(cfg config.MQTTConfig, stateTopic string) map[string]map[string]interface{} {
	prefix := strings.TrimSuffix(cfg.DiscoveryTopic, "/")
	name := discoveryName(cfg)
	uid := discoveryUniqueID(cfg)

	temp := baseDiscoveryPayload(name+" temperature", stateTopic, uid+"_temperature")
	temp[keyUnitOfMeasurement] = unitCelsius
	temp[keyDeviceClass] = deviceClassTemperature
	temp[keyStateClass] = stateClassMeasurement
	temp[keyValueTemplate] = valueTemplateTemp

	target := baseDiscoveryPayload(name+" target", stateTopic, uid+"_target")
	target[keyUnitOfMeasurement] = unitCelsius
	target[keyDeviceClass] = deviceClassTemperature
	target[keyValueTemplate] = valueTemplateTarget

	heating := baseDiscoveryPayload(name+" heating", stateTopic, uid+"_heating")
	heating[keyDeviceClass] = deviceClassHeat
	heating[keyValueTemplate] = valueTemplateHeating
	heating[keyPayloadOn] = "ON"
	heating[keyPayloadOff] = "OFF"

	return map[string]map[string]interface{}{
		fmt.Sprintf("%s/sensor/%s_temperature/config", prefix, uid):    temp,
		fmt.Sprintf("%s/sensor/%s_target/config", prefix, uid):         target,
		fmt.Sprintf("%s/binary_sensor/%s_heating/config", prefix, uid): heating,
	}
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig) string {
	if cfg.DiscoveryName != "" {
		return cfg.DiscoveryName
	}
	return fmt.Sprintf("Heating pad %s", cfg.ClientID)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig) string {
	if cfg.DiscoveryUniqueID != "" {
		return cfg.DiscoveryUniqueID
	}
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return DefaultClientID
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	return map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyJSONAttributesTopic: stateTopic,
		keyUniqueID:            uniqueID,
	}
}

// helper: marshal and publish JSON payload
func publishJSON(client publisher, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
