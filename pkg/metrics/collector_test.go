package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func status(temp float64, level gpio.Level, b heatingpad.Condition) heatingpad.Status {
	return heatingpad.Status{
		Target:      35,
		Temperature: temp,
		Gate:        level,
		Readings: [heatingpad.Channels]heatingpad.Reading{
			{Index: 0, Channel: 1, Raw: temp, Celsius: temp, Condition: heatingpad.Valid},
			{Index: 1, Channel: 2, Raw: 5, Condition: b},
		},
	}
}

func TestCollectorBeforeFirstStep(t *testing.T) {
	c := NewCollector()

	assert.Equal(t, 2, testutil.CollectAndCount(c))
}

func TestCollectorObserve(t *testing.T) {
	c := NewCollector()
	c.Observe(status(30, gpio.High, heatingpad.Implausible))
	c.Observe(status(36, gpio.Low, heatingpad.Implausible))
	c.Observe(status(34, gpio.High, heatingpad.Failed))
	c.Observe(status(33, gpio.High, heatingpad.Valid))

	expected := `
# HELP heatingpad_gate_on 1 if the gate was switched on by the last step
# TYPE heatingpad_gate_on gauge
heatingpad_gate_on 1
# HELP heatingpad_gate_transitions_total Number of times the gate changed level
# TYPE heatingpad_gate_transitions_total counter
heatingpad_gate_transitions_total 2
# HELP heatingpad_sensor_rejected_total Sensor readings that failed or were implausible
# TYPE heatingpad_sensor_rejected_total counter
heatingpad_sensor_rejected_total{condition="failed",index="1"} 1
heatingpad_sensor_rejected_total{condition="implausible",index="1"} 2
# HELP heatingpad_steps_total Number of control steps
# TYPE heatingpad_steps_total counter
heatingpad_steps_total 4
# HELP heatingpad_temperature_celsius Fused pad temperature, 0 when no sensor is valid
# TYPE heatingpad_temperature_celsius gauge
heatingpad_temperature_celsius 33
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"heatingpad_gate_on",
		"heatingpad_gate_transitions_total",
		"heatingpad_sensor_rejected_total",
		"heatingpad_steps_total",
		"heatingpad_temperature_celsius",
	)
	require.NoError(t, err)
}

func TestCollectorSkipsAbsentSensors(t *testing.T) {
	c := NewCollector()
	c.Observe(status(30, gpio.High, heatingpad.Absent))

	assert.Equal(t, 1, testutil.CollectAndCount(c, "heatingpad_sensor_temperature_celsius"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "heatingpad_sensor_raw_celsius"))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	c.Observe(status(30, gpio.High, heatingpad.Valid))
	h, err := Handler(c)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "heatingpad_target_celsius 35")
	assert.Contains(t, string(body), `heatingpad_sensor_temperature_celsius{channel="2",index="1"} 0`)
}
