// Package metrics exports controller state to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/ericogr/heatingpad/pkg/heatingpad"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heatingpad"

// Collector keeps the last observed Status and a few counters.
type Collector struct {
	mu          sync.Mutex
	last        *heatingpad.Status
	steps       uint64
	transitions uint64
	rejected    map[rejectKey]uint64

	temperature       *prometheus.Desc
	target            *prometheus.Desc
	gateOn            *prometheus.Desc
	sensorTemperature *prometheus.Desc
	sensorRaw         *prometheus.Desc
	stepsTotal        *prometheus.Desc
	transitionsTotal  *prometheus.Desc
	rejectedTotal     *prometheus.Desc
}

type rejectKey struct {
	index     int
	condition heatingpad.Condition
}

func NewCollector() *Collector {
	sensorLabels := []string{"index", "channel"}
	return &Collector{
		rejected: map[rejectKey]uint64{},
		temperature: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "temperature_celsius"),
			"Fused pad temperature, 0 when no sensor is valid", nil, nil),
		target: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "target_celsius"),
			"Target temperature", nil, nil),
		gateOn: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "gate_on"),
			"1 if the gate was switched on by the last step", nil, nil),
		sensorTemperature: prometheus.NewDesc(prometheus.BuildFQName(namespace, "sensor", "temperature_celsius"),
			"Filtered temperature of a sensor", sensorLabels, nil),
		sensorRaw: prometheus.NewDesc(prometheus.BuildFQName(namespace, "sensor", "raw_celsius"),
			"Unfiltered temperature of a sensor", sensorLabels, nil),
		stepsTotal: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "steps_total"),
			"Number of control steps", nil, nil),
		transitionsTotal: prometheus.NewDesc(prometheus.BuildFQName(namespace, "gate", "transitions_total"),
			"Number of times the gate changed level", nil, nil),
		rejectedTotal: prometheus.NewDesc(prometheus.BuildFQName(namespace, "sensor", "rejected_total"),
			"Sensor readings that failed or were implausible", []string{"index", "condition"}, nil),
	}
}

// Observe records the outcome of a control step.
func (c *Collector) Observe(st heatingpad.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps++
	if c.last != nil && c.last.Gate != st.Gate {
		c.transitions++
	}
	for _, r := range st.Readings {
		if r.Condition == heatingpad.Failed || r.Condition == heatingpad.Implausible {
			c.rejected[rejectKey{r.Index, r.Condition}]++
		}
	}
	c.last = &st
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temperature
	ch <- c.target
	ch <- c.gateOn
	ch <- c.sensorTemperature
	ch <- c.sensorRaw
	ch <- c.stepsTotal
	ch <- c.transitionsTotal
	ch <- c.rejectedTotal
}

// Collect implements required collect function for all prometheus collectors
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.stepsTotal, prometheus.CounterValue, float64(c.steps))
	ch <- prometheus.MustNewConstMetric(c.transitionsTotal, prometheus.CounterValue, float64(c.transitions))
	for k, v := range c.rejected {
		ch <- prometheus.MustNewConstMetric(c.rejectedTotal, prometheus.CounterValue, float64(v), strconv.Itoa(k.index), k.condition.String())
	}
	if c.last == nil {
		return
	}
	st := c.last
	gate := 0.0
	if st.Heating() {
		gate = 1
	}
	ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, st.Temperature)
	ch <- prometheus.MustNewConstMetric(c.target, prometheus.GaugeValue, float64(st.Target))
	ch <- prometheus.MustNewConstMetric(c.gateOn, prometheus.GaugeValue, gate)
	for _, r := range st.Readings {
		if r.Condition == heatingpad.Absent {
			continue
		}
		idx, chn := strconv.Itoa(r.Index), strconv.Itoa(int(r.Channel))
		ch <- prometheus.MustNewConstMetric(c.sensorTemperature, prometheus.GaugeValue, r.Celsius, idx, chn)
		ch <- prometheus.MustNewConstMetric(c.sensorRaw, prometheus.GaugeValue, r.Raw, idx, chn)
	}
}

// Handler registers c on a fresh registry and returns the /metrics handler.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
