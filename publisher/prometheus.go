package publisher

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/sensor"
	"github.com/prometheus/client_golang/prometheus"
)

type deviceState struct {
	device   model.Device
	snapshot model.Snapshot
}

// PrometheusPublisher keeps the latest snapshot of every device and exposes
// it as metrics on scrape.
type PrometheusPublisher struct {
	mu      sync.RWMutex
	devices map[string]deviceState

	sensorValue         *prometheus.Desc
	sensorInfo          *prometheus.Desc
	lastUpdateSuccess   *prometheus.Desc
	lastUpdateTimestamp *prometheus.Desc
}

func NewPrometheusPublisher() *PrometheusPublisher {
	deviceLabels := []string{"entry_id", "serial_number", "device"}
	return &PrometheusPublisher{
		devices: make(map[string]deviceState),
		sensorValue: prometheus.NewDesc(
			"solax_cloud_sensor_value",
			"Latest numeric value reported by a SolaX Cloud sensor",
			append(deviceLabels, "sensor", "name", "unit", "device_class", "state_class"),
			nil,
		),
		sensorInfo: prometheus.NewDesc(
			"solax_cloud_sensor_info",
			"Latest text value reported by a SolaX Cloud sensor, always 1",
			append(deviceLabels, "sensor", "name", "value"),
			nil,
		),
		lastUpdateSuccess: prometheus.NewDesc(
			"solax_cloud_last_update_success",
			"Whether the last poll of the SolaX Cloud succeeded (1=yes, 0=no)",
			deviceLabels,
			nil,
		),
		lastUpdateTimestamp: prometheus.NewDesc(
			"solax_cloud_last_update_timestamp_seconds",
			"Unix time of the last successful poll",
			deviceLabels,
			nil,
		),
	}
}

func (p *PrometheusPublisher) Name() string {
	return "prometheus"
}

func (p *PrometheusPublisher) Register(device model.Device, snapshot model.Snapshot) error {
	return p.Publish(device, snapshot)
}

func (p *PrometheusPublisher) Publish(device model.Device, snapshot model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices[device.EntryID] = deviceState{device: device, snapshot: snapshot}
	return nil
}

// Unload drops the series of the device until it is registered again.
func (p *PrometheusPublisher) Unload(device model.Device) error {
	return p.Unregister(device)
}

func (p *PrometheusPublisher) Unregister(device model.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.devices, device.EntryID)
	return nil
}

// Describe implements prometheus.Collector
func (p *PrometheusPublisher) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.sensorValue
	ch <- p.sensorInfo
	ch <- p.lastUpdateSuccess
	ch <- p.lastUpdateTimestamp
}

// Collect implements prometheus.Collector
func (p *PrometheusPublisher) Collect(ch chan<- prometheus.Metric) {
	p.mu.RLock()
	states := make([]deviceState, 0, len(p.devices))
	for _, state := range p.devices {
		states = append(states, state)
	}
	p.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].device.EntryID < states[j].device.EntryID
	})

	for _, state := range states {
		p.collectDevice(state, ch)
	}
}

func (p *PrometheusPublisher) collectDevice(state deviceState, ch chan<- prometheus.Metric) {
	device := state.device
	labels := []string{device.EntryID, device.SerialNumber, device.Info.Name}

	success := 0.0
	if state.snapshot.LastUpdateSuccess {
		success = 1
	}
	ch <- prometheus.MustNewConstMetric(p.lastUpdateSuccess, prometheus.GaugeValue, success, labels...)

	if !state.snapshot.UpdatedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(p.lastUpdateTimestamp, prometheus.GaugeValue,
			float64(state.snapshot.UpdatedAt.UnixNano())/1e9, labels...)
	}

	for _, s := range sensor.States(device, state.snapshot) {
		if value, ok := toFloat(s.Value); ok {
			ch <- prometheus.MustNewConstMetric(p.sensorValue, prometheus.GaugeValue, value,
				append(labels, s.Key, s.Name, s.Unit, string(s.DeviceClass), string(s.StateClass))...)
			continue
		}

		if text, ok := s.Value.(string); ok {
			ch <- prometheus.MustNewConstMetric(p.sensorInfo, prometheus.GaugeValue, 1,
				append(labels, s.Key, s.Name, text)...)
		}
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
