package publisher

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/repo"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"
)

func TestMain(m *testing.M) {
	logger.SetTestLoggerNop()
	os.Exit(m.Run())
}

func testDevice() model.Device {
	return model.Device{
		EntryID:      "entry-1",
		SerialNumber: "SN/ABC 1",
		Info: model.DeviceInfo{
			Identifiers:  []model.DeviceIdentifier{{Domain: "solax_cloud", ID: "SN/ABC 1"}},
			Manufacturer: "SolaX",
			Name:         "Roof",
			Model:        pointy.String("4"),
		},
		Sensors: []model.SensorEntity{
			{
				UniqueID: "entry-1-ac_power",
				DataKey:  "acpower",
				Description: model.SensorDescription{
					Key:         "ac_power",
					Name:        "AC power",
					DeviceClass: model.DeviceClassPower,
					Unit:        model.UnitWatt,
					StateClass:  model.StateClassMeasurement,
				},
			},
			{
				UniqueID: "entry-1-upload_time",
				DataKey:  "uploadTime",
				Description: model.SensorDescription{
					Key:  "upload_time",
					Name: "Upload time",
				},
			},
		},
	}
}

func goodSnapshot() model.Snapshot {
	return model.Snapshot{
		Data: map[string]any{
			"acpower":    1200.5,
			"uploadTime": "2024-05-01 10:00:00",
		},
		LastUpdateSuccess: true,
		UpdatedAt:         time.Unix(1714550400, 0),
		AttemptedAt:       time.Unix(1714550400, 0),
	}
}

func staleSnapshot() model.Snapshot {
	snapshot := goodSnapshot()
	snapshot.LastUpdateSuccess = false
	snapshot.LastError = "timeout"
	return snapshot
}

// ---- prometheus

func TestPrometheusPublisher_Collect(t *testing.T) {
	p := NewPrometheusPublisher()
	assert.Equal(t, 0, testutil.CollectAndCount(p))

	require.NoError(t, p.Register(testDevice(), goodSnapshot()))

	// success + timestamp + one numeric + one text sensor
	assert.Equal(t, 4, testutil.CollectAndCount(p))

	expected := `
# HELP solax_cloud_sensor_value Latest numeric value reported by a SolaX Cloud sensor
# TYPE solax_cloud_sensor_value gauge
solax_cloud_sensor_value{device="Roof",device_class="power",entry_id="entry-1",name="AC power",sensor="ac_power",serial_number="SN/ABC 1",state_class="measurement",unit="W"} 1200.5
`
	require.NoError(t, testutil.CollectAndCompare(p, strings.NewReader(expected), "solax_cloud_sensor_value"))
}

func TestPrometheusPublisher_StaleKeepsValues(t *testing.T) {
	p := NewPrometheusPublisher()
	require.NoError(t, p.Publish(testDevice(), staleSnapshot()))

	expected := `
# HELP solax_cloud_last_update_success Whether the last poll of the SolaX Cloud succeeded (1=yes, 0=no)
# TYPE solax_cloud_last_update_success gauge
solax_cloud_last_update_success{device="Roof",entry_id="entry-1",serial_number="SN/ABC 1"} 0
`
	require.NoError(t, testutil.CollectAndCompare(p, strings.NewReader(expected), "solax_cloud_last_update_success"))
	assert.Equal(t, 1, testutil.CollectAndCount(p, "solax_cloud_sensor_value"))
}

func TestPrometheusPublisher_Unregister(t *testing.T) {
	p := NewPrometheusPublisher()
	require.NoError(t, p.Publish(testDevice(), goodSnapshot()))
	require.NoError(t, p.Unregister(testDevice()))
	assert.Equal(t, 0, testutil.CollectAndCount(p))
}

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 1.5, want: 1.5, ok: true},
		{in: 3, want: 3, ok: true},
		{in: int64(7), want: 7, ok: true},
		{in: json.Number("2.25"), want: 2.25, ok: true},
		{in: true, want: 1, ok: true},
		{in: "text", ok: false},
		{in: nil, ok: false},
	}

	for _, c := range cases {
		got, ok := toFloat(c.in)
		assert.Equal(t, c.ok, ok, "%v", c.in)
		if c.ok {
			assert.Equal(t, c.want, got, "%v", c.in)
		}
	}
}

// ---- mqtt

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakeMQTTClient struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (c *fakeMQTTClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body string
	switch v := payload.(type) {
	case []byte:
		body = string(v)
	case string:
		body = v
	}
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: body})
	return &fakeToken{err: c.err}
}

func (c *fakeMQTTClient) find(topic string) (message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].topic == topic {
			return c.messages[i], true
		}
	}
	return message{}, false
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, "sn_abc_1", NodeID("SN/ABC 1"))
	assert.Equal(t, "x1-boost", NodeID("X1-Boost"))
}

func TestMQTTPublisher_Topics(t *testing.T) {
	p := NewMQTTPublisher(&fakeMQTTClient{}, config.MQTTConfig{})
	assert.Equal(t, "homeassistant/sensor/sn_abc_1/ac_power/config", p.DiscoveryTopic("SN/ABC 1", "ac_power"))
	assert.Equal(t, "solax_cloud/sn_abc_1/state", p.StateTopic("SN/ABC 1"))
	assert.Equal(t, "solax_cloud/sn_abc_1/availability", p.AvailabilityTopic("SN/ABC 1"))

	custom := NewMQTTPublisher(&fakeMQTTClient{}, config.MQTTConfig{DiscoveryPrefix: "ha", BaseTopic: "solar"})
	assert.Equal(t, "ha/sensor/x1/ac_power/config", custom.DiscoveryTopic("X1", "ac_power"))
	assert.Equal(t, "solar/x1/state", custom.StateTopic("X1"))
}

func TestMQTTPublisher_Register(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, config.MQTTConfig{})

	require.NoError(t, p.Register(testDevice(), goodSnapshot()))

	msg, ok := client.find("homeassistant/sensor/sn_abc_1/ac_power/config")
	require.True(t, ok)
	assert.True(t, msg.retained)

	var discovery DiscoveryConfig
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &discovery))
	assert.Equal(t, "AC power", discovery.Name)
	assert.Equal(t, "entry-1-ac_power", discovery.UniqueID)
	assert.Equal(t, "solax_cloud/sn_abc_1/state", discovery.StateTopic)
	assert.Equal(t, "{{ value_json.ac_power }}", discovery.ValueTemplate)
	assert.Equal(t, "W", discovery.UnitOfMeasurement)
	assert.Equal(t, "power", discovery.DeviceClass)
	assert.Equal(t, "all", discovery.AvailabilityMode)
	require.Len(t, discovery.Availability, 2)
	assert.Equal(t, "solax_cloud/status", discovery.Availability[0].Topic)
	assert.Equal(t, []string{"solax_cloud_SN/ABC 1"}, discovery.Device.Identifiers)
	assert.Equal(t, "4", pointy.StringValue(discovery.Device.Model, ""))

	text, ok := client.find("homeassistant/sensor/sn_abc_1/upload_time/config")
	require.True(t, ok)
	assert.NotContains(t, text.payload, "unit_of_measurement")

	state, ok := client.find("solax_cloud/sn_abc_1/state")
	require.True(t, ok)
	var values map[string]any
	require.NoError(t, json.Unmarshal([]byte(state.payload), &values))
	assert.Equal(t, 1200.5, values["ac_power"])
	assert.Equal(t, "2024-05-01 10:00:00", values["upload_time"])

	availability, ok := client.find("solax_cloud/sn_abc_1/availability")
	require.True(t, ok)
	assert.Equal(t, "online", availability.payload)
}

func TestMQTTPublisher_PublishStale(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, config.MQTTConfig{})

	require.NoError(t, p.Publish(testDevice(), staleSnapshot()))

	_, ok := client.find("solax_cloud/sn_abc_1/state")
	assert.False(t, ok, "stale snapshot must not overwrite the last state")

	availability, ok := client.find("solax_cloud/sn_abc_1/availability")
	require.True(t, ok)
	assert.Equal(t, "offline", availability.payload)
}

func TestMQTTPublisher_Unregister(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, config.MQTTConfig{})

	require.NoError(t, p.Unregister(testDevice()))

	for _, key := range []string{"ac_power", "upload_time"} {
		msg, ok := client.find("homeassistant/sensor/sn_abc_1/" + key + "/config")
		require.True(t, ok)
		assert.Empty(t, msg.payload)
		assert.True(t, msg.retained)
	}
}

func TestMQTTPublisher_Unload(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher(client, config.MQTTConfig{})

	require.NoError(t, p.Unload(testDevice()))

	require.Len(t, client.messages, 1)
	availability, ok := client.find("solax_cloud/sn_abc_1/availability")
	require.True(t, ok)
	assert.Equal(t, "offline", availability.payload)
	assert.True(t, availability.retained)

	_, ok = client.find("homeassistant/sensor/sn_abc_1/ac_power/config")
	assert.False(t, ok, "unload must not touch discovery")
}

func TestMQTTPublisher_PublishError(t *testing.T) {
	client := &fakeMQTTClient{err: errors.New("not connected")}
	p := NewMQTTPublisher(client, config.MQTTConfig{})

	assert.EqualError(t, p.Publish(testDevice(), goodSnapshot()), "not connected")
}

// ---- elasticsearch

func TestElasticPublisher(t *testing.T) {
	mock := repo.NewSnapshotMockRepo()
	p := NewElasticPublisher(mock, "solar")
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Register(testDevice(), goodSnapshot()))

	device, ok := mock.Device("entry-1")
	require.True(t, ok)
	assert.Equal(t, model.DataTypeDevice, device.DataType)
	assert.Equal(t, "Roof", device.Name)
	assert.Equal(t, 2, device.SensorCount)

	require.NoError(t, p.Publish(testDevice(), staleSnapshot()))

	docs := mock.Indexed("solar-2024.05.01")
	require.Len(t, docs, 2)

	first := docs[0].(model.SnapshotDocument)
	assert.True(t, first.LastUpdateSuccess)
	assert.Nil(t, first.LastError)
	assert.Equal(t, 1200.5, first.Values["ac_power"])

	second := docs[1].(model.SnapshotDocument)
	assert.False(t, second.LastUpdateSuccess)
	assert.Equal(t, "timeout", pointy.StringValue(second.LastError, ""))
	assert.Equal(t, 1200.5, second.Values["ac_power"])

	require.NoError(t, p.Unload(testDevice()))
	require.NoError(t, p.Unregister(testDevice()))
}
