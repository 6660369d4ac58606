package publisher

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/infra"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/sensor"
	"github.com/HavvokLab/solax-cloud/setting"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const publishTimeout = 10 * time.Second

var topicUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// MQTTClient is the part of mqtt.Client the publisher needs.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type DiscoveryAvailability struct {
	Topic string `json:"topic"`
}

type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Name         string   `json:"name"`
	Model        *string  `json:"model,omitempty"`
	SWVersion    *string  `json:"sw_version,omitempty"`
}

// DiscoveryConfig is the Home Assistant MQTT discovery payload of one sensor.
type DiscoveryConfig struct {
	Name              string                  `json:"name"`
	UniqueID          string                  `json:"unique_id"`
	ObjectID          string                  `json:"object_id"`
	StateTopic        string                  `json:"state_topic"`
	ValueTemplate     string                  `json:"value_template"`
	UnitOfMeasurement string                  `json:"unit_of_measurement,omitempty"`
	DeviceClass       string                  `json:"device_class,omitempty"`
	StateClass        string                  `json:"state_class,omitempty"`
	Availability      []DiscoveryAvailability `json:"availability"`
	AvailabilityMode  string                  `json:"availability_mode"`
	Device            DiscoveryDevice         `json:"device"`
}

type MQTTPublisher struct {
	client          MQTTClient
	discoveryPrefix string
	baseTopic       string
	qos             byte
	logger          zerolog.Logger
}

func NewMQTTPublisher(client MQTTClient, conf config.MQTTConfig) *MQTTPublisher {
	prefix := conf.DiscoveryPrefix
	if prefix == "" {
		prefix = setting.MQTTDiscoveryPrefix
	}
	base := conf.BaseTopic
	if base == "" {
		base = setting.MQTTBaseTopic
	}

	return &MQTTPublisher{
		client:          client,
		discoveryPrefix: prefix,
		baseTopic:       base,
		qos:             conf.QoS,
		logger:          logger.New("mqtt_publisher.log"),
	}
}

func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// NodeID turns a serial number into a topic segment.
func NodeID(serialNumber string) string {
	return strings.Trim(topicUnsafe.ReplaceAllString(strings.ToLower(serialNumber), "_"), "_")
}

func (p *MQTTPublisher) DiscoveryTopic(serialNumber, key string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", p.discoveryPrefix, NodeID(serialNumber), key)
}

func (p *MQTTPublisher) StateTopic(serialNumber string) string {
	return fmt.Sprintf("%s/%s/state", p.baseTopic, NodeID(serialNumber))
}

func (p *MQTTPublisher) AvailabilityTopic(serialNumber string) string {
	return fmt.Sprintf("%s/%s/availability", p.baseTopic, NodeID(serialNumber))
}

func (p *MQTTPublisher) DiscoveryConfig(device model.Device, entity model.SensorEntity) DiscoveryConfig {
	identifiers := make([]string, 0, len(device.Info.Identifiers))
	for _, identifier := range device.Info.Identifiers {
		identifiers = append(identifiers, identifier.Domain+"_"+identifier.ID)
	}

	description := entity.Description
	return DiscoveryConfig{
		Name:              description.Name,
		UniqueID:          entity.UniqueID,
		ObjectID:          NodeID(device.SerialNumber) + "_" + description.Key,
		StateTopic:        p.StateTopic(device.SerialNumber),
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", description.Key),
		UnitOfMeasurement: description.Unit,
		DeviceClass:       string(description.DeviceClass),
		StateClass:        string(description.StateClass),
		Availability: []DiscoveryAvailability{
			{Topic: infra.BridgeStatusTopic(p.baseTopic)},
			{Topic: p.AvailabilityTopic(device.SerialNumber)},
		},
		AvailabilityMode: "all",
		Device: DiscoveryDevice{
			Identifiers:  identifiers,
			Manufacturer: device.Info.Manufacturer,
			Name:         device.Info.Name,
			Model:        device.Info.Model,
			SWVersion:    device.Info.SWVersion,
		},
	}
}

// StatePayload maps sensor keys to their current values.
func StatePayload(device model.Device, snapshot model.Snapshot) map[string]any {
	payload := make(map[string]any, len(device.Sensors))
	for _, state := range sensor.States(device, snapshot) {
		payload[state.Key] = state.Value
	}

	return payload
}

func (p *MQTTPublisher) Register(device model.Device, snapshot model.Snapshot) error {
	for _, entity := range device.Sensors {
		payload, err := json.Marshal(p.DiscoveryConfig(device, entity))
		if err != nil {
			return err
		}

		if err := p.publish(p.DiscoveryTopic(device.SerialNumber, entity.Description.Key), true, payload); err != nil {
			return err
		}
	}

	p.logger.Info().
		Str("entry_id", device.EntryID).
		Int("sensors", len(device.Sensors)).
		Msg("MQTTPublisher::Register() - discovery published")

	return p.Publish(device, snapshot)
}

// Publish sends the state on success. On failure only the availability
// flips to offline so the last known values stay in place.
func (p *MQTTPublisher) Publish(device model.Device, snapshot model.Snapshot) error {
	if !snapshot.LastUpdateSuccess {
		return p.publish(p.AvailabilityTopic(device.SerialNumber), true, infra.PayloadOffline)
	}

	payload, err := json.Marshal(StatePayload(device, snapshot))
	if err != nil {
		return err
	}

	if err := p.publish(p.StateTopic(device.SerialNumber), true, payload); err != nil {
		return err
	}

	return p.publish(p.AvailabilityTopic(device.SerialNumber), true, infra.PayloadOnline)
}

// Unload marks the device unavailable. Discovery and the last state stay
// retained so Home Assistant keeps the entities across a restart.
func (p *MQTTPublisher) Unload(device model.Device) error {
	return p.publish(p.AvailabilityTopic(device.SerialNumber), true, infra.PayloadOffline)
}

// Unregister clears the retained discovery configs, which removes the
// entities from Home Assistant.
func (p *MQTTPublisher) Unregister(device model.Device) error {
	for _, entity := range device.Sensors {
		if err := p.publish(p.DiscoveryTopic(device.SerialNumber, entity.Description.Key), true, ""); err != nil {
			return err
		}
	}

	if err := p.publish(p.StateTopic(device.SerialNumber), true, ""); err != nil {
		return err
	}

	return p.publish(p.AvailabilityTopic(device.SerialNumber), true, "")
}

func (p *MQTTPublisher) publish(topic string, retained bool, payload interface{}) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}

	if err := token.Error(); err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("MQTTPublisher::publish() - failed")
		return err
	}

	return nil
}
