package infra

import (
	"fmt"
	"time"

	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/setting"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

const (
	disconnectTimeout = 5 * time.Second
	disconnectQuiesce = 250
)

// MQTTDisconnector is the part of mqtt.Client needed for a graceful
// shutdown.
type MQTTDisconnector interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// BridgeStatusTopic is where the bridge announces itself; the broker
// publishes the last will there when the connection drops.
func BridgeStatusTopic(baseTopic string) string {
	return baseTopic + "/status"
}

func mqttBaseTopic(conf config.MQTTConfig) string {
	if conf.BaseTopic == "" {
		return setting.MQTTBaseTopic
	}
	return conf.BaseTopic
}

func NewMQTTClient(conf config.MQTTConfig) (mqtt.Client, error) {
	log := logger.New("mqtt.log")
	statusTopic := BridgeStatusTopic(mqttBaseTopic(conf))

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10*time.Second).
		SetWill(statusTopic, PayloadOffline, conf.QoS, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info().Str("broker", conf.Broker).Msg("NewMQTTClient() - connected")
			c.Publish(statusTopic, conf.QoS, true, PayloadOnline)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", conf.Broker).Msg("NewMQTTClient() - connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("timeout connecting to mqtt broker %s", conf.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	return client, nil
}

// DisconnectMQTT announces the bridge offline and closes the connection.
// The broker only sends the last will on an unclean drop, so a clean
// shutdown has to publish it itself.
func DisconnectMQTT(client MQTTDisconnector, conf config.MQTTConfig) error {
	defer client.Disconnect(disconnectQuiesce)

	topic := BridgeStatusTopic(mqttBaseTopic(conf))
	token := client.Publish(topic, conf.QoS, true, PayloadOffline)
	if !token.WaitTimeout(disconnectTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}

	return token.Error()
}
