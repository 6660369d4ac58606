package setting

import "time"

const (
	Domain       = "solax_cloud"
	Manufacturer = "SolaX"
	DefaultName  = "SolaX Inverter"
)

const (
	UpdateInterval     = 5 * time.Minute
	SetupRetryInterval = time.Minute
	RequestTimeout     = 30 * time.Second
)

// SolaX Cloud allows roughly ten realtime queries per minute per token.
const (
	RequestsPerMinute = 10
	RequestBurst      = 2
)

const (
	MQTTDiscoveryPrefix = "homeassistant"
	MQTTBaseTopic       = "solax_cloud"
	ElasticIndexPrefix  = "solax-cloud"
	ElasticDeviceIndex  = "solax-cloud-device"
)
