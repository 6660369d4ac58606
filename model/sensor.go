package model

type DeviceClass string

const (
	DeviceClassPower       DeviceClass = "power"
	DeviceClassEnergy      DeviceClass = "energy"
	DeviceClassBattery     DeviceClass = "battery"
	DeviceClassFrequency   DeviceClass = "frequency"
	DeviceClassTemperature DeviceClass = "temperature"
	DeviceClassCurrent     DeviceClass = "current"
	DeviceClassVoltage     DeviceClass = "voltage"
)

type StateClass string

const (
	StateClassMeasurement     StateClass = "measurement"
	StateClassTotalIncreasing StateClass = "total_increasing"
)

const (
	UnitWatt         = "W"
	UnitKiloWattHour = "kWh"
	UnitPercentage   = "%"
	UnitHertz        = "Hz"
	UnitCelsius      = "°C"
	UnitAmpere       = "A"
	UnitVolt         = "V"
)

type SensorDescription struct {
	Key            string      `json:"key"`
	TranslationKey string      `json:"translation_key,omitempty"`
	Name           string      `json:"name"`
	DeviceClass    DeviceClass `json:"device_class,omitempty"`
	Unit           string      `json:"unit,omitempty"`
	StateClass     StateClass  `json:"state_class,omitempty"`
	APIKeys        []string    `json:"api_keys"`
}

// SensorEntity binds a description to the key it was resolved to in the
// realtime result of one entry.
type SensorEntity struct {
	UniqueID    string            `json:"unique_id"`
	DataKey     string            `json:"data_key"`
	Description SensorDescription `json:"description"`
}

type SensorState struct {
	UniqueID    string      `json:"unique_id"`
	Key         string      `json:"key"`
	Name        string      `json:"name"`
	DataKey     string      `json:"data_key"`
	Value       any         `json:"value"`
	Unit        string      `json:"unit,omitempty"`
	DeviceClass DeviceClass `json:"device_class,omitempty"`
	StateClass  StateClass  `json:"state_class,omitempty"`
}
