package model

type DeviceIdentifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

type DeviceInfo struct {
	Identifiers  []DeviceIdentifier `json:"identifiers"`
	Manufacturer string             `json:"manufacturer"`
	Name         string             `json:"name"`
	Model        *string            `json:"model,omitempty"`
	SWVersion    *string            `json:"sw_version,omitempty"`
}

type Device struct {
	EntryID      string         `json:"entry_id"`
	SerialNumber string         `json:"serial_number"`
	Info         DeviceInfo     `json:"info"`
	Sensors      []SensorEntity `json:"sensors"`
}
