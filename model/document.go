package model

import "time"

const (
	DataTypeSnapshot = "SNAPSHOT"
	DataTypeDevice   = "DEVICE"
)

type SnapshotDocument struct {
	Timestamp         time.Time      `json:"@timestamp"`
	DataType          string         `json:"data_type"`
	EntryID           string         `json:"entry_id"`
	SerialNumber      string         `json:"serial_number"`
	DeviceName        string         `json:"device_name"`
	LastUpdateSuccess bool           `json:"last_update_success"`
	LastError         *string        `json:"last_error,omitempty"`
	Values            map[string]any `json:"values"`
}

type DeviceDocument struct {
	Timestamp    time.Time `json:"@timestamp"`
	DataType     string    `json:"data_type"`
	EntryID      string    `json:"entry_id"`
	SerialNumber string    `json:"serial_number"`
	Name         string    `json:"name"`
	Model        *string   `json:"model,omitempty"`
	SWVersion    *string   `json:"sw_version,omitempty"`
	SensorCount  int       `json:"sensor_count"`
}
