package solax

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

type RealtimeInfoResponse struct {
	Success   bool            `json:"success"`
	Exception string          `json:"exception"`
	Code      *int            `json:"code"`
	Result    json.RawMessage `json:"result"`
}

// RealtimeInfo is a typed view over the well known fields of a result.
// Every field is optional; inverters report different subsets.
type RealtimeInfo struct {
	InverterSN      *string  `mapstructure:"inverterSN" json:"inverterSN,omitempty"`
	SN              *string  `mapstructure:"sn" json:"sn,omitempty"`
	ACPower         *float64 `mapstructure:"acpower" json:"acpower,omitempty"`
	YieldToday      *float64 `mapstructure:"yieldtoday" json:"yieldtoday,omitempty"`
	YieldTotal      *float64 `mapstructure:"yieldtotal" json:"yieldtotal,omitempty"`
	FeedInPower     *float64 `mapstructure:"feedinpower" json:"feedinpower,omitempty"`
	FeedInEnergy    *float64 `mapstructure:"feedinenergy" json:"feedinenergy,omitempty"`
	ConsumeEnergy   *float64 `mapstructure:"consumeenergy" json:"consumeenergy,omitempty"`
	SOC             *float64 `mapstructure:"soc" json:"soc,omitempty"`
	BatPower        *float64 `mapstructure:"batPower" json:"batPower,omitempty"`
	PowerDC1        *float64 `mapstructure:"powerdc1" json:"powerdc1,omitempty"`
	PowerDC2        *float64 `mapstructure:"powerdc2" json:"powerdc2,omitempty"`
	InverterType    *string  `mapstructure:"inverterType" json:"inverterType,omitempty"`
	InverterStatus  *string  `mapstructure:"inverterStatus" json:"inverterStatus,omitempty"`
	UploadTime      *string  `mapstructure:"uploadTime" json:"uploadTime,omitempty"`
	BatteryStatus   *string  `mapstructure:"batStatus" json:"batStatus,omitempty"`
	FirmwareVersion *string  `mapstructure:"fwVersion" json:"fwVersion,omitempty"`
	PlantName       *string  `mapstructure:"plantName" json:"plantName,omitempty"`
}

func DecodeRealtimeInfo(result map[string]any) (*RealtimeInfo, error) {
	var info RealtimeInfo
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(result); err != nil {
		return nil, err
	}

	return &info, nil
}
