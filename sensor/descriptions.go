package sensor

import "github.com/HavvokLab/solax-cloud/model"

// Descriptions are the well known realtime fields. Each is bound when any of
// its API keys resolves against the first snapshot of an entry.
var Descriptions = []model.SensorDescription{
	{
		Key:            "ac_power",
		TranslationKey: "ac_power",
		Name:           "AC power",
		DeviceClass:    model.DeviceClassPower,
		Unit:           model.UnitWatt,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"acpower", "acPower"},
	},
	{
		Key:            "yield_today",
		TranslationKey: "yield_today",
		Name:           "Yield today",
		DeviceClass:    model.DeviceClassEnergy,
		Unit:           model.UnitKiloWattHour,
		StateClass:     model.StateClassTotalIncreasing,
		APIKeys:        []string{"yieldtoday", "yieldToday"},
	},
	{
		Key:            "yield_total",
		TranslationKey: "yield_total",
		Name:           "Yield total",
		DeviceClass:    model.DeviceClassEnergy,
		Unit:           model.UnitKiloWattHour,
		StateClass:     model.StateClassTotalIncreasing,
		APIKeys:        []string{"yieldtotal", "yieldTotal"},
	},
	{
		Key:            "feed_in_power",
		TranslationKey: "feed_in_power",
		Name:           "Feed-in power",
		DeviceClass:    model.DeviceClassPower,
		Unit:           model.UnitWatt,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"feedinpower", "feedInPower"},
	},
	{
		Key:            "feed_in_energy",
		TranslationKey: "feed_in_energy",
		Name:           "Feed-in energy",
		DeviceClass:    model.DeviceClassEnergy,
		Unit:           model.UnitKiloWattHour,
		StateClass:     model.StateClassTotalIncreasing,
		APIKeys:        []string{"feedinenergy", "feedInEnergy"},
	},
	{
		Key:            "consume_energy",
		TranslationKey: "consume_energy",
		Name:           "Consumed energy",
		DeviceClass:    model.DeviceClassEnergy,
		Unit:           model.UnitKiloWattHour,
		StateClass:     model.StateClassTotalIncreasing,
		APIKeys:        []string{"consumeenergy", "consumeEnergy"},
	},
	{
		Key:            "consume_energy_today",
		TranslationKey: "consume_energy_today",
		Name:           "Consumed energy today",
		DeviceClass:    model.DeviceClassEnergy,
		Unit:           model.UnitKiloWattHour,
		StateClass:     model.StateClassTotalIncreasing,
		APIKeys:        []string{"consumeenergy_today", "consumeEnergyToday"},
	},
	{
		Key:            "battery_power",
		TranslationKey: "battery_power",
		Name:           "Battery power",
		DeviceClass:    model.DeviceClassPower,
		Unit:           model.UnitWatt,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"bat_power", "batPower", "battery_power"},
	},
	{
		Key:            "soc",
		TranslationKey: "state_of_charge",
		Name:           "State of charge",
		DeviceClass:    model.DeviceClassBattery,
		Unit:           model.UnitPercentage,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"soc", "batterySoc"},
	},
	{
		Key:            "ac_frequency",
		TranslationKey: "ac_frequency",
		Name:           "AC frequency",
		DeviceClass:    model.DeviceClassFrequency,
		Unit:           model.UnitHertz,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"acfre", "acFre", "acFrequency"},
	},
	{
		// "tempperature" is how some firmware spells it
		Key:            "temperature",
		TranslationKey: "temperature",
		Name:           "Temperature",
		DeviceClass:    model.DeviceClassTemperature,
		Unit:           model.UnitCelsius,
		StateClass:     model.StateClassMeasurement,
		APIKeys:        []string{"tempperature", "temperature"},
	},
}

// metadataKeys are lower-cased result fields that describe the device rather
// than a measurement.
var metadataKeys = map[string]bool{
	"plantname":     true,
	"plant_name":    true,
	"plantid":       true,
	"plant_id":      true,
	"timezone":      true,
	"time_zone":     true,
	"invertertype":  true,
	"inverter_type": true,
	"type":          true,
	"fwversion":     true,
	"fw_version":    true,
	"firmware":      true,
	"serialnumber":  true,
	"serial_number": true,
}

func IsMetadataKey(key string) bool {
	return metadataKeys[lowerASCII(key)]
}
