package sensor

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/HavvokLab/solax-cloud/model"
)

// IsNumeric reports whether value can be shown as a number. Booleans are not
// numbers.
func IsNumeric(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	case string:
		_, ok := parseFloat(v)
		return ok
	default:
		return false
	}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

type Units struct {
	DeviceClass model.DeviceClass
	Unit        string
	StateClass  model.StateClass
}

// DeriveUnits guesses class, unit and state class from a sensor key. Text
// values get none of them.
func DeriveUnits(key string, value any) Units {
	if !IsNumeric(value) {
		return Units{}
	}

	lowered := strings.ToLower(key)
	switch {
	case containsAny(lowered, "yield", "energy", "generation"):
		return Units{model.DeviceClassEnergy, model.UnitKiloWattHour, model.StateClassTotalIncreasing}
	case strings.Contains(lowered, "power"):
		return Units{model.DeviceClassPower, model.UnitWatt, model.StateClassMeasurement}
	case strings.Contains(lowered, "current") || strings.HasSuffix(lowered, "_a"):
		return Units{model.DeviceClassCurrent, model.UnitAmpere, model.StateClassMeasurement}
	case strings.Contains(lowered, "voltage") || strings.HasSuffix(lowered, "_v") || strings.Contains(lowered, "_volt"):
		return Units{model.DeviceClassVoltage, model.UnitVolt, model.StateClassMeasurement}
	case containsAny(lowered, "temperature", "temp"):
		return Units{model.DeviceClassTemperature, model.UnitCelsius, model.StateClassMeasurement}
	case containsAny(lowered, "frequency", "freq", "hz"):
		return Units{model.DeviceClassFrequency, model.UnitHertz, model.StateClassMeasurement}
	case containsAny(lowered, "soc", "soh", "percent"):
		return Units{model.DeviceClassBattery, model.UnitPercentage, model.StateClassMeasurement}
	case strings.Contains(lowered, "efficiency"):
		return Units{Unit: model.UnitPercentage, StateClass: model.StateClassMeasurement}
	case strings.Contains(lowered, "capacity"):
		return Units{Unit: model.UnitKiloWattHour, StateClass: model.StateClassMeasurement}
	default:
		return Units{StateClass: model.StateClassMeasurement}
	}
}

func containsAny(s string, tokens ...string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}

	return false
}
