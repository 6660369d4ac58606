package sensor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/setting"
	"go.openly.dev/pointy"
)

// ResolveDataKey returns the key in data matching the first candidate that
// is present, exact spelling first and then ignoring case.
func ResolveDataKey(data map[string]any, candidates []string) (string, bool) {
	if len(candidates) == 0 || len(data) == 0 {
		return "", false
	}

	keys := sortedKeys(data)
	lowercase := make(map[string]string, len(keys))
	for _, key := range keys {
		lowered := strings.ToLower(key)
		if _, ok := lowercase[lowered]; !ok {
			lowercase[lowered] = key
		}
	}

	for _, candidate := range candidates {
		if _, ok := data[candidate]; ok {
			return candidate, true
		}
		if key, ok := lowercase[strings.ToLower(candidate)]; ok {
			return key, true
		}
	}

	return "", false
}

// BuildDeviceInfo names the device after the entry title, then the plant
// name, then DefaultName.
func BuildDeviceInfo(title string, data map[string]any, serialNumber string) model.DeviceInfo {
	name := strings.TrimSpace(title)
	if name == "" {
		if plant := firstValue(data, "plantname", "plantName"); plant != nil {
			name = *plant
		}
	}
	if name == "" {
		name = setting.DefaultName
	}

	return model.DeviceInfo{
		Identifiers:  []model.DeviceIdentifier{{Domain: setting.Domain, ID: serialNumber}},
		Manufacturer: setting.Manufacturer,
		Name:         name,
		Model:        firstValue(data, "invertertype", "inverterType", "type"),
		SWVersion:    firstValue(data, "fwversion", "firmware", "fwVersion"),
	}
}

func firstValue(data map[string]any, keys ...string) *string {
	for _, key := range keys {
		value, ok := data[key]
		if !ok || value == nil {
			continue
		}

		s := strings.TrimSpace(fmt.Sprint(value))
		if s == "" {
			continue
		}

		return pointy.String(s)
	}

	return nil
}

type DynamicDescription struct {
	Description model.SensorDescription
	RawKey      string
}

// DynamicDescriptions describes every remaining field of data. usedSlugs
// holds keys taken by static descriptions and usedKeys the lower-cased data
// keys already bound. Fields are visited in sorted order.
func DynamicDescriptions(data map[string]any, usedSlugs, usedKeys map[string]bool) []DynamicDescription {
	seen := make(map[string]bool, len(usedSlugs))
	for slug := range usedSlugs {
		seen[slug] = true
	}

	var result []DynamicDescription
	for _, rawKey := range sortedKeys(data) {
		lowered := strings.ToLower(rawKey)
		if usedKeys[lowered] || metadataKeys[lowered] {
			continue
		}

		value := data[rawKey]
		if skipValue(value) {
			continue
		}

		slug := Slugify(rawKey)
		if slug == "" {
			continue
		}
		if seen[slug] {
			base := slug
			counter := 2
			for seen[fmt.Sprintf("%s_%d", base, counter)] {
				counter++
			}
			slug = fmt.Sprintf("%s_%d", base, counter)
		}
		seen[slug] = true

		units := DeriveUnits(slug, value)
		result = append(result, DynamicDescription{
			Description: model.SensorDescription{
				Key:         slug,
				Name:        TitleFromSlug(slug),
				DeviceClass: units.DeviceClass,
				Unit:        units.Unit,
				StateClass:  units.StateClass,
				APIKeys:     ExpandKeyVariants(rawKey),
			},
			RawKey: rawKey,
		})
	}

	return result
}

func skipValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// BuildDevice binds the static descriptions and then every dynamic field of
// data to sensor entities of one entry.
func BuildDevice(credential model.SolaxCredential, data map[string]any) model.Device {
	device := model.Device{
		EntryID:      credential.ID,
		SerialNumber: credential.SerialNumber,
		Info:         BuildDeviceInfo(credential.Title, data, credential.SerialNumber),
	}

	usedSlugs := make(map[string]bool)
	usedKeys := make(map[string]bool)
	for _, description := range Descriptions {
		dataKey, ok := ResolveDataKey(data, description.APIKeys)
		if !ok {
			continue
		}
		usedSlugs[description.Key] = true
		usedKeys[strings.ToLower(dataKey)] = true
		device.Sensors = append(device.Sensors, newEntity(credential.ID, description, dataKey))
	}

	for _, dynamic := range DynamicDescriptions(data, usedSlugs, usedKeys) {
		dataKey, ok := ResolveDataKey(data, dynamic.Description.APIKeys)
		if !ok {
			continue
		}
		usedKeys[strings.ToLower(dataKey)] = true
		device.Sensors = append(device.Sensors, newEntity(credential.ID, dynamic.Description, dataKey))
	}

	return device
}

func newEntity(entryID string, description model.SensorDescription, dataKey string) model.SensorEntity {
	return model.SensorEntity{
		UniqueID:    UniqueID(entryID, description.Key),
		DataKey:     dataKey,
		Description: description,
	}
}

func UniqueID(entryID, key string) string {
	return entryID + "-" + key
}

// NativeValue returns the value of key in data. Numeric strings become
// floats.
func NativeValue(data map[string]any, key string) any {
	value, ok := data[key]
	if !ok {
		return nil
	}

	if s, ok := value.(string); ok {
		if f, ok := parseFloat(s); ok {
			return f
		}
		return s
	}

	return value
}

// States reads the current value of every sensor of device from snapshot.
func States(device model.Device, snapshot model.Snapshot) []model.SensorState {
	states := make([]model.SensorState, 0, len(device.Sensors))
	for _, entity := range device.Sensors {
		states = append(states, model.SensorState{
			UniqueID:    entity.UniqueID,
			Key:         entity.Description.Key,
			Name:        entity.Description.Name,
			DataKey:     entity.DataKey,
			Value:       NativeValue(snapshot.Data, entity.DataKey),
			Unit:        entity.Description.Unit,
			DeviceClass: entity.Description.DeviceClass,
			StateClass:  entity.Description.StateClass,
		})
	}

	return states
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
