package alarm

import (
	"context"
	"fmt"
	"time"

	"github.com/HavvokLab/solax-cloud/infra"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/setting"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	StaleAlertName = "SolaxCloudStale"
	redisTimeout   = 5 * time.Second
)

// AlarmStore remembers which entries have an open alarm.
type AlarmStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StaleAlarm raises a trap the first time an entry goes stale and clears it
// on the next successful poll.
type StaleAlarm struct {
	store  AlarmStore
	snmp   infra.TrapSender
	logger zerolog.Logger
}

func NewStaleAlarm(store AlarmStore, snmp infra.TrapSender) *StaleAlarm {
	return &StaleAlarm{
		store:  store,
		snmp:   snmp,
		logger: logger.New("stale_alarm.log"),
	}
}

func StaleKey(entryID string) string {
	return fmt.Sprintf("%s:stale:%s", setting.Domain, entryID)
}

func (a *StaleAlarm) Name() string {
	return "stale_alarm"
}

func (a *StaleAlarm) Register(device model.Device, snapshot model.Snapshot) error {
	return a.Publish(device, snapshot)
}

func (a *StaleAlarm) Publish(device model.Device, snapshot model.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	key := StaleKey(device.EntryID)
	if snapshot.Stale() {
		value := fmt.Sprintf("%s,%s", infra.MajorSeverity, snapshot.AttemptedAt.Format(time.RFC3339))
		opened, err := a.store.SetNX(ctx, key, value, 0).Result()
		if err != nil {
			a.logger.Error().Err(err).Str("key", key).Msg("StaleAlarm::Publish() - failed to set redis")
			return err
		}

		if opened {
			a.snmp.SendTrap(infra.Trap{
				DeviceName:  device.Info.Name,
				AlertName:   StaleAlertName,
				Description: fmt.Sprintf("%s (%s): %s", device.Info.Name, device.SerialNumber, snapshot.LastError),
				Severity:    infra.MajorSeverity,
				UpdatedAt:   snapshot.AttemptedAt,
			})
			a.logger.Warn().Str("entry_id", device.EntryID).Str("error", snapshot.LastError).Msg("StaleAlarm::Publish() - alarm raised")
		}
		return nil
	}

	deleted, err := a.store.Del(ctx, key).Result()
	if err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("StaleAlarm::Publish() - failed to delete redis key")
		return err
	}

	if deleted > 0 {
		a.snmp.SendTrap(infra.Trap{
			DeviceName:  device.Info.Name,
			AlertName:   StaleAlertName,
			Description: fmt.Sprintf("%s (%s): recovered", device.Info.Name, device.SerialNumber),
			Severity:    infra.ClearSeverity,
			UpdatedAt:   snapshot.UpdatedAt,
		})
		a.logger.Info().Str("entry_id", device.EntryID).Msg("StaleAlarm::Publish() - alarm cleared")
	}

	return nil
}

// Unload keeps an open alarm so a restart neither raises it twice nor
// loses the pending clear.
func (a *StaleAlarm) Unload(device model.Device) error {
	return nil
}

// Unregister drops the open alarm without sending a clear trap.
func (a *StaleAlarm) Unregister(device model.Device) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	return a.store.Del(ctx, StaleKey(device.EntryID)).Err()
}
