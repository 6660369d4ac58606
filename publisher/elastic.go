package publisher

import (
	"time"

	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/repo"
	"github.com/rs/zerolog"
	"go.openly.dev/pointy"
)

// ElasticPublisher archives every poll result into a daily index and keeps
// one document per device.
type ElasticPublisher struct {
	snapshotRepo repo.SnapshotRepo
	indexPrefix  string
	now          func() time.Time
	logger       zerolog.Logger
}

func NewElasticPublisher(snapshotRepo repo.SnapshotRepo, indexPrefix string) *ElasticPublisher {
	return &ElasticPublisher{
		snapshotRepo: snapshotRepo,
		indexPrefix:  indexPrefix,
		now:          time.Now,
		logger:       logger.New("elastic_publisher.log"),
	}
}

func (p *ElasticPublisher) Name() string {
	return "elasticsearch"
}

func (p *ElasticPublisher) Register(device model.Device, snapshot model.Snapshot) error {
	doc := model.DeviceDocument{
		Timestamp:    p.now(),
		DataType:     model.DataTypeDevice,
		EntryID:      device.EntryID,
		SerialNumber: device.SerialNumber,
		Name:         device.Info.Name,
		Model:        device.Info.Model,
		SWVersion:    device.Info.SWVersion,
		SensorCount:  len(device.Sensors),
	}

	if err := p.snapshotRepo.UpsertDevice(doc); err != nil {
		p.logger.Error().Err(err).Str("entry_id", device.EntryID).Msg("ElasticPublisher::Register() - upsert device failed")
		return err
	}

	return p.Publish(device, snapshot)
}

func (p *ElasticPublisher) Publish(device model.Device, snapshot model.Snapshot) error {
	now := p.now()
	doc := SnapshotDocument(device, snapshot, now)

	index := repo.SnapshotIndex(p.indexPrefix, now)
	if err := p.snapshotRepo.BulkIndex(index, []interface{}{doc}); err != nil {
		p.logger.Error().Err(err).Str("index", index).Msg("ElasticPublisher::Publish() - bulk index failed")
		return err
	}

	p.logger.Debug().
		Str("index", index).
		Str("entry_id", device.EntryID).
		Bool("success", snapshot.LastUpdateSuccess).
		Msg("ElasticPublisher::Publish() - indexed")

	return nil
}

func (p *ElasticPublisher) Unload(device model.Device) error {
	return nil
}

// Unregister keeps the history in place.
func (p *ElasticPublisher) Unregister(device model.Device) error {
	return nil
}

func SnapshotDocument(device model.Device, snapshot model.Snapshot, now time.Time) model.SnapshotDocument {
	doc := model.SnapshotDocument{
		Timestamp:         now,
		DataType:          model.DataTypeSnapshot,
		EntryID:           device.EntryID,
		SerialNumber:      device.SerialNumber,
		DeviceName:        device.Info.Name,
		LastUpdateSuccess: snapshot.LastUpdateSuccess,
		Values:            StatePayload(device, snapshot),
	}
	if snapshot.LastError != "" {
		doc.LastError = pointy.String(snapshot.LastError)
	}

	return doc
}
