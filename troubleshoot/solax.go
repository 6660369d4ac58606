package troubleshoot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/integration"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/pkg/util"
	"github.com/HavvokLab/solax-cloud/sensor"
	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"go.openly.dev/pointy"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	StatusOK    = "ok"
	StatusError = "error"
)

const troubleshootEntryID = "troubleshoot"

type CredentialRow struct {
	TokenID      string `csv:"token_id"`
	SerialNumber string `csv:"serial_number"`
	APIBaseURL   string `csv:"api_base_url"`
}

type SensorRow struct {
	Key         string `csv:"key"`
	Name        string `csv:"name"`
	DataKey     string `csv:"data_key"`
	Value       string `csv:"value"`
	Unit        string `csv:"unit"`
	DeviceClass string `csv:"device_class"`
	StateClass  string `csv:"state_class"`
}

type CheckRow struct {
	SerialNumber string `csv:"serial_number"`
	Status       string `csv:"status"`
	Error        string `csv:"error"`
	Title        string `csv:"title"`
	Sensors      int    `csv:"sensors"`
}

type SolaxTroubleshoot struct {
	newClient integration.ClientFactory
	logger    zerolog.Logger
}

func NewSolaxTroubleshoot(newClient integration.ClientFactory) *SolaxTroubleshoot {
	return &SolaxTroubleshoot{
		newClient: newClient,
		logger:    logger.New("solax_troubleshoot.log"),
	}
}

// Fetch polls the cloud once and maps the result the same way a configured
// entry would be mapped.
func (s *SolaxTroubleshoot) Fetch(ctx context.Context, row CredentialRow) (model.Device, model.Snapshot, error) {
	input, uniqueID := integration.NormalizeCredentials(integration.UserInput{
		TokenID:      row.TokenID,
		SerialNumber: row.SerialNumber,
		APIBaseURL:   pointy.String(row.APIBaseURL),
	})

	client := s.newClient(input.TokenID, input.SerialNumber, input.APIBaseURL)
	data, err := client.GetRealtimeInfo(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("serial_number", util.Redact(input.SerialNumber, 4)).Msg("SolaxTroubleshoot::Fetch() - failed")
		message := solax.Message(err)
		if message == "" {
			message = err.Error()
		}
		return model.Device{}, model.Snapshot{LastError: message}, err
	}

	credential := model.SolaxCredential{
		ID:           troubleshootEntryID,
		TokenID:      input.TokenID,
		SerialNumber: input.SerialNumber,
		APIBaseURL:   input.APIBaseURL,
		UniqueID:     uniqueID,
		Title:        title(data, input.SerialNumber),
	}

	snapshot := model.Snapshot{Data: data, LastUpdateSuccess: true}
	return sensor.BuildDevice(credential, data), snapshot, nil
}

// Execute fetches one credential and writes the raw result as JSON or the
// mapped sensors as CSV.
func (s *SolaxTroubleshoot) Execute(ctx context.Context, w io.Writer, row CredentialRow, format string) error {
	device, snapshot, err := s.Fetch(ctx, row)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case FormatCSV:
		return gocsv.Marshal(SensorRows(device, snapshot), w)
	case FormatJSON, "":
		return util.FprintJSON(w, snapshot.Data)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// ExecuteFile checks every credential of a CSV file and writes one result
// row per credential.
func (s *SolaxTroubleshoot) ExecuteFile(ctx context.Context, w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	rows := make([]*CredentialRow, 0)
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return err
	}

	results := make([]*CheckRow, 0, len(rows))
	for _, row := range rows {
		results = append(results, s.Check(ctx, *row))
	}

	return gocsv.Marshal(results, w)
}

func (s *SolaxTroubleshoot) Check(ctx context.Context, row CredentialRow) *CheckRow {
	result := &CheckRow{SerialNumber: strings.TrimSpace(row.SerialNumber)}

	device, snapshot, err := s.Fetch(ctx, row)
	if err != nil {
		result.Status = StatusError
		result.Error = snapshot.LastError
		return result
	}

	result.Status = StatusOK
	result.Title = device.Info.Name
	result.Sensors = len(device.Sensors)
	return result
}

func SensorRows(device model.Device, snapshot model.Snapshot) []*SensorRow {
	states := sensor.States(device, snapshot)
	rows := make([]*SensorRow, 0, len(states))
	for _, state := range states {
		value := ""
		if state.Value != nil {
			value = fmt.Sprint(state.Value)
		}

		rows = append(rows, &SensorRow{
			Key:         state.Key,
			Name:        state.Name,
			DataKey:     state.DataKey,
			Value:       value,
			Unit:        state.Unit,
			DeviceClass: string(state.DeviceClass),
			StateClass:  string(state.StateClass),
		})
	}

	return rows
}

func title(data map[string]any, serialNumber string) string {
	info, err := solax.DecodeRealtimeInfo(data)
	if err != nil {
		return serialNumber
	}

	if sn := pointy.StringValue(info.InverterSN, ""); sn != "" {
		return sn
	}

	return serialNumber
}
