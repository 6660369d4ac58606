package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/collector"
	"github.com/HavvokLab/solax-cloud/collector/mocks"
	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/infra"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/repo"
	"github.com/go-co-op/gocron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	logger.SetTestLoggerNop()
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu           sync.Mutex
	registered   []model.Device
	published    []model.Snapshot
	unloaded     []model.Device
	unregistered []model.Device
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Register(device model.Device, _ model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, device)
	return nil
}

func (p *recordingPublisher) Publish(_ model.Device, snapshot model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, snapshot)
	return nil
}

func (p *recordingPublisher) Unload(device model.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloaded = append(p.unloaded, device)
	return nil
}

func (p *recordingPublisher) unloadedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unloaded)
}

func (p *recordingPublisher) Unregister(device model.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unregistered = append(p.unregistered, device)
	return nil
}

func (p *recordingPublisher) counts() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.registered), len(p.published), len(p.unregistered)
}

type panickingPublisher struct{}

func (panickingPublisher) Name() string                                { return "panicking" }
func (panickingPublisher) Register(model.Device, model.Snapshot) error { panic("register") }
func (panickingPublisher) Publish(model.Device, model.Snapshot) error  { return errors.New("publish") }
func (panickingPublisher) Unload(model.Device) error                   { return nil }
func (panickingPublisher) Unregister(model.Device) error               { return nil }

type fixture struct {
	manager   *Manager
	repo      repo.SolaxCredentialRepo
	scheduler *gocron.Scheduler
	publisher *recordingPublisher
}

func newFixture(t *testing.T, factory ClientFactory, extra ...Publisher) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, factory, ManagerConfig{
		UpdateInterval: 5 * time.Minute,
		RetryInterval:  time.Minute,
		SetupWorkers:   2,
	}, extra...)
}

func newFixtureWithConfig(t *testing.T, factory ClientFactory, conf ManagerConfig, extra ...Publisher) *fixture {
	t.Helper()

	db, err := infra.NewGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	credentialRepo := repo.NewSolaxCredentialRepo(db)
	scheduler := gocron.NewScheduler(time.UTC)
	publisher := &recordingPublisher{}

	publishers := append([]Publisher{publisher}, extra...)
	manager := NewManager(credentialRepo, factory, scheduler, conf, publishers...)

	return &fixture{manager: manager, repo: credentialRepo, scheduler: scheduler, publisher: publisher}
}

func mockFactory(fetcher collector.Fetcher) ClientFactory {
	return func(string, string, *string) collector.Fetcher { return fetcher }
}

func (f *fixture) hasJob(tag string) bool {
	jobs, err := f.scheduler.FindJobsByTag(tag)
	return err == nil && len(jobs) > 0
}

var realtimeResult = map[string]any{
	"inverterSN":   "XB1234",
	"sn":           "SWABC",
	"acpower":      1520.0,
	"yieldtoday":   12.3,
	"soc":          80.0,
	"inverterType": 4.0,
	"status":       "Normal",
}

func TestAddEntryWithValidCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(2)

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{
		TokenID:      "  token-123 ",
		SerialNumber: " swabc ",
	})
	require.NoError(t, err)

	assert.Equal(t, FlowResultCreateEntry, result.Type)
	assert.Equal(t, "XB1234", result.Title)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "token-123", result.Entry.TokenID)
	assert.Equal(t, "swabc", result.Entry.SerialNumber)
	assert.Equal(t, "SWABC", result.Entry.UniqueID)
	assert.Nil(t, result.Entry.APIBaseURL)

	stored, err := f.repo.FindAll()
	require.NoError(t, err)
	require.Len(t, stored, 1)

	view, err := f.manager.Entry(result.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, EntryStateLoaded, view.State)
	require.NotNil(t, view.Device)
	assert.Equal(t, "XB1234", view.Device.Info.Name)
	require.NotNil(t, view.Device.Info.Model)
	assert.Equal(t, "4", *view.Device.Info.Model)

	states, err := f.manager.Sensors(result.Entry.ID)
	require.NoError(t, err)
	keys := make(map[string]any)
	for _, state := range states {
		keys[state.Key] = state.Value
	}
	assert.Equal(t, 1520.0, keys["ac_power"])
	assert.Equal(t, 80.0, keys["soc"])
	assert.Equal(t, "Normal", keys["status"])
	assert.NotContains(t, keys, "inverter_type")

	registered, _, _ := f.publisher.counts()
	assert.Equal(t, 1, registered)
	assert.True(t, f.hasJob(pollTag(result.Entry.ID)))
	assert.False(t, f.hasJob(retryTag(result.Entry.ID)))
}

func TestAddEntryWithInvalidCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(nil, &solax.APIError{
		Message: "tokenId is not match with sn",
		Err:     solax.ErrAuthentication,
	})

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "bad", SerialNumber: "SN"})
	require.NoError(t, err)

	assert.Equal(t, FlowResultForm, result.Type)
	assert.Equal(t, StepUser, result.StepID)
	assert.Equal(t, map[string]string{ErrorBase: ErrorCannotConnect}, result.Errors)
	assert.Equal(t, map[string]string{PlaceholderError: "tokenId is not match with sn"}, result.DescriptionPlaceholders)
	assert.Nil(t, result.Entry)

	stored, err := f.repo.FindAll()
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.manager.Entries())
}

func TestAddEntryGenericFailureHasNoPlaceholder(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(nil, &solax.APIError{Message: "Unknown error"})

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "t", SerialNumber: "s"})
	require.NoError(t, err)

	assert.Equal(t, FlowResultForm, result.Type)
	assert.Equal(t, ErrorCannotConnect, result.Errors[ErrorBase])
	assert.Nil(t, result.DescriptionPlaceholders)
}

func TestAddEntryRequiresTokenAndSerial(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "   ", SerialNumber: ""})
	require.NoError(t, err)

	assert.Equal(t, FlowResultForm, result.Type)
	assert.Equal(t, map[string]string{
		FieldTokenID:      ErrorRequired,
		FieldSerialNumber: ErrorRequired,
	}, result.Errors)
}

func TestAddEntryAbortsWhenAlreadyConfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)

	f := newFixture(t, mockFactory(fetcher))
	require.NoError(t, f.repo.Create(&model.SolaxCredential{ID: "existing", SerialNumber: "SN001", UniqueID: "SN001"}))

	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: " sn001 "})
	require.NoError(t, err)

	assert.Equal(t, FlowResultAbort, result.Type)
	assert.Equal(t, ReasonAlreadyConfigured, result.Reason)
}

func TestFailedPollKeepsPreviousValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	gomock.InOrder(
		fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(2),
		fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(nil, &solax.APIError{Message: "Timeout while communicating with the SolaX Cloud API"}),
	)

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: "SWABC"})
	require.NoError(t, err)
	entryID := result.Entry.ID

	snapshot, err := f.manager.Refresh(context.Background(), entryID)
	require.Error(t, err)
	assert.True(t, snapshot.Stale())
	assert.Equal(t, 1520.0, snapshot.Data["acpower"])

	view, err := f.manager.Entry(entryID)
	require.NoError(t, err)
	assert.Equal(t, EntryStateLoaded, view.State)
	assert.False(t, view.LastUpdateSuccess)
	assert.Equal(t, "Timeout while communicating with the SolaX Cloud API", view.LastError)
	require.NotNil(t, view.Device)

	states, err := f.manager.Sensors(entryID)
	require.NoError(t, err)
	for _, state := range states {
		if state.Key == "ac_power" {
			assert.Equal(t, 1520.0, state.Value)
		}
	}

	_, published, _ := f.publisher.counts()
	assert.Equal(t, 1, published)
	f.publisher.mu.Lock()
	assert.False(t, f.publisher.published[0].LastUpdateSuccess)
	f.publisher.mu.Unlock()
}

func TestSetupRetriesUntilFirstRefreshSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	gomock.InOrder(
		fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(nil, &solax.APIError{Message: "Could not connect to the SolaX Cloud API"}),
		fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil),
	)

	f := newFixture(t, mockFactory(fetcher))
	credential := model.SolaxCredential{ID: "entry-1", TokenID: "token", SerialNumber: "SWABC", UniqueID: "SWABC", Title: "Roof"}
	require.NoError(t, f.repo.Create(&credential))

	err := f.manager.SetupEntry(context.Background(), credential)
	require.ErrorIs(t, err, ErrEntryNotReady)

	view, err := f.manager.Entry("entry-1")
	require.NoError(t, err)
	assert.Equal(t, EntryStateSetupRetry, view.State)
	assert.Equal(t, "Could not connect to the SolaX Cloud API", view.LastError)
	assert.True(t, f.hasJob(retryTag("entry-1")))
	assert.False(t, f.hasJob(pollTag("entry-1")))

	_, err = f.manager.Refresh(context.Background(), "entry-1")
	assert.ErrorIs(t, err, ErrEntryNotReady)
	_, err = f.manager.Sensors("entry-1")
	assert.ErrorIs(t, err, ErrEntryNotReady)

	f.manager.retrySetup("entry-1")

	view, err = f.manager.Entry("entry-1")
	require.NoError(t, err)
	assert.Equal(t, EntryStateLoaded, view.State)
	assert.Empty(t, view.LastError)
	assert.False(t, f.hasJob(retryTag("entry-1")))
	assert.True(t, f.hasJob(pollTag("entry-1")))
}

func TestUnloadAndRemoveEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(2)

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: "SWABC"})
	require.NoError(t, err)
	entryID := result.Entry.ID

	require.NoError(t, f.manager.UnloadEntry(entryID))
	_, _, unregistered := f.publisher.counts()
	assert.Equal(t, 0, unregistered, "unload keeps the device registered")
	assert.Equal(t, 1, f.publisher.unloadedCount())
	assert.False(t, f.hasJob(pollTag(entryID)))
	assert.ErrorIs(t, f.manager.UnloadEntry(entryID), ErrEntryNotFound)

	// credential survives an unload
	_, err = f.repo.FindByID(entryID)
	require.NoError(t, err)

	require.NoError(t, f.manager.RemoveEntry(entryID))
	_, err = f.repo.FindByID(entryID)
	assert.ErrorIs(t, err, repo.ErrCredentialNotFound)
	assert.ErrorIs(t, f.manager.RemoveEntry(entryID), ErrEntryNotFound)
}

func TestRemoveLoadedEntryUnregisters(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(2)

	f := newFixture(t, mockFactory(fetcher))
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: "SWABC"})
	require.NoError(t, err)

	require.NoError(t, f.manager.RemoveEntry(result.Entry.ID))
	_, _, unregistered := f.publisher.counts()
	assert.Equal(t, 1, unregistered)
	assert.Equal(t, 0, f.publisher.unloadedCount())
}

func TestSetupAllLoadsStoredEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(3)

	f := newFixture(t, mockFactory(fetcher))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.repo.Create(&model.SolaxCredential{ID: id, TokenID: "t", SerialNumber: "sn-" + id, UniqueID: "SN-" + id}))
	}

	require.NoError(t, f.manager.SetupAll(context.Background()))

	views := f.manager.Entries()
	require.Len(t, views, 3)
	for _, view := range views {
		assert.Equal(t, EntryStateLoaded, view.State)
		assert.True(t, f.hasJob(pollTag(view.ID)))
	}

	f.manager.Close()
	assert.Empty(t, f.manager.Entries())
	_, _, unregistered := f.publisher.counts()
	assert.Equal(t, 0, unregistered)
	assert.Equal(t, 3, f.publisher.unloadedCount())

	// credentials survive a shutdown
	stored, err := f.repo.FindAll()
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestPublisherFailuresAreIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().GetRealtimeInfo(gomock.Any()).Return(realtimeResult, nil).Times(3)

	f := newFixture(t, mockFactory(fetcher), panickingPublisher{})
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: "SWABC"})
	require.NoError(t, err)

	_, err = f.manager.Refresh(context.Background(), result.Entry.ID)
	require.NoError(t, err)

	registered, published, _ := f.publisher.counts()
	assert.Equal(t, 1, registered)
	assert.Equal(t, 1, published)
}

func TestUnknownEntry(t *testing.T) {
	f := newFixture(t, mockFactory(nil))

	_, err := f.manager.Entry("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = f.manager.Sensors("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = f.manager.Refresh(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func solaxServer(t *testing.T, body any, hits *int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*hits++
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSetupSucceedsAgainstEitherEndpoint(t *testing.T) {
	var failedHits, okHits int
	failing := solaxServer(t, map[string]any{"success": false, "exception": "tokenId is not match"}, &failedHits)
	ok := solaxServer(t, map[string]any{"success": true, "result": realtimeResult}, &okHits)

	conf := config.Default().Solax
	conf.Endpoints = []string{failing.URL, ok.URL}
	factory := NewClientFactory(conf, rate.NewLimiter(rate.Inf, 1))

	f := newFixture(t, factory)
	result, err := f.manager.AddEntry(context.Background(), UserInput{TokenID: "token", SerialNumber: "SWABC"})
	require.NoError(t, err)
	require.Equal(t, FlowResultCreateEntry, result.Type)

	view, err := f.manager.Entry(result.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, EntryStateLoaded, view.State)
	assert.Equal(t, 2, failedHits)
	assert.Equal(t, 2, okHits)
}

func TestInvalidCredentialsAgainstBothEndpoints(t *testing.T) {
	var firstHits, secondHits int
	body := map[string]any{"success": false, "exception": "tokenId is not match"}
	first := solaxServer(t, body, &firstHits)
	second := solaxServer(t, body, &secondHits)

	conf := config.Default().Solax
	conf.Endpoints = []string{first.URL, second.URL}
	factory := NewClientFactory(conf, rate.NewLimiter(rate.Inf, 1))

	f := newFixture(t, factory)
	result, err := f.manager.AddEntry(context.Background(), UserInput{
		TokenID:      "token",
		SerialNumber: "SWABC",
		APIBaseURL:   pointy.String("  "),
	})
	require.NoError(t, err)

	assert.Equal(t, FlowResultForm, result.Type)
	assert.Equal(t, ErrorCannotConnect, result.Errors[ErrorBase])
	assert.Equal(t, 1, firstHits)
	assert.Equal(t, 1, secondHits)
	assert.Empty(t, f.manager.Entries())
}

func TestNormalizeCredentials(t *testing.T) {
	cleaned, uniqueID := NormalizeCredentials(UserInput{TokenID: "  Token  ", SerialNumber: "  abcd1234  "})
	assert.Equal(t, "Token", cleaned.TokenID)
	assert.Equal(t, "abcd1234", cleaned.SerialNumber)
	assert.Equal(t, "ABCD1234", uniqueID)
	assert.Nil(t, cleaned.APIBaseURL)

	cleaned, _ = NormalizeCredentials(UserInput{TokenID: "t", SerialNumber: "s", APIBaseURL: pointy.String("  https://custom  ")})
	require.NotNil(t, cleaned.APIBaseURL)
	assert.Equal(t, "https://custom", *cleaned.APIBaseURL)

	cleaned, _ = NormalizeCredentials(UserInput{TokenID: "t", SerialNumber: "s", APIBaseURL: pointy.String("   ")})
	assert.Nil(t, cleaned.APIBaseURL)
}

func TestClassifyAPIError(t *testing.T) {
	code, placeholders := ClassifyAPIError("Unknown error occurred")
	assert.Equal(t, ErrorCannotConnect, code)
	assert.Nil(t, placeholders)

	code, placeholders = ClassifyAPIError("   ")
	assert.Equal(t, ErrorCannotConnect, code)
	assert.Nil(t, placeholders)

	code, placeholders = ClassifyAPIError("Rate limited")
	assert.Equal(t, ErrorCannotConnect, code)
	assert.Equal(t, map[string]string{PlaceholderError: "Rate limited"}, placeholders)
}

func TestNewRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(config.SolaxConfig{RequestsPerMinute: 10, RequestBurst: 0})
	assert.Equal(t, 1, limiter.Burst())
	assert.InDelta(t, 10.0/60, float64(limiter.Limit()), 1e-9)
}
