package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HavvokLab/solax-cloud/collector"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/pkg/util"
	"github.com/HavvokLab/solax-cloud/repo"
	"github.com/HavvokLab/solax-cloud/sensor"
	"github.com/HavvokLab/solax-cloud/setting"
	"github.com/gammazero/workerpool"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrEntryNotReady = errors.New("entry not ready")
)

type EntryState string

const (
	EntryStateLoaded     EntryState = "loaded"
	EntryStateSetupRetry EntryState = "setup_retry"
	EntryStateNotLoaded  EntryState = "not_loaded"
)

// Publisher pushes devices and their snapshots to an outside system.
// Unload runs when polling stops but the entry is kept, on shutdown for
// instance. Unregister runs only when the entry is removed for good.
type Publisher interface {
	Name() string
	Register(device model.Device, snapshot model.Snapshot) error
	Publish(device model.Device, snapshot model.Snapshot) error
	Unload(device model.Device) error
	Unregister(device model.Device) error
}

type EntryView struct {
	ID                string        `json:"entry_id"`
	Title             string        `json:"title"`
	SerialNumber      string        `json:"serial_number"`
	UniqueID          string        `json:"unique_id"`
	APIBaseURL        *string       `json:"api_base_url,omitempty"`
	State             EntryState    `json:"state"`
	LastError         string        `json:"last_error,omitempty"`
	LastUpdateSuccess bool          `json:"last_update_success"`
	UpdatedAt         *time.Time    `json:"updated_at,omitempty"`
	Device            *model.Device `json:"device,omitempty"`
}

type entry struct {
	credential     model.SolaxCredential
	collector      *collector.SolaxCollector
	device         *model.Device
	state          EntryState
	lastError      string
	removed        bool
	removeListener func()
}

type ManagerConfig struct {
	UpdateInterval time.Duration
	RetryInterval  time.Duration
	RefreshTimeout time.Duration
	SetupWorkers   int
}

type Manager struct {
	credentialRepo repo.SolaxCredentialRepo
	flow           *ConfigFlow
	newClient      ClientFactory
	publishers     []Publisher
	scheduler      *gocron.Scheduler
	schedMu        sync.Mutex
	conf           ManagerConfig
	mu             sync.RWMutex
	entries        map[string]*entry
	logger         zerolog.Logger
}

func NewManager(
	credentialRepo repo.SolaxCredentialRepo,
	newClient ClientFactory,
	scheduler *gocron.Scheduler,
	conf ManagerConfig,
	publishers ...Publisher,
) *Manager {
	if conf.UpdateInterval <= 0 {
		conf.UpdateInterval = setting.UpdateInterval
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = setting.SetupRetryInterval
	}
	if conf.SetupWorkers < 1 {
		conf.SetupWorkers = 1
	}

	return &Manager{
		credentialRepo: credentialRepo,
		flow:           NewConfigFlow(credentialRepo, newClient),
		newClient:      newClient,
		publishers:     publishers,
		scheduler:      scheduler,
		conf:           conf,
		entries:        make(map[string]*entry),
		logger:         logger.New("manager.log"),
	}
}

func pollTag(entryID string) string  { return "poll:" + entryID }
func retryTag(entryID string) string { return "retry:" + entryID }

// SetupAll sets up every stored credential on a bounded worker pool.
func (m *Manager) SetupAll(ctx context.Context) error {
	credentials, err := m.credentialRepo.FindAll()
	if err != nil {
		return fmt.Errorf("failed to find credentials: %w", err)
	}

	m.logger.Info().Int("count", len(credentials)).Msg("Manager::SetupAll() - setting up entries")

	pool := workerpool.New(m.conf.SetupWorkers)
	for _, credential := range credentials {
		credential := credential
		pool.Submit(func() {
			if err := m.SetupEntry(ctx, credential); err != nil {
				m.logger.Warn().Err(err).Str("entry_id", credential.ID).Msg("Manager::SetupAll() - entry not ready")
			}
		})
	}
	pool.StopWait()

	return nil
}

// AddEntry runs the config flow and sets up the created entry. An entry
// whose first refresh fails still exists and is retried in the background.
func (m *Manager) AddEntry(ctx context.Context, input UserInput) (FlowResult, error) {
	result, err := m.flow.Submit(ctx, input)
	if err != nil || result.Type != FlowResultCreateEntry {
		return result, err
	}

	if err := m.SetupEntry(ctx, *result.Entry); err != nil {
		m.logger.Warn().Err(err).Str("entry_id", result.Entry.ID).Msg("Manager::AddEntry() - entry not ready")
	}

	return result, nil
}

// SetupEntry performs the first refresh of credential, builds its device,
// registers it with the publishers and schedules polling. When the first
// refresh fails the entry is left in setup_retry and ErrEntryNotReady is
// returned.
func (m *Manager) SetupEntry(ctx context.Context, credential model.SolaxCredential) error {
	m.mu.Lock()
	e, ok := m.entries[credential.ID]
	if ok && e.state == EntryStateLoaded {
		m.mu.Unlock()
		return nil
	}
	if !ok {
		e = &entry{credential: credential, state: EntryStateNotLoaded}
		m.entries[credential.ID] = e
	}
	if e.collector == nil {
		client := m.newClient(credential.TokenID, credential.SerialNumber, credential.APIBaseURL)
		e.collector = collector.NewSolaxCollector(credential.ID, client, collector.WithRefreshTimeout(m.conf.RefreshTimeout))
	}
	c := e.collector
	m.mu.Unlock()

	log := m.logger.With().
		Str("entry_id", credential.ID).
		Str("serial_number", util.Redact(credential.SerialNumber, 4)).
		Logger()

	if err := c.Refresh(ctx); err != nil {
		message := c.Snapshot().LastError
		m.mu.Lock()
		current, stillPresent := m.entries[credential.ID]
		if stillPresent && current == e {
			e.state = EntryStateSetupRetry
			e.lastError = message
		}
		m.mu.Unlock()

		if stillPresent && current == e {
			m.scheduleRetry(credential)
		}

		log.Warn().Err(err).Msg("Manager::SetupEntry() - first refresh failed")
		return fmt.Errorf("%w: %s", ErrEntryNotReady, message)
	}

	snapshot := c.Snapshot()
	device := sensor.BuildDevice(credential, snapshot.Data)

	m.fanOut("Register", func(p Publisher) error { return p.Register(device, snapshot) })

	m.mu.Lock()
	if current, ok := m.entries[credential.ID]; !ok || current != e {
		// unloaded or removed while setting up
		removed := e.removed
		m.mu.Unlock()
		m.withdraw(device, removed)
		return ErrEntryNotFound
	}
	if e.state == EntryStateLoaded {
		m.mu.Unlock()
		return nil
	}

	if err := m.schedule(m.conf.UpdateInterval, pollTag(credential.ID), c.Execute); err != nil {
		m.mu.Unlock()
		log.Error().Err(err).Msg("Manager::SetupEntry() - failed to schedule poll job")
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	e.device = &device
	e.state = EntryStateLoaded
	e.lastError = ""
	e.removeListener = c.AddListener(func(snapshot model.Snapshot) {
		m.publish(device, snapshot)
	})
	m.mu.Unlock()

	m.unschedule(retryTag(credential.ID))

	log.Info().
		Int("sensors", len(device.Sensors)).
		Str("device", device.Info.Name).
		Msg("Manager::SetupEntry() - entry loaded")
	return nil
}

func (m *Manager) scheduleRetry(credential model.SolaxCredential) {
	tag := retryTag(credential.ID)
	if m.hasJob(tag) {
		return
	}

	if err := m.schedule(m.conf.RetryInterval, tag, func() {
		m.retrySetup(credential.ID)
	}); err != nil {
		m.logger.Error().Err(err).Str("entry_id", credential.ID).Msg("Manager::scheduleRetry() - failed to schedule retry")
	}
}

// schedule adds an interval job that first fires one interval from now and
// never overlaps itself.
func (m *Manager) schedule(interval time.Duration, tag string, fn func()) error {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	_, err := m.scheduler.
		Every(interval).
		WaitForSchedule().
		SingletonMode().
		Tag(tag).
		Do(fn)
	return err
}

func (m *Manager) unschedule(tag string) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	_ = m.scheduler.RemoveByTag(tag)
}

func (m *Manager) hasJob(tag string) bool {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	jobs, err := m.scheduler.FindJobsByTag(tag)
	return err == nil && len(jobs) > 0
}

func (m *Manager) retrySetup(entryID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Any("recover", r).Str("entry_id", entryID).Msg("Manager::retrySetup() - panic")
		}
	}()

	m.mu.RLock()
	e, ok := m.entries[entryID]
	m.mu.RUnlock()
	if !ok {
		m.unschedule(retryTag(entryID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.conf.RetryInterval)
	defer cancel()

	if err := m.SetupEntry(ctx, e.credential); err != nil {
		m.logger.Warn().Err(err).Str("entry_id", entryID).Msg("Manager::retrySetup() - still not ready")
	}
}

func (m *Manager) publish(device model.Device, snapshot model.Snapshot) {
	m.fanOut("Publish", func(p Publisher) error { return p.Publish(device, snapshot) })
}

// fanOut calls fn for every publisher concurrently. A failing or panicking
// publisher does not affect the others.
func (m *Manager) fanOut(action string, fn func(p Publisher) error) {
	wg := conc.NewWaitGroup()
	for _, publisher := range m.publishers {
		p := publisher
		wg.Go(func() {
			if err := fn(p); err != nil {
				m.logger.Error().Err(err).Str("publisher", p.Name()).Str("action", action).Msg("Manager::fanOut() - publisher failed")
			}
		})
	}

	if r := wg.WaitAndRecover(); r != nil {
		m.logger.Error().Any("recover", r.Value).Str("action", action).Msg("Manager::fanOut() - publisher panicked")
	}
}

// UnloadEntry stops polling the entry and marks its device unavailable.
// The stored credential and the published device are kept.
func (m *Manager) UnloadEntry(entryID string) error {
	return m.unload(entryID, false)
}

// RemoveEntry unloads the entry, withdraws its device from the publishers
// and deletes its stored credential.
func (m *Manager) RemoveEntry(entryID string) error {
	unloadErr := m.unload(entryID, true)
	if unloadErr != nil && !errors.Is(unloadErr, ErrEntryNotFound) {
		return unloadErr
	}

	if err := m.credentialRepo.Delete(entryID); err != nil {
		if errors.Is(err, repo.ErrCredentialNotFound) {
			return ErrEntryNotFound
		}
		return err
	}

	m.logger.Info().Str("entry_id", entryID).Msg("Manager::RemoveEntry() - entry removed")
	return nil
}

func (m *Manager) unload(entryID string, remove bool) error {
	m.mu.Lock()
	e, ok := m.entries[entryID]
	var device *model.Device
	var removeListener func()
	if ok {
		e.removed = remove
		device = e.device
		removeListener = e.removeListener
		delete(m.entries, entryID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrEntryNotFound
	}

	m.unschedule(pollTag(entryID))
	m.unschedule(retryTag(entryID))

	if removeListener != nil {
		removeListener()
	}

	if device != nil {
		m.withdraw(*device, remove)
	}

	m.logger.Info().Str("entry_id", entryID).Bool("remove", remove).Msg("Manager::unload() - entry unloaded")
	return nil
}

func (m *Manager) withdraw(device model.Device, remove bool) {
	if remove {
		m.fanOut("Unregister", func(p Publisher) error { return p.Unregister(device) })
		return
	}

	m.fanOut("Unload", func(p Publisher) error { return p.Unload(device) })
}

// Refresh polls a loaded entry out of band.
func (m *Manager) Refresh(ctx context.Context, entryID string) (model.Snapshot, error) {
	m.mu.RLock()
	e, ok := m.entries[entryID]
	var state EntryState
	if ok {
		state = e.state
	}
	m.mu.RUnlock()

	if !ok {
		return model.Snapshot{}, ErrEntryNotFound
	}
	if state != EntryStateLoaded {
		return model.Snapshot{}, ErrEntryNotReady
	}

	err := e.collector.Refresh(ctx)
	return e.collector.Snapshot(), err
}

func (m *Manager) Entries() []EntryView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]EntryView, 0, len(m.entries))
	for _, e := range m.entries {
		views = append(views, e.view())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].ID < views[j].ID
	})

	return views
}

func (m *Manager) Entry(entryID string) (EntryView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID]
	if !ok {
		return EntryView{}, ErrEntryNotFound
	}

	return e.view(), nil
}

// Sensors returns the current sensor states of a loaded entry.
func (m *Manager) Sensors(entryID string) ([]model.SensorState, error) {
	m.mu.RLock()
	e, ok := m.entries[entryID]
	var device *model.Device
	if ok {
		device = e.device
	}
	m.mu.RUnlock()

	if !ok {
		return nil, ErrEntryNotFound
	}
	if device == nil {
		return nil, ErrEntryNotReady
	}

	return sensor.States(*device, e.collector.Snapshot()), nil
}

// Close unloads every entry. Published devices stay registered so a
// restart picks them up again.
func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.UnloadEntry(id)
	}
}

func (e *entry) view() EntryView {
	view := EntryView{
		ID:           e.credential.ID,
		Title:        e.credential.Title,
		SerialNumber: e.credential.SerialNumber,
		UniqueID:     e.credential.UniqueID,
		APIBaseURL:   e.credential.APIBaseURL,
		State:        e.state,
		LastError:    e.lastError,
		Device:       e.device,
	}

	if e.collector != nil {
		snapshot := e.collector.Snapshot()
		view.LastUpdateSuccess = snapshot.LastUpdateSuccess
		if !snapshot.UpdatedAt.IsZero() {
			updatedAt := snapshot.UpdatedAt
			view.UpdatedAt = &updatedAt
		}
		if e.state == EntryStateLoaded {
			view.LastError = snapshot.LastError
		}
	}

	return view
}
