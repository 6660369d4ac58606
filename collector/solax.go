package collector

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks github.com/HavvokLab/solax-cloud/collector Fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/setting"
	"github.com/rs/zerolog"
)

// Fetcher returns the raw realtime result of one inverter.
type Fetcher interface {
	GetRealtimeInfo(ctx context.Context) (map[string]any, error)
}

// Listener is called with the snapshot produced by every refresh.
type Listener func(snapshot model.Snapshot)

type SolaxCollector struct {
	entryID   string
	fetcher   Fetcher
	timeout   time.Duration
	snapshot  atomic.Pointer[model.Snapshot]
	refreshMu sync.Mutex
	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
	logger    zerolog.Logger
}

type CollectorOption func(*SolaxCollector)

func WithRefreshTimeout(timeout time.Duration) CollectorOption {
	return func(c *SolaxCollector) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) CollectorOption {
	return func(c *SolaxCollector) {
		c.now = now
	}
}

func NewSolaxCollector(entryID string, fetcher Fetcher, opts ...CollectorOption) *SolaxCollector {
	c := &SolaxCollector{
		entryID:   entryID,
		fetcher:   fetcher,
		timeout:   setting.RequestTimeout * 3,
		listeners: make(map[int]Listener),
		now:       time.Now,
		logger:    logger.New("solax_collector.log").With().Str("entry_id", entryID).Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *SolaxCollector) EntryID() string {
	return c.entryID
}

// Snapshot returns the latest snapshot. Before the first refresh it is the
// zero value.
func (c *SolaxCollector) Snapshot() model.Snapshot {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}

	return model.Snapshot{}
}

// AddListener registers l and returns a function removing it again.
func (c *SolaxCollector) AddListener(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Refresh polls the cloud once. On success the snapshot is replaced; on
// failure the previous data is kept and the snapshot is marked stale.
// Listeners are notified either way, in refresh order.
func (c *SolaxCollector) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	snapshot, err := c.refresh(ctx)
	c.notify(snapshot)
	return err
}

func (c *SolaxCollector) refresh(ctx context.Context) (model.Snapshot, error) {
	data, err := c.fetcher.GetRealtimeInfo(ctx)
	now := c.now()

	if err != nil {
		next := c.Snapshot()
		next.LastUpdateSuccess = false
		next.LastError = errorMessage(err)
		next.AttemptedAt = now
		c.snapshot.Store(&next)

		c.logger.Warn().
			Err(err).
			Time("last_success", next.UpdatedAt).
			Msg("SolaxCollector::Refresh() - update failed, keeping previous values")
		return next, err
	}

	next := model.Snapshot{
		Data:              data,
		LastUpdateSuccess: true,
		UpdatedAt:         now,
		AttemptedAt:       now,
	}
	c.snapshot.Store(&next)

	c.logger.Debug().Int("fields", len(data)).Msg("SolaxCollector::Refresh() - update succeeded")
	return next, nil
}

func (c *SolaxCollector) notify(snapshot model.Snapshot) {
	c.mu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.RUnlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// Execute is the scheduled poll job.
func (c *SolaxCollector) Execute() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Any("recover", r).Msg("SolaxCollector::Execute() - panic")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Error().Err(err).Msg("SolaxCollector::Execute() - failed")
		return
	}

	c.logger.Info().Msg("SolaxCollector::Execute() - done")
}

func errorMessage(err error) string {
	if message := solax.Message(err); message != "" {
		return message
	}

	return err.Error()
}
