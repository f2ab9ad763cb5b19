// Package monitor tracks whether the server is reachable and drives the sync
// engine: it syncs on every offline to online transition, on explicit
// triggers, and again after a backoff while entries are left to retry.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/services"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Syncer runs one sync pass. services.SyncService implements it.
type Syncer interface {
	Run(ctx context.Context) (services.SyncResult, error)
}

type Config struct {
	// ProbeInterval is the period of the health probe. Zero disables
	// probing; connectivity then changes only through SetOnline.
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// Debounce is how long the worker waits after a trigger before it
	// syncs, so that bursts of triggers cost one run.
	Debounce time.Duration

	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxRetries  uint64
}

func DefaultConfig() Config {
	return Config{
		ProbeInterval: 10 * time.Second,
		ProbeTimeout:  3 * time.Second,
		Debounce:      500 * time.Millisecond,
		BackoffBase:   2 * time.Second,
		BackoffMax:    5 * time.Minute,
		MaxRetries:    10,
	}
}

// Monitor owns the connectivity state and the single sync worker.
type Monitor struct {
	prober    client.Prober
	syncer    Syncer
	publisher notify.Publisher
	logger    logging.Logger
	cfg       Config

	trigger chan struct{}

	mu         sync.Mutex
	online     bool
	backoff    retry.Backoff
	retryTimer *time.Timer
}

// New builds a Monitor that starts offline. prober and publisher may be nil.
func New(prober client.Prober, syncer Syncer, publisher notify.Publisher, cfg Config, logger logging.Logger) *Monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}

	m := &Monitor{
		prober:    prober,
		syncer:    syncer,
		publisher: publisher,
		logger:    logger.With("module", "monitor"),
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}
	m.backoff = m.newBackoff()
	return m
}

func (m *Monitor) newBackoff() retry.Backoff {
	b := retry.NewExponential(m.cfg.BackoffBase)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(m.cfg.BackoffMax, b)
	return retry.WithMaxRetries(m.cfg.MaxRetries, b)
}

// Run probes and syncs until ctx is done, then waits for the worker.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.worker(ctx)
	}()

	if m.prober != nil && m.cfg.ProbeInterval > 0 {
		m.watch(ctx)
	} else {
		<-ctx.Done()
	}

	m.mu.Lock()
	m.stopRetryLocked()
	m.mu.Unlock()
	wg.Wait()
}

func (m *Monitor) watch(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.Ping(ctx)
	cancel()

	if err != nil {
		m.logger.Debug(ctx, "probe failed", "error", err)
	}
	m.SetOnline(err == nil)
}

// Online reports the last known connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records connectivity. Coming online resets the backoff and
// triggers a sync; going offline cancels a scheduled retry.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	if changed {
		if online {
			m.backoff = m.newBackoff()
		} else {
			m.stopRetryLocked()
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info(context.Background(), "connectivity changed", "online", online)
	if m.publisher != nil {
		m.publisher.Publish(notify.Event{Type: notify.ConnectivityChanged, Online: online})
	}
	if online {
		m.Trigger()
	}
}

// HandleEvent consumes notification stream events. A "connected" event
// proves the server is reachable.
func (m *Monitor) HandleEvent(ev api.Event) {
	if ev.Type == api.EventConnected {
		m.SetOnline(true)
	}
}

// Trigger asks for a sync. It never blocks; a trigger already waiting
// absorbs this one.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Monitor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
		}

		if m.cfg.Debounce > 0 {
			t := time.NewTimer(m.cfg.Debounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		// Triggers that arrived while debouncing are covered by this run.
		select {
		case <-m.trigger:
		default:
		}

		if !m.Online() {
			continue
		}

		res, err := m.syncer.Run(ctx)
		if err != nil {
			m.logger.Warn(ctx, "sync run failed", "error", err)
		}
		m.afterRun(ctx, res, err)
	}
}

func (m *Monitor) afterRun(ctx context.Context, res services.SyncResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil && res.Clean() {
		m.backoff = m.newBackoff()
		m.stopRetryLocked()
		return
	}
	if !m.online || ctx.Err() != nil {
		return
	}

	d, stop := m.backoff.Next()
	if stop {
		m.logger.Warn(ctx, "retries exhausted, waiting for the next trigger", "retryable", res.Retryable)
		return
	}

	m.stopRetryLocked()
	m.retryTimer = time.AfterFunc(d, m.Trigger)
	m.logger.Info(ctx, "sync retry scheduled", "in", d.String(), "retryable", res.Retryable)
}

func (m *Monitor) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}
