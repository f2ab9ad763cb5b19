package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/api"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/services"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	down atomic.Bool
}

func (p *fakePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("unreachable")
	}
	return nil
}

// fakeSyncer returns scripted results and checks runs never overlap.
type fakeSyncer struct {
	mu       sync.Mutex
	results  []services.SyncResult
	runs     int
	inflight atomic.Int32
	overlap  atomic.Bool
}

func (s *fakeSyncer) Run(context.Context) (services.SyncResult, error) {
	if s.inflight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inflight.Add(-1)
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if len(s.results) == 0 {
		return services.SyncResult{}, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, nil
}

func (s *fakeSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func testConfig() Config {
	return Config{
		ProbeTimeout: time.Second,
		Debounce:     20 * time.Millisecond,
		BackoffBase:  20 * time.Millisecond,
		BackoffMax:   40 * time.Millisecond,
		MaxRetries:   5,
	}
}

func start(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMonitor_ComingOnlineSyncsOnce(t *testing.T) {
	syncer := &fakeSyncer{}
	bus := notify.NewBus()
	events, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	m := New(nil, syncer, bus, testConfig(), logging.Nop())
	start(t, m)

	assert.False(t, m.Online())
	m.SetOnline(true)
	m.SetOnline(true)

	require.Eventually(t, func() bool { return syncer.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, syncer.count())

	ev := <-events
	assert.Equal(t, notify.ConnectivityChanged, ev.Type)
	assert.True(t, ev.Online)
}

func TestMonitor_TriggersCoalesce(t *testing.T) {
	syncer := &fakeSyncer{}
	m := New(nil, syncer, nil, testConfig(), logging.Nop())
	start(t, m)

	m.SetOnline(true)
	require.Eventually(t, func() bool { return syncer.count() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 20; i++ {
		m.Trigger()
	}
	require.Eventually(t, func() bool { return syncer.count() >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, syncer.count(), 3)
	assert.False(t, syncer.overlap.Load())
}

func TestMonitor_OfflineSkipsTriggers(t *testing.T) {
	syncer := &fakeSyncer{}
	m := New(nil, syncer, nil, testConfig(), logging.Nop())
	start(t, m)

	m.Trigger()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, syncer.count())
}

func TestMonitor_BacksOffUntilClean(t *testing.T) {
	syncer := &fakeSyncer{results: []services.SyncResult{
		{Retryable: 2},
		{Synced: 1, Retryable: 1},
		{Synced: 1},
	}}
	m := New(nil, syncer, nil, testConfig(), logging.Nop())
	start(t, m)

	m.SetOnline(true)
	require.Eventually(t, func() bool { return syncer.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 3, syncer.count())
}

func TestMonitor_RetriesAreBounded(t *testing.T) {
	results := make([]services.SyncResult, 20)
	for i := range results {
		results[i] = services.SyncResult{Retryable: 1}
	}
	syncer := &fakeSyncer{results: results}

	cfg := testConfig()
	cfg.MaxRetries = 2
	m := New(nil, syncer, nil, cfg, logging.Nop())
	start(t, m)

	m.SetOnline(true)
	require.Eventually(t, func() bool { return syncer.count() == 3 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, syncer.count())
}

func TestMonitor_GoingOfflineCancelsRetry(t *testing.T) {
	syncer := &fakeSyncer{results: []services.SyncResult{{Retryable: 1}, {Retryable: 1}}}
	cfg := testConfig()
	cfg.BackoffBase = 150 * time.Millisecond
	cfg.BackoffMax = 150 * time.Millisecond
	m := New(nil, syncer, nil, cfg, logging.Nop())
	start(t, m)

	m.SetOnline(true)
	require.Eventually(t, func() bool { return syncer.count() == 1 }, time.Second, 5*time.Millisecond)
	m.SetOnline(false)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, syncer.count())
}

func TestMonitor_ProbeDrivesConnectivity(t *testing.T) {
	syncer := &fakeSyncer{}
	prober := &fakePinger{}
	cfg := testConfig()
	cfg.ProbeInterval = 20 * time.Millisecond
	m := New(prober, syncer, nil, cfg, logging.Nop())
	start(t, m)

	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return syncer.count() == 1 }, time.Second, 5*time.Millisecond)

	prober.down.Store(true)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)

	prober.down.Store(false)
	require.Eventually(t, func() bool { return syncer.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_ConnectedEventMeansOnline(t *testing.T) {
	m := New(nil, &fakeSyncer{}, nil, testConfig(), logging.Nop())

	m.HandleEvent(api.Event{Type: api.EventEntrySynced})
	assert.False(t, m.Online())

	m.HandleEvent(api.Event{Type: api.EventConnected})
	assert.True(t, m.Online())
}
