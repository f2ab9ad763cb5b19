package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/config"
	"github.com/dmitrijs2005/fieldlog/internal/client/monitor"
	"github.com/dmitrijs2005/fieldlog/internal/client/notify"
	"github.com/dmitrijs2005/fieldlog/internal/client/services"
	"github.com/dmitrijs2005/fieldlog/internal/client/store"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/sethvargo/go-retry"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	logger logging.Logger

	store        *store.Store
	apiClient    *client.HTTPClient
	prober       *client.HealthProber
	stream       *client.StreamListener
	bus          *notify.Bus
	monitor      *monitor.Monitor
	authService  services.AuthService
	entryService services.EntryService
	syncService  services.SyncService

	mu       sync.Mutex
	identity *services.Identity
	mode     Mode

	reader *bufio.Reader
	out    io.Writer
}

// NewApp wires the client from configuration. Nothing touches the network
// or the database until Run.
func NewApp(c *config.Config, logger logging.Logger) (*App, error) {
	bus := notify.NewBus()
	st := store.New(c.DatabasePath, bus, logger)

	prober, err := client.NewHealthProber(c.HealthAddr)
	if err != nil {
		return nil, fmt.Errorf("health probe: %w", err)
	}

	auth := services.NewAuthService(st, prober, logger)

	apiClient, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, auth.TokenSource(),
		client.DefaultBreakerSettings(), logger)
	if err != nil {
		_ = prober.Close()
		return nil, err
	}

	stream, err := client.NewStreamListener(c.ServerURL, auth.TokenSource())
	if err != nil {
		_ = prober.Close()
		return nil, err
	}

	syncSvc := services.NewSyncService(st, apiClient, bus, logger)
	entrySvc := services.NewEntryService(st, apiClient, syncSvc, c.ProgramWeeks, logger)

	mon := monitor.New(prober, syncSvc, bus, monitor.Config{
		ProbeInterval: c.OnlineCheckInterval,
		ProbeTimeout:  3 * time.Second,
		Debounce:      c.SyncDebounce,
		BackoffBase:   c.BackoffBase,
		BackoffMax:    c.BackoffMax,
		MaxRetries:    c.MaxRetries,
	}, logger)

	return &App{
		config:       c,
		logger:       logger.With("module", "cli"),
		store:        st,
		apiClient:    apiClient,
		prober:       prober,
		stream:       stream,
		bus:          bus,
		monitor:      mon,
		authService:  auth,
		entryService: entrySvc,
		syncService:  syncSvc,
		mode:         ModeOffline,
		reader:       bufio.NewReader(os.Stdin),
		out:          os.Stdout,
	}, nil
}

// Run starts the background workers and the REPL, and tears everything down
// when the user exits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	if err := a.store.Init(ctx); err != nil {
		fmt.Fprintf(a.out, "Local storage unavailable (%v); entries will be sent online only.\n", err)
	}
	if id, err := a.authService.Whoami(ctx); err == nil {
		a.setIdentity(id)
	}

	var wg sync.WaitGroup
	events, unsubscribe := a.bus.Subscribe(32)

	wg.Add(3)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.listenStream(ctx)
	}()
	go func() {
		defer wg.Done()
		a.watchEvents(events)
	}()

	fmt.Fprintln(a.out, "Welcome to FieldLog (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)

	cancel()
	unsubscribe()
	wg.Wait()

	_ = a.apiClient.Close()
	_ = a.prober.Close()
	_ = a.store.Close()
}

// listenStream keeps the notification stream open while logged in,
// reconnecting with backoff.
func (a *App) listenStream(ctx context.Context) {
	b := retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second))

	for ctx.Err() == nil {
		if !a.isLoggedIn() {
			if !sleepCtx(ctx, a.config.OnlineCheckInterval) {
				return
			}
			continue
		}

		err := a.stream.Listen(ctx, a.monitor.HandleEvent)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			b = retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second))
		} else {
			a.logger.Debug(ctx, "notification stream closed", "error", err)
		}

		d, _ := b.Next()
		if !sleepCtx(ctx, d) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// watchEvents turns bus events into user-facing messages.
func (a *App) watchEvents(events <-chan notify.Event) {
	for ev := range events {
		switch ev.Type {
		case notify.ConnectivityChanged:
			if ev.Online {
				a.setMode(ModeOnline)
			} else {
				a.setMode(ModeOffline)
			}
		case notify.SyncCompleted:
			fmt.Fprintf(a.out, "\n%d entr%s synced\n", ev.Count, plural(ev.Count, "y", "ies"))
		}
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		fmt.Fprintf(a.out, "\nSwitched to %s mode\n", mode)
	}
}

func (a *App) setIdentity(id *services.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identity = id
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity != nil
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := ""
	if a.identity != nil {
		s = a.identity.StudentID + " "
	}
	if a.mode != "" {
		s = s + string(a.mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
