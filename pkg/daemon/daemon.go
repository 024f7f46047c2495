// Package daemon runs the background publisher that pushes due
// scheduled posts to the upstream network. It runs outside any
// request, so it carries its own storage handle cache and builds its
// own client from the token store instead of relying on a
// request-bound credential.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/termin/pkg/ambient"
	"github.com/rhuss/termin/pkg/linkedin"
	"github.com/rhuss/termin/pkg/observability"
	"github.com/rhuss/termin/pkg/scheduler"
	"github.com/rhuss/termin/pkg/schedstore"
	"github.com/rhuss/termin/pkg/tokens"
)

// cacheOwner identifies the daemon's slot in its handle cache. The
// daemon owns a dedicated cache, so the owner key never collides with
// request owners.
const cacheOwner = "publisher-daemon"

// Option configures a Daemon.
type Option func(*Daemon)

// WithPollInterval sets how often the daemon checks for due posts.
func WithPollInterval(d time.Duration) Option {
	return func(dm *Daemon) { dm.pollInterval = d }
}

// WithClientOptions sets options applied to every client the daemon
// builds, such as a base URL override.
func WithClientOptions(opts ...linkedin.Option) Option {
	return func(dm *Daemon) { dm.clientOpts = opts }
}

// WithRunFunc overrides the publish pass. Used in tests.
func WithRunFunc(run func(ctx context.Context, client *linkedin.Client) error) Option {
	return func(dm *Daemon) { dm.run = run }
}

// Daemon polls for due posts on a fixed interval and publishes them.
type Daemon struct {
	tokens       tokens.Store
	cache        *schedstore.DBCache
	logger       *slog.Logger
	pollInterval time.Duration
	clientOpts   []linkedin.Option
	run          func(ctx context.Context, client *linkedin.Client) error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Daemon backed by the given token store.
func New(store tokens.Store, logger *slog.Logger, opts ...Option) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		tokens:       store,
		cache:        schedstore.NewDBCache(),
		logger:       logger,
		pollInterval: 60 * time.Second,
		run:          scheduler.RunOnce,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start verifies the storage accessor resolves for the daemon and
// launches the poll goroutine. A storage failure at startup is fatal
// rather than silently retried every tick.
func (d *Daemon) Start(ctx context.Context) error {
	probe := schedstore.WithCache(ctx, d.cache, cacheOwner)
	if _, err := ambient.CurrentStorage(probe); err != nil {
		return fmt.Errorf("daemon storage check: %w", err)
	}

	d.wg.Add(1)
	go d.loop()
	d.logger.Info("publisher daemon started",
		slog.Duration("poll_interval", d.pollInterval))
	return nil
}

// Stop signals the daemon to stop, waits for the poll goroutine, and
// closes the daemon's storage handles.
func (d *Daemon) Stop(_ context.Context) error {
	close(d.stopCh)
	d.wg.Wait()
	d.cache.Close()
	d.logger.Info("publisher daemon stopped")
	return nil
}

func (d *Daemon) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

// tick runs one publish pass. Errors and panics are contained so a
// bad pass never kills the daemon.
func (d *Daemon) tick() {
	defer func() {
		if r := recover(); r != nil {
			observability.DaemonTicksTotal.WithLabelValues("failed").Inc()
			d.logger.Error("publish pass panicked", "panic", r)
		}
	}()

	ctx := schedstore.WithCache(context.Background(), d.cache, cacheOwner)

	cred, err := d.tokens.Any(ctx)
	if err != nil {
		if errors.Is(err, tokens.ErrNoCredential) {
			observability.DaemonTicksTotal.WithLabelValues("skipped").Inc()
			d.logger.Debug("publish pass skipped, no credential in store")
			return
		}
		observability.DaemonTicksTotal.WithLabelValues("failed").Inc()
		d.logger.Error("loading credential failed", "error", err)
		return
	}

	client := linkedin.NewClient(cred.AccessToken, "", d.clientOpts...)
	if err := d.run(ctx, client); err != nil {
		observability.DaemonTicksTotal.WithLabelValues("failed").Inc()
		d.logger.Error("publish pass failed", "error", err)
		return
	}
	observability.DaemonTicksTotal.WithLabelValues("success").Inc()
}
