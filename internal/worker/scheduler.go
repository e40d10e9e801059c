// Package worker runs the background cycles of the agent: export
// and upload, bundle installation, pull synchronization, and the
// stale-transmission sweep.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/bundle"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/db"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/export"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/pullsync"
	"github.com/akvo/akvo-flow-mobile-sub002/internal/upload"
)

// Notifier receives worker outcomes for user-facing surfaces. The
// engine itself never blocks on it.
type Notifier interface {
	Notify(op string, err error)
}

// LogNotifier is the default Notifier, reporting through the logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(op string, err error) {
	if err != nil {
		logging.WithFields(logging.Fields{"worker": op}).WithError(err).Warn("worker cycle failed")
		return
	}
	logging.WithFields(logging.Fields{"worker": op}).Debugf("worker cycle finished")
}

// Config holds the worker schedules.
type Config struct {
	ExportInterval time.Duration
	BundleInterval time.Duration
	SyncInterval   time.Duration
	SweepInterval  time.Duration
	StaleThreshold time.Duration
}

// guard serializes a worker against itself. A cycle that fires while
// the previous one still runs is dropped, not queued.
type guard struct {
	mu   sync.Mutex
	busy bool
}

func (g *guard) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

func (g *guard) leave() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// Scheduler owns the background workers. Workers are serialized only
// against themselves; cross-worker consistency comes from the
// store's transaction discipline.
type Scheduler struct {
	store     *db.Store
	exporter  *export.Service
	transport *upload.Transport
	installer *bundle.Installer
	puller    *pullsync.Synchronizer
	notifier  Notifier
	cfg       Config

	bundleNudge chan struct{}

	exportGuard guard
	bundleGuard guard
	syncGuard   guard
	sweepGuard  guard

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. A nil notifier falls back to
// LogNotifier.
func NewScheduler(store *db.Store, exporter *export.Service, transport *upload.Transport,
	installer *bundle.Installer, puller *pullsync.Synchronizer, notifier Notifier, cfg Config) *Scheduler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Scheduler{
		store:       store,
		exporter:    exporter,
		transport:   transport,
		installer:   installer,
		puller:      puller,
		notifier:    notifier,
		cfg:         cfg,
		bundleNudge: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// BundleNudge is the channel the inbox watcher sends arrival events
// to. A nudge triggers an immediate install cycle.
func (s *Scheduler) BundleNudge() chan<- struct{} {
	return s.bundleNudge
}

// Start launches all workers. Each runs one cycle immediately and
// then on its own ticker until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.launch(ctx, "export", s.cfg.ExportInterval, &s.exportGuard, nil, s.exportCycle)
	s.launch(ctx, "bundle", s.cfg.BundleInterval, &s.bundleGuard, s.bundleNudge, s.bundleCycle)
	s.launch(ctx, "pull-sync", s.cfg.SyncInterval, &s.syncGuard, nil, s.syncCycle)
	s.launch(ctx, "sweep", s.cfg.SweepInterval, &s.sweepGuard, nil, s.sweepCycle)
}

// Stop signals all workers and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	logging.Infof("workers stopped")
}

func (s *Scheduler) launch(ctx context.Context, name string, interval time.Duration,
	g *guard, nudge <-chan struct{}, cycle func(context.Context) error) {

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		run := func() {
			if !g.enter() {
				logging.Debugf("%s cycle still running, skipping", name)
				return
			}
			defer g.leave()
			s.notifier.Notify(name, cycle(ctx))
		}

		run()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				run()
			case <-nudge:
				run()
			}
		}
	}()
}

// exportCycle exports eligible submissions and drains the upload
// queue.
func (s *Scheduler) exportCycle(ctx context.Context) error {
	if _, err := s.exporter.ExportAll(); err != nil {
		return err
	}
	_, err := s.transport.ProcessQueue(ctx, s.cfg.StaleThreshold)
	return err
}

func (s *Scheduler) bundleCycle(ctx context.Context) error {
	_, err := s.installer.InstallAll(ctx)
	return err
}

func (s *Scheduler) syncCycle(ctx context.Context) error {
	_, err := s.puller.SyncAll(ctx)
	return err
}

// sweepCycle reclaims transmissions stuck IN_PROGRESS past the
// staleness threshold and prunes orphaned rows.
func (s *Scheduler) sweepCycle(context.Context) error {
	reclaimed, err := s.store.ReclaimStaleTransmissions(s.cfg.StaleThreshold)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logging.Infof("reclaimed %d stale transmissions", reclaimed)
	}
	subs, points, err := s.store.DeleteOrphans()
	if err != nil {
		return err
	}
	if subs > 0 || points > 0 {
		logging.Debugf("pruned %d empty submissions, %d orphan data points", subs, points)
	}
	return nil
}
