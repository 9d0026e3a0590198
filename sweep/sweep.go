// Package sweep applies the retention policy to every snapshot collection in
// a mirror tree.
package sweep

import (
	"os"
	"sync"
	"time"

	"github.com/taigrr/colorhash"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dendrascience/verfs/metrics"
	"github.com/dendrascience/verfs/retention"
	"github.com/dendrascience/verfs/snapshot"
	"github.com/dendrascience/verfs/util"
)

// Report summarizes one sweep.
type Report struct {
	Collections int
	Snapshots   int
	Kept        int
	Deleted     int
	Corrupt     int
	Duration    time.Duration

	// Reclaimed lists the snapshots that were deleted, or would have been
	// in a dry run.
	Reclaimed []string
}

// Sweeper walks a mirror tree and deletes the snapshots the retention policy
// no longer wants.
type Sweeper struct {
	layout  snapshot.Layout
	policy  retention.Policy
	clock   func() time.Time
	logger  *zap.Logger
	workers int
	dryRun  bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the source of "now" used for age decisions.
func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithWorkers sets how many collections are processed in parallel.
func WithWorkers(n int) Option {
	return func(s *Sweeper) { s.workers = max(n, 1) }
}

// WithDryRun reports what would be deleted without deleting anything.
func WithDryRun(dryRun bool) Option {
	return func(s *Sweeper) { s.dryRun = dryRun }
}

// New returns a Sweeper for the given layout and policy.
func New(layout snapshot.Layout, policy retention.Policy, opts ...Option) *Sweeper {
	s := &Sweeper{
		layout:  layout,
		policy:  policy,
		clock:   time.Now,
		logger:  zap.NewNop(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one full pass over root. Errors never stop the pass early:
// the report covers everything that could be processed and the returned
// error combines everything that could not.
func (s *Sweeper) Sweep(root string) (Report, error) {
	start := time.Now()
	now := s.clock()

	var (
		mu     sync.Mutex
		report Report
		errs   error
		wg     sync.WaitGroup
	)

	queues := make([]chan string, s.workers)
	for i := range queues {
		queues[i] = make(chan string, 16)
		wg.Add(1)
		go func(queue <-chan string) {
			defer wg.Done()
			for collection := range queue {
				r, err := s.sweepCollection(collection, now)
				mu.Lock()
				report.add(r)
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(queues[i])
	}

	walkErr := WalkCollections(root, s.layout, func(collection string) {
		queues[shard(collection, s.workers)] <- collection
	})
	for _, q := range queues {
		close(q)
	}
	wg.Wait()

	errs = multierr.Append(walkErr, errs)
	report.Duration = time.Since(start)
	metrics.RecordSweep(report.Duration, report.Collections, report.Deleted, report.Corrupt, errs)

	fields := []zap.Field{
		zap.String("root", root),
		zap.Int("collections", report.Collections),
		zap.Int("snapshots", report.Snapshots),
		zap.Int("deleted", report.Deleted),
		zap.Int("corrupt", report.Corrupt),
		zap.Duration("duration", report.Duration),
		zap.Bool("dry_run", s.dryRun),
	}
	if errs != nil {
		s.logger.Warn("sweep finished with errors", append(fields, zap.Error(errs))...)
	} else {
		s.logger.Info("sweep finished", fields...)
	}
	return report, errs
}

// shard pins a collection to one worker, so that a collection is never
// handled by two workers even if it were reported twice.
func shard(collection string, workers int) int {
	if workers <= 1 {
		return 0
	}
	h := colorhash.HashString(collection)
	return int(uint64(h) % uint64(workers))
}

func (s *Sweeper) sweepCollection(collection string, now time.Time) (Report, error) {
	r := Report{Collections: 1}

	entries, corrupt, err := snapshot.ReadCollection(collection)
	if err != nil {
		return r, util.HostError("readdir", collection, err)
	}
	for _, c := range corrupt {
		s.logger.Warn("skipping unparseable snapshot",
			zap.String("collection", collection),
			zap.String("name", c.Name),
			zap.Error(c.Err))
	}
	r.Corrupt = len(corrupt)
	r.Snapshots = len(entries)

	var errs error
	for _, i := range retention.Decide(snapshot.IDs(entries), now, s.policy) {
		p := entries[i].Path(collection)
		if !s.dryRun {
			if err := os.RemoveAll(p); err != nil {
				errs = multierr.Append(errs, util.HostError("remove", p, err))
				continue
			}
		}
		s.logger.Debug("snapshot reclaimed", zap.String("path", p), zap.Bool("dry_run", s.dryRun))
		r.Deleted++
		r.Reclaimed = append(r.Reclaimed, p)
	}
	r.Kept = r.Snapshots - r.Deleted
	return r, errs
}

func (r *Report) add(o Report) {
	r.Collections += o.Collections
	r.Snapshots += o.Snapshots
	r.Kept += o.Kept
	r.Deleted += o.Deleted
	r.Corrupt += o.Corrupt
	r.Reclaimed = append(r.Reclaimed, o.Reclaimed...)
}
