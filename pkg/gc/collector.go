// Package gc removes ACL attributes left behind by deleted inodes.
//
// Attributes and inodes are written in separate store calls, so a crash or a
// failed unlink can leave an ACL keyed by an inode that no longer exists.
// Such orphans are harmless to lookups but waste space and would be picked
// up again if an id were ever reused. The collector finds them by scanning
// the attribute namespace and probing the inode table.
package gc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Store is what the collector needs from a metadata backend.
type Store interface {
	metadata.AttributeStore
	metadata.InodeStore
	metadata.AttributeScanner
}

// Forgetter drops cached state for an inode. *aclfs.Manager implements it.
type Forgetter interface {
	Forget(id uuid.UUID)
}

// Collector performs periodic garbage collection of orphaned ACLs.
//
// Thread Safety: Safe for concurrent use. Runs are serialised by the
// caller: Start runs them one after another, RunNow runs in the caller's
// goroutine.
type Collector struct {
	store  Store
	cache  Forgetter
	config Config
	stopCh chan struct{}
	doneCh chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether Start launches the background worker
	Enabled bool

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration

	// DryRun mode logs what would be deleted without deleting it
	DryRun bool
}

// NewCollector creates a collector. It is not started.
//
// Parameters:
//   - store: Backend holding inodes and attributes; it must be able to
//     enumerate attributes
//   - cache: Receives Forget for every collected inode; may be nil
//   - config: Garbage collection configuration
//
// Returns:
//   - error: ErrNotSupported (wrapped) if store cannot scan attributes
func NewCollector(store metadata.Store, cache Forgetter, config Config) (*Collector, error) {
	gcStore, ok := store.(Store)
	if !ok {
		return nil, fmt.Errorf("store cannot enumerate attributes: %w", metadata.ErrNotSupported)
	}

	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}

	return &Collector{
		store:  gcStore,
		cache:  cache,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the background worker. It does nothing when the collector
// is disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	logger.Info("Starting garbage collector: interval=%s dry_run=%v", c.config.Interval, c.config.DryRun)
	go c.worker()
}

// Stop signals the worker and waits for it, or for ctx to expire.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	logger.Info("Stopping garbage collector...")
	close(c.stopCh)

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one collection in the caller's goroutine.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect scans every inode that carries attributes. An inode the inode
// table no longer knows is an orphan: its ACL attributes are removed and
// its cache entries dropped. Lookup failures other than "not found" leave
// the inode alone.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	err := c.store.ScanXattrs(ctx, func(id uuid.UUID, names []string) error {
		stats.ScannedCount++

		_, err := c.store.GetInode(ctx, id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, metadata.ErrNotFound):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Debug("GC: cannot look up inode %s: %v", id, err)
			stats.FailedCount++
			return nil
		}

		stats.OrphanedCount++
		if c.config.DryRun {
			logger.Info("GC: DRY RUN - would remove %v from %s", names, id)
			return nil
		}

		for _, name := range names {
			if !isACLAttribute(name) {
				continue
			}
			if err := c.store.SetXattr(ctx, id, name, nil); err != nil {
				logger.Warn("GC: failed to remove %s from %s: %v", name, id, err)
				stats.FailedCount++
				continue
			}
			stats.DeletedCount++
		}
		if c.cache != nil {
			c.cache.Forget(id)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("scan attributes: %w", err)
	}

	logger.Info("GC: Completed - %s", stats.Summary())
	return stats, nil
}

func isACLAttribute(name string) bool {
	return name == metadata.XattrACLAccess || name == metadata.XattrACLDefault
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime     time.Time // When collection started
	EndTime       time.Time // When collection ended
	ScannedCount  uint64    // Inodes carrying at least one attribute
	OrphanedCount uint64    // Of those, inodes missing from the inode table
	DeletedCount  uint64    // Attributes removed
	FailedCount   uint64    // Lookups or removals that failed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("scanned=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.ScannedCount, s.OrphanedCount, s.DeletedCount, s.FailedCount, s.Duration())
}
