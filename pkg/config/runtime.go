package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/aclfs"
	"github.com/marmos91/dittoacl/pkg/gc"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metrics"
	"github.com/marmos91/dittoacl/pkg/xattr"
)

// Runtime holds every component built from a Config.
type Runtime struct {
	Store   metadata.Store
	Manager *aclfs.Manager
	Xattrs  *xattr.Dispatcher
	Authz   metadata.Authorizer
	Locks   *metadata.InodeLocks

	// Opts are the mount options derived from the acl section
	Opts metadata.MountOptions

	// Umask applies to inodes created without a parent default ACL
	Umask uint32

	// GC is the background collector, nil unless the gc section enables it
	// and the store can enumerate attributes
	GC *gc.Collector

	metricsFile string
}

// gcStopTimeout bounds how long Close waits for a running collection.
const gcStopTimeout = 30 * time.Second

// MountOptions derives the mount flags from the configuration.
func (c *Config) MountOptions() metadata.MountOptions {
	var opts metadata.MountOptions
	if c.ACL.Enabled {
		opts.Flags |= metadata.POSIXACL
	}
	return opts
}

// Authorizer returns the ownership check for ACL changes.
func (c *Config) Authorizer() metadata.Authorizer {
	return metadata.UnixAuthorizer{RootOverride: c.ACL.RootOverride}
}

// NewRuntime creates a fully wired Runtime from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Applies the logging section
//  2. Initializes the metrics registry when enabled
//  3. Creates the store, the identity mapper and the ACL cache
//  4. Binds them into the ACL manager and the xattr dispatcher
//  5. Starts the orphan collector when the gc section enables it
//
// The caller must Close the runtime.
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	umask, err := cfg.ACL.UmaskBits()
	if err != nil {
		return nil, fmt.Errorf("acl: %w", err)
	}

	mapper, err := CreateMapper(&cfg.Identity)
	if err != nil {
		return nil, err
	}

	store, err := CreateStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	authz := cfg.Authorizer()
	manager := aclfs.NewManager(store, store, mapper, CreateCache(&cfg.Cache), metrics.NewACLMetrics())

	logger.Debug("Runtime ready: store=%s acl=%v cache=%v umask=%#o",
		cfg.Store.Type, cfg.ACL.Enabled, cfg.Cache.Enabled, umask)

	rt := &Runtime{
		Store:       store,
		Manager:     manager,
		Xattrs:      xattr.NewACLDispatcher(manager, authz),
		Authz:       authz,
		Locks:       &metadata.InodeLocks{},
		Opts:        cfg.MountOptions(),
		Umask:       umask,
		metricsFile: cfg.Metrics.Textfile,
	}

	if cfg.GC.Enabled {
		collector, err := gc.NewCollector(store, manager, gc.Config{
			Enabled:  true,
			Interval: cfg.GC.Interval,
			DryRun:   cfg.GC.DryRun,
		})
		if err != nil {
			logger.Warn("Garbage collection unavailable on %s store: %v", cfg.Store.Type, err)
		} else {
			collector.Start()
			rt.GC = collector
		}
	}

	return rt, nil
}

// Close stops the collector, releases the store and flushes metrics to the
// configured textfile.
func (r *Runtime) Close() error {
	var errs []error
	if r.GC != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gcStopTimeout)
		if err := r.GC.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop garbage collector: %w", err))
		}
		cancel()
	}
	if r.metricsFile != "" {
		if err := metrics.WriteTextfile(r.metricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
