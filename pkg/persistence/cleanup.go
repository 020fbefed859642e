package persistence

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cleaner periodically trims request-history files older than a TTL. It
// runs on the Store's own cron schedule rather than the Store's write path
// so pruning never competes with the coalesce window.
type Cleaner struct {
	store    *Store
	ttl      time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewCleaner creates a Cleaner for store. ttl is how long a request-history
// file may go untouched before it is deleted outright.
func NewCleaner(store *Store, ttl time.Duration) *Cleaner {
	return &Cleaner{
		store:  store,
		ttl:    ttl,
		cron:   cron.New(),
		logger: slog.Default().With("component", "persistence.cleanup"),
	}
}

// Start schedules periodic pruning per the given cron expression (e.g.
// "0 3 * * *" for daily at 3 AM). An empty schedule disables pruning.
func (c *Cleaner) Start(ctx context.Context, schedule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schedule == "" {
		c.logger.Info("cleanup schedule not configured, skipping")
		return nil
	}

	if _, err := c.cron.AddFunc(schedule, func() {
		c.runCleanup()
	}); err != nil {
		return err
	}

	c.cron.Start()
	c.running = true
	c.logger.Info("persistence cleanup scheduler started", "schedule", schedule, "ttl", c.ttl)

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return nil
}

// Stop halts the scheduler, waiting for any in-flight cleanup to finish.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil && c.running {
		stopCtx := c.cron.Stop()
		<-stopCtx.Done()
		c.running = false
		c.logger.Info("persistence cleanup scheduler stopped")
	}
}

// runCleanup walks every proxies/*/* /requests blob and, when its
// modification time predates the TTL cutoff, deletes it outright. Request
// files are whole-port blobs, so pruning removes the entire stale history
// for that port rather than individual records within it.
func (c *Cleaner) runCleanup() {
	cutoff := time.Now().Add(-c.ttl)
	deleted := 0

	err := filepath.WalkDir(c.store.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, "/requests.json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr == nil {
				deleted++
				os.Remove(strings.TrimSuffix(path, ".json") + ".schema")
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("cleanup walk failed", "error", err)
		return
	}

	if deleted > 0 {
		c.logger.Info("persistence cleanup completed", "deleted_files", deleted)
	} else {
		c.logger.Debug("persistence cleanup completed, nothing stale")
	}
}
